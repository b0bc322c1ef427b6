package submanager_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberpay/ember/testutils"
	"github.com/emberpay/ember/wallet/submanager"
)

func TestSubscriptionsNotSupported(t *testing.T) {
	service := testutils.NewFakeService(time.Now().Add(time.Hour).Unix())
	defer service.Close()

	_, err := submanager.NewSubscriptionManager(service.URL(), "token")
	assert.ErrorIs(t, err, submanager.ErrSubscriptionsNotSupported)
}

func TestSubscribeReceivesStatusUpdates(t *testing.T) {
	service := testutils.NewFakeService(time.Now().Add(time.Hour).Unix())
	defer service.Close()
	service.EnableSubscriptions("pending", "confirmed")

	subManager, err := submanager.NewSubscriptionManager(service.URL(), "token")
	require.NoError(t, err)
	defer subManager.Close()

	errChan := make(chan error, 1)
	go subManager.Run(errChan)

	subscription, err := subManager.Subscribe(submanager.PaymentStatus, []string{testutils.TestSignature})
	require.NoError(t, err)

	first, err := subscription.Read()
	require.NoError(t, err)
	assert.Equal(t, testutils.TestSignature, first.Params.Payload.Signature)
	assert.Equal(t, "pending", first.Params.Payload.Status)

	second, err := subscription.Read()
	require.NoError(t, err)
	assert.Equal(t, "confirmed", second.Params.Payload.Status)
}

func TestSubscribeEmptySignatures(t *testing.T) {
	service := testutils.NewFakeService(time.Now().Add(time.Hour).Unix())
	defer service.Close()
	service.EnableSubscriptions()

	subManager, err := submanager.NewSubscriptionManager(service.URL(), "token")
	require.NoError(t, err)
	defer subManager.Close()

	_, err = subManager.Subscribe(submanager.PaymentStatus, nil)
	assert.Error(t, err)
}

func TestCloseSubscription(t *testing.T) {
	service := testutils.NewFakeService(time.Now().Add(time.Hour).Unix())
	defer service.Close()
	service.EnableSubscriptions()

	subManager, err := submanager.NewSubscriptionManager(service.URL(), "token")
	require.NoError(t, err)
	defer subManager.Close()

	errChan := make(chan error, 1)
	go subManager.Run(errChan)

	subscription, err := subManager.Subscribe(submanager.PaymentStatus, []string{testutils.TestSignature})
	require.NoError(t, err)

	require.NoError(t, subManager.CloseSubscription(subscription.SubId()))

	_, err = subscription.Read()
	assert.Error(t, err)

	err = subManager.CloseSubscription(subscription.SubId())
	assert.Error(t, err)
}
