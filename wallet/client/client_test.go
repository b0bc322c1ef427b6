package client_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/emberpay/ember/errors"
	"github.com/emberpay/ember/wallet/client"
)

func serviceReturning(t *testing.T, status int, body any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(status)
		json.NewEncoder(rw).Encode(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func serviceError(code, message string) map[string]any {
	return map[string]any{
		"error": map[string]any{"code": code, "message": message},
	}
}

func TestPostTransaction(t *testing.T) {
	var received client.TransactionRequest
	var authorization string
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		authorization = req.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(req.Body).Decode(&received))
		json.NewEncoder(rw).Encode(map[string]any{"signature": "5VERv8NM"})
	}))
	defer server.Close()

	response, err := client.PostTransaction(server.URL, "session-token", client.TransactionRequest{
		Recipient: "So11111111111111111111111111111111111111112",
		Amount:    12340000,
		Mint:      "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		Network:   "devnet",
		Reference: "ref-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "5VERv8NM", response.Signature)
	assert.Equal(t, "Bearer session-token", authorization)
	assert.Equal(t, uint64(12340000), received.Amount)
}

// Known service codes map straight onto the app taxonomy; unknown
// codes fall back to classification on the message text.
func TestServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected apperrors.Code
	}{
		{"biometric unavailable", "biometric_unavailable", "no sensor present", apperrors.BiometricUnavailable},
		{"biometric failed", "biometric_failed", "sensor mismatch", apperrors.BiometricFailed},
		{"user cancelled", "user_cancelled", "prompt dismissed", apperrors.UserCancelled},
		{"session expired", "session_expired", "token past expiry", apperrors.SessionExpired},
		{"unknown code, network message", "wallet_busy", "connection reset by peer", apperrors.NetworkError},
		{"unknown code, opaque message", "wallet_busy", "strange failure", apperrors.Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := serviceReturning(t, http.StatusBadRequest, serviceError(tt.code, tt.message))

			_, err := client.PostTransaction(server.URL, "token", client.TransactionRequest{})
			require.Error(t, err)
			assert.Equal(t, tt.expected, apperrors.CodeOf(err))
		})
	}
}

func TestNonRecoverableServiceErrorStaysNonRecoverable(t *testing.T) {
	server := serviceReturning(t, http.StatusBadRequest, serviceError("biometric_not_enrolled", "no credentials"))

	_, err := client.PostConnectComplete(server.URL, client.ConnectCompleteRequest{Nonce: "n", Session: "s"})
	require.Error(t, err)
	assert.Equal(t, apperrors.BiometricNotEnrolled, apperrors.CodeOf(err))
	assert.False(t, apperrors.IsRecoverable(err))
}

func TestNonJSONErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		http.Error(rw, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := client.PostConnectStart(server.URL, client.ConnectStartRequest{RedirectURI: "http://127.0.0.1/callback"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad gateway")
}

func TestGetHealth(t *testing.T) {
	server := serviceReturning(t, http.StatusOK, map[string]any{"status": "ok", "subscriptions": true})

	health, err := client.GetHealth(server.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
	assert.True(t, health.Subscriptions)
}
