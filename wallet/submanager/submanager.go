// Package submanager maintains a websocket subscription channel to
// the wallet service for live payment status updates. Services that
// do not advertise subscription support make NewSubscriptionManager
// fail with ErrSubscriptionsNotSupported, in which case callers fall
// back to polling the chain.
package submanager

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/emberpay/ember/wallet/client"
)

var (
	ErrSubscriptionsNotSupported = errors.New("subscriptions not supported by wallet service")
)

type Kind string

const (
	PaymentStatus Kind = "payment_status"
)

// Wire envelopes for the subscription channel. The service speaks a
// jsonrpc style protocol: requests carry an id, notifications carry
// the subscription id they belong to.

type WsRequest struct {
	JsonRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  RequestParams `json:"params"`
	Id      int           `json:"id"`
}

type RequestParams struct {
	Kind       string   `json:"kind,omitempty"`
	SubId      string   `json:"subId"`
	Signatures []string `json:"signatures,omitempty"`
}

type WsResponse struct {
	JsonRPC string `json:"jsonrpc"`
	Result  struct {
		Status string `json:"status"`
		SubId  string `json:"subId"`
	} `json:"result"`
	Id int `json:"id"`
}

type WsNotification struct {
	JsonRPC string             `json:"jsonrpc"`
	Method  string             `json:"method"`
	Params  NotificationParams `json:"params"`
}

type NotificationParams struct {
	SubId   string        `json:"subId"`
	Payload PaymentUpdate `json:"payload"`
}

// PaymentUpdate reports the service's view of a submitted
// transaction. Status uses the same values as local history:
// pending, confirmed, failed.
type PaymentUpdate struct {
	Signature string `json:"signature"`
	Status    string `json:"status"`
	Slot      uint64 `json:"slot,omitempty"`
	Error     string `json:"error,omitempty"`
}

type WsError struct {
	JsonRPC string `json:"jsonrpc"`
	Error   struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Id int `json:"id"`
}

func (e WsError) Err() string {
	return e.Error.Message
}

type SubscriptionManager struct {
	wsConn    *websocket.Conn
	mu        sync.RWMutex
	subs      map[string]*Subscription
	idCounter int
	quit      chan struct{}
}

func NewSubscriptionManager(serviceURL, token string) (*SubscriptionManager, error) {
	health, err := client.GetHealth(serviceURL)
	if err != nil {
		return nil, fmt.Errorf("could not get wallet service health: %v", err)
	}
	if !health.Subscriptions {
		return nil, ErrSubscriptionsNotSupported
	}

	service, err := url.Parse(serviceURL)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet service url: %v", err)
	}

	scheme := "ws"
	if service.Scheme == "https" {
		scheme = "wss"
	}
	wsURL := scheme + "://" + service.Host + service.Path + "/v1/subscribe"

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		return nil, err
	}

	subManager := &SubscriptionManager{
		wsConn: conn,
		subs:   make(map[string]*Subscription),
		quit:   make(chan struct{}),
	}

	return subManager, nil
}

// Run reads and dispatches messages from the service. It should be
// run on a separate goroutine; an error on the channel means the
// connection broke and the manager should be closed.
func (sm *SubscriptionManager) Run(errChannel chan error) {
	if err := sm.handleWsMessages(); err != nil {
		errChannel <- err
		return
	}
}

func (sm *SubscriptionManager) Close() error {
	close(sm.quit)
	err := sm.wsConn.Close()

	sm.mu.Lock()
	for subId, sub := range sm.subs {
		close(sub.notificationChannel)
		delete(sm.subs, subId)
	}
	sm.mu.Unlock()

	return err
}

func (sm *SubscriptionManager) handleWsMessages() error {
	for {
		select {
		case <-sm.quit:
			return nil
		default:
			_, msg, err := sm.wsConn.ReadMessage()
			if err != nil {
				select {
				case <-sm.quit:
					return nil
				default:
					return err
				}
			}
			sm.dispatch(msg)
		}
	}
}

// dispatch routes a message to the subscription it belongs to. Sends
// never block so a slow consumer cannot stall the read loop, and they
// happen under the lock so teardown cannot close a channel mid-send.
func (sm *SubscriptionManager) dispatch(msg []byte) {
	var notification WsNotification
	if err := json.Unmarshal(msg, &notification); err == nil && notification.Method != "" {
		sm.mu.RLock()
		if sub, ok := sm.subs[notification.Params.SubId]; ok {
			select {
			case sub.notificationChannel <- notification:
			default:
			}
		}
		sm.mu.RUnlock()
		return
	}

	var response WsResponse
	if err := json.Unmarshal(msg, &response); err == nil && response.Result.Status == "OK" {
		sm.mu.RLock()
		for _, sub := range sm.subs {
			if sub.id == response.Id {
				select {
				case sub.responseChannel <- response:
				default:
				}
			}
		}
		sm.mu.RUnlock()
		return
	}

	var wsError WsError
	if err := json.Unmarshal(msg, &wsError); err == nil && wsError.Error.Message != "" {
		sm.mu.RLock()
		for _, sub := range sm.subs {
			if sub.id == wsError.Id {
				select {
				case sub.errChannel <- wsError:
				default:
				}
			}
		}
		sm.mu.RUnlock()
	}
}

func (sm *SubscriptionManager) removeSubscription(subId string) {
	sm.mu.Lock()
	if sub, ok := sm.subs[subId]; ok {
		close(sub.notificationChannel)
		delete(sm.subs, subId)
	}
	sm.mu.Unlock()
}

// Subscribe registers for updates on the given transaction
// signatures and waits for the service to acknowledge.
func (sm *SubscriptionManager) Subscribe(kind Kind, signatures []string) (*Subscription, error) {
	if len(signatures) < 1 {
		return nil, errors.New("signatures cannot be empty")
	}

	hash := sha256.Sum256([]byte(signatures[0]))
	subId := hex.EncodeToString(hash[:])

	sub := &Subscription{
		subId:               subId,
		responseChannel:     make(chan WsResponse, 1),
		notificationChannel: make(chan WsNotification, 8),
		errChannel:          make(chan WsError, 1),
	}

	sm.mu.Lock()
	sub.id = sm.idCounter
	sm.idCounter++
	sm.subs[subId] = sub
	sm.mu.Unlock()

	request := WsRequest{
		JsonRPC: "2.0",
		Method:  "subscribe",
		Params: RequestParams{
			Kind:       string(kind),
			SubId:      subId,
			Signatures: signatures,
		},
		Id: sub.id,
	}
	if err := sm.wsConn.WriteJSON(request); err != nil {
		sm.removeSubscription(subId)
		return nil, fmt.Errorf("could not send subscription request: %v", err)
	}

	select {
	case <-sub.responseChannel:
		return sub, nil
	case wsErr := <-sub.errChannel:
		sm.removeSubscription(subId)
		return nil, fmt.Errorf("could not set up subscription: %v", wsErr.Err())
	case <-time.After(10 * time.Second):
		sm.removeSubscription(subId)
		return nil, errors.New("timeout waiting for subscription ack")
	}
}

func (sm *SubscriptionManager) CloseSubscription(subId string) error {
	sm.mu.RLock()
	_, ok := sm.subs[subId]
	sm.mu.RUnlock()
	if !ok {
		return errors.New("subscription does not exist")
	}

	sm.mu.Lock()
	id := sm.idCounter
	sm.idCounter++
	sm.mu.Unlock()

	request := WsRequest{
		JsonRPC: "2.0",
		Method:  "unsubscribe",
		Params:  RequestParams{SubId: subId},
		Id:      id,
	}
	if err := sm.wsConn.WriteJSON(request); err != nil {
		return fmt.Errorf("could not send unsubscribe request: %v", err)
	}
	sm.removeSubscription(subId)

	return nil
}

type Subscription struct {
	subId               string
	id                  int
	responseChannel     chan WsResponse
	notificationChannel chan WsNotification
	errChannel          chan WsError
}

// Read blocks until the next update for this subscription arrives.
func (s *Subscription) Read() (WsNotification, error) {
	msg, ok := <-s.notificationChannel
	if !ok {
		return WsNotification{}, errors.New("subscription channel closed")
	}
	return msg, nil
}

func (s *Subscription) SubId() string {
	return s.subId
}
