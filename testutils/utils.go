// Package testutils provides in-process doubles for the two network
// dependencies of the wallet: the passkey wallet service and a solana
// rpc node. Both run on httptest servers so wallet tests exercise the
// real http and websocket paths.
package testutils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/emberpay/ember/solpay"
	"github.com/emberpay/ember/wallet"
)

const (
	TestNetwork = "devnet"

	// arbitrary but well formed base58 values
	TestAddress   = "Vote111111111111111111111111111111111111111"
	TestSignature = "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"
)

type serviceError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TransactionRecord captures a transfer request the fake service
// received.
type TransactionRecord struct {
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
	Mint      string `json:"mint"`
	FeeMint   string `json:"fee_mint"`
	Network   string `json:"network"`
	Reference string `json:"reference"`
	Memo      string `json:"memo"`
}

// FakeService impersonates the passkey wallet service. Connect hands
// out TestAddress, transactions return TestSignature, and when
// subscriptions are enabled the websocket endpoint acks and replays
// the configured status flow.
type FakeService struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu            sync.Mutex
	nonce         string
	token         string
	expiresAt     int64
	failCode      string
	failMessage   string
	subscriptions bool
	statusFlow    []string
	transactions  []TransactionRecord
	disconnects   int
}

func NewFakeService(expiresAt int64) *FakeService {
	service := &FakeService{expiresAt: expiresAt}

	r := mux.NewRouter()
	r.HandleFunc("/v1/connect/start", service.handleConnectStart).Methods(http.MethodPost)
	r.HandleFunc("/v1/connect/complete", service.handleConnectComplete).Methods(http.MethodPost)
	r.HandleFunc("/v1/transactions", service.handleTransaction).Methods(http.MethodPost)
	r.HandleFunc("/v1/disconnect", service.handleDisconnect).Methods(http.MethodPost)
	r.HandleFunc("/v1/health", service.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/subscribe", service.handleSubscribe)

	service.server = httptest.NewServer(r)
	return service
}

func (fs *FakeService) URL() string {
	return fs.server.URL
}

func (fs *FakeService) Close() {
	fs.server.Close()
}

// Fail makes transaction submissions return the given service error
// code until cleared with an empty code.
func (fs *FakeService) Fail(code, message string) {
	fs.mu.Lock()
	fs.failCode = code
	fs.failMessage = message
	fs.mu.Unlock()
}

// EnableSubscriptions advertises websocket support and sets the
// status updates pushed after a subscribe ack.
func (fs *FakeService) EnableSubscriptions(statusFlow ...string) {
	fs.mu.Lock()
	fs.subscriptions = true
	fs.statusFlow = statusFlow
	fs.mu.Unlock()
}

func (fs *FakeService) Transactions() []TransactionRecord {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	records := make([]TransactionRecord, len(fs.transactions))
	copy(records, fs.transactions)
	return records
}

func (fs *FakeService) Disconnects() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.disconnects
}

func (fs *FakeService) handleConnectStart(rw http.ResponseWriter, req *http.Request) {
	fs.mu.Lock()
	fs.nonce = uuid.NewString()
	nonce := fs.nonce
	fs.mu.Unlock()

	writeJSON(rw, map[string]any{
		"auth_url": fs.server.URL + "/authorize?nonce=" + nonce,
		"nonce":    nonce,
	})
}

func (fs *FakeService) handleConnectComplete(rw http.ResponseWriter, req *http.Request) {
	var request struct {
		Nonce   string `json:"nonce"`
		Session string `json:"session"`
	}
	if err := json.NewDecoder(req.Body).Decode(&request); err != nil {
		writeServiceError(rw, http.StatusBadRequest, "session_expired", "malformed request")
		return
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if request.Nonce != fs.nonce || fs.nonce == "" {
		writeServiceError(rw, http.StatusBadRequest, "session_expired", "unknown nonce")
		return
	}
	fs.nonce = ""
	fs.token = request.Session

	writeJSON(rw, map[string]any{
		"address":    TestAddress,
		"network":    TestNetwork,
		"expires_at": fs.expiresAt,
	})
}

func (fs *FakeService) handleTransaction(rw http.ResponseWriter, req *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if req.Header.Get("Authorization") != "Bearer "+fs.token || fs.token == "" {
		writeServiceError(rw, http.StatusUnauthorized, "session_expired", "invalid session")
		return
	}
	if fs.failCode != "" {
		writeServiceError(rw, http.StatusBadRequest, fs.failCode, fs.failMessage)
		return
	}

	var record TransactionRecord
	if err := json.NewDecoder(req.Body).Decode(&record); err != nil {
		writeServiceError(rw, http.StatusBadRequest, "submission_failed", "malformed request")
		return
	}
	fs.transactions = append(fs.transactions, record)

	writeJSON(rw, map[string]any{"signature": TestSignature})
}

func (fs *FakeService) handleDisconnect(rw http.ResponseWriter, req *http.Request) {
	fs.mu.Lock()
	fs.disconnects++
	fs.token = ""
	fs.mu.Unlock()
	writeJSON(rw, map[string]any{"status": "ok"})
}

func (fs *FakeService) handleHealth(rw http.ResponseWriter, req *http.Request) {
	fs.mu.Lock()
	subscriptions := fs.subscriptions
	fs.mu.Unlock()
	writeJSON(rw, map[string]any{"status": "ok", "subscriptions": subscriptions})
}

func (fs *FakeService) handleSubscribe(rw http.ResponseWriter, req *http.Request) {
	conn, err := fs.upgrader.Upgrade(rw, req, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var request struct {
		Method string `json:"method"`
		Params struct {
			SubId      string   `json:"subId"`
			Signatures []string `json:"signatures"`
		} `json:"params"`
		Id int `json:"id"`
	}
	if err := conn.ReadJSON(&request); err != nil {
		return
	}

	ack := map[string]any{
		"jsonrpc": "2.0",
		"result":  map[string]any{"status": "OK", "subId": request.Params.SubId},
		"id":      request.Id,
	}
	if err := conn.WriteJSON(ack); err != nil {
		return
	}

	fs.mu.Lock()
	statusFlow := fs.statusFlow
	fs.mu.Unlock()

	signature := TestSignature
	if len(request.Params.Signatures) > 0 {
		signature = request.Params.Signatures[0]
	}
	for _, status := range statusFlow {
		notification := map[string]any{
			"jsonrpc": "2.0",
			"method":  "subscribe",
			"params": map[string]any{
				"subId": request.Params.SubId,
				"payload": map[string]any{
					"signature": signature,
					"status":    status,
				},
			},
		}
		if err := conn.WriteJSON(notification); err != nil {
			return
		}
	}

	// keep the connection open until the client goes away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(v)
}

func writeServiceError(rw http.ResponseWriter, status int, code, message string) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(map[string]any{
		"error": serviceError{Code: code, Message: message},
	})
}

// FakeRPC answers the json-rpc methods the wallet uses. Balances and
// confirmation behavior are adjustable per test.
type FakeRPC struct {
	server *httptest.Server

	mu                  sync.Mutex
	lamports            uint64
	tokenBase           uint64
	tokenAccountMissing bool
	supplyDecimals      uint8
	statusErr           any
	confirmAfter        int
	polls               int
}

func NewFakeRPC() *FakeRPC {
	rpcNode := &FakeRPC{supplyDecimals: 6}
	rpcNode.server = httptest.NewServer(http.HandlerFunc(rpcNode.handle))
	return rpcNode
}

func (fr *FakeRPC) URL() string {
	return fr.server.URL
}

func (fr *FakeRPC) Close() {
	fr.server.Close()
}

func (fr *FakeRPC) SetLamports(lamports uint64) {
	fr.mu.Lock()
	fr.lamports = lamports
	fr.mu.Unlock()
}

func (fr *FakeRPC) SetTokenBalance(base uint64) {
	fr.mu.Lock()
	fr.tokenBase = base
	fr.tokenAccountMissing = false
	fr.mu.Unlock()
}

func (fr *FakeRPC) SetTokenAccountMissing() {
	fr.mu.Lock()
	fr.tokenAccountMissing = true
	fr.mu.Unlock()
}

func (fr *FakeRPC) SetSupplyDecimals(decimals uint8) {
	fr.mu.Lock()
	fr.supplyDecimals = decimals
	fr.mu.Unlock()
}

// ConfirmAfter makes getSignatureStatuses report the transaction as
// unknown for the first n polls and confirmed afterwards.
func (fr *FakeRPC) ConfirmAfter(n int) {
	fr.mu.Lock()
	fr.confirmAfter = n
	fr.polls = 0
	fr.mu.Unlock()
}

// FailTransaction makes getSignatureStatuses report an on-chain
// failure.
func (fr *FakeRPC) FailTransaction(chainErr any) {
	fr.mu.Lock()
	fr.statusErr = chainErr
	fr.mu.Unlock()
}

type rpcRequest struct {
	ID     any             `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (fr *FakeRPC) handle(rw http.ResponseWriter, req *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(req.Body).Decode(&request); err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}

	fr.mu.Lock()
	defer fr.mu.Unlock()

	switch request.Method {
	case "getBalance":
		fr.writeResult(rw, request.ID, map[string]any{
			"context": map[string]any{"slot": 1},
			"value":   fr.lamports,
		})
	case "getTokenAccountBalance":
		if fr.tokenAccountMissing {
			fr.writeError(rw, request.ID, -32602, "could not find account")
			return
		}
		fr.writeResult(rw, request.ID, map[string]any{
			"context": map[string]any{"slot": 1},
			"value": map[string]any{
				"amount":         fmt.Sprintf("%d", fr.tokenBase),
				"decimals":       fr.supplyDecimals,
				"uiAmountString": "0",
			},
		})
	case "getTokenSupply":
		fr.writeResult(rw, request.ID, map[string]any{
			"context": map[string]any{"slot": 1},
			"value": map[string]any{
				"amount":         "1000000000",
				"decimals":       fr.supplyDecimals,
				"uiAmountString": "1000",
			},
		})
	case "getSignatureStatuses":
		fr.polls++
		if fr.statusErr != nil {
			fr.writeResult(rw, request.ID, map[string]any{
				"context": map[string]any{"slot": 1},
				"value": []any{map[string]any{
					"slot":               1,
					"confirmations":      0,
					"err":                fr.statusErr,
					"confirmationStatus": "processed",
				}},
			})
			return
		}
		if fr.polls <= fr.confirmAfter {
			fr.writeResult(rw, request.ID, map[string]any{
				"context": map[string]any{"slot": 1},
				"value":   []any{nil},
			})
			return
		}
		fr.writeResult(rw, request.ID, map[string]any{
			"context": map[string]any{"slot": 1},
			"value": []any{map[string]any{
				"slot":               1,
				"confirmations":      10,
				"err":                nil,
				"confirmationStatus": "confirmed",
			}},
		})
	default:
		fr.writeError(rw, request.ID, -32601, "method not found")
	}
}

func (fr *FakeRPC) writeResult(rw http.ResponseWriter, id, result any) {
	writeJSON(rw, map[string]any{"jsonrpc": "2.0", "result": result, "id": id})
}

func (fr *FakeRPC) writeError(rw http.ResponseWriter, id any, code int, message string) {
	writeJSON(rw, map[string]any{
		"jsonrpc": "2.0",
		"error":   map[string]any{"code": code, "message": message},
		"id":      id,
	})
}

// CreateTestWallet loads a wallet in walletPath pointed at the fake
// service and rpc node.
func CreateTestWallet(walletPath string, service *FakeService, rpcNode *FakeRPC, opts ...wallet.Option) (*wallet.Wallet, error) {
	if err := os.MkdirAll(walletPath, 0750); err != nil {
		return nil, err
	}
	config := wallet.Config{
		WalletPath: walletPath,
		ServiceURL: service.URL(),
		RPCURL:     rpcNode.URL(),
		Network:    TestNetwork,
		Pay:        solpay.DefaultConfig(),
	}
	testWallet, err := wallet.LoadWallet(config, opts...)
	if err != nil {
		return nil, err
	}

	return testWallet, nil
}

// ConnectTestWallet runs the connect handshake against the fake
// service.
func ConnectTestWallet(testWallet *wallet.Wallet, token string) error {
	startResponse, err := testWallet.StartConnect("http://127.0.0.1:8912/callback")
	if err != nil {
		return fmt.Errorf("error starting connect: %v", err)
	}

	if _, err := testWallet.CompleteConnect(startResponse.Nonce, token); err != nil {
		return fmt.Errorf("error completing connect: %v", err)
	}

	return nil
}
