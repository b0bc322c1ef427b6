// Package client is the HTTP client for the Ember wallet service.
// The service holds the passkey-backed signing keys; this client
// never sees key material, only session tokens and signed
// transaction signatures.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/emberpay/ember/errors"
)

type ConnectStartRequest struct {
	RedirectURI string `json:"redirect_uri"`
}

type ConnectStartResponse struct {
	AuthURL string `json:"auth_url"`
	Nonce   string `json:"nonce"`
}

type ConnectCompleteRequest struct {
	Nonce   string `json:"nonce"`
	Session string `json:"session"`
}

type ConnectCompleteResponse struct {
	Address   string `json:"address"`
	Network   string `json:"network"`
	ExpiresAt int64  `json:"expires_at"`
}

type TransactionRequest struct {
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
	Mint      string `json:"mint"`
	FeeMint   string `json:"fee_mint"`
	Network   string `json:"network"`
	Reference string `json:"reference"`
	Memo      string `json:"memo,omitempty"`
}

type TransactionResponse struct {
	Signature string `json:"signature"`
}

type HealthResponse struct {
	Status        string `json:"status"`
	Subscriptions bool   `json:"subscriptions"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// serviceCodes maps the service's snake_case error codes onto the
// app taxonomy. Codes missing here go through text classification.
var serviceCodes = map[string]apperrors.Code{
	"biometric_unavailable":  apperrors.BiometricUnavailable,
	"biometric_not_enrolled": apperrors.BiometricNotEnrolled,
	"biometric_failed":       apperrors.BiometricFailed,
	"user_cancelled":         apperrors.UserCancelled,
	"session_expired":        apperrors.SessionExpired,
	"insufficient_balance":   apperrors.InsufficientBalance,
	"signing_failed":         apperrors.SigningFailed,
	"submission_failed":      apperrors.SubmissionFailed,
}

func PostConnectStart(serviceURL string, request ConnectStartRequest) (*ConnectStartResponse, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("json.Marshal: %v", err)
	}

	resp, err := httpPost(serviceURL+"/v1/connect/start", "", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var startResponse ConnectStartResponse
	if err := json.Unmarshal(body, &startResponse); err != nil {
		return nil, fmt.Errorf("error reading response from wallet service: %v", err)
	}

	return &startResponse, nil
}

func PostConnectComplete(serviceURL string, request ConnectCompleteRequest) (*ConnectCompleteResponse, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("json.Marshal: %v", err)
	}

	resp, err := httpPost(serviceURL+"/v1/connect/complete", "", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var completeResponse ConnectCompleteResponse
	if err := json.Unmarshal(body, &completeResponse); err != nil {
		return nil, fmt.Errorf("error reading response from wallet service: %v", err)
	}

	return &completeResponse, nil
}

func PostTransaction(serviceURL, token string, request TransactionRequest) (*TransactionResponse, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("json.Marshal: %v", err)
	}

	resp, err := httpPost(serviceURL+"/v1/transactions", token, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var txResponse TransactionResponse
	if err := json.Unmarshal(body, &txResponse); err != nil {
		return nil, fmt.Errorf("error reading response from wallet service: %v", err)
	}

	return &txResponse, nil
}

func PostDisconnect(serviceURL, token string) error {
	resp, err := httpPost(serviceURL+"/v1/disconnect", token, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func GetHealth(serviceURL string) (*HealthResponse, error) {
	resp, err := get(serviceURL + "/v1/health")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var healthResponse HealthResponse
	if err := json.Unmarshal(body, &healthResponse); err != nil {
		return nil, fmt.Errorf("error reading response from wallet service: %v", err)
	}

	return &healthResponse, nil
}

func get(url string) (*http.Response, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}

	return parse(resp)
}

func httpPost(url, token string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}

	return parse(resp)
}

// parse turns non-200 responses into classified errors. The service
// reports failures as {"error": {"code", "message"}}; known codes map
// directly, anything else is classified on the message text.
func parse(response *http.Response) (*http.Response, error) {
	if response.StatusCode == 200 {
		return response, nil
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, err
	}

	var errResponse errorResponse
	if err := json.Unmarshal(body, &errResponse); err == nil && errResponse.Error.Code != "" {
		if code, ok := serviceCodes[errResponse.Error.Code]; ok {
			return nil, apperrors.New(code, errResponse.Error.Message)
		}
		return nil, apperrors.Classify(fmt.Errorf("%s: %s", errResponse.Error.Code, errResponse.Error.Message))
	}

	return nil, fmt.Errorf("%s", body)
}
