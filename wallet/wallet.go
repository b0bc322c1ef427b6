package wallet

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/google/uuid"

	apperrors "github.com/emberpay/ember/errors"
	"github.com/emberpay/ember/logger"
	"github.com/emberpay/ember/metrics"
	"github.com/emberpay/ember/solpay"
	"github.com/emberpay/ember/wallet/client"
	"github.com/emberpay/ember/wallet/storage"
	"github.com/emberpay/ember/wallet/submanager"
)

const (
	solDecimals = 9

	confirmationTimeout = 60 * time.Second
	confirmationPoll    = 2 * time.Second
)

type Config struct {
	WalletPath string
	ServiceURL string
	RPCURL     string
	Network    string
	// FeeMint is the asset the paymaster takes fees in. Defaults to
	// the payment config's default mint.
	FeeMint string
	Pay     solpay.Config
}

type Wallet struct {
	db  storage.WalletDB
	rpc *rpc.Client

	// wallet service url handling passkey auth and signing
	ServiceURL string

	codec     *solpay.Codec
	validator *solpay.Validator
	payCfg    solpay.Config
	network   string
	feeMint   string

	// mu guards the connection state and session against concurrent
	// flows; the codec and validator need no locking.
	mu        sync.Mutex
	connState ConnectionState
	session   *storage.Session

	confirmTimeout time.Duration

	logger  logger.Logger
	metrics metrics.Recorder
}

func InitStorage(path string) (storage.WalletDB, error) {
	// bolt db atm
	return storage.InitBolt(path)
}

func LoadWallet(config Config, opts ...Option) (*Wallet, error) {
	codec, err := solpay.NewCodec(config.Pay)
	if err != nil {
		return nil, fmt.Errorf("invalid payment config: %v", err)
	}
	validator, err := solpay.NewValidator(config.Pay)
	if err != nil {
		return nil, fmt.Errorf("invalid payment config: %v", err)
	}

	serviceURL, err := url.Parse(config.ServiceURL)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet service url: %v", err)
	}

	db, err := InitStorage(config.WalletPath)
	if err != nil {
		return nil, fmt.Errorf("InitStorage: %v", err)
	}

	feeMint := config.FeeMint
	if feeMint == "" {
		feeMint = config.Pay.DefaultMint
	}

	wallet := &Wallet{
		db:             db,
		rpc:            rpc.New(config.RPCURL),
		ServiceURL:     serviceURL.String(),
		codec:          codec,
		validator:      validator,
		payCfg:         config.Pay,
		network:        config.Network,
		feeMint:        feeMint,
		connState:      StateNotCreated,
		confirmTimeout: confirmationTimeout,
		logger:         logger.NoopLogger{},
		metrics:        metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(wallet)
	}

	// restore a previous session if one exists. An expired session
	// still identifies the wallet address; operations that need the
	// service will report session-expired.
	if session := wallet.db.GetSession(); session != nil {
		wallet.session = session
		wallet.connState = StateConnected
		wallet.logger.Info("restored wallet session", map[string]any{
			"address": session.Address,
			"expired": session.Expired(),
		})
	}

	return wallet, nil
}

// Shutdown closes the wallet database. The wallet cannot be used
// afterwards.
func (w *Wallet) Shutdown() error {
	return w.db.Close()
}

// State returns the current connection state.
func (w *Wallet) State() ConnectionState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connState
}

// currentSession snapshots the session pointer under the lock.
func (w *Wallet) currentSession() *storage.Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session
}

// IsConnected reports whether the wallet holds a usable session.
func (w *Wallet) IsConnected() bool {
	session := w.currentSession()
	return session != nil && !session.Expired()
}

// Address returns the smart wallet address, or an empty string when
// no session exists.
func (w *Wallet) Address() string {
	session := w.currentSession()
	if session == nil {
		return ""
	}
	return session.Address
}

// Codec returns the payment URI codec the wallet was loaded with.
func (w *Wallet) Codec() *solpay.Codec {
	return w.codec
}

// StartConnect begins the passkey ceremony with the wallet service.
// The returned auth url must be opened by the user; the service will
// redirect to redirectURI with the nonce and session token once the
// passkey prompt succeeds.
func (w *Wallet) StartConnect(redirectURI string) (*client.ConnectStartResponse, error) {
	if err := w.transitionConnection(StateCreating); err != nil {
		return nil, fmt.Errorf("cannot start connect from %s state", w.State())
	}

	resp, err := client.PostConnectStart(w.ServiceURL, client.ConnectStartRequest{RedirectURI: redirectURI})
	if err != nil {
		w.transitionConnection(StateConnError)
		return nil, classifyConnect(err)
	}

	w.transitionConnection(StateConnecting)
	w.logger.Info("started wallet connect", map[string]any{"nonce": resp.Nonce})
	return resp, nil
}

// CompleteConnect exchanges the nonce and session token from the
// redirect for the wallet address and persists the session.
func (w *Wallet) CompleteConnect(nonce, sessionToken string) (*storage.Session, error) {
	if w.State() != StateConnecting {
		return nil, fmt.Errorf("no connect in progress")
	}

	resp, err := client.PostConnectComplete(w.ServiceURL, client.ConnectCompleteRequest{
		Nonce:   nonce,
		Session: sessionToken,
	})
	if err != nil {
		w.transitionConnection(StateConnError)
		return nil, classifyConnect(err)
	}

	session := storage.Session{
		Address:   resp.Address,
		Token:     sessionToken,
		Network:   resp.Network,
		CreatedAt: time.Now().Unix(),
		ExpiresAt: resp.ExpiresAt,
	}
	if err := w.db.SaveSession(session); err != nil {
		w.transitionConnection(StateConnError)
		return nil, fmt.Errorf("error saving session: %v", err)
	}

	w.mu.Lock()
	w.session = &session
	w.mu.Unlock()
	w.transitionConnection(StateConnected)
	w.metrics.IncCounter("wallet_connected", map[string]string{"network": w.network})
	w.logger.Info("wallet connected", map[string]any{"address": session.Address})
	return &session, nil
}

// Disconnect revokes the session with the service and forgets it
// locally. Revocation is best effort: the local session is deleted
// even when the service is unreachable.
func (w *Wallet) Disconnect() error {
	session := w.currentSession()
	if session == nil {
		return apperrors.New(apperrors.WalletNotConnected, "no active session")
	}

	if err := client.PostDisconnect(w.ServiceURL, session.Token); err != nil {
		w.logger.Warn("error revoking session with service", map[string]any{"error": err.Error()})
	}

	if err := w.db.DeleteSession(); err != nil {
		return fmt.Errorf("error deleting session: %v", err)
	}
	w.mu.Lock()
	w.session = nil
	w.connState = StateNotCreated
	w.mu.Unlock()
	w.logger.Info("wallet disconnected", nil)
	return nil
}

type Balances struct {
	Address string

	Lamports uint64
	Sol      float64

	// balance of the default asset's associated token account
	TokenBase uint64
	Token     float64
	Mint      string
}

// Balances reads the native and default-asset balances for the
// connected wallet. A missing token account is reported as a zero
// balance, not an error.
func (w *Wallet) Balances(ctx context.Context) (*Balances, error) {
	session := w.currentSession()
	if session == nil {
		return nil, apperrors.New(apperrors.WalletNotConnected, "no active session")
	}

	owner, err := solana.PublicKeyFromBase58(session.Address)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.InvalidRecipient, err)
	}

	start := time.Now()
	defer func() {
		w.metrics.ObserveLatency("balances", time.Since(start), map[string]string{"network": w.network})
	}()

	balanceRes, err := w.rpc.GetBalance(ctx, owner, rpc.CommitmentConfirmed)
	if err != nil {
		return nil, classifyRPC(err)
	}

	mint, err := solana.PublicKeyFromBase58(w.payCfg.DefaultMint)
	if err != nil {
		return nil, fmt.Errorf("invalid default mint: %v", err)
	}
	tokenBase, err := w.balanceForMint(ctx, owner, mint)
	if err != nil {
		return nil, classifyRPC(err)
	}

	return &Balances{
		Address:   session.Address,
		Lamports:  balanceRes.Value,
		Sol:       FromBaseUnits(balanceRes.Value, solDecimals),
		TokenBase: tokenBase,
		Token:     FromBaseUnits(tokenBase, w.payCfg.MintDecimals),
		Mint:      w.payCfg.DefaultMint,
	}, nil
}

// balanceForMint reads the associated token account balance for
// owner in base units. A token account that does not exist yet means
// a zero balance.
func (w *Wallet) balanceForMint(ctx context.Context, owner, mint solana.PublicKey) (uint64, error) {
	tokenAccount, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return 0, err
	}

	balanceRes, err := w.rpc.GetTokenAccountBalance(ctx, tokenAccount, rpc.CommitmentConfirmed)
	if err != nil {
		if strings.Contains(err.Error(), "could not find account") {
			return 0, nil
		}
		return 0, err
	}

	base, err := strconv.ParseUint(balanceRes.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("error reading token balance: %v", err)
	}
	return base, nil
}

// Pay validates request, has the wallet service sign and submit the
// transfer and waits for on-chain confirmation. When a transaction
// was submitted, the returned payment is non-nil even on error, so
// callers can surface the signature; on confirmation timeout the
// payment stays pending since it may still complete.
func (w *Wallet) Pay(ctx context.Context, request solpay.Request) (*storage.Payment, error) {
	tracker := w.newPaymentTracker()

	abort := func(err *apperrors.PaymentError) (*storage.Payment, error) {
		tracker.transition(PaymentErrored)
		w.logger.Error("payment rejected", map[string]any{
			"code":  string(err.Code),
			"error": err.Error(),
		})
		return nil, err
	}

	session := w.currentSession()
	if session == nil {
		return abort(apperrors.New(apperrors.WalletNotConnected, "no active session"))
	}
	if session.Expired() {
		return abort(apperrors.New(apperrors.SessionExpired, "session expired"))
	}
	if !w.validator.ValidateAddress(request.Address) {
		return abort(apperrors.New(apperrors.InvalidRecipient, fmt.Sprintf("invalid recipient address %q", request.Address)))
	}
	if request.Amount == nil || !w.validator.ValidateAmount(*request.Amount) {
		return abort(apperrors.New(apperrors.InvalidAmount, "amount missing or out of bounds"))
	}

	owner, err := solana.PublicKeyFromBase58(session.Address)
	if err != nil {
		return abort(apperrors.Classify(err))
	}

	mintAddress := request.SplToken
	if mintAddress == "" {
		mintAddress = w.payCfg.DefaultMint
	}
	mint, err := solana.PublicKeyFromBase58(mintAddress)
	if err != nil {
		return abort(apperrors.Wrap(apperrors.InvalidRecipient, err))
	}

	decimals, err := w.mintDecimals(ctx, mintAddress, mint)
	if err != nil {
		return abort(classifyRPC(err))
	}
	baseAmount, err := ToBaseUnits(*request.Amount, decimals)
	if err != nil {
		return abort(apperrors.Wrap(apperrors.InvalidAmount, err))
	}

	available, err := w.balanceForMint(ctx, owner, mint)
	if err != nil {
		return abort(classifyRPC(err))
	}
	if available < baseAmount {
		return abort(apperrors.New(apperrors.InsufficientBalance,
			fmt.Sprintf("%s needed, %s available", FormatAmount(baseAmount, decimals), FormatAmount(available, decimals))))
	}

	start := time.Now()
	defer func() {
		w.metrics.ObserveLatency("pay", time.Since(start), map[string]string{"network": w.network})
	}()

	tracker.transition(PaymentSigning)
	txResponse, err := client.PostTransaction(w.ServiceURL, session.Token, client.TransactionRequest{
		Recipient: request.Address,
		Amount:    baseAmount,
		Mint:      mintAddress,
		FeeMint:   w.feeMint,
		Network:   w.network,
		Reference: uuid.NewString(),
		Memo:      request.Memo,
	})
	if err != nil {
		tracker.transition(PaymentFailed)
		var classified *apperrors.PaymentError
		if apperrors.As(err, &classified) {
			return nil, classified
		}
		return nil, apperrors.Wrap(apperrors.SubmissionFailed, err)
	}
	tracker.transition(PaymentSubmitting)

	payment := storage.Payment{
		Signature: txResponse.Signature,
		Recipient: request.Address,
		Amount:    baseAmount,
		Decimals:  decimals,
		Mint:      mintAddress,
		Label:     request.Label,
		Memo:      request.Memo,
		Network:   w.network,
		Status:    storage.StatusPending,
		CreatedAt: time.Now().Unix(),
	}
	if err := w.db.SavePayment(payment); err != nil {
		// the transfer is already out, history is best effort
		w.logger.Warn("error saving payment to history", map[string]any{"error": err.Error()})
	}
	w.logger.Info("payment submitted", map[string]any{
		"signature": payment.Signature,
		"recipient": payment.Recipient,
		"amount":    FormatAmount(baseAmount, decimals),
	})

	tracker.transition(PaymentConfirming)
	if err := w.WaitForConfirmation(ctx, txResponse.Signature); err != nil {
		if apperrors.CodeOf(err) == apperrors.ConfirmationTimeout {
			// may still land, keep it pending
			return &payment, err
		}
		tracker.transition(PaymentFailed)
		payment.Status = storage.StatusFailed
		if dbErr := w.db.UpdatePaymentStatus(payment.Signature, storage.StatusFailed); dbErr != nil {
			w.logger.Warn("error updating payment status", map[string]any{"error": dbErr.Error()})
		}
		return &payment, err
	}

	tracker.transition(PaymentConfirmed)
	payment.Status = storage.StatusConfirmed
	if err := w.db.UpdatePaymentStatus(payment.Signature, storage.StatusConfirmed); err != nil {
		w.logger.Warn("error updating payment status", map[string]any{"error": err.Error()})
	}
	w.logger.Info("payment confirmed", map[string]any{"signature": payment.Signature})
	return &payment, nil
}

// mintDecimals resolves the decimal precision for a mint. The
// default mint's precision comes from config, anything else is read
// from the chain.
func (w *Wallet) mintDecimals(ctx context.Context, mintAddress string, mint solana.PublicKey) (uint8, error) {
	if mintAddress == w.payCfg.DefaultMint {
		return w.payCfg.MintDecimals, nil
	}
	supply, err := w.rpc.GetTokenSupply(ctx, mint, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, err
	}
	return supply.Value.Decimals, nil
}

// WaitForConfirmation waits until signature reaches confirmed
// commitment, the transaction fails on chain, or the confirmation
// window elapses. Live status updates from the wallet service are
// preferred; when the service does not support subscriptions the
// wallet polls the chain instead.
func (w *Wallet) WaitForConfirmation(ctx context.Context, signature string) error {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return apperrors.Wrap(apperrors.SubmissionFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.confirmTimeout)
	defer cancel()

	if done, err := w.waitViaSubscription(ctx, signature); done {
		return err
	}
	return w.waitViaPolling(ctx, sig)
}

// waitViaSubscription listens for live payment updates over the
// service websocket. done reports whether a final answer was reached;
// when it is false the caller should poll the chain instead.
func (w *Wallet) waitViaSubscription(ctx context.Context, signature string) (done bool, err error) {
	token := ""
	if session := w.currentSession(); session != nil {
		token = session.Token
	}

	subManager, err := submanager.NewSubscriptionManager(w.ServiceURL, token)
	if err != nil {
		if !errors.Is(err, submanager.ErrSubscriptionsNotSupported) {
			w.logger.Debug("could not set up status subscription", map[string]any{"error": err.Error()})
		}
		return false, nil
	}
	defer subManager.Close()

	errChan := make(chan error, 1)
	go subManager.Run(errChan)

	subscription, err := subManager.Subscribe(submanager.PaymentStatus, []string{signature})
	if err != nil {
		w.logger.Debug("could not subscribe to payment status", map[string]any{"error": err.Error()})
		return false, nil
	}

	updates := make(chan submanager.PaymentUpdate)
	go func() {
		for {
			notification, err := subscription.Read()
			if err != nil {
				return
			}
			select {
			case updates <- notification.Params.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return true, apperrors.New(apperrors.ConfirmationTimeout, fmt.Sprintf("no confirmation after %s", w.confirmTimeout))
			}
			return true, apperrors.Classify(ctx.Err())
		case err := <-errChan:
			w.logger.Debug("status subscription lost", map[string]any{"error": err.Error()})
			return false, nil
		case update := <-updates:
			switch update.Status {
			case string(storage.StatusConfirmed):
				return true, nil
			case string(storage.StatusFailed):
				return true, apperrors.New(apperrors.SubmissionFailed, fmt.Sprintf("transaction failed: %s", update.Error))
			}
		}
	}
}

// waitViaPolling checks signature status against the chain on an
// interval until ctx runs out.
func (w *Wallet) waitViaPolling(ctx context.Context, sig solana.Signature) error {
	ticker := time.NewTicker(confirmationPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return apperrors.New(apperrors.ConfirmationTimeout, fmt.Sprintf("no confirmation after %s", w.confirmTimeout))
			}
			return apperrors.Classify(ctx.Err())
		case <-ticker.C:
			statuses, err := w.rpc.GetSignatureStatuses(ctx, false, sig)
			if err != nil {
				w.logger.Debug("error polling signature status", map[string]any{"error": err.Error()})
				continue
			}
			if len(statuses.Value) == 0 || statuses.Value[0] == nil {
				continue
			}

			status := statuses.Value[0]
			if status.Err != nil {
				return apperrors.New(apperrors.SubmissionFailed, fmt.Sprintf("transaction failed on chain: %v", status.Err))
			}
			switch status.ConfirmationStatus {
			case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
				return nil
			}
		}
	}
}

// RefreshPayment re-checks a payment from history against the chain
// and updates its stored status.
func (w *Wallet) RefreshPayment(ctx context.Context, signature string) (*storage.Payment, error) {
	payment := w.db.GetPaymentBySignature(signature)
	if payment == nil {
		return nil, storage.ErrPaymentNotFound
	}
	if payment.Status != storage.StatusPending {
		return payment, nil
	}

	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature: %v", err)
	}

	statuses, err := w.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return nil, classifyRPC(err)
	}
	if len(statuses.Value) == 0 || statuses.Value[0] == nil {
		return payment, nil
	}

	status := statuses.Value[0]
	newStatus := payment.Status
	if status.Err != nil {
		newStatus = storage.StatusFailed
	} else if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
		status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
		newStatus = storage.StatusConfirmed
	}

	if newStatus != payment.Status {
		if err := w.db.UpdatePaymentStatus(signature, newStatus); err != nil {
			return nil, fmt.Errorf("error updating payment status: %v", err)
		}
		payment.Status = newStatus
	}
	return payment, nil
}

// NewPaymentRequest encodes a request-to-pay URI for the connected
// wallet's address. A nil amount lets the payer choose.
func (w *Wallet) NewPaymentRequest(amount *float64, label, memo string) (string, error) {
	session := w.currentSession()
	if session == nil {
		return "", apperrors.New(apperrors.WalletNotConnected, "no active session")
	}
	if amount != nil && !w.validator.ValidateAmount(*amount) {
		return "", apperrors.New(apperrors.InvalidAmount, "amount out of bounds")
	}

	return w.codec.Encode(solpay.Request{
		Address: session.Address,
		Amount:  amount,
		Label:   label,
		Memo:    memo,
	}), nil
}

// DecodePaymentRequest parses scanned QR content into a payment
// request, classifying failures for display.
func (w *Wallet) DecodePaymentRequest(raw string) (*solpay.Request, error) {
	request, err := w.codec.Decode(raw)
	if err != nil {
		if errors.Is(err, solpay.ErrInvalidAddress) {
			return nil, apperrors.Wrap(apperrors.InvalidRecipient, err)
		}
		return nil, apperrors.Wrap(apperrors.QRInvalid, err)
	}
	return request, nil
}

// History returns all recorded payments, most recent first.
func (w *Wallet) History() []storage.Payment {
	payments := w.db.GetPayments()
	slices.SortFunc(payments, func(a, b storage.Payment) int {
		switch {
		case a.CreatedAt > b.CreatedAt:
			return -1
		case a.CreatedAt < b.CreatedAt:
			return 1
		default:
			return strings.Compare(a.Signature, b.Signature)
		}
	})
	return payments
}

func classifyConnect(err error) *apperrors.PaymentError {
	var classified *apperrors.PaymentError
	if apperrors.As(err, &classified) {
		return classified
	}
	return apperrors.Wrap(apperrors.ConnectionFailed, err)
}

func classifyRPC(err error) *apperrors.PaymentError {
	var classified *apperrors.PaymentError
	if apperrors.As(err, &classified) {
		return classified
	}
	return apperrors.Wrap(apperrors.RPCError, err)
}
