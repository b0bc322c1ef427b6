//go:build ignore_vet
// +build ignore_vet

package main

import (
	"context"
	"fmt"

	"github.com/emberpay/ember/solpay"
	"github.com/emberpay/ember/wallet"
)

func main() {
	config := wallet.Config{
		WalletPath: "./ember",
		ServiceURL: "https://wallet.emberpay.app",
		RPCURL:     "https://api.devnet.solana.com",
		Network:    "devnet",
		Pay:        solpay.DefaultConfig(),
	}

	wallet, err := wallet.LoadWallet(config)

	// Connect with a passkey
	startResponse, err := wallet.StartConnect("http://127.0.0.1:8912/callback")
	// open startResponse.AuthURL in a browser; the service redirects
	// back with the nonce and session token
	session, err := wallet.CompleteConnect(startResponse.Nonce, "session-token-from-redirect")
	fmt.Println(session.Address)

	// Balances
	balances, err := wallet.Balances(context.Background())
	fmt.Printf("%v SOL, %v USDC\n", balances.Sol, balances.Token)

	// Pay a scanned payment request
	request, err := wallet.DecodePaymentRequest("solana:7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU?amount=9.99")
	payment, err := wallet.Pay(context.Background(), *request)
	fmt.Println(payment.Signature)

	// Request a payment to this wallet
	amount := 4.2
	uri, err := wallet.NewPaymentRequest(&amount, "Ember Cafe", "table 4")
	fmt.Println(uri)

	// History
	for _, payment := range wallet.History() {
		fmt.Printf("%v %v\n", payment.Signature, payment.Status)
	}
}
