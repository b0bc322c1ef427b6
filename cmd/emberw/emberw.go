package main

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	apperrors "github.com/emberpay/ember/errors"
	"github.com/emberpay/ember/logger"
	"github.com/emberpay/ember/solpay"
	"github.com/emberpay/ember/wallet"
	"github.com/emberpay/ember/wallet/storage"
)

var ew *wallet.Wallet

func walletConfig() wallet.Config {
	path := setWalletPath()
	// default config
	config := wallet.Config{
		WalletPath: path,
		ServiceURL: "https://wallet.emberpay.app",
		RPCURL:     "https://api.devnet.solana.com",
		Network:    "devnet",
		Pay:        solpay.DefaultConfig(),
	}

	envPath := filepath.Join(path, ".env")
	if _, err := os.Stat(envPath); err != nil {
		wd, err := os.Getwd()
		if err != nil {
			envPath = ""
		} else {
			envPath = filepath.Join(wd, ".env")
		}
	}

	if len(envPath) > 0 {
		godotenv.Load(envPath)
	}

	if serviceURL := os.Getenv("WALLET_SERVICE_URL"); len(serviceURL) > 0 {
		config.ServiceURL = serviceURL
	}
	if rpcURL := os.Getenv("SOLANA_RPC_URL"); len(rpcURL) > 0 {
		config.RPCURL = rpcURL
	}
	if network := os.Getenv("SOLANA_NETWORK"); len(network) > 0 {
		config.Network = network
	}
	if feeMint := os.Getenv("FEE_MINT"); len(feeMint) > 0 {
		config.FeeMint = feeMint
	}

	return config
}

func setWalletPath() string {
	homedir, err := os.UserHomeDir()
	if err != nil {
		log.Fatal(err)
	}

	path := filepath.Join(homedir, ".ember", "wallet")
	err = os.MkdirAll(path, 0700)
	if err != nil {
		log.Fatal(err)
	}
	return path
}

func setupWallet(ctx *cli.Context) error {
	config := walletConfig()

	opts := []wallet.Option{}
	if verbose, _ := strconv.ParseBool(os.Getenv("EMBER_VERBOSE")); verbose {
		opts = append(opts, wallet.WithLogger(logger.NewDevelopmentLogger("debug")))
	}

	var err error
	ew, err = wallet.LoadWallet(config, opts...)
	if err != nil {
		printErr(err)
	}
	return nil
}

func main() {
	app := &cli.App{
		Name:  "emberw",
		Usage: "solana smart wallet cli",
		Commands: []*cli.Command{
			connectCmd,
			disconnectCmd,
			statusCmd,
			balanceCmd,
			payCmd,
			requestCmd,
			historyCmd,
			refreshCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

var connectCmd = &cli.Command{
	Name:   "connect",
	Usage:  "Connect to the wallet service with a passkey",
	Before: setupWallet,
	Action: connect,
}

func connect(ctx *cli.Context) error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		printErr(err)
	}
	defer listener.Close()

	redirectURI := fmt.Sprintf("http://%s/callback", listener.Addr())
	startResponse, err := ew.StartConnect(redirectURI)
	if err != nil {
		printErr(err)
	}

	fmt.Println("open the link below and approve with your passkey:")
	fmt.Printf("\n%v\n\n", startResponse.AuthURL)

	type callback struct {
		nonce   string
		session string
	}
	callbacks := make(chan callback, 1)

	r := mux.NewRouter()
	r.HandleFunc("/callback", func(rw http.ResponseWriter, req *http.Request) {
		query := req.URL.Query()
		select {
		case callbacks <- callback{nonce: query.Get("nonce"), session: query.Get("session")}:
		default:
		}
		fmt.Fprintln(rw, "wallet connected, you can close this tab")
	})
	server := &http.Server{Handler: r}
	go server.Serve(listener)
	defer server.Close()

	var received callback
	select {
	case received = <-callbacks:
	case <-time.After(5 * time.Minute):
		printErr(errors.New("timed out waiting for passkey approval"))
	}

	if received.nonce != startResponse.Nonce {
		printErr(errors.New("redirect does not match the connect attempt"))
	}

	session, err := ew.CompleteConnect(received.nonce, received.session)
	if err != nil {
		printErr(err)
	}

	fmt.Printf("wallet connected: %v\n", session.Address)
	return nil
}

var disconnectCmd = &cli.Command{
	Name:   "disconnect",
	Usage:  "Revoke the session and forget the wallet",
	Before: setupWallet,
	Action: disconnect,
}

func disconnect(ctx *cli.Context) error {
	if err := ew.Disconnect(); err != nil {
		printErr(err)
	}
	fmt.Println("wallet disconnected")
	return nil
}

var statusCmd = &cli.Command{
	Name:   "status",
	Usage:  "Show connection state and wallet address",
	Before: setupWallet,
	Action: status,
}

func status(ctx *cli.Context) error {
	fmt.Printf("state: %v\n", ew.State())
	if address := ew.Address(); len(address) > 0 {
		fmt.Printf("address: %v\n", address)
	}
	if !ew.IsConnected() {
		fmt.Println("not connected, run 'emberw connect'")
	}
	return nil
}

var balanceCmd = &cli.Command{
	Name:   "balance",
	Before: setupWallet,
	Action: getBalance,
}

func getBalance(ctx *cli.Context) error {
	balances, err := ew.Balances(ctx.Context)
	if err != nil {
		printErr(err)
	}

	fmt.Printf("%v SOL\n", balances.Sol)
	fmt.Printf("%v USDC\n", wallet.FormatAmount(balances.TokenBase, solpay.DefaultConfig().MintDecimals))
	return nil
}

var payCmd = &cli.Command{
	Name:      "pay",
	Usage:     "Pay a payment request URI, or an address and amount",
	ArgsUsage: "<uri> | <address> <amount>",
	Before:    setupWallet,
	Action:    pay,
}

func pay(ctx *cli.Context) error {
	args := ctx.Args()
	if args.Len() < 1 {
		printErr(errors.New("specify a payment request or an address and amount"))
	}

	var request *solpay.Request
	if args.Len() == 1 {
		decoded, err := ew.DecodePaymentRequest(args.First())
		if err != nil {
			printErr(err)
		}
		request = decoded
	} else {
		amount, err := solpay.ParseAmountInput(args.Get(1))
		if err != nil {
			printErr(err)
		}
		request = &solpay.Request{Address: args.First(), Amount: &amount}
	}

	if request.Amount == nil {
		printErr(errors.New("the payment request does not specify an amount"))
	}

	payment, err := ew.Pay(ctx.Context, *request)
	if err != nil {
		if payment != nil && apperrors.CodeOf(err) == apperrors.ConfirmationTimeout {
			fmt.Printf("signature: %v\n", payment.Signature)
			fmt.Println("confirmation is taking longer than expected, check later with 'emberw refresh'")
			return nil
		}
		printErr(err)
	}

	fmt.Printf("paid %v to %v\n", wallet.FormatAmount(payment.Amount, payment.Decimals), payment.Recipient)
	fmt.Printf("signature: %v\n", payment.Signature)
	return nil
}

const (
	labelFlag = "label"
	memoFlag  = "memo"
	qrFlag    = "qr"
)

var requestCmd = &cli.Command{
	Name:      "request",
	Usage:     "Create a payment request URI for this wallet",
	ArgsUsage: "[amount]",
	Before:    setupWallet,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  labelFlag,
			Usage: "Display name shown to the payer",
		},
		&cli.StringFlag{
			Name:  memoFlag,
			Usage: "Memo recorded with the payment",
		},
		&cli.StringFlag{
			Name:  qrFlag,
			Usage: "Write the request as a QR code PNG to the given path",
		},
	},
	Action: request,
}

func request(ctx *cli.Context) error {
	var amount *float64
	if ctx.Args().Len() > 0 {
		parsed, err := solpay.ParseAmountInput(ctx.Args().First())
		if err != nil {
			printErr(err)
		}
		amount = &parsed
	}

	uri, err := ew.NewPaymentRequest(amount, ctx.String(labelFlag), ctx.String(memoFlag))
	if err != nil {
		printErr(err)
	}

	fmt.Printf("%v\n", uri)

	if path := ctx.String(qrFlag); len(path) > 0 {
		if err := wallet.SaveQRCode(uri, path); err != nil {
			printErr(err)
		}
		fmt.Printf("qr code written to %v\n", path)
	}
	return nil
}

var historyCmd = &cli.Command{
	Name:   "history",
	Usage:  "List payments made with this wallet",
	Before: setupWallet,
	Action: history,
}

func history(ctx *cli.Context) error {
	payments := ew.History()
	if len(payments) == 0 {
		fmt.Println("no payments yet")
		return nil
	}

	for _, payment := range payments {
		created := time.Unix(payment.CreatedAt, 0).Format(time.DateTime)
		fmt.Printf("%v  %-9v  %v -> %v  %v\n", created, payment.Status,
			wallet.FormatAmount(payment.Amount, payment.Decimals), payment.Recipient, payment.Signature)
	}
	return nil
}

var refreshCmd = &cli.Command{
	Name:      "refresh",
	Usage:     "Re-check a pending payment against the chain",
	ArgsUsage: "<signature>",
	Before:    setupWallet,
	Action:    refresh,
}

func refresh(ctx *cli.Context) error {
	args := ctx.Args()
	if args.Len() < 1 {
		printErr(errors.New("specify a transaction signature"))
	}

	payment, err := ew.RefreshPayment(ctx.Context, args.First())
	if err != nil {
		if errors.Is(err, storage.ErrPaymentNotFound) {
			printErr(errors.New("no payment with that signature in history"))
		}
		printErr(err)
	}

	fmt.Printf("%v: %v\n", payment.Signature, payment.Status)
	return nil
}

func printErr(msg error) {
	if userMessage := apperrors.UserMessage(msg); len(userMessage) > 0 {
		fmt.Println(userMessage)
	} else {
		fmt.Println(msg.Error())
	}
	os.Exit(0)
}
