package main

import (
	"fmt"

	"github.com/emberpay/ember/solpay"
)

func main() {
	codec, err := solpay.NewCodec(solpay.DefaultConfig())
	if err != nil {
		fmt.Println(err)
		return
	}

	amount := 9.99
	uri := codec.Encode(solpay.Request{
		Address: "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU",
		Amount:  &amount,
		Label:   "Ember Cafe",
	})

	fmt.Printf("payment request: %v\n", uri)

	request, err := codec.Decode(uri)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("pay %v to %v\n", *request.Amount, request.Address)
}
