package main

import "github.com/mlquarizm/payment-gateway/cmd"

func main() {
	cmd.Execute()
}
