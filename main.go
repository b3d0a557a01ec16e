package main

import "github.com/frahmantamala/payment-approval/cmd"

func main() {
	cmd.Execute()
}
