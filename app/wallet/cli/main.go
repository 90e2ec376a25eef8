package main

import "github.com/aetherlabs/aetherchain/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
