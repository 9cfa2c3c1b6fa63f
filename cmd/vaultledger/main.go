package main

import "VaultLedger/internal/cli"

func main() {
	cli.Execute()
}
