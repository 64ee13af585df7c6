package main

import (
	"os"

	"emrun/cmd/emrun/cli"
)

func main() {
	os.Exit(cli.Execute())
}
