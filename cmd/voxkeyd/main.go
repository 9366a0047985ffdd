package main

import (
	"os"

	"voxkey/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
