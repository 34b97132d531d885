package main

import (
	"os"

	"github.com/patchgate/patchgate/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
