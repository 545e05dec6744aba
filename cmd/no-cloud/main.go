package main

import (
	"os"

	"github.com/gobeaver/nocloud/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
