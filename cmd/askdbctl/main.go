package main

import (
	"os"

	"github.com/daap14/askdb/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
