// Package main is the entry point of the convenience CLI.
package main

import (
	"os"

	"github.com/3mpowered/dataverse-convenience/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
