// Package main is the entry point for the konnector CLI.
package main

import (
	_ "time/tzdata" // timezone database for minimal containers

	"github.com/basecamp/konnector/internal/cli"
)

func main() {
	cli.Execute()
}
