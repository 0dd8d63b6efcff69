// codedeck loads, normalizes, and streams AI coding-agent sessions.
package main

import (
	"fmt"
	"os"

	"github.com/codedeck/go-codedeck/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
