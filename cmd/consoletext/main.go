/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

package main

import (
	"os"

	"github.com/consoletext/consoletext-go/internal/cmd"
)

// Build with -ldflags="-X github.com/consoletext/consoletext-go/internal/libinfo.Version=1.0.0" to set the version.
func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
