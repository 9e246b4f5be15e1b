/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/consoletext/consoletext-go/internal/libinfo"
)

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			_, err := fmt.Fprintln(a.stdout, libinfo.UserAgent())
			return err
		},
	}
}
