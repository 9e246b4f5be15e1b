/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/consoletext/consoletext-go/pipeline"
	"github.com/consoletext/consoletext-go/ratelimit"
)

func newStatusCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the configured pipeline status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.newPipeline()
			if err != nil {
				return err
			}
			st := p.Status()
			if err = p.Close(cmd.Context()); err != nil {
				return err
			}
			if asJSON {
				return writeStatusJSON(a, st)
			}
			_, err = fmt.Fprintln(a.stdout, renderStatusTable(st, a.pipelineCfg))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status as JSON")
	return cmd
}

func writeStatusJSON(a *app, st pipeline.Status) error {
	payload, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.stdout, string(payload))
	return err
}

func renderStatusTable(st pipeline.Status, cfg *pipeline.Config) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Setting", "Value"})
	t.AppendRows([]table.Row{
		{"Endpoint", cfg.APIEndpoint},
		{"API key", apiKeyState(cfg.APIKey)},
		{"Project", st.ProjectID},
		{"Environment", st.Environment},
		{"Enabled", strconv.FormatBool(st.Enabled)},
		{"Queue length", st.QueueLength},
		{"Tokens", fmt.Sprintf("%d/%d", st.RateLimit.AvailableTokens, st.RateLimit.Capacity)},
		{"Next token in", nextTokenIn(st.RateLimit)},
	})
	if cfg.EnforceHourlyLimit {
		t.AppendFooter(table.Row{"", fmt.Sprintf("hourly limit %d enforced", cfg.RateLimitPerHour)})
	}
	return t.Render()
}

func apiKeyState(apiKey string) string {
	if apiKey == "" {
		return "missing"
	}
	return "set"
}

func nextTokenIn(st ratelimit.Status) string {
	switch st.TimeUntilNextToken {
	case 0:
		return "now"
	case ratelimit.Never:
		return "never"
	}
	return st.TimeUntilNextToken.String()
}
