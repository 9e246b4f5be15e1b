/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/consoletext/consoletext-go/log"
	"github.com/consoletext/consoletext-go/message"
	"github.com/consoletext/consoletext-go/pipeline"
)

const defaultSendWait = 30 * time.Second

// Send outcomes printed on success.
const (
	sendOutcomeSent   = "sent"
	sendOutcomeQueued = "queued"
)

type sendOptions struct {
	severity string
	meta     []string
	wait     time.Duration
}

func newSendCommand(a *app) *cobra.Command {
	opts := sendOptions{}
	cmd := &cobra.Command{
		Use:   "send MESSAGE...",
		Short: "Send one alert message",
		Long: `Send one alert message and wait until it's delivered.

Throttled or failed messages are retried until --wait elapses; a zero --wait leaves
them queued and exits right after the first attempt.`,
		Example: `  consoletext send --severity critical --meta host=db-1 "database is down"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.send(cmd.Context(), strings.Join(args, " "), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.severity, "severity", "s", string(message.SeverityInfo),
		"message severity: critical|error|warning|info")
	cmd.Flags().StringArrayVarP(&opts.meta, "meta", "m", nil, "metadata entry as key=value (repeatable)")
	cmd.Flags().DurationVar(&opts.wait, "wait", defaultSendWait, "how long to retry a message that could not be sent at once")
	return cmd
}

func (a *app) send(ctx context.Context, text string, opts sendOptions) error {
	severity, err := message.ParseSeverity(opts.severity)
	if err != nil {
		return err
	}
	metadata, err := parseMetadata(opts.meta)
	if err != nil {
		return err
	}
	if a.pipelineCfg.APIKey == "" {
		return fmt.Errorf("%w (set apiKey in the config file or CONSOLETEXT_APIKEY)", pipeline.ErrMissingAPIKey)
	}

	p, err := a.newPipeline()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := p.Close(context.Background()); closeErr != nil {
			a.logger.Warn("failed to close pipeline", log.Error(closeErr))
		}
	}()

	accepted := p.Send(ctx, text, severity, metadata)
	queued := p.Status().QueueLength
	switch {
	case queued == 0 && accepted:
		_, err = fmt.Fprintln(a.stdout, sendOutcomeSent)
		return err
	case queued == 0:
		return errors.New("message was rejected by the relay")
	case opts.wait <= 0:
		_, err = fmt.Fprintln(a.stdout, sendOutcomeQueued)
		return err
	}

	flushCtx, cancel := context.WithTimeout(ctx, opts.wait)
	defer cancel()
	if err = p.Flush(flushCtx); err != nil {
		return fmt.Errorf("message was not delivered within %s: %w", opts.wait, err)
	}
	_, err = fmt.Fprintln(a.stdout, sendOutcomeSent)
	return err
}

// parseMetadata parses key=value pairs. Values stay strings.
func parseMetadata(entries []string) (map[string]interface{}, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	md := make(map[string]interface{}, len(entries))
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid metadata entry %q, expected key=value", entry)
		}
		md[key] = value
	}
	return md, nil
}
