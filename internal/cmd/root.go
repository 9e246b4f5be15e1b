/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

// Package cmd implements the consoletext command line tool.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/consoletext/consoletext-go/config"
	"github.com/consoletext/consoletext-go/log"
	"github.com/consoletext/consoletext-go/pipeline"
)

// EnvVarsPrefix is the prefix of environment variables overriding the configuration (e.g. CONSOLETEXT_APIKEY).
const EnvVarsPrefix = "consoletext"

// app holds the state shared by subcommands once the configuration is loaded.
type app struct {
	cfgFile string
	debug   bool

	stdout io.Writer
	stderr io.Writer

	pipelineCfg *pipeline.Config
	logCfg      *log.Config
	logger      log.FieldLogger
	closeLogger log.CloseFunc
}

// Execute runs the root command with os.Args and stops on SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx)
}

// NewRootCommand creates the root command writing its output to stdout and stderr.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}
	rootCmd := &cobra.Command{
		Use:   "consoletext",
		Short: "Send alert messages to Console.text",
		Long: `consoletext sends alert messages to the Console.text relay.

Configuration is read from a YAML file (--config) and from CONSOLETEXT_* environment
variables, e.g. CONSOLETEXT_APIKEY or CONSOLETEXT_LOG_LEVEL.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.closeLogger != nil {
				a.closeLogger()
			}
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging of the send pipeline")

	rootCmd.AddCommand(newSendCommand(a), newStatusCommand(a), newVersionCommand(a))
	return rootCmd
}

func (a *app) loadConfig() error {
	a.pipelineCfg = pipeline.NewConfig()
	a.logCfg = log.NewConfig()
	loader := config.NewDefaultLoader(EnvVarsPrefix)
	var err error
	if a.cfgFile != "" {
		err = loader.LoadFromFile(a.cfgFile, config.DataTypeYAML, a.pipelineCfg, a.logCfg)
	} else {
		err = loader.Load(a.pipelineCfg, a.logCfg)
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.debug {
		a.pipelineCfg.Debug = true
		a.logCfg.Level = log.LevelDebug
	}
	a.logger, a.closeLogger = log.NewLogger(a.logCfg)
	return nil
}

func (a *app) newPipeline() (*pipeline.Pipeline, error) {
	return pipeline.NewWithOpts(a.pipelineCfg, pipeline.Opts{Logger: a.logger})
}
