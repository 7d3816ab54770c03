// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command leasecore runs the Jordanian lease drafting service.
//
// # Subcommands
//
//   - serve: HTTP API
//   - ingest: load documents into a corpus
//   - mcp: MCP tools over stdio
//   - token: issue a bearer token
//   - version: print build information
//
// # Configuration
//
// leasecore.yaml, .env, and LEASECORE_* environment variables. See
// pkg/config for every key.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianLease/pkg/config"
	"github.com/AleutianAI/AleutianLease/pkg/logging"
)

var (
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "leasecore",
		Short: "Bilingual drafting, review and explanation of Jordanian lease contracts",
		Long: `leasecore drafts, edits, reviews and explains Jordanian residential and
commercial lease contracts in Arabic and English, grounded in Jordanian
landlord and tenant law and screened by a legal safety filter.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Close()
			}
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ./leasecore.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(serveCmd, ingestCmd, mcpCmd, tokenCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and installs the default logger.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.Logging.Level = logLevel
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cfg = loaded

	level, ok := logging.ParseLevel(cfg.Logging.Level)
	logger = logging.New(logging.Config{
		Level:   level,
		Format:  logging.Format(cfg.Logging.Format),
		LogDir:  cfg.Logging.Dir,
		Service: "leasecore-" + cmd.Name(),
	})
	slog.SetDefault(logger.Slog())
	if !ok {
		slog.Warn("Unknown log level, using info", "level", cfg.Logging.Level)
	}
	return nil
}
