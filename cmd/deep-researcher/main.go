// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the deep-researcher CLI. The research
// command runs a query through the pipeline: query optimization, web
// research, claim extraction and verification, a fact-check report and a
// drafted document. The runs command browses the archive of finished runs.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pdiddy/deep-researcher/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets secrets.Set

// logger is the structured logger built from --debug at startup.
var logger = zap.NewNop()

// rootCmd is the base command for the deep-researcher CLI.
var rootCmd = &cobra.Command{
	Use:   "deep-researcher",
	Short: "Research a question, fact-check the findings and draft a report",
	Long: `deep-researcher turns a natural-language question into a fact-checked
document. It optimizes the query, gathers web research, extracts the key
factual claims, verifies each claim against fresh searches, compiles a
fact-check report with numbered references, and drafts a blog post, detailed
report or executive summary.

API keys are read from .secrets/ (groq-api-key, tavily-api-key, ...), from a
.env file, or from the environment (GROQ_API_KEY, TAVILY_API_KEY, ...).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		debug, _ := cmd.Flags().GetBool("debug")
		if err := initLogger(debug); err != nil {
			return err
		}

		s, err := secrets.Load(".secrets/", logger)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			logger.Debug("loaded secrets", zap.Strings("keys", s.Names()))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func initLogger(debug bool) error {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	logger = l
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./deep-researcher.yaml or ~/.config/deep-researcher/config.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "log stage progress, retries and recovered failures")
}

func initConfig() {
	// .env values never override variables already set in the environment.
	if err := godotenv.Load(); err == nil {
		fmt.Fprintln(os.Stderr, "Loaded environment from .env")
	}

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("deep-researcher")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "deep-researcher"))
		}
	}

	viper.SetEnvPrefix("DEEP_RESEARCHER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setConfigDefaults()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
