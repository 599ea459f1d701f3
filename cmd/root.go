// Package cmd provides the prismd command-line interface.
//
// Configuration sources, highest priority first:
//
//	1. Command-line flags (--port, --log-level, ...)
//	2. PRISMD_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (PRISMD_SERVER_PORT, ...)
//	4. Configuration file (.prismd.yml)
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "prismd",
	Short: "Batch syntax-highlighting service",
	Long: `Prismd renders batches of source files to per-line HTML using
tree-sitter grammars, one RPC round trip per batch.

Quick start:
  prismd serve                          Start the highlighting server
  prismd render -a localhost:8443 FILE  Render files against a server
  prismd css --style monokai            Emit a stylesheet for the rendered classes
  prismd version                        Show build information`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .prismd.yml, can also use PRISMD_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig wires viper to flags, environment, and an optional config
// file. A missing config file is not an error.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("PRISMD_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".prismd")
	}

	viper.SetEnvPrefix("PRISMD")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
