// Package cli is the command-line surface spec.md §1 scopes out of the
// core, wired the way the teacher's internal/cli wires cobra and viper
// together.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/cobliteam/shelver/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	log     = logger.NewLogger()
)

// NewRootCommand builds the "shelver" command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "shelver",
		Short: "Schedule and run dependency-ordered machine image builds",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				log = &logger.Logger{Logger: slog.New(logger.NewHandler(&slog.HandlerOptions{Level: slog.LevelDebug}))}
			}
			return initConfig()
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to the coordinator config file (default ./shelver.yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	viper.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	viper.BindPFlag("verbose", root.PersistentFlags().Lookup("verbose"))

	root.AddCommand(newBuildCommand())
	root.AddCommand(newListCommand())
	root.AddCommand(newCyclesCommand())
	root.AddCommand(newVersionCommand())

	return root
}

func initConfig() error {
	viper.SetEnvPrefix("SHELVER")
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("shelver")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("reading config: %w", err)
		}
	}
	return nil
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if fromEnv := viper.GetString("config"); fromEnv != "" {
		return fromEnv
	}
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return "shelver.yaml"
}

// Execute runs the CLI and exits with status 1 on error, the pattern the
// teacher's cmd/smidr/main.go uses.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		log.Error("command failed", err)
		os.Exit(1)
	}
}
