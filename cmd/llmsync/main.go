package main

import (
	"context"
	"os"
	"strings"

	"github.com/jingkaihe/llmsync/pkg/docsync"
	"github.com/jingkaihe/llmsync/pkg/logger"
	"github.com/jingkaihe/llmsync/pkg/presenter"
	"github.com/jingkaihe/llmsync/pkg/profiles"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// exitCode is set by commands that must fail without skipping telemetry
// shutdown.
var exitCode int

func init() {
	// Environment variables
	viper.SetEnvPrefix("LLMSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("timeout", docsync.DefaultTimeout)
	viper.SetDefault("skills_dir", profiles.DefaultSkillsDir)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "fmt")

	// Config file support
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.llmsync")
	viper.AddConfigPath(".")

	// Load config file if it exists (ignore errors if it doesn't)
	_ = viper.ReadInConfig()
}

var rootCmd = &cobra.Command{
	Use:   "llmsync",
	Short: "Keep llms.txt documentation digests in sync",
	Long: `llmsync downloads llms.txt documentation digests from a fixed list of URLs and
writes them, each annotated with its source, into llms-source.txt inside a skill directory.`,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		applyGlobalSettings(cmd.Context())
	},
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
		exitCode = 1
	},
}

// resolveSkillsDir anchors the configured skills dir to the enclosing
// repository so commands behave the same from any subdirectory.
func resolveSkillsDir(dir string) string {
	cwd, err := os.Getwd()
	if err != nil {
		return dir
	}
	return profiles.ResolveSkillsDir(dir, cwd)
}

// applyGlobalSettings configures logging, output and tracing from the merged
// flag/env/config view.
func applyGlobalSettings(ctx context.Context) {
	if err := logger.SetLogLevel(viper.GetString("log_level")); err != nil {
		logger.G(ctx).WithError(err).Warn("invalid log level, keeping current level")
	}
	logger.SetLogFormat(viper.GetString("log_format"))
	presenter.SetQuiet(viper.GetBool("quiet"))

	if err := startTracing(ctx); err != nil {
		logger.G(ctx).WithError(err).Warn("failed to initialize tracing")
	}
}

func main() {
	// Add global flags
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (panic, fatal, error, warn, info, debug, trace)")
	rootCmd.PersistentFlags().String("log-format", "fmt", "Log format (fmt or json)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Only print errors")
	rootCmd.PersistentFlags().String("skills-dir", profiles.DefaultSkillsDir, "Directory containing skill directories")
	rootCmd.PersistentFlags().String("allowed-domains-file", "", "File listing hosts (or globs) sources may be fetched from")

	// Bind flags to viper
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	viper.BindPFlag("skills_dir", rootCmd.PersistentFlags().Lookup("skills-dir"))
	viper.BindPFlag("allowed_domains_file", rootCmd.PersistentFlags().Lookup("allowed-domains-file"))

	// Add subcommands
	rootCmd.AddCommand(withTracing(syncCmd))
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(llmstxtCmd)

	ctx := context.Background()
	err := rootCmd.ExecuteContext(ctx)
	stopTracing(ctx)
	if err != nil {
		presenter.Error(err, "")
		os.Exit(1)
	}
	os.Exit(exitCode)
}
