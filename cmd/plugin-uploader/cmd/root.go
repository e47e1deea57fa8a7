package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/plugin-uploader/internal/config"
	"github.com/oshokin/plugin-uploader/internal/logger"
	"github.com/oshokin/plugin-uploader/internal/service/uploader"
	"github.com/oshokin/plugin-uploader/internal/version"
)

var (
	// options collects the raw flag values.
	options uploader.Options

	// logLevel is the minimum level of printed log messages.
	logLevel string

	// rootCmd uploads the plugin package and optionally watches it.
	rootCmd = &cobra.Command{
		Use:   "plugin-uploader",
		Short: "Upload or update a kintone plugin package",
		Long: "Upload a plugin package to kintone and update the installed plugin, or install it when no plugin identifier is known.\n" +
			"Credentials fall back to KINTONE_DOMAIN, KINTONE_USERNAME and KINTONE_PASSWORD from the env file or the environment.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(_ *cobra.Command, _ []string) error {
			level, ok := logger.ParseLogLevel(logLevel)
			if !ok {
				return fmt.Errorf("unknown log level %q", logLevel)
			}

			logger.SetLevel(level)

			return nil
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return uploader.Run(ctx, &options)
		},
	}
)

// Execute runs the plugin-uploader CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.Flags()

	flags.StringVarP(&options.EnvFile, "envfile", "e", "", "path to the environment variable file")
	flags.StringVarP(&options.Domain, "domain", "d", "", "kintone domain")
	flags.StringVarP(&options.Username, "username", "u", "", "kintone username")
	flags.StringVarP(&options.Password, "password", "p", "", "kintone password")
	flags.StringVarP(&options.File, "file", "f", "", "path of the plugin file (required)")
	flags.BoolVarP(&options.Watch, "watch", "w", false, "watch the plugin file and upload it on every change")
	flags.IntVarP(&options.WaitTime, "waittime", "t", 0, "wait time before the first upload [ms]")
	flags.StringVarP(&options.PluginID, "id", "i", "", "plugin ID")
	flags.StringVarP(&options.SettingsFile, "config", "c", "",
		"path to the YAML settings file (default "+config.DefaultSettingsFilename+" if present)")
	flags.DurationVar(&options.Timeout, "timeout", 0,
		"timeout of a single kintone request (default "+config.DefaultTimeout.String()+")")
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
}
