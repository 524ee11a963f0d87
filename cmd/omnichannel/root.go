package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tbourn/omnichannel-gateway/internal/config"
	"github.com/tbourn/omnichannel-gateway/internal/sysutil"
)

// Version is set at build time via
// -ldflags "-X main.Version=v1.0.0".
var Version = "dev"

// runtimeEnv is what every subcommand starts from.
type runtimeEnv struct {
	cfg config.Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	var (
		envFile string
		verbose bool
	)
	env := &runtimeEnv{}

	root := &cobra.Command{
		Use:           "omnichannel",
		Short:         "Omnichannel message gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A missing .env is normal outside local development.
			if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env-file") {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if verbose {
				cfg.LogLevel = "debug"
			}
			env.cfg = cfg
			env.log = sysutil.SetupLogger(sysutil.LoggerOptions{
				Level:   cfg.LogLevel,
				Pretty:  cfg.LogPretty,
				Service: cfg.OTEL.ServiceName,
				Version: version(),
			})
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		serveCmd(env),
		migrateCmd(env),
		outboxCmd(env),
		versionCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// The parent hook needs a valid config; version must work without one.
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "omnichannel %s\n", version())
		},
	}
}

func version() string {
	return sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), Version)
}
