package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/larktools/bitrunner/packages/bitable"
	"github.com/larktools/bitrunner/packages/core/config"
)

var (
	version   = "dev"
	buildTime = "unknown"

	cfgFile  string
	logLevel string
	log      *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "bitrunner",
	Short: "Run API tests straight out of a Lark Base table",
	Long: `bitrunner reads API test cases from a Lark Base (Bitable) table,
executes them against the system under test, evaluates the declared
assertions, and writes the outcome back into each row.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logLevel == "" {
			return nil
		}
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}
		log.SetLevel(level)
		return nil
	},
}

func Execute(v, bt string) {
	version = v
	buildTime = bt

	log = logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", getEnvString("BITRUNNER_CONFIG", ""), "config file path (env: BITRUNNER_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(fieldsCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file and applies the log level it carries
// unless a flag already chose one.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel == "" {
		if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
			log.SetLevel(level)
		}
	}
	return cfg, nil
}

func newTableClient(cfg *config.Config) (*bitable.Client, error) {
	return bitable.NewClient(bitable.Config{
		Domain:        cfg.Lark.Domain,
		AppToken:      cfg.Lark.AppToken,
		PersonalToken: cfg.Lark.PersonalToken,
		RatePerSec:    cfg.Lark.RatePerSec,
		Burst:         cfg.Lark.Burst,
	}, log)
}

func getEnvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
