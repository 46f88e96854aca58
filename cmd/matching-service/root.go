package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobmate/matching-service/internal/config"
	"jobmate/matching-service/internal/logger"
)

const app = "matching-service"

// Actual version can be specified in build command.
var version = "1.0.0"

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:          app,
		Short:        "matching-service matches candidates to job postings and serves the results",
		SilenceUsage: true,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("%s version: %s\n", app, version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is matching-service.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.AddCommand(versionCmd)
}

// setup loads the configuration and builds the logger. Flags that were set
// explicitly win over every other configuration source.
func setup(cmd *cobra.Command, extra ...config.LoadOption) (*config.Config, *zap.Logger) {
	opts := append([]config.LoadOption{}, extra...)
	for flag, key := range map[string]string{"debug": "LOG_DEBUG", "json": "LOG_JSON"} {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			v, _ := cmd.Flags().GetBool(flag)
			opts = append(opts, config.WithOverride(key, v))
		}
	}

	cfg, err := config.Load(cfgFile, opts...)
	if err != nil {
		log.Fatalf("[%s] Config error: %v", app, err)
	}

	l, err := logger.New(cfg.LogJSON, cfg.LogDebug)
	if err != nil {
		log.Fatalf("[%s] creating a logger: %v", app, err)
	}
	return cfg, l.Named(app)
}
