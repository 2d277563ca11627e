// Command kcl is a command line Kafka client: produce from stdin, consume
// to stdout, inspect cluster metadata and offsets, run produce benchmarks.
package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mkocikowski/kafkaclient/metrics"
)

// Config holds the parameters shared by all subcommands. Values come
// from flags, KCL_* environment variables, or a yaml config file, in
// that order of precedence.
type Config struct {
	Bootstrap   string
	ClientId    string
	Verbose     bool
	MetricsAddr string
}

var (
	cfgFile string
	cfg     Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "kcl",
	Short:         "Kafka command line client",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = Config{
			Bootstrap:   viper.GetString("bootstrap"),
			ClientId:    viper.GetString("client-id"),
			Verbose:     viper.GetBool("verbose"),
			MetricsAddr: viper.GetString("metrics-addr"),
		}
		if cfg.ClientId == "" {
			cfg.ClientId = "kcl-" + uuid.NewString()[:8]
		}
		var err error
		if logger, err = newLogger(cfg.Verbose); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if cfg.MetricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			go func() {
				if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
					logger.Warn("metrics server stopped", zap.Error(err))
				}
			}()
			logger.Info("serving metrics", zap.String("addr", cfg.MetricsAddr))
		}
		return nil
	},
}

func newLogger(verbose bool) (*zap.Logger, error) {
	c := zap.NewDevelopmentConfig()
	if !verbose {
		c.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return c.Build()
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.kcl.yaml)")
	rootCmd.PersistentFlags().StringP("bootstrap", "b", "localhost:9092", "comma separated host:port list of bootstrap brokers")
	viper.BindPFlag("bootstrap", rootCmd.PersistentFlags().Lookup("bootstrap"))
	rootCmd.PersistentFlags().String("client-id", "", "client id sent with every request (default kcl-<random>)")
	viper.BindPFlag("client-id", rootCmd.PersistentFlags().Lookup("client-id"))
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log debug detail to stderr")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	rootCmd.PersistentFlags().String("metrics-addr", "", "serve prometheus metrics on this address (e.g. :9100)")
	viper.BindPFlag("metrics-addr", rootCmd.PersistentFlags().Lookup("metrics-addr"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".kcl")
	}
	viper.SetEnvPrefix("kcl")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			cobra.CheckErr(err)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "kcl:", err)
		os.Exit(1)
	}
}
