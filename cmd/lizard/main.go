// Command lizard downloads resources from the Lizard API.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// newRootCmd builds the command tree around its own viper instance.
func newRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "lizard",
		Short: "Lizard API command line client",
		Long: `A command-line client for the Lizard geospatial and time series API.

It merges filters into query parameters, follows paginated results and
decodes every page into records.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, cmd)
		},
	}

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is $HOME/.lizard/config.yml)")
	flags.String("base-url", "", "API root URL (default "+defaultBaseURL+")")
	flags.String("username", "", "user name sent as a request header")
	flags.String("password", "", "password sent as a request header")
	flags.String("api-key", "", "personal API key")
	flags.String("token", "", "bearer token")
	flags.String("redis", "", "Redis address for shared throttling and resume checkpoints")
	flags.String("endpoints-file", "", "YAML file with additional endpoint definitions")
	flags.StringP("output", "o", "table", "output format (table, json, yaml)")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address while running")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.BoolP("verbose", "v", false, "verbose output")

	// Bind flags to viper
	for _, name := range []string{
		"base-url", "username", "password", "api-key", "token", "redis",
		"endpoints-file", "output", "metrics-addr", "log-level", "verbose",
	} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}

	rootCmd.AddCommand(newEndpointsCmd(v))
	rootCmd.AddCommand(newDownloadCmd(v))
	rootCmd.AddCommand(newResumeCmd(v))
	rootCmd.AddCommand(newURLCmd(v))

	return rootCmd
}

func initConfig(v *viper.Viper, cmd *cobra.Command) error {
	cfgFile, _ := cmd.Flags().GetString("config")

	if cfgFile != "" {
		// Use config file from the flag
		v.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		// Search config in ~/.lizard/config.yml
		v.AddConfigPath(filepath.Join(home, ".lizard"))
		v.SetConfigType("yml")
		v.SetConfigName("config")
	}

	// Read in environment variables that match, e.g. LIZARD_API_KEY
	v.SetEnvPrefix("LIZARD")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	} else if v.GetBool("verbose") {
		fmt.Fprintln(cmd.ErrOrStderr(), "Using config file:", v.ConfigFileUsed())
	}

	return setupLogging(v, cmd.ErrOrStderr())
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
