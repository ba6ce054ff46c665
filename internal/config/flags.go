package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RegisterFlags declares the command-line flags and binds them to v. A flag
// only overrides file and environment values when it is set.
func RegisterFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.Flags()

	flags.StringP("config", "c", "", "config file path")
	flags.StringP("output", "o", "", "directory holding one folder per listing")
	flags.String("user-agent", "", "User-Agent header sent with every request")
	flags.String("referer", "", "Referer header (default: origin of the listing URL)")
	flags.String("api-base", "", "resolution API base (default: origin of the listing URL)")
	flags.Duration("timeout", 0, "wait limit for response headers, 0 for none")

	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.Bool("log-pretty", false, "human-readable console logs")

	flags.String("metrics-file", "", "write Prometheus metrics to this .prom file after the run")

	flags.String("redis-addr", "", "redis address for the resolution cache (empty disables)")
	flags.Duration("cache-ttl", 0, "resolution cache TTL")

	bindFlags(cmd, v)
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.Flags()

	v.BindPFlag("output", flags.Lookup("output"))
	v.BindPFlag("user_agent", flags.Lookup("user-agent"))
	v.BindPFlag("referer", flags.Lookup("referer"))
	v.BindPFlag("api_base", flags.Lookup("api-base"))
	v.BindPFlag("timeout", flags.Lookup("timeout"))

	v.BindPFlag("log.level", flags.Lookup("log-level"))
	v.BindPFlag("log.pretty", flags.Lookup("log-pretty"))

	v.BindPFlag("metrics.file", flags.Lookup("metrics-file"))

	v.BindPFlag("cache.redis_addr", flags.Lookup("redis-addr"))
	v.BindPFlag("cache.ttl", flags.Lookup("cache-ttl"))
}

// GetConfigFile returns the value of the --config flag.
func GetConfigFile(cmd *cobra.Command) string {
	configFile, _ := cmd.Flags().GetString("config")
	return configFile
}
