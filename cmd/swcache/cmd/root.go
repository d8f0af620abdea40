package cmd

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "swcache",
	Short: "Offline-first caching proxy",
	Long:  "Serve an origin through cache-first and network-first strategies with offline fallbacks.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ~/.config/swcache/config.yaml)")
	pf.String("origin", "", "origin to serve, e.g. https://app.myfithero.com")
	pf.String("log-level", "info", "debug, info, warn or error")
	pf.String("log-format", "zap", "zap or logrus")
	pf.String("provider", "memory", "memory, bigcache, ristretto or redis")
	pf.String("index", "local", "local or redis")
	pf.String("codec", "json", "json, cbor, msgpack or proto")
	pf.String("redis-addr", "localhost:6379", "redis address for the redis provider or index")

	_ = viper.BindPFlag("origin", pf.Lookup("origin"))
	_ = viper.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = viper.BindPFlag("log_format", pf.Lookup("log-format"))
	_ = viper.BindPFlag("provider.kind", pf.Lookup("provider"))
	_ = viper.BindPFlag("index", pf.Lookup("index"))
	_ = viper.BindPFlag("codec.kind", pf.Lookup("codec"))
	_ = viper.BindPFlag("redis.addr", pf.Lookup("redis-addr"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
		viper.SetConfigName("swcache")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults(viper.GetViper())

	_ = viper.ReadInConfig()
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "swcache")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "swcache")
	}
	return ".swcache"
}
