// Package config initializes the global Viper configuration: defaults,
// config file search paths, and environment variable binding.
package config

import (
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	internalconfig "github.com/pwieczorek/newsrelay/internal/config"
	"github.com/pwieczorek/newsrelay/internal/logging"
)

// InitConfig initializes the application's configuration using Viper. It is
// called once at startup, before any service is constructed.
func InitConfig() {
	viper.SetConfigName("config")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/newsrelay/")
	viper.AddConfigPath("$HOME/.newsrelay")

	internalconfig.SetDefaults(viper.GetViper())

	viper.SetEnvPrefix("NEWSRELAY") // e.g. NEWSRELAY_TELEGRAM_TOKEN
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logging.L.Warn("Config file not found; using defaults and environment variables.")
		} else {
			logging.L.Error("Error reading config file", zap.Error(err))
		}
	} else {
		logging.L.Info("Using config file", zap.String("path", viper.ConfigFileUsed()))
	}
}
