package config

import "github.com/spf13/viper"

// Version is set at build time via -ldflags.
var Version = "dev"

// Config holds all runtime configuration for the relaydb CLI.
type Config struct {
	DBPath        string
	MigrationsDir string
	Goose         bool
	AllowWrites   bool
	WrapFirst     bool
}

// Load reads configuration from viper, which merges flag values, env vars,
// and defaults (set up by the cobra command in cmd/relaydb).
func Load() Config {
	return Config{
		DBPath:        viper.GetString("db"),
		MigrationsDir: viper.GetString("migrations"),
		Goose:         viper.GetBool("goose"),
		AllowWrites:   viper.GetBool("allow_writes"),
		WrapFirst:     viper.GetBool("wrap_first"),
	}
}
