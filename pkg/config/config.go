// Package config loads netfetch's CLI-facing settings through viper,
// bound to cobra flags the same way the pack's config/components layer
// binds flags with viper.BindPFlag — proxy target and spoofed
// User-Agent are overridable by flag, environment variable, or config
// file, in that precedence order. The connection pool's size and
// staleness window are not here: they are fixed invariants (§3, §4.4),
// not user-tunable settings.
package config

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the resolved set of ambient settings a Fetcher run needs
// beyond the URL itself.
type Config struct {
	ProxyURL       string
	UserAgentSpoof string
	TLSProfile     string // "modern", "compatible" (reserved for future profiles; netfetch ships one HIGH policy today)
	Verbose        bool
}

// New returns a viper instance configured to read NETFETCH_*
// environment variables and an optional config file, with flags bound
// via Bind taking precedence over both.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("netfetch")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("proxy", "")
	v.SetDefault("user-agent", "")
	v.SetDefault("tls-profile", "modern")
	v.SetDefault("verbose", false)

	v.SetConfigName("netfetch")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/netfetch")
	_ = v.ReadInConfig() // absent config file is not an error

	return v
}

// Bind wires a FlagSet's --proxy/--user-agent/--tls-profile/--verbose
// flags into v, so a flag the user actually passed always wins over the
// config file or environment.
func Bind(v *viper.Viper, flags *pflag.FlagSet) error {
	for _, name := range []string{"proxy", "user-agent", "tls-profile", "verbose"} {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(name, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// Load materializes a Config from v.
func Load(v *viper.Viper) Config {
	return Config{
		ProxyURL:       v.GetString("proxy"),
		UserAgentSpoof: v.GetString("user-agent"),
		TLSProfile:     v.GetString("tls-profile"),
		Verbose:        v.GetBool("verbose"),
	}
}
