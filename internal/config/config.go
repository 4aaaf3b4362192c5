// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. IMPOSTER_PORT.
const EnvPrefix = "IMPOSTER"

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds server settings. Flags win over environment variables, which
// win over defaults.
type Config struct {
	Bind            string
	Port            int
	DatabaseURL     string
	Store           string
	RedisAddr       string
	RedisDB         int
	EventsQueue     string
	StaleAfter      time.Duration
	JanitorSchedule string
	PublicURL       string
	CORSOrigins     []string
	Verbose         bool
}

// LoadDotEnv loads a .env file if one exists.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("--database-url is required when --store=postgres")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store %q (want %s or %s)", c.Store, StorePostgres, StoreMemory)
	}
	if c.StaleAfter <= 0 {
		return errors.New("--stale-after must be positive")
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// BaseURL is the externally visible URL used in join links.
func (c *Config) BaseURL() string {
	if c.PublicURL != "" {
		return strings.TrimRight(c.PublicURL, "/")
	}
	host := c.Bind
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(c.Port))
}

// RegisterFlags defines the server flags on cmd and binds each one to an
// IMPOSTER_* environment variable through viper.
func RegisterFlags(cmd *cobra.Command, cfg *Config) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	flags := cmd.Flags()
	flags.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	flags.StringVarP(&cfg.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: IMPOSTER_BIND)")
	flags.IntVarP(&cfg.Port, "port", "p", 8080, "port to listen on (env: IMPOSTER_PORT)")
	flags.StringVar(&cfg.DatabaseURL, "database-url", "", "postgres connection string (env: IMPOSTER_DATABASE_URL)")
	flags.StringVar(&cfg.Store, "store", StorePostgres, "session store: postgres or memory (env: IMPOSTER_STORE)")
	flags.StringVar(&cfg.RedisAddr, "redis-addr", "", "redis address for the lobby event journal, empty disables it (env: IMPOSTER_REDIS_ADDR)")
	flags.IntVar(&cfg.RedisDB, "redis-db", 0, "redis database index (env: IMPOSTER_REDIS_DB)")
	flags.StringVar(&cfg.EventsQueue, "events-queue", "imposter_lobby_events", "redis list receiving lobby events (env: IMPOSTER_EVENTS_QUEUE)")
	flags.DurationVar(&cfg.StaleAfter, "stale-after", 6*time.Hour, "delete lobbies idle for longer than this (env: IMPOSTER_STALE_AFTER)")
	flags.StringVar(&cfg.JanitorSchedule, "janitor-schedule", "@every 10m", "cron schedule for the stale lobby sweep (env: IMPOSTER_JANITOR_SCHEDULE)")
	flags.StringVar(&cfg.PublicURL, "public-url", "", "externally visible base URL for join links (env: IMPOSTER_PUBLIC_URL)")
	flags.StringSliceVar(&cfg.CORSOrigins, "cors-origins", []string{"*"}, "allowed CORS origins (env: IMPOSTER_CORS_ORIGINS)")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "log at debug level (env: IMPOSTER_VERBOSE)")

	flags.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = flags.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
	return v
}
