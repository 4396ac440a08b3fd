// Package config loads the server configuration.
//
// Sources, lowest to highest priority:
//  1. built-in defaults
//  2. a .env file in the working directory (optional, loaded into the process env)
//  3. POLLQUEST_* environment variables
//  4. command-line flags bound with BindFlags
//
// Only flags the user actually set override the environment, which is how
// viper treats bound pflags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/pollquest/internal/auth"
)

const envPrefix = "POLLQUEST"

// Keys, shared by viper, flags and environment variables
// (POLLQUEST_DB_PATH, --db-path, ...).
const (
	KeyPort           = "port"
	KeyDBPath         = "db-path"
	KeyLogLevel       = "log-level"
	KeyCORSOrigins    = "cors-origins"
	KeyLeaderboardTTL = "leaderboard-ttl"
	KeyBcryptCost     = "bcrypt-cost"
)

type Config struct {
	Port           int
	DBPath         string
	LogLevel       string
	CORSOrigins    []string
	LeaderboardTTL time.Duration // 0 disables the leaderboard cache
	BcryptCost     int
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Port:           8080,
		DBPath:         "data/pollquest.db",
		LogLevel:       "info",
		CORSOrigins:    []string{"*"},
		LeaderboardTTL: 30 * time.Second,
		BcryptCost:     auth.DefaultCost,
	}
}

// Loader wraps a viper instance so tests do not share global state.
type Loader struct {
	v *viper.Viper
}

// NewLoader registers defaults and environment bindings.
func NewLoader() *Loader {
	v := viper.New()
	d := Defaults()
	v.SetDefault(KeyPort, d.Port)
	v.SetDefault(KeyDBPath, d.DBPath)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyCORSOrigins, strings.Join(d.CORSOrigins, ","))
	v.SetDefault(KeyLeaderboardTTL, d.LeaderboardTTL)
	v.SetDefault(KeyBcryptCost, d.BcryptCost)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// RegisterFlags adds one flag per key to flags, with the defaults as flag
// defaults.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Defaults()
	flags.Int(KeyPort, d.Port, "HTTP listen port")
	flags.String(KeyDBPath, d.DBPath, "SQLite database file (\":memory:\" for a throwaway store)")
	flags.String(KeyLogLevel, d.LogLevel, "log level (debug, info, warn, error)")
	flags.String(KeyCORSOrigins, strings.Join(d.CORSOrigins, ","), "comma-separated allowed CORS origins")
	flags.Duration(KeyLeaderboardTTL, d.LeaderboardTTL, "leaderboard cache TTL (0 disables caching)")
	flags.Int(KeyBcryptCost, d.BcryptCost, "bcrypt cost for password hashes")
}

// BindFlags makes the given flags override the environment when set.
func (l *Loader) BindFlags(flags *pflag.FlagSet) error {
	if err := l.v.BindPFlags(flags); err != nil {
		return fmt.Errorf("config: binding flags: %w", err)
	}
	return nil
}

// LoadDotEnv loads path into the process environment. A missing file is not
// an error. Variables already set in the environment win.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: loading %s: %w", path, err)
	}
	return nil
}

// Load resolves and validates the configuration.
func (l *Loader) Load() (Config, error) {
	cfg := Config{
		Port:           l.v.GetInt(KeyPort),
		DBPath:         l.v.GetString(KeyDBPath),
		LogLevel:       strings.ToLower(l.v.GetString(KeyLogLevel)),
		CORSOrigins:    splitList(l.v.GetString(KeyCORSOrigins)),
		LeaderboardTTL: l.v.GetDuration(KeyLeaderboardTTL),
		BcryptCost:     l.v.GetInt(KeyBcryptCost),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges that would otherwise fail later at startup.
func (c Config) Validate() error {
	switch {
	case c.Port < 1 || c.Port > 65535:
		return fmt.Errorf("config: port %d out of range", c.Port)
	case c.DBPath == "":
		return errors.New("config: db path must not be empty")
	case c.LeaderboardTTL < 0:
		return fmt.Errorf("config: leaderboard ttl %s is negative", c.LeaderboardTTL)
	case c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost:
		return fmt.Errorf("config: bcrypt cost %d out of range %d..%d", c.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a level name to its slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("config: unknown log level %q", name)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
