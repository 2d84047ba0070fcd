package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment holds the ambient settings read from KRYPTOS_* variables.
type Environment struct {
	LogLevel      string
	LogDir        string
	BindHost      string
	PollInterval  time.Duration
	Ack           string
	WriteTimeout  time.Duration
	ReadBuffer    int
	ResolvePeers  bool
	RedisAddr     string
	StatsSchedule string
}

var envHelp = [][2]string{
	{"KRYPTOS_LOG_LEVEL", "debug, info, warn or error (default info)"},
	{"KRYPTOS_LOG_DIR", "also write daily-rotated log files here"},
	{"KRYPTOS_BIND_HOST", "listen host (default all interfaces)"},
	{"KRYPTOS_POLL_INTERVAL", "pause before each session read (default 0s)"},
	{"KRYPTOS_ACK", "reply sent to a sender per message (default WELCOME)"},
	{"KRYPTOS_WRITE_TIMEOUT", "per-write deadline (default 10s, 0 disables)"},
	{"KRYPTOS_READ_BUFFER", "plaintext read chunk size (default 4096)"},
	{"KRYPTOS_RESOLVE_PEERS", "reverse-resolve peer addresses in logs (default false)"},
	{"KRYPTOS_REDIS_ADDR", "cache resolved peer names in this Redis"},
	{"KRYPTOS_STATS_SCHEDULE", "cron spec for stats log lines (default @every 1m)"},
}

// DefaultEnvironment returns the settings used when no variable is set.
func DefaultEnvironment() Environment {
	return Environment{
		LogLevel:      "info",
		Ack:           "WELCOME",
		WriteTimeout:  10 * time.Second,
		ReadBuffer:    4096,
		StatsSchedule: "@every 1m",
	}
}

// LoadEnvironment loads the given dotenv files (default ".env") into the
// process environment, without overriding variables already set, and then
// reads the KRYPTOS_* settings. Missing dotenv files are ignored.
//
// Parameters:
//   - files: Optional dotenv file paths
//
// Returns:
//   - The Environment, starting from DefaultEnvironment
//   - An error if a dotenv file is unreadable or a value does not parse
func LoadEnvironment(files ...string) (Environment, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Environment{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	env := DefaultEnvironment()
	var err error

	lookupString("KRYPTOS_LOG_LEVEL", &env.LogLevel)
	lookupString("KRYPTOS_LOG_DIR", &env.LogDir)
	lookupString("KRYPTOS_BIND_HOST", &env.BindHost)
	lookupString("KRYPTOS_ACK", &env.Ack)
	lookupString("KRYPTOS_REDIS_ADDR", &env.RedisAddr)
	lookupString("KRYPTOS_STATS_SCHEDULE", &env.StatsSchedule)

	if env.PollInterval, err = lookupDuration("KRYPTOS_POLL_INTERVAL", env.PollInterval); err != nil {
		return Environment{}, err
	}
	if env.WriteTimeout, err = lookupDuration("KRYPTOS_WRITE_TIMEOUT", env.WriteTimeout); err != nil {
		return Environment{}, err
	}

	if v, ok := os.LookupEnv("KRYPTOS_READ_BUFFER"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n <= 0 {
			return Environment{}, &Error{Field: "KRYPTOS_READ_BUFFER", Reason: fmt.Sprintf("%q is not a positive integer", v)}
		}
		env.ReadBuffer = n
	}

	if v, ok := os.LookupEnv("KRYPTOS_RESOLVE_PEERS"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return Environment{}, &Error{Field: "KRYPTOS_RESOLVE_PEERS", Reason: fmt.Sprintf("%q is not a boolean", v), Err: err}
		}
		env.ResolvePeers = b
	}

	return env, nil
}

func lookupString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func lookupDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}

	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil || d < 0 {
		return 0, &Error{Field: key, Reason: fmt.Sprintf("%q is not a duration", v), Err: err}
	}

	return d, nil
}
