// Package config turns process arguments and environment into a validated
// relay configuration.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cyberinferno/kryptos/encryption"
)

// Version is the build version, overridden at link time with
// -ldflags "-X github.com/cyberinferno/kryptos/config.Version=...".
var Version = "0.1.0"

// MinPort is the lowest port the relay may listen on; lower ports are reserved.
const MinPort = 1024

var (
	// ErrHelp is returned by Parse when the help flag was given.
	ErrHelp = errors.New("help requested")
	// ErrVersion is returned by Parse when the version flag was given.
	ErrVersion = errors.New("version requested")
)

// Error describes an invalid startup argument.
type Error struct {
	Field  string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Field == "" {
		return e.Reason
	}

	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Config is the validated startup configuration of a relay.
type Config struct {
	Port         uint16
	Cipher       encryption.Kind
	KeySize      encryption.KeySize
	PresharedKey string
}

// HasKey reports whether key material was supplied on the command line.
func (c Config) HasKey() bool {
	return c.PresharedKey != ""
}

// Parse validates the argument list `<port> <cipher_kind> <key_bits> [preshared_key]`
// (program name excluded). A first argument of --help/-h or --version/-v
// returns ErrHelp or ErrVersion.
//
// Parameters:
//   - args: The process arguments without the program name
//
// Returns:
//   - The validated Config
//   - ErrHelp, ErrVersion, or an *Error describing the first invalid argument
func Parse(args []string) (Config, error) {
	if len(args) > 0 {
		switch args[0] {
		case "--help", "-h":
			return Config{}, ErrHelp
		case "--version", "-v":
			return Config{}, ErrVersion
		}
	}

	if len(args) > 4 {
		return Config{}, &Error{Reason: "too many arguments"}
	}
	if len(args) < 3 {
		return Config{}, &Error{Reason: "missing arguments"}
	}

	port, err := parsePort(args[0])
	if err != nil {
		return Config{}, err
	}

	kind, err := encryption.ParseKind(args[1])
	if err != nil {
		return Config{}, &Error{Field: "cipher kind", Reason: fmt.Sprintf("%q (valid kinds are %s)", args[1], kindList()), Err: err}
	}

	size, err := encryption.ParseKeySize(args[2])
	if err != nil {
		return Config{}, &Error{Field: "key size", Reason: fmt.Sprintf("%q (valid sizes are %s)", args[2], sizeList()), Err: err}
	}

	cfg := Config{Port: port, Cipher: kind, KeySize: size}
	if len(args) == 4 {
		key := args[3]
		if got := len(key) * 8; got != int(size) {
			return Config{}, &Error{
				Field:  "preshared key",
				Reason: fmt.Sprintf("key size is %d but the given key is %d bits", int(size), got),
				Err:    encryption.ErrKeySize,
			}
		}
		cfg.PresharedKey = key
	}

	return cfg, nil
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, &Error{Field: "port", Reason: fmt.Sprintf("%q is not a port number", s), Err: err}
	}
	if n < MinPort {
		return 0, &Error{Field: "port", Reason: fmt.Sprintf("%d is in the reserved range (below %d)", n, MinPort)}
	}

	return uint16(n), nil
}

func kindList() string {
	names := make([]string, 0, len(encryption.Kinds))
	for _, k := range encryption.Kinds {
		name := k.String()
		if k.Weak() {
			name += " (unsafe)"
		}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

func sizeList() string {
	sizes := make([]string, 0, len(encryption.KeySizes))
	for _, s := range encryption.KeySizes {
		sizes = append(sizes, s.String())
	}
	return strings.Join(sizes, ", ")
}

// Usage returns the help text printed for --help.
func Usage() string {
	var b strings.Builder
	b.WriteString("Usage: kryptos <port> <cipher_kind> <key_bits> [preshared_key]\n")
	b.WriteString("A key is generated and printed when no preshared key is given.\n\n")
	fmt.Fprintf(&b, "Encryption Options: %s\n", kindList())
	fmt.Fprintf(&b, "Key Size Options: %s\n", sizeList())
	b.WriteString("Options: --help, --version\n\n")
	b.WriteString("Environment (also read from ./.env):\n")
	for _, v := range envHelp {
		fmt.Fprintf(&b, "  %-24s %s\n", v[0], v[1])
	}
	return b.String()
}

// VersionString returns the text printed for --version.
func VersionString() string {
	return fmt.Sprintf("Kryptos server version %s", Version)
}
