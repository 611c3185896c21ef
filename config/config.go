// Package config loads klatsch's static, restart-only configuration from
// flags and environment variables.
package config

import (
	"flag"

	"github.com/peterbourgon/ff/v3"
)

// Config is every piece of configuration the server needs to start.
type Config struct {
	// Host is the address or hostname to bind to.
	Host string
	// Port is the TCP port to listen on.
	Port int
	// DatabasePath is the location of the SQLite chat history file. An
	// empty path opens an in-memory store instead, used for local runs
	// and tests.
	DatabasePath string
}

// Load parses args (typically os.Args[1:]) against flags, falling back to
// the matching upper-cased environment variable (HOST, PORT,
// DATABASE_PATH) for any flag not set explicitly.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("klatsch", flag.ExitOnError)

	var cfg Config
	fs.StringVar(&cfg.Host, "host", "0.0.0.0", "host or address to bind to")
	fs.IntVar(&cfg.Port, "port", 3000, "port to listen on")
	fs.StringVar(&cfg.DatabasePath, "database-path", "", "path to the SQLite chat history file (empty for an in-memory store)")

	if err := ff.Parse(fs, args, ff.WithEnvVars()); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
