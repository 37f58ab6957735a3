/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Seednode/darts/internal/arena"
	"github.com/Seednode/darts/internal/lease"
	"github.com/Seednode/darts/internal/scoring"
	"github.com/Seednode/darts/internal/turns"
)

var (
	ErrIncompleteTLS = errors.New("both --tls-cert and --tls-key must be provided together")
	ErrInvalidPort   = errors.New("invalid port (must be between 1-65535 inclusive)")
	ErrNegative      = errors.New("must not be negative")
)

type Config struct {
	aimTimeout     time.Duration
	bind           string
	boardRadius    float64
	corsOrigins    []string
	countdown      int
	leaseDir       string
	leaseTTL       time.Duration
	natsSubject    string
	natsURL        string
	playerTimeout  time.Duration
	port           int
	prefix         string
	profile        bool
	sessionTimeout time.Duration
	throws         int
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return ErrIncompleteTLS
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.port)
	}
	if c.throws < 1 {
		return fmt.Errorf("invalid throw count (must be at least 1): %d", c.throws)
	}
	if c.countdown < 1 {
		return fmt.Errorf("invalid countdown (must be at least 1): %d", c.countdown)
	}
	if c.boardRadius <= 0 {
		return fmt.Errorf("invalid board radius (must be positive): %v", c.boardRadius)
	}

	for name, d := range map[string]time.Duration{
		"--aim-timeout":     c.aimTimeout,
		"--lease-ttl":       c.leaseTTL,
		"--player-timeout":  c.playerTimeout,
		"--session-timeout": c.sessionTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s %w: %s", name, ErrNegative, d)
		}
	}

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("DARTS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "darts",
		Short:         "A two-player dart arena for a shared screen, with phones as controllers.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.DurationVar(&cfg.aimTimeout, "aim-timeout", arena.DefaultAimTimeout, "time before an idle aim is hidden, 0 to disable (env: DARTS_AIM_TIMEOUT)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: DARTS_BIND)")
	fs.Float64Var(&cfg.boardRadius, "board-radius", scoring.DefaultRadius, "dartboard radius in world units (env: DARTS_BOARD_RADIUS)")
	fs.StringSliceVar(&cfg.corsOrigins, "cors-origin", []string{"*"}, "origins allowed to call the API (env: DARTS_CORS_ORIGIN)")
	fs.IntVar(&cfg.countdown, "countdown", turns.DefaultCountdown, "seconds counted down before the first turn (env: DARTS_COUNTDOWN)")
	fs.StringVar(&cfg.leaseDir, "lease-dir", "", "directory to persist seat leases in, empty to keep them in memory (env: DARTS_LEASE_DIR)")
	fs.DurationVar(&cfg.leaseTTL, "lease-ttl", lease.DefaultTTL, "time an unrefreshed seat lease is held (env: DARTS_LEASE_TTL)")
	fs.StringVar(&cfg.natsSubject, "nats-subject", "darts.finish", "subject prefix finished scores are published under (env: DARTS_NATS_SUBJECT)")
	fs.StringVar(&cfg.natsURL, "nats-url", "", "NATS server to publish finished scores to (env: DARTS_NATS_URL)")
	fs.DurationVar(&cfg.playerTimeout, "player-timeout", arena.DefaultAbandonTimeout, "time before a room with no connected players is reset (env: DARTS_PLAYER_TIMEOUT)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: DARTS_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: DARTS_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: DARTS_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle rooms are torn down (env: DARTS_SESSION_TIMEOUT)")
	fs.IntVar(&cfg.throws, "throws", arena.DefaultThrows, "darts each player throws per match (env: DARTS_THROWS)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: DARTS_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: DARTS_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: DARTS_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: DARTS_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("darts v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
