/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	storeMemory = "memory"
	storeRedis  = "redis"
)

type Config struct {
	bind           string
	envFile        string
	port           int
	prefix         string
	profile        bool
	redisPrefix    string
	redisURL       string
	sessionTimeout time.Duration
	store          string
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool

	logger *zap.Logger
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	switch c.store {
	case storeMemory:
	case storeRedis:
		if c.redisURL == "" {
			return errors.New("--redis-url is required when --store=redis")
		}
	default:
		return fmt.Errorf("invalid store (must be %q or %q): %q", storeMemory, storeRedis, c.store)
	}
	if c.sessionTimeout < 0 {
		return fmt.Errorf("invalid session timeout: %s", c.sessionTimeout)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newLogger(verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(logDate)
	zc.DisableStacktrace = true

	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	return zc.Build()
}

// applyEnv copies environment values into any flag not set on the command
// line.
func applyEnv(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("SIZEWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "sizewise",
		Short:         "Real-time planning poker for agile teams.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.envFile != "" {
				if err := godotenv.Load(cfg.envFile); err != nil {
					return fmt.Errorf("load env file: %w", err)
				}
				applyEnv(v, cmd.Flags())
			}

			if err := cfg.validate(); err != nil {
				return err
			}

			logger, err := newLogger(cfg.verbose)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			cfg.logger = logger

			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: SIZEWISE_BIND)")
	fs.StringVar(&cfg.envFile, "env-file", "", "load environment variables from this file (env: SIZEWISE_ENV_FILE)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: SIZEWISE_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: SIZEWISE_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: SIZEWISE_PROFILE)")
	fs.StringVar(&cfg.redisPrefix, "redis-prefix", "sizewise:", "prefix for all redis keys (env: SIZEWISE_REDIS_PREFIX)")
	fs.StringVar(&cfg.redisURL, "redis-url", "", "redis connection url, e.g. redis://localhost:6379/0 (env: SIZEWISE_REDIS_URL)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle room connections are dropped (env: SIZEWISE_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.store, "store", storeMemory, "where rooms are kept: memory or redis (env: SIZEWISE_STORE)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: SIZEWISE_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: SIZEWISE_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: SIZEWISE_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: SIZEWISE_VERSION)")

	applyEnv(v, fs)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("sizewise v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
