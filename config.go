package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Seednode/retropong/pong"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind           string
	databaseURL    string
	logFormat      string
	playerTimeout  time.Duration
	port           int
	prefix         string
	profile        bool
	rules          string
	sessionTimeout time.Duration
	tickRate       int
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool

	// play
	mode string
	name string
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	return c.validateCommon()
}

func (c *Config) validatePlay() error {
	if _, err := pong.ParseMode(c.mode); err != nil {
		return fmt.Errorf("invalid --mode: %w", err)
	}
	if strings.TrimSpace(c.name) == "" {
		return errors.New("--name must not be empty")
	}
	return c.validateCommon()
}

func (c *Config) validateCommon() error {
	if c.tickRate < 1 || c.tickRate > 1000 {
		return fmt.Errorf("invalid tick rate (must be between 1-1000 inclusive): %d", c.tickRate)
	}
	if c.logFormat != "console" && c.logFormat != "json" {
		return fmt.Errorf("invalid log format (must be console or json): %q", c.logFormat)
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
	v.SetEnvPrefix("RETROPONG")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	serve := func(cmd *cobra.Command, args []string) error {
		if err := cfg.validate(); err != nil {
			return err
		}
		return ServePage(cmd.Context(), cfg)
	}

	cmd := &cobra.Command{
		Use:           "retropong",
		Short:         "Retro Pong, served to the browser or played in a terminal.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE:          serve,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web game (default).",
		Args:  cobra.ExactArgs(0),
		RunE:  serve,
	}

	playCmd := &cobra.Command{
		Use:   "play",
		Short: "Play a match in this terminal.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validatePlay(); err != nil {
				return err
			}
			return PlayTerminal(cmd.Context(), cfg)
		},
	}

	fs := cmd.PersistentFlags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: RETROPONG_BIND)")
	fs.StringVar(&cfg.databaseURL, "database-url", "", "postgres connection string; demo mode when empty (env: RETROPONG_DATABASE_URL)")
	fs.StringVar(&cfg.logFormat, "log-format", "console", "log output format, console or json (env: RETROPONG_LOG_FORMAT)")
	fs.DurationVar(&cfg.playerTimeout, "player-timeout", 2*time.Minute, "time before a disconnected guest loses their paddle (env: RETROPONG_PLAYER_TIMEOUT)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: RETROPONG_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: RETROPONG_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: RETROPONG_PROFILE)")
	fs.StringVar(&cfg.rules, "rules", "", "path to a TOML file overriding the match rules (env: RETROPONG_RULES)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle matches are ended (env: RETROPONG_SESSION_TIMEOUT)")
	fs.IntVar(&cfg.tickRate, "tick-rate", pong.DefaultTickRate, "simulation ticks per second (env: RETROPONG_TICK_RATE)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: RETROPONG_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: RETROPONG_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: RETROPONG_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: RETROPONG_VERSION)")

	pfs := playCmd.Flags()
	pfs.StringVarP(&cfg.mode, "mode", "m", "single", "single (vs computer) or two (shared keyboard) (env: RETROPONG_MODE)")
	pfs.StringVarP(&cfg.name, "name", "n", "player", "name shown for the left paddle (env: RETROPONG_NAME)")

	for _, set := range []*pflag.FlagSet{fs, pfs} {
		set.VisitAll(func(f *pflag.Flag) {
			_ = v.BindPFlag(f.Name, f)
			_ = v.BindEnv(f.Name)
			if !f.Changed && v.IsSet(f.Name) {
				_ = set.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
			}
		})
	}

	cmd.AddCommand(serveCmd, playCmd)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("retropong v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
