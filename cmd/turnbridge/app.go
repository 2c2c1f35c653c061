package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v3"

	"github.com/HexSleeves/turnbridge/internal/bridge"
	"github.com/HexSleeves/turnbridge/internal/bus"
	"github.com/HexSleeves/turnbridge/internal/config"
	"github.com/HexSleeves/turnbridge/internal/llm"
	"github.com/HexSleeves/turnbridge/internal/logging"
	"github.com/HexSleeves/turnbridge/internal/store"
)

const version = "0.1.0"

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "turnbridge",
		Usage: "Turn-gated Claude queries for scripted and interactive hosts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultPath,
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "api-key",
				Usage: "Anthropic API key (overrides config and " + config.EnvAPIKey + ")",
			},
			&cli.StringFlag{
				Name:  "model",
				Usage: "model name",
			},
			&cli.IntFlag{
				Name:  "max-tokens",
				Usage: "max tokens per reply",
			},
			&cli.StringFlag{
				Name:  "transport",
				Usage: "http or sdk",
			},
			&cli.StringFlag{
				Name:  "history",
				Usage: "history database path (\"off\" disables recording)",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "debug logging",
			},
		},
		Commands: []*cli.Command{
			queryCommand(),
			scriptCommand(),
			playCommand(),
			historyCommand(),
			configCommand(),
			{
				Name:  "version",
				Usage: "print the version",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Fprintf(stdout(cmd), "turnbridge v%s\n", version)
					return nil
				},
			},
		},
	}
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if cmd.IsSet("api-key") {
		cfg.APIKey = cmd.String("api-key")
	}
	if cmd.IsSet("model") {
		cfg.Model = cmd.String("model")
	}
	if cmd.IsSet("max-tokens") {
		cfg.MaxTokens = int(cmd.Int("max-tokens"))
	}
	if cmd.IsSet("transport") {
		cfg.Transport = cmd.String("transport")
	}
	if cmd.IsSet("history") {
		cfg.HistoryPath = cmd.String("history")
	}
	if cmd.Bool("verbose") {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// appEnv is everything a query-issuing command needs.
type appEnv struct {
	cfg     *config.Config
	logger  *pterm.Logger
	session *bridge.Session
	history *store.Store
	sub     *bus.Subscription
}

// newAppEnv builds the session from flags and config. logOut receives the
// log stream; nil discards it.
func newAppEnv(cmd *cli.Command, logOut io.Writer) (*appEnv, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger := logging.Discard()
	if logOut != nil {
		level, err := logging.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		logger = logging.New(logOut, level)
	}

	transport, err := llm.NewTransport(cfg.TransportConfig())
	if err != nil {
		return nil, err
	}

	rt := &appEnv{cfg: cfg, logger: logger}
	b := bus.New(0)
	if cfg.HistoryPath != "" && cfg.HistoryPath != "off" {
		rt.history, err = store.Open(cfg.HistoryPath)
		if err != nil {
			return nil, err
		}
		rt.sub = rt.history.Attach(b, func(err error) {
			logger.Warn("history write failed", logger.Args("error", err))
		})
	}

	rt.session = bridge.New(transport,
		bridge.WithConfig(cfg),
		bridge.WithBus(b),
		bridge.WithLogger(logger),
	)
	logger.Debug("session ready", logger.Args(
		"transport", cfg.Transport,
		"model", cfg.Model,
		"key", string(rt.session.Settings().KeySource),
	))
	return rt, nil
}

// Close waits for the background query and releases the history store.
func (rt *appEnv) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	err := rt.session.Shutdown(ctx)
	if rt.sub != nil {
		rt.sub.Unsubscribe()
	}
	if rt.history != nil {
		if cerr := rt.history.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func stderr(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}
