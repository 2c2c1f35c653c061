package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
	"github.com/pterm/pterm"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/HexSleeves/turnbridge/internal/bindings"
	"github.com/HexSleeves/turnbridge/internal/config"
	"github.com/HexSleeves/turnbridge/internal/llm"
	"github.com/HexSleeves/turnbridge/internal/store"
	"github.com/HexSleeves/turnbridge/internal/tui"
)

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// ---------------------------------------------------------------------------
// query
// ---------------------------------------------------------------------------

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "send one prompt and print the reply",
		ArgsUsage: "<prompt...>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "system", Aliases: []string{"s"}, Usage: "system prompt"},
			&cli.IntFlag{Name: "turn", Usage: "issue through the turn gate as this turn"},
			&cli.BoolFlag{Name: "async", Usage: "run in the background worker and poll for the reply"},
		},
		Action: runQuery,
	}
}

func runQuery(ctx context.Context, cmd *cli.Command) error {
	prompt := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if prompt == "" {
		return errors.New("usage: turnbridge query <prompt>")
	}

	rt, err := newAppEnv(cmd, stderr(cmd))
	if err != nil {
		return err
	}
	defer rt.Close()

	system := cmd.String("system")
	if system == "" {
		system = rt.cfg.SystemPrompt
	}
	gated := cmd.IsSet("turn")
	turn := int(cmd.Int("turn"))

	var spinner *pterm.SpinnerPrinter
	if isTerminal(os.Stdout) {
		spinner, _ = pterm.DefaultSpinner.WithRemoveWhenDone(true).Start("Waiting for Claude...")
	}

	var resp llm.Response
	switch {
	case cmd.Bool("async"):
		if gated {
			_, err = rt.session.QueryForTurnAsync(ctx, turn, prompt, system)
		} else {
			_, err = rt.session.QueryAsync(ctx, prompt, system)
		}
		if err == nil {
			err = rt.session.Shutdown(ctx)
		}
		resp, _ = rt.session.GetResponse()
	case gated:
		resp = rt.session.QueryForTurn(ctx, turn, prompt, system)
	default:
		resp = rt.session.Query(ctx, prompt, system)
	}
	if spinner != nil {
		_ = spinner.Stop()
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout(cmd), resp.String())
	if resp.IsError() {
		return fmt.Errorf("query failed (%s)", resp.Kind)
	}
	return nil
}

// ---------------------------------------------------------------------------
// script
// ---------------------------------------------------------------------------

func scriptCommand() *cli.Command {
	return &cli.Command{
		Name:      "script",
		Usage:     "run Claude.* calls from a file, one per line",
		ArgsUsage: "<file>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return errors.New("usage: turnbridge script <file>")
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			calls, err := bindings.ParseScript(f, path)
			if err != nil {
				return fmt.Errorf("parse script: %w", err)
			}

			rt, err := newAppEnv(cmd, stderr(cmd))
			if err != nil {
				return err
			}
			defer rt.Close()

			results, runErr := bindings.RunScript(ctx, bindings.NewTable(rt.session), calls)
			w := stdout(cmd)
			for _, r := range results {
				if r.Err != nil {
					fmt.Fprintf(w, "%d\t%s\terror: %v\n", r.Call.Line, r.Call.Name, r.Err)
					continue
				}
				fmt.Fprintf(w, "%d\t%s\t%s\n", r.Call.Line, r.Call.Name, bindings.FormatValue(r.Value))
			}
			return runErr
		},
	}
}

// ---------------------------------------------------------------------------
// play
// ---------------------------------------------------------------------------

func playCommand() *cli.Command {
	return &cli.Command{
		Name:  "play",
		Usage: "interactive turn loop",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "system", Aliases: []string{"s"}, Usage: "system prompt"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if !isTerminal(os.Stdin) || !isTerminal(os.Stdout) {
				return errors.New("play needs an interactive terminal")
			}
			// The loop owns the screen; logs would tear it.
			rt, err := newAppEnv(cmd, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			system := cmd.String("system")
			if system == "" {
				system = rt.cfg.SystemPrompt
			}
			p := tea.NewProgram(tui.New(ctx, rt.session, system), tea.WithAltScreen(), tea.WithContext(ctx))
			final, err := p.Run()
			if err != nil {
				return err
			}
			if m, ok := final.(tui.Model); ok && m.Err() != nil {
				return m.Err()
			}
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// history
// ---------------------------------------------------------------------------

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "show recorded exchanges",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "rows to show (0 for all)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.HistoryPath == "" || cfg.HistoryPath == "off" {
				return errors.New("history is disabled")
			}
			hs, err := store.Open(cfg.HistoryPath)
			if err != nil {
				return err
			}
			defer hs.Close()

			exs, err := hs.Recent(int(cmd.Int("limit")))
			if err != nil {
				return err
			}
			w := stdout(cmd)
			if len(exs) == 0 {
				fmt.Fprintln(w, "No exchanges recorded.")
				return nil
			}

			data := pterm.TableData{{"ID", "When", "Turn", "Mode", "Status", "Took", "Prompt", "Reply"}}
			for _, ex := range exs {
				turn := "-"
				if ex.Turn != nil {
					turn = strconv.Itoa(*ex.Turn)
				}
				data = append(data, []string{
					strconv.FormatInt(ex.ID, 10),
					ex.CreatedAt.Format("01-02 15:04:05"),
					turn,
					ex.Mode,
					ex.Status,
					ex.Duration.String(),
					clip(ex.Prompt, 30),
					clip(ex.Response, 50),
				})
			}
			out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
			if err != nil {
				return err
			}
			fmt.Fprintln(w, out)
			return nil
		},
	}
}

func clip(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	return runewidth.Truncate(s, width, "…")
}

// ---------------------------------------------------------------------------
// config
// ---------------------------------------------------------------------------

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "inspect or write the config file",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "print the effective configuration",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					source := "none"
					switch {
					case cfg.APIKey != "":
						source = "config"
					case os.Getenv(config.EnvAPIKey) != "":
						source = config.EnvAPIKey
					}
					r := cfg.Redacted()
					data := pterm.TableData{
						{"Setting", "Value"},
						{"config file", cmd.String("config")},
						{"api key", r.APIKey + " (" + source + ")"},
						{"model", r.Model},
						{"max tokens", strconv.Itoa(r.MaxTokens)},
						{"transport", r.Transport},
						{"base url", r.BaseURL},
						{"api version", r.APIVersion},
						{"user agent", r.UserAgent},
						{"history", r.HistoryPath},
						{"log level", r.LogLevel},
						{"system prompt", clip(r.SystemPrompt, 60)},
					}
					out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
					if err != nil {
						return err
					}
					fmt.Fprintln(stdout(cmd), out)
					return nil
				},
			},
			{
				Name:  "init",
				Usage: "write a default config file",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "overwrite an existing file"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					path := cmd.String("config")
					if _, err := os.Stat(path); err == nil && !cmd.Bool("force") {
						return fmt.Errorf("%s already exists (use --force to overwrite)", path)
					}
					if err := config.DefaultConfig().Save(path); err != nil {
						return err
					}
					fmt.Fprintln(stdout(cmd), pterm.Success.Sprintf("Config saved to %s", path))
					return nil
				},
			},
			{
				Name:      "set-key",
				Usage:     "store an API key in the config file",
				ArgsUsage: "[key]",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					key, err := readKey(cmd)
					if err != nil {
						return err
					}
					if key == "" {
						return errors.New("empty API key")
					}
					path := cmd.String("config")
					cfg, err := config.Load(path)
					if err != nil {
						return err
					}
					cfg.APIKey = key
					if err := cfg.Save(path); err != nil {
						return err
					}
					fmt.Fprintln(stdout(cmd), pterm.Success.Sprintf("API key saved to %s", path))
					return nil
				},
			},
		},
	}
}

// readKey takes the key from the argument, a hidden prompt, or piped stdin.
func readKey(cmd *cli.Command) (string, error) {
	if key := cmd.Args().First(); key != "" {
		return strings.TrimSpace(key), nil
	}
	if isTerminal(os.Stdin) {
		fmt.Fprint(stderr(cmd), "API key: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(stderr(cmd))
		if err != nil {
			return "", fmt.Errorf("read key: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read key: %w", err)
	}
	return strings.TrimSpace(line), nil
}
