package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dukex/chatflow/pkg/bridge"
	"github.com/dukex/chatflow/pkg/cmd"
	"github.com/dukex/chatflow/pkg/engine"
	"github.com/dukex/chatflow/pkg/flowfile"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/urfave/cli/v3"
)

var ErrBadVariable = errors.New("variables must be given as name=value")

func NewSimulateCommand() *cli.Command {
	return &cli.Command{
		Name:      "simulate",
		Aliases:   []string{"s"},
		Usage:     "Chat with a flow file from the terminal, one answer per line",
		ArgsUsage: "<flow-file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "bridge-url",
				Usage:   "Base URL of the integration gateway",
				Sources: cli.EnvVars("BRIDGE_URL"),
			},
			&cli.StringSliceFlag{
				Name:  "var",
				Usage: "Initial session variable as name=value (repeatable)",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			if command.Args().Len() != 1 {
				return fmt.Errorf("%w: expected exactly one", ErrNoFlowFiles)
			}

			flow, err := flowfile.Load(command.Args().First())
			if err != nil {
				return err
			}

			variables, err := parseVariables(command.StringSlice("var"))
			if err != nil {
				return err
			}

			logger := slog.With("module", "chatflow", "action", "simulate")

			router, err := cmd.NewBridge(command.String("bridge-url"), logger)
			if err != nil {
				return err
			}

			return runSimulate(ctx, os.Stdin, os.Stdout, flow, router, variables)
		},
	}
}

func parseVariables(pairs []string) (map[string]any, error) {
	variables := make(map[string]any, len(pairs))

	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("%w: %q", ErrBadVariable, pair)
		}

		variables[strings.TrimSpace(name)] = value
	}

	return variables, nil
}

// runSimulate drives one session over flow until it leaves the active
// status or input runs out. Draft flows are run as if published.
func runSimulate(
	ctx context.Context,
	in io.Reader,
	out io.Writer,
	flow *models.Flow,
	b bridge.Bridge,
	variables map[string]any,
) error {
	simulated := *flow
	simulated.Status = models.FlowStatusPublished

	runner := engine.NewEngine(engine.NewMemoryFlowSource(&simulated), b,
		engine.WithLogger(slog.With("module", "chatflow", "action", "simulate")),
	)

	result, err := runner.CreateSession(ctx, engine.CreateSessionRequest{
		FlowID:           simulated.ID,
		Trigger:          models.Trigger{Type: "cli"},
		InitialVariables: variables,
	})
	if err != nil {
		return err
	}

	printResponses(out, result.Responses)

	scanner := bufio.NewScanner(in)

	for result.Session.IsActive() {
		_, _ = fmt.Fprint(out, "> ")

		if !scanner.Scan() {
			_, _ = fmt.Fprintln(out)

			break
		}

		result, err = runner.ContinueSession(ctx, result.Session, scanner.Text())
		if err != nil {
			return err
		}

		printResponses(out, result.Responses)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	_, _ = fmt.Fprintf(out, "-- session %s\n", result.Session.Status)

	for _, variable := range result.Session.Variables {
		_, _ = fmt.Fprintf(out, "   %s = %v\n", variable.Name, variable.Value)
	}

	return nil
}

func printResponses(out io.Writer, responses []models.Response) {
	for _, response := range responses {
		switch response.Type {
		case models.ResponseTypeImage, models.ResponseTypeVideo:
			_, _ = fmt.Fprintf(out, "bot: [%s] %s %s\n", response.Type, response.MediaURL, response.Content)
		case models.ResponseTypeButtons:
			_, _ = fmt.Fprintf(out, "bot: %s\n", response.Content)

			for i, button := range response.Buttons {
				_, _ = fmt.Fprintf(out, "     %d) %s [%s]\n", i+1, button.Label, button.ID)
			}
		default:
			_, _ = fmt.Fprintf(out, "bot: %s\n", response.Content)
		}
	}
}
