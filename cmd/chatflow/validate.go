package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dukex/chatflow/pkg/flowfile"
	"github.com/dukex/chatflow/pkg/flowvalidator"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/urfave/cli/v3"
)

var (
	ErrNoFlowFiles  = errors.New("no flow files given")
	ErrInvalidFlows = errors.New("invalid flows found")
)

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Check flow files for structural problems",
		ArgsUsage: "<file-or-dir>...",
		Action: func(_ context.Context, command *cli.Command) error {
			return runValidate(os.Stdout, command.Args().Slice())
		},
	}
}

func loadFlows(paths []string) ([]*models.Flow, error) {
	var flows []*models.Flow

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}

		if info.IsDir() {
			loaded, err := flowfile.LoadDir(path)
			if err != nil {
				return nil, err
			}

			flows = append(flows, loaded...)

			continue
		}

		flow, err := flowfile.Load(path)
		if err != nil {
			return nil, err
		}

		flows = append(flows, flow)
	}

	return flows, nil
}

func runValidate(out io.Writer, paths []string) error {
	if len(paths) == 0 {
		return ErrNoFlowFiles
	}

	flows, err := loadFlows(paths)
	if err != nil {
		return err
	}

	invalid := 0

	for _, flow := range flows {
		result := flowvalidator.Validate(flow)

		status := "ok"
		if !result.Valid {
			status = "invalid"
			invalid++
		}

		_, _ = fmt.Fprintf(out, "%s (%s): %s\n", flow.Name, flow.ID, status)

		for _, finding := range result.Errors {
			location := finding.NodeID
			if location == "" {
				location = finding.EdgeID
			}

			if location != "" {
				location = " [" + location + "]"
			}

			_, _ = fmt.Fprintf(out, "  %s %s%s: %s\n", finding.Severity, finding.Code, location, finding.Message)
		}
	}

	_, _ = fmt.Fprintf(out, "\n%d flow(s) checked, %d invalid\n", len(flows), invalid)

	if invalid > 0 {
		return fmt.Errorf("%w: %d", ErrInvalidFlows, invalid)
	}

	return nil
}
