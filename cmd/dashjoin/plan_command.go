package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"dashjoin/internal/config"
	"dashjoin/internal/coordinator"
	"dashjoin/internal/ingest"
	"dashjoin/internal/logging"
	"dashjoin/internal/segments"
)

type plannedGroup struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Segments []string  `json:"segments"`
	Output   string    `json:"output,omitempty"`
}

type mergePlan struct {
	Dir         string         `json:"dir"`
	Threshold   string         `json:"threshold"`
	Groups      []plannedGroup `json:"groups"`
	Singles     []string       `json:"singles"`
	Unparseable []string       `json:"unparseable"`
	Outputs     int            `json:"existing_outputs"`
	Ignored     int            `json:"ignored"`
}

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "plan [DIR]",
		Short: "Show which segments in a directory would be merged",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dir := cfg.Paths.WatchDir
			if len(args) == 1 {
				if dir, err = config.ExpandPath(args[0]); err != nil {
					return err
				}
			}
			settings, err := cfg.Settings()
			if err != nil {
				return err
			}
			plan, err := buildPlan(cmd.Context(), settings, dir)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, plan)
			}
			printPlan(cmd, plan)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the plan as JSON")
	return cmd
}

// buildPlan runs one grouping pass over dir without merging anything.
func buildPlan(ctx context.Context, settings config.Settings, dir string) (mergePlan, error) {
	plan := mergePlan{Dir: dir, Threshold: settings.Threshold.String()}
	ledger := segments.NewLedger()
	sink := ingest.SinkFunc(func(_ context.Context, evt ingest.Event) error {
		if evt.IsDir {
			return nil
		}
		seg, verdict, _ := coordinator.Classify(settings, evt.Path)
		switch verdict {
		case coordinator.VerdictSegment:
			ledger.Insert(seg)
		case coordinator.VerdictUnparseable:
			plan.Unparseable = append(plan.Unparseable, filepath.Base(evt.Path))
		case coordinator.VerdictOutput:
			plan.Outputs++
		default:
			plan.Ignored++
		}
		return nil
	})
	if _, err := ingest.Scan(ctx, dir, sink, logging.NewNop()); err != nil {
		return plan, fmt.Errorf("scan %s: %w", dir, err)
	}

	for _, group := range ledger.Groups(settings.Threshold) {
		if group.Len() < 2 {
			plan.Singles = append(plan.Singles, filepath.Base(group.Segments[0].Path))
			continue
		}
		names := make([]string, 0, group.Len())
		for _, seg := range group.Segments {
			names = append(names, filepath.Base(seg.Path))
		}
		plan.Groups = append(plan.Groups, plannedGroup{
			Start:    group.Start(),
			End:      group.End(),
			Segments: names,
			Output:   settings.Parser.OutputName(group.Start(), group.End()) + settings.Extension,
		})
	}
	return plan, nil
}

func printPlan(cmd *cobra.Command, plan mergePlan) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Directory: %s (threshold %s)\n", plan.Dir, plan.Threshold)
	if len(plan.Groups) == 0 {
		fmt.Fprintln(out, "Nothing to merge")
	} else {
		rows := make([][]string, 0, len(plan.Groups))
		for i, group := range plan.Groups {
			rows = append(rows, []string{
				strconv.Itoa(i + 1),
				formatSpan(group.Start, group.End),
				strconv.Itoa(len(group.Segments)),
				group.End.Sub(group.Start).String(),
				group.Output,
			})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"#", "Span", "Segments", "Length", "Output"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignLeft},
		))
	}
	if len(plan.Singles) > 0 {
		fmt.Fprintf(out, "Waiting for neighbours: %d single segment(s)\n", len(plan.Singles))
	}
	for _, name := range plan.Unparseable {
		fmt.Fprintf(out, "Unparseable name: %s\n", name)
	}
	if plan.Outputs > 0 {
		fmt.Fprintf(out, "Already merged outputs in directory: %d\n", plan.Outputs)
	}
}
