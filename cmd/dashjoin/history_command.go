package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"dashjoin/internal/history"
)

type historyOptions struct {
	sessionID string
	statuses  []string
	limit     int
	sessions  bool
	asJSON    bool
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var opts historyOptions
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded merge outcomes and sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, ok, err := openHistory(cfg)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "No history recorded yet")
				return nil
			}
			defer store.Close()
			if opts.sessions {
				return listSessions(cmd, store, opts)
			}
			return listRecords(cmd, store, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.sessionID, "session", "", "Only show records from this session (\"latest\" for the most recent)")
	flags.StringSliceVar(&opts.statuses, "status", nil, "Only show these statuses (merged, failed, abandoned, discarded)")
	flags.IntVarP(&opts.limit, "limit", "n", 50, "Maximum rows to show (0 for all)")
	flags.BoolVar(&opts.sessions, "sessions", false, "List sessions instead of records")
	flags.BoolVar(&opts.asJSON, "json", false, "Output as JSON")
	return cmd
}

func listSessions(cmd *cobra.Command, store *history.Store, opts historyOptions) error {
	sessions, err := store.ListSessions(cmd.Context(), opts.limit)
	if err != nil {
		return err
	}
	if opts.asJSON {
		return writeJSON(cmd, sessions)
	}
	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions recorded")
		return nil
	}
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		stopped := formatTime(s.StoppedAt)
		reason := s.StopReason
		if s.Active() {
			stopped, reason = "-", "active"
		}
		rows = append(rows, []string{
			s.ID,
			formatTime(s.StartedAt),
			stopped,
			reason,
			strconv.Itoa(s.ThresholdSeconds) + "s",
			s.WatchDir,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Session", "Started", "Stopped", "Reason", "Threshold", "Watch dir"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
	return nil
}

func listRecords(cmd *cobra.Command, store *history.Store, opts historyOptions) error {
	filter := history.Filter{SessionID: strings.TrimSpace(opts.sessionID), Limit: opts.limit}
	if filter.SessionID == "latest" {
		latest, err := store.LatestSession(cmd.Context())
		if err != nil {
			return err
		}
		if latest == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions recorded")
			return nil
		}
		filter.SessionID = latest.ID
	}
	for _, value := range opts.statuses {
		st, ok := history.ParseStatus(value)
		if !ok {
			return fmt.Errorf("unknown status %q (want one of %v)", value, history.AllStatuses())
		}
		filter.Statuses = append(filter.Statuses, st)
	}

	records, err := store.ListRecords(cmd.Context(), filter)
	if err != nil {
		return err
	}
	if opts.asJSON {
		return writeJSON(cmd, records)
	}
	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "No records match")
		return nil
	}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		detail := filepath.Base(r.Output)
		if r.Output == "" || r.Error != "" {
			detail = r.Error
		}
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			formatTime(r.CreatedAt),
			label(string(r.Status)),
			formatSpan(r.Start, r.End),
			strconv.Itoa(len(r.Sources)),
			detail,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Recorded", "Status", "Span", "Segments", "Output / error"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
	return nil
}
