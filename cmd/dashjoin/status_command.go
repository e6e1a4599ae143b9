package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dashjoin/internal/config"
	"dashjoin/internal/daemon"
	"dashjoin/internal/history"
)

const liveStatusTimeout = 2 * time.Second

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a session is running and summarize the latest one",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			colorize := shouldColorize(cmd.OutOrStdout())
			lines, err := buildStatusLines(cmd.Context(), cfg, colorize)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(lines, "\n"))
			return nil
		},
	}
}

func buildStatusLines(ctx context.Context, cfg *config.Config, colorize bool) ([]string, error) {
	held, err := daemon.LockHeld(cfg.LockPath())
	if err != nil {
		return nil, err
	}

	lines := renderSectionHeader("Session", colorize)
	if held {
		detail := "Running"
		if pid, err := daemon.ReadPID(cfg.PIDPath()); err == nil {
			detail = fmt.Sprintf("Running (pid %d)", pid)
		}
		lines = append(lines, renderStatusLine("Session", statusOK, detail, colorize))
		if live, err := fetchLiveStatus(ctx, cfg.Paths.APIBind); err == nil {
			snap := live.Coordinator
			lines = append(lines,
				renderStatusLine("Pending", statusInfo, fmt.Sprintf("%d segments", snap.Pending), colorize),
				renderStatusLine("In flight", statusInfo, fmt.Sprintf("%d segments in %d merges (%d queued)", snap.InFlight, snap.RunningJobs, snap.QueuedJobs), colorize),
				renderStatusLine("Merged ranges", statusInfo, fmt.Sprintf("%d", snap.MergedRanges), colorize),
			)
		}
	} else {
		lines = append(lines, renderStatusLine("Session", statusInfo, "Not running", colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Environment", colorize)...)
	lines = append(lines,
		directoryStatusLine("Watch dir", cfg.Paths.WatchDir, colorize),
		directoryStatusLine("Output dir", cfg.Paths.OutputDir, colorize),
		binaryStatusLine("ffmpeg", cfg.Merge.FFmpegBinary, true, colorize),
		binaryStatusLine("ffprobe", cfg.Merge.FFprobeBinary, cfg.Merge.VerifyOutput, colorize),
	)
	if cfg.Notifications.NtfyTopic != "" {
		lines = append(lines, renderStatusLine("Notifications", statusOK, cfg.Notifications.NtfyTopic, colorize))
	} else {
		lines = append(lines, renderStatusLine("Notifications", statusInfo, "Disabled", colorize))
	}

	latest, counts, err := latestSession(ctx, cfg)
	if err != nil {
		return nil, err
	}
	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Latest session", colorize)...)
	if latest == nil {
		return append(lines, renderStatusLine("History", statusInfo, "No sessions recorded", colorize)), nil
	}
	lines = append(lines,
		renderStatusLine("ID", statusInfo, latest.ID, colorize),
		renderStatusLine("Started", statusInfo, formatTime(latest.StartedAt), colorize),
	)
	switch {
	case !latest.Active():
		lines = append(lines, renderStatusLine("Stopped", statusInfo, fmt.Sprintf("%s (%s)", formatTime(latest.StoppedAt), latest.StopReason), colorize))
	case held:
		lines = append(lines, renderStatusLine("Stopped", statusInfo, "Still running", colorize))
	default:
		lines = append(lines, renderStatusLine("Stopped", statusWarn, "Ended without recording a stop", colorize))
	}
	var summary []string
	for _, st := range history.AllStatuses() {
		summary = append(summary, fmt.Sprintf("%d %s", counts[st], st))
	}
	kind := statusOK
	if counts[history.StatusFailed] > 0 || counts[history.StatusAbandoned] > 0 {
		kind = statusWarn
	}
	lines = append(lines, renderStatusLine("Outcomes", kind, strings.Join(summary, ", "), colorize))
	return lines, nil
}

func latestSession(ctx context.Context, cfg *config.Config) (*history.Session, map[history.Status]int, error) {
	store, ok, err := openHistory(cfg)
	if err != nil || !ok {
		return nil, nil, err
	}
	defer store.Close()
	latest, err := store.LatestSession(ctx)
	if err != nil || latest == nil {
		return nil, nil, err
	}
	counts, err := store.Counts(ctx, latest.ID)
	if err != nil {
		return nil, nil, err
	}
	return latest, counts, nil
}

// openHistory opens the session database if one exists. It never creates one.
func openHistory(cfg *config.Config) (*history.Store, bool, error) {
	if _, err := os.Stat(cfg.HistoryPath()); errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return nil, false, err
	}
	return store, true, nil
}

func fetchLiveStatus(ctx context.Context, bind string) (daemon.Status, error) {
	var out daemon.Status
	if strings.TrimSpace(bind) == "" {
		return out, errors.New("api disabled")
	}
	ctx, cancel := context.WithTimeout(ctx, liveStatusTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+bind+"/api/status", nil)
	if err != nil {
		return out, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("api status: %s", resp.Status)
	}
	err = json.NewDecoder(resp.Body).Decode(&out)
	return out, err
}

func directoryStatusLine(name, path string, colorize bool) string {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		return renderStatusLine(name, statusWarn, fmt.Sprintf("%s (missing)", path), colorize)
	case !info.IsDir():
		return renderStatusLine(name, statusError, fmt.Sprintf("%s (not a directory)", path), colorize)
	default:
		return renderStatusLine(name, statusOK, path, colorize)
	}
}

func binaryStatusLine(name, binary string, required, colorize bool) string {
	if !required {
		return renderStatusLine(name, statusInfo, "Not required", colorize)
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return renderStatusLine(name, statusError, fmt.Sprintf("%s not found on PATH", binary), colorize)
	}
	return renderStatusLine(name, statusOK, path, colorize)
}
