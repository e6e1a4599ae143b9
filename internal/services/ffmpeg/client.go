package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"dashjoin/internal/merge"
	"dashjoin/internal/services"
)

var commandContext = exec.CommandContext

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if strings.TrimSpace(binary) != "" {
			c.binary = strings.TrimSpace(binary)
		}
	}
}

// CLI wraps the ffmpeg command-line tool.
type CLI struct {
	binary string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "ffmpeg"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Binary returns the executable the client launches.
func (c *CLI) Binary() string { return c.binary }

// Merge concatenates orderedPaths into outputPath without re-encoding.
func (c *CLI) Merge(ctx context.Context, orderedPaths []string, outputPath string) error {
	if len(orderedPaths) == 0 {
		return errors.New("at least one input required")
	}
	outputPath = strings.TrimSpace(outputPath)
	if outputPath == "" {
		return errors.New("output path required")
	}

	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	listPath, err := writeConcatList(dir, orderedPaths)
	if err != nil {
		return err
	}
	defer os.Remove(listPath)

	partial := PartialPath(outputPath)
	args := []string{
		"-hide_banner", "-nostdin", "-loglevel", "error", "-y",
		"-f", "concat", "-safe", "0", "-i", listPath,
		"-map", "0", "-c", "copy",
		partial,
	}
	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		_ = os.Remove(partial)
		marker := services.ErrExternalTool
		switch {
		case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
			marker = services.ErrNotFound
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			marker = services.ErrTimeout
		}
		return services.Wrap(marker, "ffmpeg", "concat", strings.TrimSpace(string(output)), err)
	}

	if err := os.Rename(partial, outputPath); err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("finalize output: %w", err)
	}
	return nil
}

// PartialPath names the hidden file ffmpeg writes before the final rename.
func PartialPath(outputPath string) string {
	dir, base := filepath.Split(outputPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, "."+stem+".partial"+ext)
}

func writeConcatList(dir string, paths []string) (string, error) {
	file, err := os.CreateTemp(dir, ".dashjoin-concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("create concat list: %w", err)
	}
	var b strings.Builder
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		b.WriteString("file '")
		b.WriteString(quote(abs))
		b.WriteString("'\n")
	}
	if _, err := file.WriteString(b.String()); err != nil {
		file.Close()
		os.Remove(file.Name())
		return "", fmt.Errorf("write concat list: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return "", fmt.Errorf("close concat list: %w", err)
	}
	return file.Name(), nil
}

// quote escapes single quotes for the concat demuxer's quoting rules.
func quote(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}

var _ merge.Backend = (*CLI)(nil)
