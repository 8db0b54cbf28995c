package dump

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/custos-io/custos/internal/config"
)

const defaultTool = "mysqldump"

// Runner shells out to one external dump command for one logical database and
// streams its stdout. The pipeline depends only on this narrow contract; any
// engine whose tooling can write a snapshot to stdout fits behind it.
type Runner struct {
	name   string
	binary string
	args   []string
}

func NewRunner(cfg *config.DatabaseConfig) *Runner {
	if cfg.Command != "" {
		return &Runner{name: cfg.Name, binary: cfg.Command, args: cfg.Args}
	}

	args := []string{
		fmt.Sprintf("--host=%s", cfg.Host),
		fmt.Sprintf("--port=%d", cfg.Port),
		fmt.Sprintf("--user=%s", cfg.Username),
		fmt.Sprintf("--password=%s", cfg.Password),
		"--single-transaction",
		"--quick",
		"--skip-lock-tables",
	}
	args = append(args, cfg.Args...)
	args = append(args, cfg.Name)

	return &Runner{name: cfg.Name, binary: defaultTool, args: args}
}

func (r *Runner) Name() string {
	return r.name
}

// Dump runs the dump command to completion, writing its stdout to w. A
// non-zero exit returns an error carrying the tool's stderr output.
func (r *Runner) Dump(ctx context.Context, w io.Writer) error {
	cmd := exec.CommandContext(ctx, r.binary, r.args...)
	cmd.Stdout = w

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s failed: %w: %s", r.binary, err, msg)
		}
		return fmt.Errorf("%s failed: %w", r.binary, err)
	}
	return nil
}

// Check verifies the dump tool is invocable before any run is scheduled.
func (r *Runner) Check(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, r.binary, "--version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s not available: %w", r.binary, err)
	}
	return nil
}
