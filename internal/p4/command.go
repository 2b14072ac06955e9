package p4

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Config holds the connection settings passed to every command.
type Config struct {
	Binary  string
	Port    string
	User    string
	Client  string
	Timeout time.Duration
}

// runner executes a process; swapped in tests.
type runner func(ctx context.Context, name string, args []string,
	stdin []byte) (stdout, stderr []byte, err error)

// CommandClient runs the p4 binary with tagged output enabled.
type CommandClient struct {
	cfg Config
	log *slog.Logger
	run runner
}

// Compile-time check that CommandClient implements Client.
var _ Client = (*CommandClient)(nil)

// NewCommandClient creates a client for the given connection.
func NewCommandClient(cfg Config, log *slog.Logger) *CommandClient {
	if cfg.Binary == "" {
		cfg.Binary = "p4"
	}
	if log == nil {
		log = slog.Default()
	}

	return &CommandClient{
		cfg: cfg,
		log: log,
		run: execRunner,
	}
}

func execRunner(ctx context.Context, name string, args []string,
	stdin []byte) ([]byte, []byte, error) {

	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	return stdout.Bytes(), stderr.Bytes(), err
}

// globalArgs returns the connection flags that precede the command.
func (c *CommandClient) globalArgs(tagged bool) []string {
	var args []string
	if tagged {
		args = append(args, "-ztag")
	}
	if c.cfg.Port != "" {
		args = append(args, "-p", c.cfg.Port)
	}
	if c.cfg.User != "" {
		args = append(args, "-u", c.cfg.User)
	}
	if c.cfg.Client != "" {
		args = append(args, "-c", c.cfg.Client)
	}

	return args
}

// Run executes cmd with args. Forms in input are sent on stdin and the
// command is expected to carry its own -i flag.
func (c *CommandClient) Run(ctx context.Context, cmd string, args []string,
	input Record) ([]Record, error) {

	var stdin []byte
	if input != nil {
		stdin = []byte(FormatForm(input))
	}

	stdout, err := c.exec(ctx, true, cmd, args, stdin)
	if err != nil {
		return nil, err
	}

	records, err := ParseTagged(bytes.NewReader(stdout))
	if err != nil {
		return nil, fmt.Errorf("parse p4 %s output: %w", cmd, err)
	}

	return records, nil
}

// Output implements Client.
func (c *CommandClient) Output(ctx context.Context, cmd string,
	args []string) ([]byte, error) {

	return c.exec(ctx, false, cmd, args, nil)
}

func (c *CommandClient) exec(ctx context.Context, tagged bool, cmd string,
	args []string, stdin []byte) ([]byte, error) {

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	full := append(c.globalArgs(tagged), cmd)
	full = append(full, args...)

	start := time.Now()
	stdout, stderr, err := c.run(ctx, c.cfg.Binary, full, stdin)
	c.log.DebugContext(ctx, "Ran p4 command",
		"cmd", cmd,
		"args", strings.Join(args, " "),
		"duration", time.Since(start),
	)

	if msg := strings.TrimSpace(string(stderr)); msg != "" {
		return nil, NewCommandError(cmd, args, msg)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("p4 %s: %w", cmd, ctxErr)
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, NewCommandError(cmd, args, exitErr.Error())
		}

		return nil, fmt.Errorf("run p4 %s: %w", cmd, err)
	}

	return stdout, nil
}
