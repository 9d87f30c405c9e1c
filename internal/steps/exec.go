// Package steps holds the Transformation Steps used by the asset tasks.
// Most of them shell out to an external tool. Concatenation, minification
// and glyph codepoint assignment run in-process.
package steps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	apperrors "github.com/conneroisu/assetpipe/internal/errors"
)

const (
	inPlaceholder  = "{in}"
	outPlaceholder = "{out}"
)

// Command is an external tool invocation. Args may reference {in} and {out};
// when neither is present the tool reads its input on stdin and writes its
// result to stdout.
type Command struct {
	Path string
	Args []string
	// Dir is the working directory, the current one when empty.
	Dir string
	// Env is appended to the process environment.
	Env []string
}

// NewCommand builds a Command from a configured argv. An empty argv yields
// the zero Command, which Available reports as unusable.
func NewCommand(argv []string) Command {
	if len(argv) == 0 {
		return Command{}
	}
	return Command{Path: argv[0], Args: append([]string(nil), argv[1:]...)}
}

// Available reports whether the command is configured.
func (c Command) Available() bool {
	return c.Path != ""
}

// With returns a copy of c with extra arguments appended.
func (c Command) With(args ...string) Command {
	next := c
	next.Args = append(append([]string(nil), c.Args...), args...)
	return next
}

func (c Command) usesFiles() bool {
	for _, a := range c.Args {
		if strings.Contains(a, inPlaceholder) || strings.Contains(a, outPlaceholder) {
			return true
		}
	}
	return false
}

func (c Command) expand(in, out string) []string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		a = strings.ReplaceAll(a, inPlaceholder, in)
		args[i] = strings.ReplaceAll(a, outPlaceholder, out)
	}
	return args
}

// Output runs the command with args as given and returns stdout. stderr is
// folded into the error on failure.
func (c Command) Output(ctx context.Context, stdin []byte) ([]byte, error) {
	return c.run(ctx, c.Args, stdin)
}

// Filter feeds input through the command. With placeholders the input is
// written to a temporary {in} file named with inExt and the result read
// back from {out} named with outExt; otherwise stdin and stdout are used.
func (c Command) Filter(ctx context.Context, input []byte, inExt, outExt string) ([]byte, error) {
	if !c.usesFiles() {
		return c.run(ctx, c.Args, input)
	}

	tmp, err := os.MkdirTemp("", "assetpipe-*")
	if err != nil {
		return nil, apperrors.NewIOError("TEMP_FAILED", "creating temporary directory", err)
	}
	defer os.RemoveAll(tmp)

	in := filepath.Join(tmp, "in"+inExt)
	out := filepath.Join(tmp, "out"+outExt)
	if err := os.WriteFile(in, input, 0o644); err != nil {
		return nil, apperrors.NewIOError("TEMP_FAILED", "writing tool input", err)
	}

	if _, err := c.run(ctx, c.expand(in, out), nil); err != nil {
		return nil, err
	}

	result, err := os.ReadFile(out)
	if err != nil {
		return nil, apperrors.NewTransformError("TOOL_NO_OUTPUT", c.Path+" produced no output", err)
	}
	return result, nil
}

func (c Command) run(ctx context.Context, args []string, stdin []byte) ([]byte, error) {
	if !c.Available() {
		return nil, apperrors.NewToolError("(unconfigured)", apperrors.ErrToolNotFound)
	}

	cmd := exec.CommandContext(ctx, c.Path, args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.NewToolError(c.Path, fmt.Errorf("%w: %v", apperrors.ErrToolNotFound, err))
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return stdout.Bytes(), apperrors.NewTransformError("TOOL_FAILED", fmt.Sprintf("%s: %s", filepath.Base(c.Path), msg), err)
	}

	return stdout.Bytes(), nil
}
