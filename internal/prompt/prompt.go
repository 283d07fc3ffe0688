// Package prompt asks a human operator for a value.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// ErrCancelled is returned when the operator dismisses the prompt or input ends.
var ErrCancelled = errors.New("prompt cancelled")

// Prompter asks the operator a question and returns the answer.
type Prompter interface {
	Prompt(ctx context.Context, message string) (string, error)
}

// Func adapts a function to the Prompter interface.
type Func func(ctx context.Context, message string) (string, error)

// Prompt calls f.
func (f Func) Prompt(ctx context.Context, message string) (string, error) {
	return f(ctx, message)
}

// Static returns a Prompter that always answers value without asking.
func Static(value string) Prompter {
	return Func(func(context.Context, string) (string, error) {
		return value, nil
	})
}

// Line prompts on out and reads one line from in.
type Line struct {
	in  *bufio.Reader
	out io.Writer
}

// NewLine creates a line-oriented prompter.
func NewLine(in io.Reader, out io.Writer) *Line {
	return &Line{in: bufio.NewReader(in), out: out}
}

// Prompt writes message and returns the trimmed reply.
func (l *Line) Prompt(ctx context.Context, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := fmt.Fprint(l.out, message+" "); err != nil {
		return "", fmt.Errorf("write prompt: %w", err)
	}

	line, err := l.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read reply: %w", err)
	}
	if errors.Is(err, io.EOF) && line == "" {
		return "", ErrCancelled
	}
	return strings.TrimSpace(line), nil
}

// Default picks an interactive prompt when in is a terminal and a line
// prompt otherwise.
func Default(in *os.File, out io.Writer) Prompter {
	if isatty.IsTerminal(in.Fd()) || isatty.IsCygwinTerminal(in.Fd()) {
		return NewInteractive(in, out)
	}
	return NewLine(in, out)
}
