package lifecycle

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Confirmer is the human-in-the-loop step in front of permanent deletion.
type Confirmer interface {
	Confirm(ctx context.Context, target Target) (bool, error)
}

// ConfirmerFunc adapts a function to Confirmer.
type ConfirmerFunc func(ctx context.Context, target Target) (bool, error)

func (f ConfirmerFunc) Confirm(ctx context.Context, target Target) (bool, error) {
	return f(ctx, target)
}

// AlwaysConfirm approves every request. Use only when the operator already
// confirmed out of band (e.g. a --yes flag).
var AlwaysConfirm Confirmer = ConfirmerFunc(func(context.Context, Target) (bool, error) {
	return true, nil
})

// PromptConfirmer asks on Out and reads a yes/no answer from In.
type PromptConfirmer struct {
	In  io.Reader
	Out io.Writer

	reader *bufio.Reader
}

// Confirm implements Confirmer. Only "y" or "yes" approves.
func (p *PromptConfirmer) Confirm(ctx context.Context, target Target) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}
	fmt.Fprintf(p.Out, "Permanently delete %s? This cannot be undone. [y/N]: ", target)

	line, err := p.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
