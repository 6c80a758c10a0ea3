// Package prompt supplies the gatekeeper's human backends: an interactive
// terminal prompt for local runs and a queue the operator console drains
// for headless deployments.
package prompt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/arcaneos/archon-runtime/internal/domain"
)

// Terminal asks the operator at the controlling TTY. Anything other than an
// explicit yes is a refusal.
type Terminal struct {
	in  io.Reader
	out io.Writer

	// isTTY is checked per ask: a prompt written to a pipe or a daemonized
	// stdout would block forever or auto-approve on garbage input.
	isTTY func() bool
}

func NewTerminal() *Terminal {
	return &Terminal{
		in:  os.Stdin,
		out: os.Stderr,
		isTTY: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd()))
		},
	}
}

func (t *Terminal) Ask(ctx context.Context, req domain.PermissionRequest) (bool, error) {
	if !t.isTTY() {
		return false, fmt.Errorf("stdin is not a terminal")
	}

	fmt.Fprintf(t.out, "\n[permission] %s requests %s on %q. Allow? [y/N] ",
		req.Requester, req.Action, req.Resource)

	type answer struct {
		granted bool
		err     error
	}
	ch := make(chan answer, 1)

	go func() {
		line, err := bufio.NewReader(t.in).ReadString('\n')
		if err != nil {
			ch <- answer{err: err}
			return
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			ch <- answer{granted: true}
		default:
			ch <- answer{granted: false}
		}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a := <-ch:
		return a.granted, a.err
	}
}
