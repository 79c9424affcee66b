package ui

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/term"
)

// PagerOptions controls pager behavior.
type PagerOptions struct {
	// NoPager disables the pager (--no-pager).
	NoPager bool
}

// shouldUsePager is false for --no-pager, DECK_NO_PAGER and non-TTY stdout.
func shouldUsePager(opts PagerOptions) bool {
	if opts.NoPager || os.Getenv("DECK_NO_PAGER") != "" {
		return false
	}
	return IsTerminal()
}

// pagerCommand checks DECK_PAGER, then PAGER, and defaults to less.
func pagerCommand() string {
	if p := os.Getenv("DECK_PAGER"); p != "" {
		return p
	}
	if p := os.Getenv("PAGER"); p != "" {
		return p
	}
	return "less"
}

func terminalHeight() int {
	_, h, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 0
	}
	return h
}

// ToPager writes content to w directly when it fits the terminal or paging
// is off, and through the pager otherwise.
func ToPager(w io.Writer, content string, opts PagerOptions) error {
	if !shouldUsePager(opts) {
		_, err := fmt.Fprint(w, content)
		return err
	}
	if h := terminalHeight(); h > 0 && strings.Count(content, "\n") < h {
		_, err := fmt.Fprint(w, content)
		return err
	}

	parts := strings.Fields(pagerCommand())
	if len(parts) == 0 {
		_, err := fmt.Fprint(w, content)
		return err
	}
	cmd := exec.Command(parts[0], parts[1:]...) // #nosec G204 - pager command is user-configurable by design
	cmd.Stdin = strings.NewReader(content)
	cmd.Stdout = w
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	if os.Getenv("LESS") == "" {
		// -R keeps colors, -F quits when one screen suffices, -X keeps the output.
		cmd.Env = append(cmd.Env, "LESS=-RFX")
	}
	return cmd.Run()
}
