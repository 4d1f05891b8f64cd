package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/drunlade/go-zxmit/zxmit"
	"golang.org/x/term"
)

// progressBar draws a single-line bar on a terminal. Off a terminal it
// stays silent and only the summary is printed.
type progressBar struct {
	out   *os.File
	tty   bool
	width int
	label string
}

func newProgressBar(out *os.File) *progressBar {
	b := &progressBar{out: out, width: 80}
	fd := int(out.Fd())
	if term.IsTerminal(fd) {
		b.tty = true
		if w, _, err := term.GetSize(fd); err == nil && w > 0 {
			b.width = w
		}
	}
	return b
}

func (b *progressBar) start(label string) {
	b.label = label
}

func (b *progressBar) update(p zxmit.Progress, rate float64) {
	if !b.tty {
		return
	}
	fmt.Fprintf(b.out, "\r%s", renderBar(b.width, b.label, p, rate))
}

func (b *progressBar) finish() {
	if b.tty {
		fmt.Fprintln(b.out)
	}
}

// renderBar formats one progress line to fit in width columns.
func renderBar(width int, label string, p zxmit.Progress, rate float64) string {
	info := fmt.Sprintf(" %d/%d %s/s", p.Block, p.Blocks, formatBytes(int64(rate)))
	prefix := fmt.Sprintf("%-12s ", label)

	inner := width - len(prefix) - len(info) - 2
	if inner < 10 {
		inner = 10
	}
	filled := int(p.Fraction() * float64(inner))
	if filled > inner {
		filled = inner
	}

	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteByte('[')
	sb.WriteString(strings.Repeat("=", filled))
	if filled < inner {
		sb.WriteByte('>')
		sb.WriteString(strings.Repeat(" ", inner-filled-1))
	}
	sb.WriteByte(']')
	sb.WriteString(info)
	return sb.String()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
