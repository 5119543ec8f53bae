package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/zarni99/brutepedro/pkg/logger"
)

var (
	successStyle = color.New(color.FgGreen, color.Bold)
	boldStyle    = color.New(color.Bold)
)

// Console prints attempt lines. Failures rewrite the current line in place,
// padded to cover whatever the previous combo left behind.
type Console struct {
	w        io.Writer
	useColor bool
	prevLen  int
	open     bool
}

func NewConsole(w io.Writer, useColor bool) *Console {
	return &Console{w: w, useColor: useColor}
}

func (c *Console) Failed(index, total int, combo string) {
	padding := strings.Repeat(" ", max(0, c.prevLen-len(combo)))
	c.prevLen = len(combo)

	fmt.Fprintf(c.w, "\r%s [-] Attempt %d/%d failed: %s%s", logger.Timestamp(), index, total, combo, padding)
	c.open = true
}

func (c *Console) Succeeded(index, total int, combo string) {
	c.prevLen = len(combo)

	ts := logger.Timestamp()
	fmt.Fprintf(c.w, "\n%s %s\n%s %s\n",
		ts, paint(c.useColor, successStyle, fmt.Sprintf("[+] Attempt %d/%d successful: %s", index, total, combo)),
		ts, paint(c.useColor, boldStyle, "[?] It can be a false positive, please verify this credential manually."))
	c.open = false
}

// Break terminates a pending in-place line so the next output starts clean.
func (c *Console) Break() {
	if c.open {
		fmt.Fprintln(c.w)
		c.open = false
	}
}

// ComboIndex is the 1-based position of combo in the username x password
// grid, or 0 when either half is not in the current lists. It is for
// display only.
func ComboIndex(usernames, passwords []string, combo string) int {
	user, pass, ok := strings.Cut(combo, ":")
	if !ok {
		return 0
	}
	ui := indexOf(usernames, user)
	pi := indexOf(passwords, pass)
	if ui < 0 || pi < 0 {
		return 0
	}
	return ui*len(passwords) + pi + 1
}

func indexOf(items []string, item string) int {
	for i, v := range items {
		if v == item {
			return i
		}
	}
	return -1
}

func paint(enabled bool, style *color.Color, s string) string {
	if !enabled {
		return s
	}
	style.EnableColor()
	return style.Sprint(s)
}
