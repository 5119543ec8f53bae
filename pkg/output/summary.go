package output

import (
	"fmt"
	"strings"

	"github.com/zarni99/brutepedro/pkg/logger"
)

// Summary renders the closing report. Every line carries a timestamp.
func Summary(knownCount int, possibleSuccess bool, successPath string, useColor bool) string {
	ts := logger.Timestamp()
	var b strings.Builder

	line := func(style func(string) string, text string) {
		fmt.Fprintf(&b, "%s %s\n", ts, style(text))
	}
	green := func(s string) string { return paint(useColor, successStyle, s) }
	bold := func(s string) string { return paint(useColor, boldStyle, s) }

	if knownCount > 0 || possibleSuccess {
		line(green, fmt.Sprintf("[*] Successful combinations found: %d", knownCount))
		line(green, fmt.Sprintf("[*] All successful combinations saved in %s.", successPath))
		line(bold, "[?] Possible false positives, please verify manually.")
	} else {
		line(bold, "[*] No successful combinations found. What a shame...")
		line(bold, "[*] Better luck next time!")
		line(bold, "[*] Try with different credentials.")
	}
	fmt.Fprintf(&b, "%s %s", ts, bold("[*] BrutePedro out for the day!"))

	return b.String()
}
