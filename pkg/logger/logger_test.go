package logger

import (
	"bytes"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T, lvl string) *bytes.Buffer {
	t.Helper()

	prevOut, prevLevel, prevColor := output, level, useColor
	buf := new(bytes.Buffer)
	InitWithWriter(buf, lvl, false)

	t.Cleanup(func() {
		mu.Lock()
		output, level, useColor = prevOut, prevLevel, prevColor
		mu.Unlock()
	})
	return buf
}

func TestLevelFiltering(t *testing.T) {
	t.Run("InfoHidesDebug", func(t *testing.T) {
		buf := capture(t, "info")

		Debug("hidden")
		Info("shown")
		Warn("careful")

		out := buf.String()
		assert.NotContains(t, out, "hidden")
		assert.Contains(t, out, "[*] shown")
		assert.Contains(t, out, "[!] careful")
	})

	t.Run("DebugShowsEverything", func(t *testing.T) {
		buf := capture(t, "debug")

		Debug("trace %d", 7)
		Error("boom")

		out := buf.String()
		assert.Contains(t, out, "[DEBUG] trace 7")
		assert.Contains(t, out, "[!] boom")
	})

	t.Run("SilentDropsErrors", func(t *testing.T) {
		buf := capture(t, "silent")

		Error("nobody hears this")

		assert.Empty(t, buf.String())
	})

	t.Run("UnknownLevelIgnored", func(t *testing.T) {
		capture(t, "warn")
		SetLevel("verbose")
		assert.Equal(t, LevelWarning, Level())
	})
}

func TestLineFormat(t *testing.T) {
	buf := capture(t, "info")

	Success("found admin:123")
	Maybe("verify manually")

	lines := regexp.MustCompile(`(?m)^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] \[[+?]\] .+$`).FindAllString(buf.String(), -1)
	assert.Len(t, lines, 2)
	assert.NotContains(t, buf.String(), "\x1b[", "colour must be off for buffers")
}
