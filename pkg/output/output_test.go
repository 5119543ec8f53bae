package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsolePadding(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, false)

	c.Failed(1, 4, "alice:longpassword")
	c.Failed(2, 4, "bob:x")

	lines := strings.Split(buf.String(), "\r")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasSuffix(lines[1], "failed: alice:longpassword"))

	// "alice:longpassword" is 18 chars, "bob:x" is 5
	assert.True(t, strings.HasSuffix(lines[2], "failed: bob:x"+strings.Repeat(" ", 13)))
	assert.Contains(t, lines[2], "[-] Attempt 2/4")
}

func TestConsoleSuccessAndBreak(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, false)

	c.Failed(1, 2, "alice:x")
	c.Succeeded(2, 2, "alice:y")
	out := buf.String()
	assert.Contains(t, out, "\n")
	assert.Contains(t, out, "[+] Attempt 2/2 successful: alice:y")
	assert.Contains(t, out, "please verify this credential manually")
	assert.NotContains(t, out, "\x1b[")

	buf.Reset()
	c.Break()
	assert.Empty(t, buf.String(), "no pending line after a success")

	c.Failed(3, 3, "bob:x")
	buf.Reset()
	c.Break()
	assert.Equal(t, "\n", buf.String())
}

func TestComboIndex(t *testing.T) {
	users := []string{"alice", "bob"}
	passwords := []string{"x", "y", "z"}

	assert.Equal(t, 1, ComboIndex(users, passwords, "alice:x"))
	assert.Equal(t, 5, ComboIndex(users, passwords, "bob:y"))
	assert.Equal(t, 0, ComboIndex(users, passwords, "carol:x"))
	assert.Equal(t, 0, ComboIndex(users, passwords, "alice:nope"))
	assert.Equal(t, 0, ComboIndex(users, passwords, "garbage"))
}

func TestSummary(t *testing.T) {
	t.Run("Found", func(t *testing.T) {
		out := Summary(2, true, "data/success.brute", false)
		lines := strings.Split(out, "\n")
		require.Len(t, lines, 4)
		assert.Contains(t, lines[0], "Successful combinations found: 2")
		assert.Contains(t, lines[1], "saved in data/success.brute.")
		assert.Contains(t, lines[2], "[?] Possible false positives")
		assert.Contains(t, lines[3], "BrutePedro out for the day!")
		for _, line := range lines {
			assert.Regexp(t, `^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] `, line)
		}
	})

	t.Run("PriorSuccessesOnly", func(t *testing.T) {
		out := Summary(1, false, "s.brute", false)
		assert.Contains(t, out, "Successful combinations found: 1")
	})

	t.Run("NothingFound", func(t *testing.T) {
		out := Summary(0, false, "s.brute", false)
		assert.Contains(t, out, "No successful combinations found. What a shame...")
		assert.Contains(t, out, "Try with different credentials.")
		assert.NotContains(t, out, "saved in")
		assert.True(t, strings.HasSuffix(out, "BrutePedro out for the day!"))
	})
}

func TestNewCredentialFinding(t *testing.T) {
	f := NewCredentialFinding("https://example.com/login", "alice:p:w")
	assert.Equal(t, "credential", f.Type)
	assert.Equal(t, "alice", f.Data["username"])
	assert.Equal(t, "p:w", f.Data["password"])
	assert.Equal(t, false, f.Data["verified"])
	assert.Equal(t, "[high] https://example.com/login alice:p:w (unverified)", f.String())
}

func TestSaveFindings(t *testing.T) {
	findings := []Finding{
		NewCredentialFinding("https://example.com/login", "alice:x"),
		NewCredentialFinding("https://example.com/login", "bob:y"),
	}

	t.Run("JSON", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "reports", "result.json")
		require.NoError(t, SaveFindings(findings, path))

		data, err := os.ReadFile(path)
		require.NoError(t, err)

		var report Report
		require.NoError(t, json.Unmarshal(data, &report))
		assert.Equal(t, "https://example.com/login", report.Target)
		require.Len(t, report.Findings, 2)
		assert.Equal(t, "bob:y", report.Findings[1].Data["combo"])
	})

	t.Run("JSONEmpty", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.json")
		require.NoError(t, SaveFindings(nil, path))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"findings": []`)
	})

	t.Run("CSV", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "result.csv")
		require.NoError(t, SaveFindings(findings, path))

		f, err := os.Open(path)
		require.NoError(t, err)
		defer f.Close()

		records, err := csv.NewReader(f).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "Username", records[0][5])
		assert.Equal(t, []string{"alice", "x"}, records[1][5:])
	})

	t.Run("Markdown", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "result.md")
		require.NoError(t, SaveFindings(findings, path))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, 2, strings.Count(string(data), "## credential Finding"))
		assert.Contains(t, string(data), "- **combo:** bob:y")
	})

	t.Run("Text", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "result.txt")
		require.NoError(t, SaveFindings(findings, path))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "[high] https://example.com/login alice:x (unverified)\n[high] https://example.com/login bob:y (unverified)\n", string(data))
	})
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, "json", FormatFor("a/b.JSON"))
	assert.Equal(t, "csv", FormatFor("r.csv"))
	assert.Equal(t, "markdown", FormatFor("r.md"))
	assert.Equal(t, "txt", FormatFor("r.log"))
	assert.Equal(t, "txt", FormatFor("report"))
}
