package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

type Finding struct {
	Module      string                 `json:"module"`
	Target      string                 `json:"target"`
	Type        string                 `json:"type"`
	Description string                 `json:"description"`
	Severity    string                 `json:"severity"`
	Data        map[string]interface{} `json:"data"`
}

type Report struct {
	Timestamp string    `json:"timestamp"`
	Target    string    `json:"target"`
	Findings  []Finding `json:"findings"`
}

type OutputWriter interface {
	Write(findings []Finding) error
	Close() error
}

type JSONWriter struct {
	file *os.File
}

func NewJSONWriter(filename string) (*JSONWriter, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return &JSONWriter{file: file}, nil
}

func (w *JSONWriter) Write(findings []Finding) error {
	report := Report{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Findings:  findings,
	}
	if len(findings) > 0 {
		report.Target = findings[0].Target
	}
	if report.Findings == nil {
		report.Findings = []Finding{}
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = w.file.Write(data)
	return err
}

func (w *JSONWriter) Close() error {
	return w.file.Close()
}

type CSVWriter struct {
	writer *csv.Writer
	file   *os.File
}

func NewCSVWriter(filename string) (*CSVWriter, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}

	writer := csv.NewWriter(file)
	header := []string{"Type", "Target", "Module", "Description", "Severity", "Username", "Password"}
	if err := writer.Write(header); err != nil {
		file.Close()
		return nil, err
	}

	return &CSVWriter{writer: writer, file: file}, nil
}

func (w *CSVWriter) Write(findings []Finding) error {
	for _, finding := range findings {
		record := []string{
			finding.Type,
			finding.Target,
			finding.Module,
			finding.Description,
			finding.Severity,
			dataString(finding.Data, "username"),
			dataString(finding.Data, "password"),
		}
		if err := w.writer.Write(record); err != nil {
			return err
		}
	}
	w.writer.Flush()
	return w.writer.Error()
}

func (w *CSVWriter) Close() error {
	w.writer.Flush()
	return w.file.Close()
}

type MarkdownWriter struct {
	file *os.File
}

func NewMarkdownWriter(filename string) (*MarkdownWriter, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return &MarkdownWriter{file: file}, nil
}

func (w *MarkdownWriter) Write(findings []Finding) error {
	if len(findings) == 0 {
		_, err := fmt.Fprintf(w.file, "No successful combinations found.\n")
		return err
	}

	for _, finding := range findings {
		var b strings.Builder
		fmt.Fprintf(&b, "## %s Finding\n\n", finding.Type)
		fmt.Fprintf(&b, "**Target:** %s  \n", finding.Target)
		fmt.Fprintf(&b, "**Module:** %s  \n", finding.Module)
		fmt.Fprintf(&b, "**Description:** %s  \n", finding.Description)
		fmt.Fprintf(&b, "**Severity:** %s  \n\n", finding.Severity)
		fmt.Fprintf(&b, "### Data\n\n")
		for _, key := range sortedKeys(finding.Data) {
			fmt.Fprintf(&b, "- **%s:** %v\n", key, finding.Data[key])
		}
		b.WriteString("\n---\n\n")

		if _, err := io.WriteString(w.file, b.String()); err != nil {
			return err
		}
	}
	return nil
}

func (w *MarkdownWriter) Close() error {
	return w.file.Close()
}

// TextWriter writes one Finding.String() per line. It owns the closer only
// when it opened a file itself.
type TextWriter struct {
	writer io.Writer
	closer io.Closer
}

func NewTextWriter(w io.Writer) *TextWriter {
	return &TextWriter{writer: w}
}

func (w *TextWriter) Write(findings []Finding) error {
	for _, finding := range findings {
		if _, err := fmt.Fprintln(w.writer, finding.String()); err != nil {
			return err
		}
	}
	return nil
}

func (w *TextWriter) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}

func GetWriter(format, outputFile string) (OutputWriter, error) {
	switch strings.ToLower(format) {
	case "json":
		return NewJSONWriter(outputFile)
	case "csv":
		return NewCSVWriter(outputFile)
	case "markdown", "md":
		return NewMarkdownWriter(outputFile)
	case "console":
		return NewTextWriter(os.Stdout), nil
	default:
		file, err := os.Create(outputFile)
		if err != nil {
			return nil, err
		}
		return &TextWriter{writer: file, closer: file}, nil
	}
}

// FormatFor maps a report path to a writer format by extension.
func FormatFor(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".json":
		return "json"
	case ".csv":
		return "csv"
	case ".md", ".markdown":
		return "markdown"
	default:
		return "txt"
	}
}

func NewFinding(module, target, findingType, description, severity string, data map[string]interface{}) Finding {
	return Finding{
		Module:      module,
		Target:      target,
		Type:        findingType,
		Description: description,
		Severity:    severity,
		Data:        data,
	}
}

// NewCredentialFinding records a combo the classifier flagged. It is always
// unverified.
func NewCredentialFinding(target, combo string) Finding {
	username, password, _ := strings.Cut(combo, ":")
	return NewFinding("attack", target, "credential",
		fmt.Sprintf("Possible valid credentials for %s", username), "high",
		map[string]interface{}{
			"combo":    combo,
			"username": username,
			"password": password,
			"verified": false,
		})
}

func SaveFindings(findings []Finding, filePath string) error {
	if dir := filepath.Dir(filePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	writer, err := GetWriter(FormatFor(filePath), filePath)
	if err != nil {
		return err
	}

	if err := writer.Write(findings); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}

func (f Finding) String() string {
	switch f.Type {
	case "credential":
		return fmt.Sprintf("[%s] %s %s (unverified)", f.Severity, f.Target, dataString(f.Data, "combo"))
	default:
		return fmt.Sprintf("[%s] %s: %s", f.Severity, f.Type, f.Description)
	}
}

func dataString(data map[string]interface{}, key string) string {
	if value, ok := data[key]; ok && value != nil {
		return fmt.Sprint(value)
	}
	return ""
}

func sortedKeys(data map[string]interface{}) []string {
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
