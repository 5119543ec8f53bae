package credstore

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zarni99/brutepedro/pkg/logger"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Set holds unique combos. Order is irrelevant.
type Set map[string]struct{}

func NewSet(items ...string) Set {
	s := make(Set, len(items))
	for _, item := range items {
		s[item] = struct{}{}
	}
	return s
}

func (s Set) Has(item string) bool {
	_, ok := s[item]
	return ok
}

// Add reports whether item was not already present.
func (s Set) Add(item string) bool {
	if s.Has(item) {
		return false
	}
	s[item] = struct{}{}
	return true
}

func (s Set) Len() int {
	return len(s)
}

func (s Set) Sorted() []string {
	items := make([]string, 0, len(s))
	for item := range s {
		items = append(items, item)
	}
	sort.Strings(items)
	return items
}

// Combo is the unit of attempt tracking.
func Combo(username, password string) string {
	return username + ":" + password
}

// LoadList reads trimmed non-empty lines in file order, duplicates included.
// A missing file yields an empty list. UTF-8 with or without BOM and UTF-16
// with BOM are accepted.
func LoadList(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	scanner := bufio.NewScanner(transform.NewReader(file, decoder))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var entries []string
	for scanner.Scan() {
		entry := strings.TrimSpace(scanner.Text())
		if entry != "" {
			entries = append(entries, entry)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return entries, nil
}

func LoadSet(path string) (Set, error) {
	entries, err := LoadList(path)
	if err != nil {
		return nil, err
	}
	return NewSet(entries...), nil
}

func AppendLine(path, value string) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}

	if _, err := file.WriteString(value + "\n"); err != nil {
		file.Close()
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}

	return file.Close()
}

// OverwriteLine replaces the whole file with value. The write goes through a
// temp file and a rename so readers never observe a truncated file.
func OverwriteLine(path, value string) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(value + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// Store binds the four campaign files.
type Store struct {
	UsernamesPath string
	PasswordsPath string
	SuccessPath   string
	ProgressPath  string
}

func (s *Store) Usernames() ([]string, error) {
	return s.loadCandidates(s.UsernamesPath)
}

func (s *Store) Passwords() ([]string, error) {
	return s.loadCandidates(s.PasswordsPath)
}

func (s *Store) loadCandidates(path string) ([]string, error) {
	entries, err := LoadList(path)
	if err != nil {
		return nil, err
	}
	logger.Debug("Loaded %d records from %s", len(entries), path)
	return entries, nil
}

func (s *Store) KnownSuccesses() (Set, error) {
	known, err := LoadSet(s.SuccessPath)
	if err != nil {
		return nil, err
	}
	logger.Debug("Loaded %d known successes from %s", known.Len(), s.SuccessPath)
	return known, nil
}

// Progress returns the last recorded combo, if any.
func (s *Store) Progress() (string, bool, error) {
	entries, err := LoadList(s.ProgressPath)
	if err != nil {
		return "", false, err
	}
	if len(entries) == 0 {
		return "", false, nil
	}
	return entries[len(entries)-1], true, nil
}

// SaveSuccess and SaveProgress only warn on failure: a lost write is
// recovered by the next attempt.
func (s *Store) SaveSuccess(combo string) {
	if err := AppendLine(s.SuccessPath, combo); err != nil {
		logger.Warn("Could not save success %s: %v", combo, err)
	}
}

func (s *Store) SaveProgress(combo string) {
	if err := OverwriteLine(s.ProgressPath, combo); err != nil {
		logger.Warn("Could not save progress %s: %v", combo, err)
	}
}
