package sync

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/sabhiram/go-gitignore"
)

const IgnoreFileName = ".gridsyncignore"

var defaultIgnoreLines = []string{
	// hidden files, which also covers in-flight `.name.gridsync.tmp.*` writes
	".*",
	"*.log",
	"*.tmp",
	// OS-specific
	"desktop.ini",
	"Thumbs.db",
}

// IgnoreList decides which names in a grid directory take part in syncing.
// A name is skipped when it matches an ignore rule or, if include patterns
// are set, matches none of them.
type IgnoreList struct {
	baseDir string
	ignore  *gitignore.GitIgnore
	include []string
}

func NewIgnoreList(baseDir string) *IgnoreList {
	return &IgnoreList{
		baseDir: baseDir,
		ignore:  gitignore.CompileIgnoreLines(defaultIgnoreLines...),
	}
}

// Load adds the rules from the directory's ignore file, if present.
func (s *IgnoreList) Load() {
	lines := append([]string(nil), defaultIgnoreLines...)
	ignorePath := filepath.Join(s.baseDir, IgnoreFileName)

	if file, err := os.Open(ignorePath); err == nil {
		defer file.Close()
		rules := 0
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			lines = append(lines, line)
			rules++
		}
		if err := scanner.Err(); err != nil {
			slog.Warn("ignore file read", "path", ignorePath, "error", err)
		} else {
			slog.Debug("ignore file loaded", "path", ignorePath, "rules", rules)
		}
	}

	s.ignore = gitignore.CompileIgnoreLines(lines...)
}

// SetInclude restricts syncing to names matching one of patterns.
func (s *IgnoreList) SetInclude(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid include pattern %q", p)
		}
	}
	s.include = patterns
	return nil
}

func (s *IgnoreList) ShouldIgnore(name string) bool {
	if strings.EqualFold(name, "desktop.ini") {
		return true
	}
	if s.ignore.MatchesPath(name) {
		return true
	}
	if len(s.include) == 0 {
		return false
	}
	for _, p := range s.include {
		if ok, _ := doublestar.Match(p, name); ok {
			return false
		}
	}
	return true
}
