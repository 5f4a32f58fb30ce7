package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/openmined/gridsync/internal/sync"
)

// renderSummary prints one line per category and the failed items.
func renderSummary(w io.Writer, s *sync.Summary) {
	if s == nil {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\n",
		bold.Render(s.Backend),
		cyan.Render(string(s.Direction)),
		gray.Render(fmt.Sprintf("%s in %s", humanize.Bytes(uint64(s.Bytes())), s.Duration().Round(time.Millisecond))))

	cats := make([]string, 0, len(s.Categories))
	for c := range s.Categories {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)

	for _, c := range cats {
		cs := s.Categories[sync.Category(c)]
		if cs.Err != nil {
			fmt.Fprintf(&b, "  %-8s %s\n", c, red.Render("abandoned: "+cs.Err.Error()))
			continue
		}
		fmt.Fprintf(&b, "  %-8s %s %s %s %s\n", c,
			green.Render(humanize.Comma(int64(cs.Transferred))+" transferred"),
			gray.Render(humanize.Comma(int64(cs.Skipped))+" skipped"),
			yellow.Render(humanize.Comma(int64(cs.Deleted))+" deleted"),
			failedStyle(cs.Failed).Render(humanize.Comma(int64(cs.Failed))+" failed"))
	}

	for _, f := range s.Failures() {
		fmt.Fprintf(&b, "  %s %s %s\n", red.Render("✗"), f.Path, gray.Render(f.Err.Error()))
	}

	io.WriteString(w, b.String())
}

func failedStyle(n int) lipgloss.Style {
	if n > 0 {
		return red
	}
	return gray
}
