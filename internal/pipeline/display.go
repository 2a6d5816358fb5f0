package pipeline

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

// Display handles terminal progress output for stage runs.
type Display struct {
	w       io.Writer
	title   string
	verbose bool
	stop    chan struct{}
	done    chan struct{}
}

// NewDisplay creates a display that writes to stdout.
func NewDisplay(title string, verbose bool) *Display {
	return &Display{w: os.Stdout, title: title, verbose: verbose}
}

// modelColumnWidth is the fixed display width reserved for the model column.
var modelColumnWidth = 24

// ansiEscapeRe matches ANSI terminal escape sequences and C0/DEL control characters.
var ansiEscapeRe = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]|[\x00-\x1f\x7f]`)

// sanitizeModel strips ANSI escape sequences and control characters from a model name.
func sanitizeModel(name string) string {
	return ansiEscapeRe.ReplaceAllString(name, "")
}

// truncateModel sanitizes and truncates model to fit within modelColumnWidth runes,
// appending an ellipsis if truncation occurs.
func truncateModel(model string) string {
	model = sanitizeModel(model)
	if utf8.RuneCountInString(model) <= modelColumnWidth {
		return model
	}
	runes := []rune(model)
	return string(runes[:modelColumnWidth-1]) + "…"
}

// Header prints the run header.
func (d *Display) Header() {
	fmt.Fprintf(d.w, "\n%s\n", titleStyle.Render("uvmgen · "+d.title))
	fmt.Fprintln(d.w, strings.Repeat("─", 76))
}

// StageStart prints a stage-in-progress line and starts an elapsed time ticker.
// In non-verbose mode, the line is updated in place every second.
func (d *Display) StageStart(name, model string) {
	model = truncateModel(model)
	if d.verbose {
		fmt.Fprintf(d.w, "⏳ %-12s %-24s running...\n", name, model)
		return
	}
	// No trailing newline so the ticker can overwrite in place.
	fmt.Fprintf(d.w, "⏳ %-12s %-24s running...", name, model)

	stop := make(chan struct{})
	done := make(chan struct{})
	d.stop = stop
	d.done = done
	start := time.Now()

	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fmt.Fprintf(d.w, "\r⏳ %-12s %-24s running... %.0fs",
					name, model, time.Since(start).Seconds())
			}
		}
	}()
}

// stopTicker stops the elapsed time goroutine and waits for it to finish.
func (d *Display) stopTicker() {
	if d.stop != nil {
		close(d.stop)
		<-d.done
		d.stop = nil
		d.done = nil
	}
}

func (d *Display) prefix() string {
	if d.verbose {
		return ""
	}
	return "\r"
}

// maxPreviewLines is the number of artifact lines shown after a stage completes.
const maxPreviewLines = 10

// StageDone prints a completed stage line. artifactContent, when non-empty,
// is shown as a preview.
func (d *Display) StageDone(name, model, detail string, cost float64, duration time.Duration, artifactContent string) {
	d.stopTicker()
	model = truncateModel(model)
	costStr := "—"
	if cost > 0 {
		costStr = fmt.Sprintf("$%.4f", cost)
	}
	fmt.Fprintf(d.w, "%s✅ %-12s %-24s %-34s %-10s %.1fs\n",
		d.prefix(), name, model, detail, costStr, duration.Seconds())

	if artifactContent != "" {
		lines := strings.Split(artifactContent, "\n")
		// Drop the trailing empty element that Split adds for a newline-terminated string.
		if len(lines) > 0 && lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}
		previewLines := lines
		truncated := false
		if len(lines) > maxPreviewLines {
			previewLines = lines[:maxPreviewLines]
			truncated = true
		}
		for _, l := range previewLines {
			fmt.Fprintf(d.w, "  │ %s\n", dimStyle.Render(l))
		}
		if truncated {
			fmt.Fprintf(d.w, "  │ ... (%d more lines)\n", len(lines)-maxPreviewLines)
		}
	}
}

// StageNoCode prints a stage that answered without a usable code block.
func (d *Display) StageNoCode(name, model, rawLog string, duration time.Duration) {
	d.stopTicker()
	model = truncateModel(model)
	fmt.Fprintf(d.w, "%s⚠️  %-12s %-24s %s %.1fs\n",
		d.prefix(), name, model, warnStyle.Render("no code block, see "+rawLog), duration.Seconds())
}

// StageFailed prints a failed stage line.
func (d *Display) StageFailed(name, model string, err error) {
	d.stopTicker()
	model = truncateModel(model)
	fmt.Fprintf(d.w, "%s❌ %-12s %-24s %s\n", d.prefix(), name, model, errStyle.Render(err.Error()))
}

// Summary prints the final run summary.
func (d *Display) Summary(extracted, total int, totalCost float64, totalDuration time.Duration) {
	fmt.Fprintln(d.w, strings.Repeat("─", 76))
	fmt.Fprintf(d.w, "✅ Done  %d/%d artifacts  $%.4f  %.0fs\n", extracted, total, totalCost, totalDuration.Seconds())
	fmt.Fprintln(d.w)
}

// Failed prints a failure summary.
func (d *Display) Failed(err error) {
	fmt.Fprintln(d.w, strings.Repeat("─", 76))
	fmt.Fprintf(d.w, "❌ Failed: %s\n\n", errStyle.Render(err.Error()))
}
