package progress

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"

	"github.com/dhcgn/mbox-search/stats"
)

// Updates are batched so that rendering stays cheap on large archives.
const steps = 200

// Bar shows how much of the archive a build has scanned. The bar counts
// KiB, driven by the Position of scan events.
type Bar struct {
	pb       *pterm.ProgressbarPrinter
	title    string
	enabled  bool
	total    int
	shown    int
	step     int
	messages int
}

// New creates a progress bar if logLevel is "info". A disabled Bar ignores
// every call.
func New(title, logLevel string) *Bar {
	return &Bar{title: title, enabled: logLevel == "info"}
}

// Enabled reports whether the bar renders anything.
func (b *Bar) Enabled() bool {
	return b.enabled
}

// Update advances the bar according to evt.
func (b *Bar) Update(evt stats.Event) {
	if !b.enabled {
		return
	}

	switch evt.Type {
	case stats.EventTypeStarted:
		if evt.Stage != stats.StageScan || b.pb != nil {
			return
		}
		b.total = max(kib(evt.Total), 1)
		b.step = max(b.total/steps, 1)
		pb, err := pterm.DefaultProgressbar.
			WithTotal(b.total).
			WithTitle(b.title).
			Start()
		if err != nil {
			b.enabled = false
			return
		}
		b.pb = pb
	case stats.EventTypeScanned:
		b.messages++
		if b.pb == nil {
			return
		}
		current := min(kib(evt.Position), b.total)
		if current-b.shown >= b.step {
			b.pb.Add(current - b.shown)
			b.shown = current
			b.pb.UpdateTitle(fmt.Sprintf("%s (%d messages)", b.title, b.messages))
		}
	case stats.EventTypeError:
		if evt.Err != nil {
			pterm.Error.Printf("Error: %v\n", evt.Err)
		}
	}
}

// Stop finalizes the progress bar.
func (b *Bar) Stop() {
	if b.pb == nil {
		return
	}
	if b.shown < b.total {
		b.pb.Add(b.total - b.shown)
		b.shown = b.total
	}
	_, _ = b.pb.Stop()
	b.pb = nil
}

// PrintSummary prints the build summary below the bar.
func (b *Bar) PrintSummary(summary stats.Summary, indexPath string, duration time.Duration) {
	if !b.enabled {
		return
	}
	pterm.Println()
	pterm.DefaultSection.Println("Index built")
	pterm.Info.Printf("Index: %s\n", indexPath)
	pterm.Info.Printf("Duration: %v\n", duration.Round(time.Millisecond))
	pterm.Info.Printf("Messages: %d\n", summary.Scanned)
	pterm.Info.Printf("Bytes scanned: %d\n", summary.Bytes)
	if summary.ParseWarnings > 0 {
		pterm.Warning.Printf("Parse warnings: %d\n", summary.ParseWarnings)
	}
	if summary.DecodeFallbacks > 0 {
		pterm.Warning.Printf("Decode fallbacks: %d\n", summary.DecodeFallbacks)
	}
	if summary.LastError != nil {
		pterm.Error.Printf("Last error: %v\n", summary.LastError)
	}
}

func kib(n int64) int {
	return int((n + 1023) / 1024)
}
