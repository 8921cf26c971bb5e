package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/Veraticus/creditflow-etl/internal/model"
)

// Progress draws one progress bar per entity as its batches commit.
type Progress struct {
	writer io.Writer
	bar    *progressbar.ProgressBar
	entity model.Entity
	max    int
	mu     sync.Mutex
}

// NewProgress creates a progress display writing to w.
func NewProgress(w io.Writer) *Progress {
	if w == nil {
		w = os.Stderr
	}
	return &Progress{writer: w}
}

// Update reports done rows out of total for entity. A new entity closes the
// previous bar.
func (p *Progress) Update(entity model.Entity, done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil || entity != p.entity {
		p.finishLocked()
		p.entity = entity
		p.max = total
		p.bar = p.newBar(entity, total)
	}
	if total != p.max {
		p.max = total
		p.bar.ChangeMax(total)
	}
	if err := p.bar.Set(done); err != nil {
		slog.Debug("Failed to update progress bar", "error", err)
	}
}

// Finish closes the current bar.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finishLocked()
}

func (p *Progress) finishLocked() {
	if p.bar == nil {
		return
	}
	if !p.bar.IsFinished() {
		if err := p.bar.Finish(); err != nil {
			slog.Debug("Failed to finish progress bar", "error", err)
		}
	}
	p.bar = nil
}

func (p *Progress) newBar(entity model.Entity, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(fmt.Sprintf("[cyan][bold]Loading %-12s[reset]", entity)),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(p.writer); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}
