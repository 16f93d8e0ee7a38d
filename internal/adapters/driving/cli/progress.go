package cli

import (
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
)

var barTheme = progressbar.Theme{
	Saucer:        "=",
	SaucerHead:    ">",
	SaucerPadding: " ",
	BarStart:      "[",
	BarEnd:        "]",
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// indexProgress renders embedding progress as a bar on a terminal and as
// occasional log lines otherwise.
type indexProgress struct {
	w       io.Writer
	enabled bool
	bar     *progressbar.ProgressBar
	total   int
}

func newIndexProgress(w io.Writer) *indexProgress {
	return &indexProgress{w: w, enabled: isTerminal(w)}
}

func (p *indexProgress) Update(pr domain.Progress) {
	if !p.enabled || pr.Total <= 0 {
		return
	}
	if p.bar == nil {
		p.bar = progressbar.NewOptions(pr.Total,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetDescription("embedding"),
			progressbar.OptionSetWidth(32),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetTheme(barTheme),
		)
		p.total = pr.Total
	}
	if pr.Total != p.total {
		p.bar.ChangeMax(pr.Total)
		p.total = pr.Total
	}
	_ = p.bar.Set(pr.Embedded)
}

func (p *indexProgress) Finish() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
	p.bar = nil
}

// startSpinner shows desc with a spinner on a terminal until the returned
// func is called.
func startSpinner(w io.Writer, desc string) func() {
	if !isTerminal(w) {
		return func() {}
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSpinnerType(9),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWidth(10),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(barTheme),
	)

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(120 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = bar.Add(1)
			case <-done:
				_ = bar.Finish()
				return
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}
