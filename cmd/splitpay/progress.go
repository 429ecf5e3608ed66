package main

import (
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/vitwit/splitpay/types"
)

// progressPrinter renders tracker updates as a spinner that resolves into a
// coloured final line. In JSON mode it stays silent.
type progressPrinter struct {
	s     *spinner.Spinner
	out   io.Writer
	quiet bool
}

func newProgressPrinter(out io.Writer, quiet bool) *progressPrinter {
	return &progressPrinter{
		s:     spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(out)),
		out:   out,
		quiet: quiet,
	}
}

func (p *progressPrinter) Sink(u types.ProgressUpdate) {
	if p.quiet {
		return
	}

	switch u.State {
	case types.ProgressProcessing, types.ProgressInBlock:
		p.s.Lock()
		p.s.Suffix = " " + u.Message
		p.s.Unlock()
		if !p.s.Active() {
			p.s.Start()
		}
	case types.ProgressFinalized:
		p.s.Stop()
		color.New(color.FgGreen).Fprintf(p.out, "✓ %s\n", u.Message)
	case types.ProgressCancelled:
		p.s.Stop()
		color.New(color.FgYellow).Fprintf(p.out, "%s\n", u.Message)
	case types.ProgressError:
		p.s.Stop()
		color.New(color.FgRed).Fprintf(p.out, "✗ %s\n", u.Message)
	}
}

// Stop clears the spinner if the run ended without a terminal update.
func (p *progressPrinter) Stop() {
	p.s.Stop()
}
