package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/theckman/yacspin"

	"github.com/itohio/freistat/pkg/sample"
)

// progress shows the latest sample of a run on a spinner line.
type progress struct {
	spinner *yacspin.Spinner
	samples int
	last    sample.Sample
}

func newProgress(w io.Writer, enabled bool) (*progress, error) {
	p := &progress{}
	if !enabled {
		return p, nil
	}

	notTTY := true
	if f, ok := w.(*os.File); ok {
		notTTY = !isatty.IsTerminal(f.Fd())
	}

	s, err := yacspin.New(yacspin.Config{
		Writer:            w,
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		SuffixAutoColon:   true,
		Message:           "connecting",
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
		NotTTY:            notTTY,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create spinner: %w", err)
	}
	p.spinner = s
	return p, nil
}

// Consume updates the spinner for every sample of in until it closes.
func (p *progress) Consume(in <-chan sample.Sample) {
	if p.spinner != nil {
		_ = p.spinner.Start()
	}
	for s := range in {
		if s.IsSentinel() {
			continue
		}
		p.samples++
		p.last = s
		if p.spinner != nil {
			p.spinner.Message(p.message())
		}
	}
}

func (p *progress) message() string {
	return fmt.Sprintf("%s %d samples, %s", p.last.Method, p.samples, p.last)
}

// Stop ends the spinner line with the outcome of the run.
func (p *progress) Stop(err error) {
	if p.spinner == nil {
		return
	}
	if err != nil {
		p.spinner.StopFailMessage(err.Error())
		_ = p.spinner.StopFail()
		return
	}
	p.spinner.StopMessage(fmt.Sprintf("%d samples", p.samples))
	_ = p.spinner.Stop()
}
