// Package sample holds the normalized measurement sample and the plumbing that
// carries it from the worker to live consumers.
package sample

import (
	"fmt"
	"sync"

	"github.com/itohio/freistat/pkg/method"
)

// Sample represents one demultiplexed data telegram.
type Sample struct {
	Cycle      int     // run id reported by the device, ≥1
	Datapoint  int     // index within the method, ≥0
	Voltage    float64 // mV
	Current    float64 // µA, absent for OCP
	HasCurrent bool
	Elapsed    float64 // ms since the cycle reference

	// Sequence mode only.
	SequenceCycle   int
	SequenceElapsed float64 // ms since the sequence-repeat reference
	TotalElapsed    float64 // ms since the first sample of the run
	Method          method.Kind
}

// Sentinel returns the end-of-stream marker of a sequence.
func Sentinel() Sample {
	return Sample{Method: method.UDF}
}

// IsSentinel reports whether s marks the end of a sequence stream.
func (s Sample) IsSentinel() bool {
	return s.Method == method.UDF
}

func (s Sample) String() string {
	if s.HasCurrent {
		return fmt.Sprintf("cycle %d #%d: %.3f mV %.4f µA @ %.1f ms", s.Cycle, s.Datapoint, s.Voltage, s.Current, s.Elapsed)
	}
	return fmt.Sprintf("cycle %d #%d: %.3f mV @ %.1f ms", s.Cycle, s.Datapoint, s.Voltage, s.Elapsed)
}

// Broadcaster fans one sample stream out to any number of subscribers. Every
// subscriber sees every sample in order; a slow subscriber slows the producer
// once its buffer is full.
type Broadcaster struct {
	mu      sync.Mutex
	subs    []chan Sample
	bufSize int
	closed  bool
}

// NewBroadcaster creates a broadcaster whose subscriber channels hold bufSize
// samples.
func NewBroadcaster(bufSize int) *Broadcaster {
	if bufSize <= 0 {
		bufSize = 100
	}
	return &Broadcaster{bufSize: bufSize}
}

// Subscribe returns a new channel that receives every sample published after
// the call. The channel is closed when the input of Run closes. Subscribing
// after that returns a closed channel.
func (b *Broadcaster) Subscribe() <-chan Sample {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Sample, b.bufSize)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Run forwards samples from in to the subscribers until in is closed, then
// closes every subscriber channel.
func (b *Broadcaster) Run(in <-chan Sample) {
	for s := range in {
		b.mu.Lock()
		subs := b.subs
		b.mu.Unlock()
		for _, ch := range subs {
			ch <- s
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
