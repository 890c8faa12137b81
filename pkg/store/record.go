package store

import (
	"sync"

	"github.com/itohio/freistat/pkg/method"
	"github.com/itohio/freistat/pkg/sample"
)

// Record is the result of one method invocation: its tag, the validated
// parameter list and the samples in decode order. Cycle boundaries are
// recorded by Flush. A sealed record no longer accepts samples.
type Record struct {
	store *Store

	mu      sync.RWMutex
	method  method.Kind
	params  method.Params
	samples []sample.Sample
	bounds  []int // sample counts at each flush
	err     error
	sealed  bool
}

// Method returns the method tag.
func (r *Record) Method() method.Kind {
	return r.method
}

// IsMeta reports whether r is the bookkeeping record of a sequence.
func (r *Record) IsMeta() bool {
	return r.method == method.SEQ
}

// SetParams attaches the validated parameter list.
func (r *Record) SetParams(ps method.Params) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrSealed
	}
	r.params = ps.Clone()
	return nil
}

// Params returns a copy of the attached parameter list.
func (r *Record) Params() method.Params {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.params.Clone()
}

// Fail marks the record's setup as failed.
func (r *Record) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Err returns the setup failure, if any.
func (r *Record) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Append adds a sample.
func (r *Record) Append(s sample.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrSealed
	}
	r.samples = append(r.samples, s)
	return nil
}

// Flush closes the current cycle. Flushing without new samples since the
// previous flush is a no-op. Registered OnFlush callbacks run after the
// boundary is recorded.
func (r *Record) Flush() {
	r.mu.Lock()
	n := len(r.samples)
	changed := !r.sealed && n > 0 && (len(r.bounds) == 0 || r.bounds[len(r.bounds)-1] != n)
	if changed {
		r.bounds = append(r.bounds, n)
	}
	r.mu.Unlock()

	if changed && r.store != nil {
		r.store.notify(r)
	}
}

// Seal flushes the record and makes it immutable.
func (r *Record) Seal() {
	r.Flush()
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether the record is immutable.
func (r *Record) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Len returns the number of samples.
func (r *Record) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.samples)
}

// Samples returns a copy of the samples in append order.
func (r *Record) Samples() []sample.Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]sample.Sample, len(r.samples))
	copy(out, r.samples)
	return out
}

// Last returns the most recent sample.
func (r *Record) Last() (sample.Sample, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.samples) == 0 {
		return sample.Sample{}, false
	}
	return r.samples[len(r.samples)-1], true
}

// Cycles returns the samples split at each flush. Samples appended after
// the last flush form a final, open cycle.
func (r *Record) Cycles() [][]sample.Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out [][]sample.Sample
	start := 0
	for _, end := range r.bounds {
		out = append(out, append([]sample.Sample(nil), r.samples[start:end]...))
		start = end
	}
	if start < len(r.samples) {
		out = append(out, append([]sample.Sample(nil), r.samples[start:]...))
	}
	return out
}
