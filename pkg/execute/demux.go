package execute

import (
	"github.com/itohio/freistat/pkg/sample"
	"github.com/itohio/freistat/pkg/store"
	"github.com/itohio/freistat/pkg/wire"
)

// Demuxer turns data telegrams into samples. It owns the cycle bookkeeping of
// the store: flushing records and moving the ring happen inside Sample, before
// the returned sample is appended to the current record.
type Demuxer interface {
	Sample(d wire.Data) sample.Sample
	// Complete returns the samples pushed to live consumers when the run
	// completes. They are not stored.
	Complete() []sample.Sample
}

// CycleDemuxer demultiplexes a single method: the reference time latches on
// the first sample and, unless progressive, again at every run id change.
type CycleDemuxer struct {
	st          *store.Store
	progressive bool

	started bool
	run     int
	ref     float64
}

var _ Demuxer = (*CycleDemuxer)(nil)

// NewCycleDemuxer creates a demultiplexer writing cycle boundaries to st.
func NewCycleDemuxer(st *store.Store, progressive bool) *CycleDemuxer {
	return &CycleDemuxer{st: st, progressive: progressive}
}

func (c *CycleDemuxer) Sample(d wire.Data) sample.Sample {
	switch {
	case !c.started:
		c.started = true
		c.run = d.Run
		c.ref = d.Time
	case d.Run != c.run:
		if r := c.st.Current(); r != nil {
			r.Flush()
		}
		c.run = d.Run
		if !c.progressive {
			c.ref = d.Time
		}
	}

	s := sample.Sample{
		Cycle:      d.Run,
		Datapoint:  d.Datapoint,
		Voltage:    d.Voltage,
		Current:    d.Current,
		HasCurrent: d.HasCurrent,
		Elapsed:    d.Time - c.ref,
	}
	if r := c.st.Current(); r != nil {
		s.Method = r.Method()
	}
	return s
}

func (c *CycleDemuxer) Complete() []sample.Sample { return nil }
