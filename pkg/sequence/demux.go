package sequence

import (
	"github.com/itohio/freistat/pkg/execute"
	"github.com/itohio/freistat/pkg/sample"
	"github.com/itohio/freistat/pkg/store"
	"github.com/itohio/freistat/pkg/wire"
)

// demuxer reassembles the interleaved stream of a device-side sequence. The
// instrument sends no marker between methods: a datapoint index smaller than
// the previous one means the next method started.
type demuxer struct {
	st      *store.Store
	methods int

	started   bool
	run       int
	datapoint int

	refTotal    float64
	refCycle    float64
	refSequence float64

	methodCount   int
	sequenceCycle int
}

var _ execute.Demuxer = (*demuxer)(nil)

func newDemuxer(st *store.Store, methods int) *demuxer {
	return &demuxer{
		st:            st,
		methods:       methods,
		methodCount:   1,
		sequenceCycle: 1,
	}
}

func (d *demuxer) Sample(data wire.Data) sample.Sample {
	t := data.Time

	if !d.started {
		d.started = true
		d.refTotal, d.refCycle, d.refSequence = t, t, t
	} else {
		if data.Run != d.run {
			d.flush()
			d.refCycle = t
		}
		if data.Datapoint < d.datapoint {
			d.flush()
			d.refCycle = t
			if d.methodCount%d.methods == 0 {
				d.sequenceCycle++
				d.refSequence = t
			}
			d.methodCount++
			d.st.Next()
		}
	}
	d.run = data.Run
	d.datapoint = data.Datapoint

	s := sample.Sample{
		Cycle:           data.Run,
		Datapoint:       data.Datapoint,
		Voltage:         data.Voltage,
		Current:         data.Current,
		HasCurrent:      data.HasCurrent,
		Elapsed:         t - d.refCycle,
		SequenceCycle:   d.sequenceCycle,
		SequenceElapsed: t - d.refSequence,
		TotalElapsed:    t - d.refTotal,
	}
	if r := d.st.Current(); r != nil {
		s.Method = r.Method()
	}
	return s
}

func (d *demuxer) flush() {
	if r := d.st.Current(); r != nil {
		r.Flush()
	}
}

// Complete pushes two end-of-stream sentinels.
func (d *demuxer) Complete() []sample.Sample {
	end := sample.Sentinel()
	end.SequenceCycle = d.sequenceCycle
	return []sample.Sample{end, end}
}
