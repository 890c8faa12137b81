package store

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/freistat/pkg/method"
	"github.com/itohio/freistat/pkg/sample"
)

func sequenceStore(kinds ...method.Kind) *Store {
	s := New()
	for _, k := range kinds {
		s.Create(k)
	}
	s.AddMeta(method.Sequence(len(kinds), 1))
	return s
}

func TestNew(t *testing.T) {
	s := New()
	assert.NotEqual(t, uuid.Nil, s.RunID())
	assert.NotEqual(t, New().RunID(), s.RunID())
	assert.Equal(t, 0, s.Len())
	assert.Nil(t, s.Current())
	assert.Nil(t, s.Next())
	assert.Nil(t, s.First())
	assert.ErrorIs(t, s.Append(sample.Sample{}), ErrEmpty)
}

func TestNewWithID(t *testing.T) {
	id := uuid.New()
	s := NewWithID(id)
	assert.Equal(t, id, s.RunID())
	assert.Equal(t, 0, s.Len())
	assert.Nil(t, s.Current())
}

func TestStore_CreateSelectsRecord(t *testing.T) {
	s := New()
	r := s.Create(method.CV)
	assert.Same(t, r, s.Current())
	assert.Equal(t, method.CV, r.Method())

	require.NoError(t, s.Append(sample.Sample{Cycle: 1}))
	assert.Equal(t, 1, r.Len())
}

func TestStore_RingNavigation(t *testing.T) {
	tests := []struct {
		name  string
		store func() *Store
		steps []int // +1 Next, -1 Previous
		want  []int
	}{
		{
			name:  "next skips trailing meta-record",
			store: func() *Store { return sequenceStore(method.OCP, method.CA, method.CV) },
			steps: []int{1, 1, 1, 1},
			want:  []int{1, 2, 0, 1},
		},
		{
			name:  "previous from first lands on last data record",
			store: func() *Store { return sequenceStore(method.OCP, method.CA, method.CV) },
			steps: []int{-1, -1, -1},
			want:  []int{2, 1, 0},
		},
		{
			name: "single method store wraps onto itself",
			store: func() *Store {
				s := New()
				s.Create(method.LSV)
				return s
			},
			steps: []int{1, -1},
			want:  []int{0, 0},
		},
		{
			name: "without meta-record the last record is visited",
			store: func() *Store {
				s := New()
				s.Create(method.OCP)
				s.Create(method.CA)
				return s
			},
			steps: []int{1, 1},
			want:  []int{1, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.store()
			records := s.Records()
			require.NotNil(t, s.First())

			for i, d := range tt.steps {
				var r *Record
				if d > 0 {
					r = s.Next()
				} else {
					r = s.Previous()
				}
				assert.Same(t, records[tt.want[i]], r, "step %d", i)
				assert.Equal(t, tt.want[i], s.Index())
				assert.False(t, r.IsMeta())
			}
		})
	}
}

func TestStore_MetaRecord(t *testing.T) {
	s := sequenceStore(method.OCP, method.CA)
	assert.Equal(t, 3, s.Len())

	meta := s.Records()[2]
	assert.True(t, meta.IsMeta())
	v, ok := meta.Params().Value(method.TagSequenceLength)
	require.True(t, ok)
	assert.Equal(t, 2.0, v)

	// Create left the last data record current; AddMeta does not move it.
	assert.Equal(t, 1, s.Index())
}

func TestRecord_Cycles(t *testing.T) {
	s := New()
	r := s.Create(method.CV)

	var flushed int
	s.OnFlush(func(got *Record) {
		assert.Same(t, r, got)
		flushed++
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, r.Append(sample.Sample{Cycle: 1, Datapoint: i}))
	}
	r.Flush()
	r.Flush()
	for i := 3; i < 5; i++ {
		require.NoError(t, r.Append(sample.Sample{Cycle: 2, Datapoint: i}))
	}

	cycles := r.Cycles()
	require.Len(t, cycles, 2)
	assert.Len(t, cycles[0], 3)
	assert.Len(t, cycles[1], 2, "open cycle")
	assert.Equal(t, 1, flushed, "empty flush does not notify")

	r.Seal()
	assert.Equal(t, 2, flushed)
	assert.True(t, r.Sealed())
	assert.ErrorIs(t, r.Append(sample.Sample{}), ErrSealed)
	assert.ErrorIs(t, r.SetParams(nil), ErrSealed)
	assert.Equal(t, 15001, Code(r.Append(sample.Sample{})))

	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, 4, last.Datapoint)
}

func TestRecord_ParamsAreCopied(t *testing.T) {
	r := New().Create(method.CA)
	ps := method.Params{method.List(method.TagPotentialSteps, 100, 200)}
	require.NoError(t, r.SetParams(ps))

	ps[0].Values[0] = -1
	got := r.Params()
	assert.Equal(t, 100.0, got[0].Values[0])

	got[0].Values[1] = -1
	assert.Equal(t, 200.0, r.Params()[0].Values[1])
}

func TestStore_Seal(t *testing.T) {
	s := sequenceStore(method.OCP, method.CA)
	s.Seal()
	for _, r := range s.Records() {
		assert.True(t, r.Sealed())
	}
}
