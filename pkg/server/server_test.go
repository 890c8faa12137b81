package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/freistat/pkg/execute"
	"github.com/itohio/freistat/pkg/method"
	"github.com/itohio/freistat/pkg/sample"
	"github.com/itohio/freistat/pkg/store"
)

func testStore(t *testing.T, n int) *store.Store {
	t.Helper()
	st := store.New()
	rec := st.Create(method.CA)
	require.NoError(t, rec.SetParams(method.Params{
		method.List(method.TagPotentialSteps, 100, 200),
		method.Scalar(method.TagCycle, 1),
	}))
	for i := 0; i < n; i++ {
		require.NoError(t, st.Append(sample.Sample{Cycle: 1, Datapoint: i, Voltage: 100, Current: float64(i), HasCurrent: true, Method: method.CA}))
	}
	rec.Flush()
	return st
}

func get(t *testing.T, h http.Handler, path string, body any) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if body != nil && rec.Code == http.StatusOK {
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), body))
	}
	return rec.Code
}

func post(h http.Handler, path string) int {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestServer_NoRun(t *testing.T) {
	h := New().Handler()
	assert.Equal(t, http.StatusNotFound, get(t, h, "/status", nil))
	assert.Equal(t, http.StatusNotFound, get(t, h, "/records/0", nil))
	assert.Equal(t, http.StatusConflict, post(h, "/cancel"))
}

func TestServer_Status(t *testing.T) {
	st := testStore(t, 3)
	s := New()
	s.Attach(st, func() {})
	s.SetState(execute.Running)

	var got Status
	require.Equal(t, http.StatusOK, get(t, s.Handler(), "/status", &got))
	assert.Equal(t, Status{
		Run:     st.RunID().String(),
		State:   "running",
		Current: 0,
		Records: []RecordStatus{{Index: 0, Method: "CA", Samples: 3, Cycles: 1}},
	}, got)
}

func TestServer_Record(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		code   int
		points int
	}{
		{name: "default cap", path: "/records/0", code: http.StatusOK, points: 10},
		{name: "explicit cap", path: "/records/0?max=4", code: http.StatusOK, points: 4},
		{name: "uncapped", path: "/records/0?max=0", code: http.StatusOK, points: 20},
		{name: "bad cap", path: "/records/0?max=x", code: http.StatusBadRequest},
		{name: "bad index", path: "/records/x", code: http.StatusBadRequest},
		{name: "out of range", path: "/records/3", code: http.StatusNotFound},
	}

	s := New(WithMaxPoints(10))
	s.Attach(testStore(t, 20), nil)
	h := s.Handler()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Record
			require.Equal(t, tt.code, get(t, h, tt.path, &got))
			if tt.code != http.StatusOK {
				return
			}
			assert.Equal(t, "CA", got.Method)
			assert.Len(t, got.Samples, tt.points)
			assert.Equal(t, []any{100.0, 200.0}, got.Params[method.TagPotentialSteps])
			assert.Equal(t, 1.0, got.Params[method.TagCycle])
			require.NotNil(t, got.Samples[0].Current)
			assert.Equal(t, 0.0, *got.Samples[0].Current)
		})
	}
}

func TestServer_Cancel(t *testing.T) {
	cancelled := 0
	s := New()
	s.Attach(testStore(t, 1), func() { cancelled++ })
	h := s.Handler()

	s.SetState(execute.Running)
	assert.Equal(t, http.StatusAccepted, post(h, "/cancel"))
	assert.Equal(t, 1, cancelled)

	s.SetState(execute.Completed)
	assert.Equal(t, http.StatusConflict, post(h, "/cancel"))
	assert.Equal(t, 1, cancelled)
}

// TestServer_GracefulShutdown tests that ListenAndServe returns once its
// context is cancelled.
func TestServer_GracefulShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- New().ListenAndServe(ctx, "127.0.0.1:0")
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop within timeout")
	}
}
