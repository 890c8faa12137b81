package main

import (
	"context"
	"errors"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/itohio/freistat/pkg/config"
	"github.com/itohio/freistat/pkg/device"
	"github.com/itohio/freistat/pkg/execute"
	"github.com/itohio/freistat/pkg/export"
	"github.com/itohio/freistat/pkg/sample"
	"github.com/itohio/freistat/pkg/server"
	"github.com/itohio/freistat/pkg/store"
)

// job runs the experiment. Machine options (state hooks) must be passed on
// to every machine the job creates. out is closed by the session.
type job func(ctx context.Context, tr device.Transport, st *store.Store, out chan<- sample.Sample, opts ...execute.Option) error

// session wires a job to its consumers: the progress display, the optional
// HTTP status server and the exporters.
type session struct {
	cfg    *config.Config
	log    *zap.Logger
	tr     device.Transport
	st     *store.Store
	show   bool
	listen string // HTTP status address, empty disables
	linger bool   // keep serving HTTP after the run until ctx is done
}

// run executes j, then seals and exports the store. The export happens even
// when the run failed or was cancelled so partial data is kept.
func (s *session) run(ctx context.Context, j job) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	prog, err := newProgress(os.Stdout, s.show)
	if err != nil {
		return err
	}

	var (
		srv     *server.Server
		srvCtx  = ctx
		stopSrv = func() {}
	)
	if s.listen != "" {
		srv = server.New(server.WithLogger(s.log))
		srv.Attach(s.st, cancel)
		if !s.linger {
			srvCtx, stopSrv = context.WithCancel(ctx)
		}
	}
	defer stopSrv()

	opts := []execute.Option{
		execute.WithAckTimeout(s.cfg.Execute.AckTimeout),
		execute.WithProgressive(s.cfg.Execute.Progressive),
	}
	if srv != nil {
		opts = append(opts, execute.OnState(srv.SetState))
	}

	s.st.OnFlush(func(r *store.Record) {
		s.log.Info("cycle complete",
			zap.String("method", r.Method().String()),
			zap.Int("samples", r.Len()),
		)
	})

	raw := make(chan sample.Sample, s.cfg.Execute.BufferSize)
	b := sample.NewBroadcaster(s.cfg.Execute.BufferSize)
	live := sample.NewAveragingConverter(average, s.cfg.Execute.BufferSize)(b.Subscribe())

	g, gctx := errgroup.WithContext(runCtx)
	var runErr error
	g.Go(func() error {
		defer close(raw)
		runErr = j(gctx, s.tr, s.st, raw, opts...)
		stopSrv()
		return nil
	})
	g.Go(func() error {
		b.Run(raw)
		return nil
	})
	g.Go(func() error {
		prog.Consume(live)
		return nil
	})
	if srv != nil {
		g.Go(func() error {
			return srv.ListenAndServe(srvCtx, s.listen)
		})
	}

	srvErr := g.Wait()
	prog.Stop(runErr)

	s.st.Seal()
	if _, err := export.Run(context.Background(), s.cfg.Export, s.st, s.log); err != nil {
		s.log.Error("export failed", zap.Error(err))
		return errors.Join(runErr, srvErr, err)
	}
	return errors.Join(runErr, srvErr)
}
