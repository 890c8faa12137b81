package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/itohio/freistat/pkg/config"
	"github.com/itohio/freistat/pkg/device"
	"github.com/itohio/freistat/pkg/execute"
	"github.com/itohio/freistat/pkg/method"
	"github.com/itohio/freistat/pkg/sample"
	"github.com/itohio/freistat/pkg/sequence"
	"github.com/itohio/freistat/pkg/store"
)

var (
	methodFlag string
	cyclesFlag int
	selectFlag []int
)

var runCmd = &cobra.Command{
	Use:   "run [index]",
	Short: "Run one configured experiment",
	Long: `Runs the experiment at the given index of the configuration (default 0).
With --method the default descriptor of that method is run instead.

Example:
  freistat run 1
  freistat run --mock --method CV`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSingle,
}

var sequenceCmd = &cobra.Command{
	Use:   "sequence",
	Short: "Run the configured experiments as a device-side sequence",
	Long: `Uploads the configured experiments as one sequence and repeats it
--cycles times on the device. Only OCP, CA, LSV, CV, NPV, DPV and SWV can be
part of a sequence.

Example:
  freistat sequence --cycles 3 --select 0,2`,
	Args: cobra.NoArgs,
	RunE: runSequence,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the configured experiments and serve their status over HTTP",
	Long: `Runs the configuration like "run" (a single experiment) or "sequence"
(several) and keeps serving GET /status, GET /records/{index} and
POST /cancel until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	runCmd.Flags().StringVarP(&methodFlag, "method", "m", "", "Run the default descriptor of this method")
	sequenceCmd.Flags().IntVar(&cyclesFlag, "cycles", 0, "Sequence repetitions (default from config)")
	sequenceCmd.Flags().IntSliceVar(&selectFlag, "select", nil, "Indices of the configured experiments to include")
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// experiment resolves the descriptor the run command should use.
func experiment(args []string) (method.Experiment, error) {
	if methodFlag != "" {
		kind, err := method.ParseKind(strings.ToUpper(methodFlag))
		if err != nil {
			return nil, err
		}
		exp := method.Default(kind)
		if exp == nil {
			return nil, fmt.Errorf("%w: %s has no descriptor", method.ErrMethodUnknown, kind)
		}
		return exp, nil
	}

	idx := 0
	if len(args) > 0 {
		var err error
		if idx, err = strconv.Atoi(args[0]); err != nil {
			return nil, fmt.Errorf("invalid experiment index %q: %w", args[0], err)
		}
	}
	return cfg.Experiment(idx)
}

// singleJob prepares exp for the connected link and executes it.
func singleJob(exp method.Experiment) job {
	return func(ctx context.Context, tr device.Transport, st *store.Store, out chan<- sample.Sample, opts ...execute.Option) error {
		spec, err := execute.Prepare(exp, cfg.Execute.Optimize, tr.Link(), logger)
		if err != nil {
			return err
		}
		opts = append([]execute.Option{execute.WithLogger(logger), execute.WithOutput(out)}, opts...)
		return execute.New(tr, st, opts...).Execute(ctx, spec)
	}
}

// sequenceJob builds a sequence of exps and runs it.
func sequenceJob(exps []method.Experiment) job {
	return func(ctx context.Context, tr device.Transport, st *store.Store, out chan<- sample.Sample, opts ...execute.Option) error {
		cycles := cfg.Sequence.Cycles
		if cyclesFlag > 0 {
			cycles = cyclesFlag
		}
		seqOpts := []sequence.Option{
			sequence.WithLogger(logger),
			sequence.WithCycles(cycles),
			sequence.WithExecuteOptions(opts...),
		}
		if cfg.Execute.Optimize {
			seqOpts = append(seqOpts, sequence.WithOptimizer(tr.Link()))
		}

		seq := sequence.New(seqOpts...)
		for _, exp := range exps {
			// Failures are recorded in the slot and reported by Run.
			_ = seq.Add(exp)
		}
		return seq.Run(ctx, tr, st, out)
	}
}

// experiments resolves the configured experiments, optionally filtered by
// --select.
func experiments() ([]method.Experiment, error) {
	indices := selectFlag
	if len(indices) == 0 {
		for i := range cfg.Experiments {
			indices = append(indices, i)
		}
	}
	exps := make([]method.Experiment, 0, len(indices))
	for _, i := range indices {
		exp, err := cfg.Experiment(i)
		if err != nil {
			return nil, err
		}
		exps = append(exps, exp)
	}
	return exps, nil
}

func execSession(ctx context.Context, j job, listen string, linger bool) error {
	tr, err := openTransport(cfg, logger)
	if err != nil {
		return err
	}
	defer tr.Close()

	s := &session{
		cfg:    cfg,
		log:    logger,
		tr:     tr,
		st:     store.New(),
		show:   !quiet,
		listen: listen,
		linger: linger,
	}
	logger.Info("run started", zap.Stringer("run", s.st.RunID()))
	return s.run(ctx, j)
}

func runSingle(cmd *cobra.Command, args []string) error {
	exp, err := experiment(args)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(cmd.Context())
	defer stop()
	return execSession(ctx, singleJob(exp), listenFlag, false)
}

func runSequence(cmd *cobra.Command, args []string) error {
	exps, err := experiments()
	if err != nil {
		return err
	}
	ctx, stop := signalContext(cmd.Context())
	defer stop()
	return execSession(ctx, sequenceJob(exps), listenFlag, false)
}

func runServe(cmd *cobra.Command, args []string) error {
	exps, err := experiments()
	if err != nil {
		return err
	}
	j := sequenceJob(exps)
	if len(exps) == 1 {
		j = singleJob(exps[0])
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	return execSession(ctx, j, cfg.Server.Listen, true)
}

// configuredLink is the link the configured transport will report.
func configuredLink() device.Link {
	if cfg.Transport.Mode == config.ModeUDP {
		return device.LinkWLAN
	}
	return device.LinkSerial
}

// prepare validates exp the way a run over the configured transport would.
func prepare(exp method.Experiment) (execute.Spec, error) {
	return execute.Prepare(exp, cfg.Execute.Optimize, configuredLink(), logger)
}
