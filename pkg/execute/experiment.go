package execute

import (
	"go.uber.org/zap"

	"github.com/itohio/freistat/pkg/device"
	"github.com/itohio/freistat/pkg/method"
	"github.com/itohio/freistat/pkg/optimizer"
	"github.com/itohio/freistat/pkg/wire"
)

// Step is one setup telegram. Ack makes Setup wait for the instrument to
// acknowledge it before sending the next.
type Step struct {
	Command    wire.Command
	Experiment wire.Experiment
	Ack        bool
}

// Spec is a validated method ready to run.
type Spec struct {
	Kind   method.Kind
	Params method.Params
}

// Steps returns the handshake of a single method: type, parameters, start.
func (s Spec) Steps() []Step {
	exp := method.Telegram(s.Kind, s.Params)
	return []Step{
		{Command: wire.Type(), Experiment: exp, Ack: true},
		{Command: wire.Parameters(), Experiment: exp, Ack: true},
		{Command: wire.Control(wire.ControlStart), Experiment: exp, Ack: true},
	}
}

// Prepare validates exp and, when optimize is set, tunes the oversampling
// chain for link (impedance runs are never tuned). Quantizer notices and optimizer advisories are logged as
// warnings. A failing optimizer leaves the validated parameters in place.
func Prepare(exp method.Experiment, optimize bool, link device.Link, log *zap.Logger) (Spec, error) {
	if log == nil {
		log = zap.NewNop()
	}

	ps, notices, err := method.Prepare(exp)
	method.LogNotices(log, exp.Kind(), notices)
	if err != nil {
		return Spec{}, err
	}

	if optimize && exp.Kind() != method.EIS {
		tuned, advs, err := optimizer.Optimize(exp.Kind(), ps, link)
		switch {
		case err != nil:
			log.Warn("optimizer skipped", zap.String("method", string(exp.Kind())), zap.Error(err))
		default:
			optimizer.LogAdvisories(log, exp.Kind(), advs)
			ps = tuned
		}
	}

	return Spec{Kind: exp.Kind(), Params: ps}, nil
}
