package execute

// State is the phase of a Machine.
type State int

const (
	Idle State = iota
	SendingSetup
	AwaitingAck
	Running
	Draining
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case SendingSetup:
		return "sending setup"
	case AwaitingAck:
		return "awaiting ack"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Done reports whether s is terminal.
func (s State) Done() bool {
	return s == Completed || s == Failed
}
