package wire

import (
	"fmt"
	"strconv"
)

// CommandID is the numeric id carried under "C" in every host telegram.
type CommandID int

const (
	ExperimentType       CommandID = 1
	ExperimentParameters CommandID = 2
	ExperimentControl    CommandID = 3
	SequenceControl      CommandID = 4
)

// Sub-ids of ExperimentControl.
const (
	ControlWaiting = 0
	ControlStart   = 1
	ControlStop    = 2
)

// Sub-ids of SequenceControl.
const (
	SequenceEnable  = 1
	SequenceDisable = 2
)

// Telegram keys.
const (
	KeyCommand     = "C"
	KeyAck         = "A"
	KeyError       = "E"
	KeyRun         = "R"
	KeyMeasurement = "M"
	KeyDatapoint   = "D"
	KeyVoltage     = "V"
	KeyCurrent     = "C"
	KeyTime        = "T"
)

// PadLength is the telegram length at which the device framing drops the
// closing brace; telegrams of exactly this length get one trailing space.
const PadLength = 128

var commandKeys = map[CommandID]string{
	ExperimentType:       "ExT",
	ExperimentParameters: "ExP",
	ExperimentControl:    "ExC",
	SequenceControl:      "ExS",
}

var controlTokens = map[int]string{
	ControlWaiting: "Waiting",
	ControlStart:   "Start",
	ControlStop:    "Stop",
}

var sequenceTokens = map[int]string{
	SequenceEnable:  "SE",
	SequenceDisable: "SD",
}

// Key returns the member key that follows "C" for this command.
func (id CommandID) Key() string {
	return commandKeys[id]
}

func (id CommandID) String() string {
	if k, ok := commandKeys[id]; ok {
		return k
	}
	return "C" + strconv.Itoa(int(id))
}

// Command describes one host telegram. Sub selects the control token for
// ExperimentControl and SequenceControl and is ignored otherwise.
type Command struct {
	ID  CommandID
	Sub int
}

// Type returns the ExT command.
func Type() Command { return Command{ID: ExperimentType} }

// Parameters returns the ExP command.
func Parameters() Command { return Command{ID: ExperimentParameters} }

// Control returns an ExC command with the given sub-id.
func Control(sub int) Command { return Command{ID: ExperimentControl, Sub: sub} }

// Sequence returns an ExS command with the given sub-id.
func Sequence(sub int) Command { return Command{ID: SequenceControl, Sub: sub} }

func (c Command) String() string {
	switch c.ID {
	case ExperimentControl:
		return c.ID.String() + ":" + controlTokens[c.Sub]
	case SequenceControl:
		return c.ID.String() + ":" + sequenceTokens[c.Sub]
	}
	return c.ID.String()
}

// Experiment holds what ExT and ExP telegrams render: the method tag and its
// parameter members in reference-table order.
type Experiment struct {
	Type   string
	Params []Member
}

// Telegram builds the value tree of a host telegram.
func Telegram(cmd Command, exp Experiment) (Value, error) {
	key, ok := commandKeys[cmd.ID]
	if !ok {
		return Value{}, fmt.Errorf("%w: %d", ErrCommandUnknown, cmd.ID)
	}

	var body Value
	switch cmd.ID {
	case ExperimentType:
		body = String(exp.Type)
	case ExperimentParameters:
		body = Object(exp.Params...)
	case ExperimentControl:
		tok, ok := controlTokens[cmd.Sub]
		if !ok {
			return Value{}, fmt.Errorf("%w: control sub-id %d", ErrCommandUnknown, cmd.Sub)
		}
		body = String(tok)
	case SequenceControl:
		tok, ok := sequenceTokens[cmd.Sub]
		if !ok {
			return Value{}, fmt.Errorf("%w: sequence sub-id %d", ErrCommandUnknown, cmd.Sub)
		}
		body = String(tok)
	}

	return Object(
		Member{Key: KeyCommand, Value: Number(float64(cmd.ID))},
		Member{Key: key, Value: body},
	), nil
}

// Encode renders a host telegram. A rendering of exactly PadLength bytes is
// followed by a single space.
func Encode(cmd Command, exp Experiment) ([]byte, error) {
	v, err := Telegram(cmd, exp)
	if err != nil {
		return nil, err
	}
	out := []byte(v.String())
	if len(out) == PadLength {
		out = append(out, ' ')
	}
	return out, nil
}

// ParseCommand is the inverse of Encode: it recovers the command and the
// experiment fields from a decoded host telegram.
func ParseCommand(v Value) (Command, Experiment, error) {
	n, ok := leading(v, KeyCommand)
	if !ok {
		return Command{}, Experiment{}, fmt.Errorf("%w: missing leading %q", ErrTelegram, KeyCommand)
	}
	id := CommandID(n)
	key, ok := commandKeys[id]
	if !ok {
		return Command{}, Experiment{}, fmt.Errorf("%w: %d", ErrCommandUnknown, id)
	}
	m, ok := v.Member(1)
	if !ok || m.Key != key {
		return Command{}, Experiment{}, fmt.Errorf("%w: expected %q as second member", ErrTelegram, key)
	}

	cmd := Command{ID: id}
	var exp Experiment
	switch id {
	case ExperimentType:
		s, ok := m.Value.AsString()
		if !ok {
			return Command{}, Experiment{}, fmt.Errorf("%w: experiment type is %s", ErrTelegram, m.Value.Kind())
		}
		exp.Type = s
	case ExperimentParameters:
		if m.Value.Kind() != KindObject {
			return Command{}, Experiment{}, fmt.Errorf("%w: parameters are %s", ErrTelegram, m.Value.Kind())
		}
		exp.Params = append([]Member(nil), m.Value.Members()...)
	case ExperimentControl:
		sub, err := lookupToken(m.Value, controlTokens)
		if err != nil {
			return Command{}, Experiment{}, err
		}
		cmd.Sub = sub
	case SequenceControl:
		sub, err := lookupToken(m.Value, sequenceTokens)
		if err != nil {
			return Command{}, Experiment{}, err
		}
		cmd.Sub = sub
	}
	return cmd, exp, nil
}

func lookupToken(v Value, tokens map[int]string) (int, error) {
	s, ok := v.AsString()
	if !ok {
		return 0, fmt.Errorf("%w: control token is %s", ErrTelegram, v.Kind())
	}
	for sub, tok := range tokens {
		if tok == s {
			return sub, nil
		}
	}
	return 0, fmt.Errorf("%w: token %q", ErrCommandUnknown, s)
}
