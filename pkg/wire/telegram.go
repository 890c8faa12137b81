package wire

import "fmt"

// Data is the content of an inbound measurement telegram
// {"R":run,"M":{"D":datapoint,"V":mV,"C":µA,"T":ms}}.
type Data struct {
	Run        int
	Datapoint  int
	Voltage    float64 // mV
	Current    float64 // µA, absent for OCP
	HasCurrent bool
	Time       float64 // ms since device start
	HasTime    bool
}

// IsData reports whether v is a measurement telegram.
func IsData(v Value) bool { return v.FirstKey() == KeyRun }

// IsCommand reports whether v is a command telegram. The device sends one
// when an experiment completes.
func IsCommand(v Value) bool { return v.FirstKey() == KeyCommand }

// IsAck reports whether v is an acknowledge telegram.
func IsAck(v Value) bool { return v.FirstKey() == KeyAck }

// IsError reports whether v is an error telegram.
func IsError(v Value) bool { return v.FirstKey() == KeyError }

// AckID returns the command id carried by the first member of v. The device
// acknowledges with {"A":id}; an echoed {"C":id,...} is accepted as well.
func AckID(v Value) (CommandID, bool) {
	for _, key := range []string{KeyAck, KeyCommand} {
		if n, ok := leading(v, key); ok {
			return CommandID(n), true
		}
	}
	return 0, false
}

// ErrorCode returns the code of an error telegram {"E":code}.
func ErrorCode(v Value) (int, bool) {
	n, ok := leading(v, KeyError)
	return int(n), ok
}

func leading(v Value, key string) (float64, bool) {
	m, ok := v.Member(0)
	if !ok || m.Key != key {
		return 0, false
	}
	return m.Value.AsNumber()
}

// ParseData reads a measurement telegram by position. The measurement object
// holds D and V, then optionally C, then optionally T, in that order.
func ParseData(v Value) (Data, error) {
	var d Data

	run, ok := v.Member(0)
	if !ok || run.Key != KeyRun {
		return d, fmt.Errorf("%w: data telegram must start with %q", ErrTelegram, KeyRun)
	}
	n, ok := run.Value.AsNumber()
	if !ok {
		return d, fmt.Errorf("%w: run id is %s", ErrTelegram, run.Value.Kind())
	}
	d.Run = int(n)

	meas, ok := v.Member(1)
	if !ok || meas.Key != KeyMeasurement || meas.Value.Kind() != KindObject {
		return d, fmt.Errorf("%w: data telegram must carry %q object second", ErrTelegram, KeyMeasurement)
	}

	fields := meas.Value.Members()
	if len(fields) < 2 || fields[0].Key != KeyDatapoint || fields[1].Key != KeyVoltage {
		return d, fmt.Errorf("%w: measurement must start with %q, %q", ErrTelegram, KeyDatapoint, KeyVoltage)
	}
	if d.Datapoint, ok = intField(fields[0]); !ok {
		return d, fmt.Errorf("%w: datapoint is not a number", ErrTelegram)
	}
	if d.Voltage, ok = fields[1].Value.AsNumber(); !ok {
		return d, fmt.Errorf("%w: voltage is not a number", ErrTelegram)
	}

	rest := fields[2:]
	if len(rest) > 0 && rest[0].Key == KeyCurrent {
		if d.Current, ok = rest[0].Value.AsNumber(); !ok {
			return d, fmt.Errorf("%w: current is not a number", ErrTelegram)
		}
		d.HasCurrent = true
		rest = rest[1:]
	}
	if len(rest) > 0 && rest[0].Key == KeyTime {
		if d.Time, ok = rest[0].Value.AsNumber(); !ok {
			return d, fmt.Errorf("%w: time is not a number", ErrTelegram)
		}
		d.HasTime = true
		rest = rest[1:]
	}
	if len(rest) > 0 {
		return d, fmt.Errorf("%w: unexpected measurement field %q", ErrTelegram, rest[0].Key)
	}
	return d, nil
}

func intField(m Member) (int, bool) {
	n, ok := m.Value.AsNumber()
	return int(n), ok
}

// DataTelegram builds the value tree of a measurement telegram. Used by the
// device emulator.
func DataTelegram(d Data) Value {
	fields := []Member{
		{Key: KeyDatapoint, Value: Number(float64(d.Datapoint))},
		{Key: KeyVoltage, Value: Number(d.Voltage)},
	}
	if d.HasCurrent {
		fields = append(fields, Member{Key: KeyCurrent, Value: Number(d.Current)})
	}
	if d.HasTime {
		fields = append(fields, Member{Key: KeyTime, Value: Number(d.Time)})
	}
	return Object(
		Member{Key: KeyRun, Value: Number(float64(d.Run))},
		Member{Key: KeyMeasurement, Value: Object(fields...)},
	)
}

// AckTelegram builds the acknowledge the device sends for cmd.
func AckTelegram(cmd Command) Value {
	return Object(Member{Key: KeyAck, Value: Number(float64(cmd.ID))})
}

// ErrorTelegram builds the telegram the device sends when it rejects a
// command.
func ErrorTelegram(code int) Value {
	return Object(Member{Key: KeyError, Value: Number(float64(code))})
}

// CompletionTelegram builds the telegram the device sends when an experiment
// has finished.
func CompletionTelegram() Value {
	return Object(
		Member{Key: KeyCommand, Value: Number(float64(ExperimentControl))},
		Member{Key: commandKeys[ExperimentControl], Value: String(controlTokens[ControlWaiting])},
	)
}
