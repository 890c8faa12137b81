package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/env"
	"gopkg.in/yaml.v3"

	"github.com/itohio/freistat/pkg/method"
)

// Transport modes.
const (
	ModeSerial = "serial"
	ModeUDP    = "udp"
	ModeMock   = "mock"
)

// EnvPrefix marks environment variables that override file values. Nested
// keys are separated by a double underscore, e.g.
// FREISTAT_TRANSPORT__SERIAL__PORT=/dev/ttyACM0.
const EnvPrefix = "FREISTAT_"

// Config represents the application configuration.
type Config struct {
	Transport   TransportConfig    `yaml:"transport"`
	Execute     ExecuteConfig      `yaml:"execute"`
	Export      ExportConfig       `yaml:"export"`
	Server      ServerConfig       `yaml:"server"`
	Mock        MockConfig         `yaml:"mock"`
	Sequence    SequenceConfig     `yaml:"sequence"`
	Experiments []ExperimentConfig `yaml:"experiments"`
}

// TransportConfig selects and configures the link to the instrument.
type TransportConfig struct {
	Mode   string       `yaml:"mode"`
	Serial SerialConfig `yaml:"serial"`
	UDP    UDPConfig    `yaml:"udp"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port     string        `yaml:"port"`
	BaudRate int           `yaml:"baud_rate"`
	Timeout  time.Duration `yaml:"timeout"` // read timeout, bounds Close latency
}

// UDPConfig contains the addresses of the WLAN link.
type UDPConfig struct {
	Server string `yaml:"server"` // local address the host binds
	Client string `yaml:"client"` // address of the instrument
}

// ExecuteConfig contains run behaviour.
type ExecuteConfig struct {
	AckTimeout  time.Duration `yaml:"ack_timeout"`
	Progressive bool          `yaml:"progressive"` // keep one time base across cycles
	BufferSize  int           `yaml:"buffer_size"` // live sample channel capacity
	Optimize    bool          `yaml:"optimize"`
}

// ExportConfig controls where finished runs are written.
type ExportConfig struct {
	Directory string `yaml:"directory"`
	CSV       bool   `yaml:"csv"`
	SQLite    string `yaml:"sqlite"` // database file, empty disables
}

// ServerConfig contains the HTTP status server configuration.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// MockConfig contains firmware emulator configuration.
type MockConfig struct {
	CellResistance float64       `yaml:"cell_resistance"` // Ω
	OpenCircuit    float64       `yaml:"open_circuit"`    // mV
	Noise          float64       `yaml:"noise"`           // µA peak
	SamplePeriod   time.Duration `yaml:"sample_period"`   // telegram pacing
}

// SequenceConfig contains the repeat count for device-side sequences.
type SequenceConfig struct {
	Cycles int `yaml:"cycles"`
}

// ExperimentConfig describes one method. Params holds the fields of the
// method's descriptor in SI units; fields left out keep their defaults.
type ExperimentConfig struct {
	Method string     `yaml:"method"`
	Params *yaml.Node `yaml:"params,omitempty"`
}

// Build returns the descriptor of e with its params applied over the
// method's defaults.
func (e ExperimentConfig) Build() (method.Experiment, error) {
	kind, err := method.ParseKind(strings.ToUpper(e.Method))
	if err != nil {
		return nil, err
	}
	exp := method.Default(kind)
	if exp == nil {
		return nil, fmt.Errorf("%w: %s has no descriptor", method.ErrMethodUnknown, kind)
	}
	if e.Params != nil {
		if err := e.Params.Decode(exp); err != nil {
			return nil, fmt.Errorf("failed to parse %s params: %w", kind, err)
		}
	}
	return exp, nil
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Transport: TransportConfig{
			Mode: ModeSerial,
			Serial: SerialConfig{
				Port:     "COM3", // Default for Windows, "/dev/ttyACM0" on Linux
				BaudRate: 230400,
				Timeout:  400 * time.Millisecond,
			},
			UDP: UDPConfig{
				Server: "192.168.178.21:20001",
				Client: "192.168.178.40:20000",
			},
		},
		Execute: ExecuteConfig{
			AckTimeout: 2 * time.Second,
			BufferSize: 100,
			Optimize:   true,
		},
		Export: ExportConfig{
			Directory: "results",
			CSV:       true,
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:8086",
		},
		Mock: MockConfig{
			CellResistance: 10e3,
			OpenCircuit:    120,
			Noise:          0.05,
			SamplePeriod:   5 * time.Millisecond,
		},
		Sequence: SequenceConfig{
			Cycles: 1,
		},
		Experiments: []ExperimentConfig{
			{Method: string(method.CV)},
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// LoadEnv overlays FREISTAT_* environment variables onto c.
func (c *Config) LoadEnv() error {
	return c.loadEnv(env.Provider(EnvPrefix, ".", envKey))
}

func (c *Config) loadEnv(p koanf.Provider) error {
	k := koanf.New(".")
	if err := k.Load(p, nil); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	if len(k.Keys()) == 0 {
		return nil
	}
	if err := k.UnmarshalWithConf("", c, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return fmt.Errorf("failed to apply environment: %w", err)
	}
	c.ensureDefaults()
	return nil
}

// envKey maps FREISTAT_EXECUTE__ACK_TIMEOUT to execute.ack_timeout.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Experiment builds the descriptor of the i-th configured experiment.
func (c *Config) Experiment(i int) (method.Experiment, error) {
	if i < 0 || i >= len(c.Experiments) {
		return nil, fmt.Errorf("experiment %d not configured", i)
	}
	exp, err := c.Experiments[i].Build()
	if err != nil {
		return nil, fmt.Errorf("experiment %d: %w", i, err)
	}
	return exp, nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Transport.Mode == "" {
		c.Transport.Mode = def.Transport.Mode
	}
	if c.Transport.Serial.Port == "" {
		c.Transport.Serial.Port = def.Transport.Serial.Port
	}
	if c.Transport.Serial.BaudRate == 0 {
		c.Transport.Serial.BaudRate = def.Transport.Serial.BaudRate
	}
	if c.Transport.Serial.Timeout == 0 {
		c.Transport.Serial.Timeout = def.Transport.Serial.Timeout
	}
	if c.Transport.UDP.Server == "" {
		c.Transport.UDP.Server = def.Transport.UDP.Server
	}
	if c.Transport.UDP.Client == "" {
		c.Transport.UDP.Client = def.Transport.UDP.Client
	}

	if c.Execute.AckTimeout == 0 {
		c.Execute.AckTimeout = def.Execute.AckTimeout
	}
	if c.Execute.BufferSize == 0 {
		c.Execute.BufferSize = def.Execute.BufferSize
	}

	if c.Export.Directory == "" {
		c.Export.Directory = def.Export.Directory
	}
	if c.Server.Listen == "" {
		c.Server.Listen = def.Server.Listen
	}

	if c.Mock.CellResistance == 0 {
		c.Mock.CellResistance = def.Mock.CellResistance
	}
	if c.Mock.SamplePeriod == 0 {
		c.Mock.SamplePeriod = def.Mock.SamplePeriod
	}

	if c.Sequence.Cycles == 0 {
		c.Sequence.Cycles = def.Sequence.Cycles
	}
	if len(c.Experiments) == 0 {
		c.Experiments = def.Experiments
	}
}
