package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/itohio/freistat/pkg/config"
	"github.com/itohio/freistat/pkg/device"
	"github.com/itohio/freistat/pkg/export"
	"github.com/itohio/freistat/pkg/method"
)

const experimentsYAML = `
experiments:
  - method: OCP
    params:
      duration: 0.03
  - method: CA
    params:
      potential_steps: [0.1, 0.2]
      pulse_lengths: [0.05, 0.03]
`

// useConfig loads content as the configuration the commands see and resets
// the command line globals afterwards.
func useConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	configFile = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0644))

	logger = zap.NewNop()
	quiet = true
	mockFlag = true
	t.Cleanup(func() {
		configFile = "config.yaml"
		quiet, mockFlag = false, false
		portFlag, listenFlag, methodFlag = "", "", ""
		cyclesFlag, selectFlag = 0, nil
		cfg = nil
	})

	var err error
	cfg, err = loadConfig()
	require.NoError(t, err)
	cfg.Execute.Optimize = false
	cfg.Mock.SamplePeriod = 1
	cfg.Export.Directory = filepath.Join(dir, "results")
	cfg.Export.SQLite = filepath.Join(dir, "runs.db")
	return dir
}

func newCmd() (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	return cmd, out
}

func exported(t *testing.T, dir, pattern string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "results", "*", pattern))
	require.NoError(t, err)
	return matches
}

func TestLoadConfig_Overrides(t *testing.T) {
	useConfig(t, "transport:\n  mode: udp\n")
	assert.Equal(t, config.ModeMock, cfg.Transport.Mode)

	mockFlag = false
	portFlag = "/dev/ttyACM1"
	listenFlag = "127.0.0.1:9000"
	c, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, config.ModeSerial, c.Transport.Mode)
	assert.Equal(t, "/dev/ttyACM1", c.Transport.Serial.Port)
	assert.Equal(t, "127.0.0.1:9000", c.Server.Listen)
}

func TestExperiment(t *testing.T) {
	useConfig(t, experimentsYAML)

	exp, err := experiment(nil)
	require.NoError(t, err)
	assert.Equal(t, method.OCP, exp.Kind())

	exp, err = experiment([]string{"1"})
	require.NoError(t, err)
	assert.Equal(t, method.CA, exp.Kind())

	_, err = experiment([]string{"x"})
	assert.Error(t, err)
	_, err = experiment([]string{"5"})
	assert.Error(t, err)

	methodFlag = "swv"
	exp, err = experiment(nil)
	require.NoError(t, err)
	assert.Equal(t, method.SWV, exp.Kind())

	methodFlag = "XYZ"
	_, err = experiment(nil)
	assert.ErrorIs(t, err, method.ErrMethodUnknown)
}

func TestRunSingle(t *testing.T) {
	dir := useConfig(t, experimentsYAML)
	listenFlag = "127.0.0.1:0"

	cmd, _ := newCmd()
	require.NoError(t, runSingle(cmd, []string{"1"}))

	assert.Len(t, exported(t, dir, "Experiment_Data_SP0_CA.csv"), 1)
	assert.Len(t, exported(t, dir, "Experiment_Parameters_SP0_CA.csv"), 1)
	assert.FileExists(t, cfg.Export.SQLite)
}

func TestRunSequence(t *testing.T) {
	dir := useConfig(t, experimentsYAML)
	cyclesFlag = 2

	cmd, _ := newCmd()
	require.NoError(t, runSequence(cmd, nil))

	for _, name := range []string{
		"Experiment_Data_SP0_OCP.csv",
		"Experiment_Data_SP1_CA.csv",
		"Experiment_Parameters_SP2_SEQ.csv",
	} {
		assert.Len(t, exported(t, dir, name), 1, name)
	}
}

func TestRecover(t *testing.T) {
	dir := useConfig(t, experimentsYAML)
	cyclesFlag = 2

	cmd, _ := newCmd()
	require.NoError(t, runSequence(cmd, nil))

	data := exported(t, dir, "Experiment_Data_SP1_CA.csv")
	require.Len(t, data, 1)
	want, err := os.ReadFile(data[0])
	require.NoError(t, err)
	runID := filepath.Base(filepath.Dir(data[0]))

	require.NoError(t, os.RemoveAll(filepath.Join(dir, "results")))

	cmd, out := newCmd()
	require.NoError(t, runRecover(cmd, []string{runID}))
	assert.Contains(t, out.String(), runID)

	for _, name := range []string{
		"Experiment_Data_SP0_OCP.csv",
		"Experiment_Data_SP1_CA.csv",
		"Experiment_Parameters_SP2_SEQ.csv",
	} {
		assert.Len(t, exported(t, dir, name), 1, name)
	}
	got, err := os.ReadFile(data[0])
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
}

func TestRecover_Errors(t *testing.T) {
	useConfig(t, experimentsYAML)

	cmd, _ := newCmd()
	err := runRecover(cmd, []string{"00000000-0000-0000-0000-000000000001"})
	assert.ErrorIs(t, err, export.ErrRunNotFound)

	cfg.Export.SQLite = ""
	assert.Error(t, runRecover(cmd, []string{"00000000-0000-0000-0000-000000000001"}))
}

func TestRunSequence_RejectsSingleMethod(t *testing.T) {
	useConfig(t, experimentsYAML)
	selectFlag = []int{1}

	cmd, _ := newCmd()
	assert.Error(t, runSequence(cmd, nil))
}

func TestConfigCheck(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		want    string
	}{
		{
			name: "valid",
			yaml: experimentsYAML,
			want: "0 OCP: ok\n1 CA: ok\n",
		},
		{
			name: "list mismatch",
			yaml: `
experiments:
  - method: CA
    params:
      potential_steps: [0.1, 0.2, 0.3]
`,
			wantErr: true,
			want:    "0 CA: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useConfig(t, tt.yaml)
			cmd, out := newCmd()
			err := configCheckCmd.RunE(cmd, nil)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, out.String(), tt.want)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.String())
		})
	}
}

func TestConfigInit(t *testing.T) {
	dir := useConfig(t, "")
	name := filepath.Join(dir, "new.yaml")

	cmd, out := newCmd()
	require.NoError(t, configInitCmd.RunE(cmd, []string{name}))
	assert.Contains(t, out.String(), name)

	c, err := config.Load(name)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), c)
}

func TestPrintPorts(t *testing.T) {
	tests := []struct {
		name  string
		ports []device.Port
		want  string
	}{
		{name: "none", want: "no serial ports found\n"},
		{
			name: "usb and plain",
			ports: []device.Port{
				{Name: "/dev/ttyACM0", Description: "FreiStat", USB: true, VID: "2341", PID: "8057"},
				{Name: "/dev/ttyS0", Description: "/dev/ttyS0"},
			},
			want: "/dev/ttyACM0\tFreiStat\t2341:8057\n/dev/ttyS0\t/dev/ttyS0\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printPorts(&buf, tt.ports)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}
