// Package export writes finished runs to disk.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/itohio/freistat/pkg/method"
	"github.com/itohio/freistat/pkg/sample"
	"github.com/itohio/freistat/pkg/store"
)

// File name stems.
const (
	DataPrefix       = "Experiment_Data"
	ParametersPrefix = "Experiment_Parameters"
)

// Column labels.
const (
	ColSequenceCycle = "Sequence Cycle"
	ColCycle         = "Cycle"
	ColDatapoint     = "Data point"
	ColVoltage       = "Voltage in mV"
	ColCurrent       = "Current in uA"
	ColTime          = "Time in ms"
	ColCycleTime     = "Cycle time in ms"
	ColSequenceTime  = "Sequence time in ms"
	ColTotalTime     = "Total time in ms"
)

// Header returns the column labels of a data file for kind. Sequence runs
// carry the sequence cycle and all three time bases.
func Header(kind method.Kind, sequence bool) []string {
	var h []string
	if sequence {
		h = append(h, ColSequenceCycle)
	}
	h = append(h, ColCycle, ColDatapoint, ColVoltage)
	if kind != method.OCP {
		h = append(h, ColCurrent)
	}
	if sequence {
		return append(h, ColCycleTime, ColSequenceTime, ColTotalTime)
	}
	return append(h, ColTime)
}

// Row formats s in the column order of Header.
func Row(s sample.Sample, kind method.Kind, sequence bool) []string {
	var r []string
	if sequence {
		r = append(r, strconv.Itoa(s.SequenceCycle))
	}
	r = append(r, strconv.Itoa(s.Cycle), strconv.Itoa(s.Datapoint), formatFloat(s.Voltage))
	if kind != method.OCP {
		r = append(r, formatFloat(s.Current))
	}
	if sequence {
		return append(r, formatFloat(s.Elapsed), formatFloat(s.SequenceElapsed), formatFloat(s.TotalElapsed))
	}
	return append(r, formatFloat(s.Elapsed))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// RunDir returns the directory a run is exported to.
func RunDir(dir string, st *store.Store) string {
	return filepath.Join(dir, st.RunID().String())
}

// IsSequence reports whether st holds a device-side sequence.
func IsSequence(st *store.Store) bool {
	recs := st.Records()
	return len(recs) > 0 && recs[len(recs)-1].IsMeta()
}

// CSV writes one data file and one parameter file per data record of st
// into a directory named after the run id under dir. It returns the paths
// written.
func CSV(dir string, st *store.Store) ([]string, error) {
	out := RunDir(dir, st)
	if err := os.MkdirAll(out, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	seq := IsSequence(st)
	var paths []string
	for i, rec := range st.Records() {
		name := fmt.Sprintf("SP%d_%s.csv", i, rec.Method())

		if !rec.IsMeta() {
			p := filepath.Join(out, DataPrefix+"_"+name)
			if err := writeData(p, rec, seq); err != nil {
				return paths, err
			}
			paths = append(paths, p)
		}

		p := filepath.Join(out, ParametersPrefix+"_"+name)
		if err := writeParams(p, rec.Params()); err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func writeData(path string, rec *store.Record, seq bool) error {
	return writeFile(path, func(w *csv.Writer) error {
		kind := rec.Method()
		if err := w.Write(Header(kind, seq)); err != nil {
			return err
		}
		for _, s := range rec.Samples() {
			if s.IsSentinel() {
				continue
			}
			if err := w.Write(Row(s, kind, seq)); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeParams(path string, ps method.Params) error {
	return writeFile(path, func(w *csv.Writer) error {
		for _, p := range ps {
			r := []string{p.Tag}
			if p.IsList() {
				for _, v := range p.Values {
					r = append(r, formatFloat(v))
				}
			} else {
				r = append(r, formatFloat(p.Value))
			}
			if err := w.Write(r); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeFile(path string, fill func(*csv.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := fill(w); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
