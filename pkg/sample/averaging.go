package sample

// NewAveragingConverter creates a converter that replaces every windowSize
// consecutive samples of one cycle with their mean. A cycle change or the end
// of the input flushes a partial window. Sentinels pass through unchanged.
func NewAveragingConverter(windowSize int, bufSize int) func(in <-chan Sample) <-chan Sample {
	if windowSize <= 0 {
		windowSize = 1
	}
	if bufSize <= 0 {
		bufSize = 100
	}

	return func(in <-chan Sample) <-chan Sample {
		out := make(chan Sample, bufSize)

		go func() {
			defer close(out)

			buffer := make([]Sample, 0, windowSize)
			flush := func() {
				if len(buffer) > 0 {
					out <- Average(buffer)
					buffer = buffer[:0]
				}
			}

			for s := range in {
				if s.IsSentinel() {
					flush()
					out <- s
					continue
				}
				if len(buffer) > 0 && (buffer[0].Cycle != s.Cycle || buffer[0].Method != s.Method) {
					flush()
				}
				buffer = append(buffer, s)
				if len(buffer) == windowSize {
					flush()
				}
			}
			flush()
		}()

		return out
	}
}

// Average returns the mean of samples. Indices and times are taken from the
// most recent sample.
func Average(samples []Sample) Sample {
	if len(samples) == 0 {
		return Sample{}
	}

	var sumVoltage, sumCurrent float64
	last := samples[len(samples)-1]

	for _, s := range samples {
		sumVoltage += s.Voltage
		sumCurrent += s.Current
	}

	n := float64(len(samples))
	avg := last
	avg.Voltage = sumVoltage / n
	avg.Current = sumCurrent / n
	return avg
}
