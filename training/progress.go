package training

import (
	"fmt"
	"io"
	"os"
	"time"
)

// ProgressPrinter logs aggregated loss and error metrics at a fixed
// minibatch frequency, plus a summary line at the end of every epoch.
type ProgressPrinter struct {
	freq  int // print every freq minibatches; 0 prints only epoch summaries
	first int // always print the first few minibatches
	tag   string
	out   io.Writer

	epoch       int
	epochStart  time.Time
	mbCount     int
	lastPrinted int
	window      Metrics // since the last progress line
	epochTotal  Metrics
}

// NewProgressPrinter creates a printer that writes to stdout.
func NewProgressPrinter(freq, first int, tag string) *ProgressPrinter {
	return &ProgressPrinter{
		freq:       freq,
		first:      first,
		tag:        tag,
		out:        os.Stdout,
		epoch:      1,
		epochStart: time.Now(),
	}
}

// SetOutput redirects progress output, mainly for tests.
func (p *ProgressPrinter) SetOutput(w io.Writer) { p.out = w }

// Update records one minibatch result and prints a progress line when the
// frequency is due.
func (p *ProgressPrinter) Update(m Metrics) {
	p.mbCount++
	p.window.Add(m)
	p.epochTotal.Add(m)

	due := p.mbCount <= p.first
	if !due && p.freq > 0 && p.mbCount%p.freq == 0 {
		due = true
	}
	if !due {
		return
	}

	fmt.Fprintf(p.out, " Minibatch[%4d-%4d]: loss = %.6f * %d, metric = %.2f%% * %d;\n",
		p.lastPrinted+1, p.mbCount,
		p.window.AvgLoss(), p.window.Samples,
		p.window.ErrorRate()*100, p.window.Samples)
	p.lastPrinted = p.mbCount
	p.window = Metrics{}
}

// FinishEpoch prints the epoch summary and returns the epoch totals,
// resetting the counters for the next epoch.
func (p *ProgressPrinter) FinishEpoch() Metrics {
	total := p.epochTotal
	elapsed := time.Since(p.epochStart).Seconds()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(total.Samples) / elapsed
	}
	fmt.Fprintf(p.out, "Finished Epoch[%d]: [%s] loss = %.6f * %d, metric = %.2f%% * %d, %.1f samples/s\n",
		p.epoch, p.tag,
		total.AvgLoss(), total.Samples,
		total.ErrorRate()*100, total.Samples, rate)

	p.epoch++
	p.epochStart = time.Now()
	p.mbCount = 0
	p.lastPrinted = 0
	p.window = Metrics{}
	p.epochTotal = Metrics{}
	return total
}
