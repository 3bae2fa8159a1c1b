package train

import (
	"fmt"
	"io"
	"os"

	"k8s.io/klog/v2"
)

// Record is what the trainer reports after a validated epoch.
// Validation fields are only meaningful when Validated is set.
type Record struct {
	Epoch, Epochs  int
	Cost, F1       float64
	Validated      bool
	ValidationCost float64
	ValidationF1   float64
}

func (r Record) String() string {
	s := fmt.Sprintf("epoch %d/%d: cost=%.6f f1=%.2f%%", r.Epoch, r.Epochs, r.Cost, r.F1)
	if r.Validated {
		s += fmt.Sprintf(" dev_cost=%.6f dev_f1=%.2f%%", r.ValidationCost, r.ValidationF1)
	}
	return s
}

// Reporter observes training progress.
type Reporter interface {
	Report(Record)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Record)

func (f ReporterFunc) Report(r Record) { f(r) }

// LogReporter logs every record through klog.
type LogReporter struct{}

func (LogReporter) Report(r Record) {
	klog.Infof("%s", r)
}

// WriterReporter prints one line per record. A nil W writes to os.Stdout.
type WriterReporter struct {
	W io.Writer
}

func (w WriterReporter) Report(r Record) {
	out := w.W
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintln(out, r.String())
}

// History keeps every record it receives.
type History struct {
	Records []Record
}

func (h *History) Report(r Record) {
	h.Records = append(h.Records, r)
}

// Reporters fans a record out to several reporters.
type Reporters []Reporter

func (rs Reporters) Report(r Record) {
	for _, rep := range rs {
		rep.Report(r)
	}
}
