package service

import (
	"fmt"
	"time"

	"github.com/luminapay/invoice-engine/internal/model"
)

// diagnostics accumulates the invoice's leveled log trail during creation.
// It is owned by the single orchestrating flow (handed off to the detached
// flush goroutine at the end), so no locking is needed.
type diagnostics struct {
	entries []model.InvoiceLogEntry
}

func newDiagnostics() *diagnostics {
	return &diagnostics{}
}

func (d *diagnostics) add(severity model.LogSeverity, format string, args ...any) {
	d.entries = append(d.entries, model.InvoiceLogEntry{
		Severity:  severity,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now().UTC(),
	})
}

func (d *diagnostics) Info(format string, args ...any) {
	d.add(model.SeverityInfo, format, args...)
}

func (d *diagnostics) Warning(format string, args ...any) {
	d.add(model.SeverityWarning, format, args...)
}

func (d *diagnostics) Error(format string, args ...any) {
	d.add(model.SeverityError, format, args...)
}

// Time measures a pipeline stage. The returned stop function records the
// elapsed time as an Info entry.
func (d *diagnostics) Time(stage string) func() {
	start := time.Now()
	return func() {
		d.Info("%s took %dms", stage, time.Since(start).Milliseconds())
	}
}

func (d *diagnostics) Entries() []model.InvoiceLogEntry {
	return d.entries
}
