package diag

// Reporter: минимальный контракт получения диагностик от фаз.
// Реализации: BagReporter (кладёт в Bag), NopReporter.
type Reporter interface {
	Report(d Diagnostic)
}

// BagReporter пишет в *Bag.
type BagReporter struct{ Bag *Bag }

func (r BagReporter) Report(d Diagnostic) {
	if r.Bag == nil {
		return
	}
	r.Bag.Add(d)
}

// NopReporter drops everything.
type NopReporter struct{}

func (NopReporter) Report(Diagnostic) {}

// ReportError is a shortcut for SevError diagnostics.
func ReportError(r Reporter, code Code, file string, line int, msg string) {
	if r == nil {
		return
	}
	r.Report(Diagnostic{Severity: SevError, Code: code, Message: msg, File: file, Line: line})
}

// ReportWarning is a shortcut for SevWarning diagnostics.
func ReportWarning(r Reporter, code Code, file string, line int, msg string) {
	if r == nil {
		return
	}
	r.Report(Diagnostic{Severity: SevWarning, Code: code, Message: msg, File: file, Line: line})
}

// ReportInfo is a shortcut for SevInfo diagnostics.
func ReportInfo(r Reporter, code Code, file string, line int, msg string) {
	if r == nil {
		return
	}
	r.Report(Diagnostic{Severity: SevInfo, Code: code, Message: msg, File: file, Line: line})
}
