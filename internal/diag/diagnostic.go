package diag

// Note attaches secondary context to a diagnostic.
type Note struct {
	File string
	Line int
	Msg  string
}

// Diagnostic is a single reportable finding anchored to a trace file line.
type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	File     string
	Line     int
	Notes    []Note
}

// WithNote returns a copy with an extra note appended.
func (d Diagnostic) WithNote(file string, line int, msg string) Diagnostic {
	d.Notes = append(d.Notes, Note{File: file, Line: line, Msg: msg})
	return d
}
