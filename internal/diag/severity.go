package diag

// Severity ranks a diagnostic. The order matters: filtering compares
// severities numerically (info < warning < error).
type Severity uint8

const (
	SevInfo Severity = iota
	SevWarning
	SevError
)

var sevNames = [...]string{"INFO", "WARNING", "ERROR"}

func (s Severity) String() string {
	if int(s) < len(sevNames) {
		return sevNames[s]
	}
	return "UNKNOWN"
}
