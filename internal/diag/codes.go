package diag

import "fmt"

type Code uint16

const (
	// Неизвестная ошибка - на первое время
	UnknownCode Code = 0

	// Tracing
	TraceInfo         Code = 1000
	TraceBreakBuiltin Code = 1001 // builtin call could not be represented
	TraceBreakCExt    Code = 1002 // C-extension call could not be represented
	TraceBreakBranch  Code = 1003 // control-dependent branch
	TraceBadSyntax    Code = 1004
	TraceBadRef       Code = 1005 // reference across a fragment boundary
	TraceBadValue     Code = 1006
	TraceDupNode      Code = 1007

	// Backend execution
	ExecInfo      Code = 2000
	ExecFailed    Code = 2001
	ExecBadShape  Code = 2002
	ExecUnknownOp Code = 2003
	LowerFailed   Code = 2004

	// Guards
	GuardInfo           Code = 3000
	GuardShapeMismatch  Code = 3001
	GuardDtypeMismatch  Code = 3002
	GuardIdentityChange Code = 3003
	GuardConstChange    Code = 3004
	GuardMissingValue   Code = 3005

	// Minification
	MinifyInfo            Code = 4000
	MinifyNonReproducible Code = 4001
	MinifyBudgetExhausted Code = 4002

	// Recompilation profiling
	ProfileInfo    Code = 5000
	ProfileCapped  Code = 5001
	ProfileNosite  Code = 5002
	ProfileBadCall Code = 5003
)

func (c Code) String() string {
	return fmt.Sprintf("TRG%04d", uint16(c))
}

// BreakCode maps a trace-break reason keyword to its diagnostic code.
func BreakCode(reason string) Code {
	switch reason {
	case "builtin":
		return TraceBreakBuiltin
	case "cext":
		return TraceBreakCExt
	case "branch":
		return TraceBreakBranch
	default:
		return UnknownCode
	}
}
