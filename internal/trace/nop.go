package trace

// Nop discards every event. It is the tracer commands run with when logging
// is off, so emit paths never need a nil check.
var Nop Tracer = nopTracer{}

type nopTracer struct{}

func (nopTracer) Emit(Event)    {}
func (nopTracer) Flush() error  { return nil }
func (nopTracer) Close() error  { return nil }
func (nopTracer) Level() Level  { return LevelOff }
func (nopTracer) Enabled() bool { return false }
