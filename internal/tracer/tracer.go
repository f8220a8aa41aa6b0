// Package tracer captures computation graphs from textual trace files.
//
// A trace file is the explicit instrumentation boundary: programs under
// study emit one line per recorded operation, plus break directives at
// program locations the instrumentation could not represent. The tracer
// never fails on an unsupported operation; it records a break reason and
// starts a new graph fragment. Malformed syntax is still an error
// (reported through the diagnostic bag, not a Go error).
package tracer

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"triage/internal/diag"
	"triage/internal/graph"
	"triage/internal/guard"
)

// BreakReason classifies why tracing could not continue.
type BreakReason uint8

const (
	BreakBuiltin BreakReason = iota // builtin call
	BreakCExt                       // C-extension call
	BreakBranch                     // control-dependent branch
)

func (r BreakReason) String() string {
	switch r {
	case BreakBuiltin:
		return "builtin"
	case BreakCExt:
		return "cext"
	case BreakBranch:
		return "branch"
	}
	return "unknown"
}

// ParseBreakReason converts a keyword to a BreakReason.
func ParseBreakReason(s string) (BreakReason, error) {
	switch s {
	case "builtin":
		return BreakBuiltin, nil
	case "cext":
		return BreakCExt, nil
	case "branch":
		return BreakBranch, nil
	default:
		return BreakBuiltin, fmt.Errorf("invalid break reason: %q (expected: builtin|cext|branch)", s)
	}
}

// Break is a recorded representability boundary.
type Break struct {
	File   string
	Line   int
	Reason BreakReason
	Detail string
}

// Call is a recorded call-site invocation from a session trace.
type Call struct {
	Site string
	Line int
	Sigs []guard.Signature
}

// Stats aggregates counts across all fragments of one trace.
type Stats struct {
	Fragments int
	Breaks    int
	Ops       int
}

// Options controls tracing.
type Options struct {
	// Filter restricts capture to func sections matching this name.
	// Empty means capture everything.
	Filter string
	// MaxDiagnostics bounds the diagnostic bag (default 100).
	MaxDiagnostics int
}

// Result of tracing one file.
type Result struct {
	Fragments []*graph.Graph
	Breaks    []Break
	Calls     []Call
	Stats     Stats
	Diags     *diag.Bag
}

// Trace parses src into graph fragments. It returns an error only for nil
// input; everything discovered about the trace, including syntax errors,
// lands in Result.Diags.
func Trace(file string, src []byte, opts Options) (*Result, error) {
	if src == nil {
		return nil, fmt.Errorf("tracer: nil source for %q", file)
	}
	p := &parser{
		file: file,
		opts: opts,
		res: &Result{
			Diags: diag.NewBag(opts.MaxDiagnostics),
		},
	}
	p.startSection("main")
	p.run(string(src))
	p.flush()
	p.res.Stats.Fragments = len(p.res.Fragments)
	p.res.Stats.Breaks = len(p.res.Breaks)
	for _, g := range p.res.Fragments {
		p.res.Stats.Ops += g.OpCount()
	}
	return p.res, nil
}

type parser struct {
	file string
	opts Options
	res  *Result

	section  string // current func name
	fragIdx  int    // fragment counter within the section
	skipping bool   // section filtered out

	frag frag
}

// frag accumulates one graph fragment.
type frag struct {
	g     graph.Graph
	maxID graph.NodeID
	seen  map[graph.NodeID]struct{}
	names map[string]graph.NodeID
	began bool
}

func (p *parser) run(src string) {
	lines := strings.Split(src, "\n")
	for i, raw := range lines {
		p.parseLine(i+1, raw)
	}
}

func (p *parser) startSection(name string) {
	p.section = name
	p.fragIdx = 0
	p.skipping = p.opts.Filter != "" && name != p.opts.Filter
	p.resetFrag()
}

func (p *parser) resetFrag() {
	name := p.section
	if p.fragIdx > 0 {
		name = fmt.Sprintf("%s#%d", p.section, p.fragIdx)
	}
	p.frag = frag{
		g:     graph.Graph{Name: name},
		seen:  make(map[graph.NodeID]struct{}),
		names: make(map[string]graph.NodeID),
	}
}

// flush finalizes the current fragment, if it has any nodes.
func (p *parser) flush() {
	f := &p.frag
	if !f.began {
		return
	}
	g := f.g
	if err := graph.Validate(&g); err != nil {
		diag.ReportError(diag.BagReporter{Bag: p.res.Diags}, diag.TraceBadSyntax, p.file, 0,
			fmt.Sprintf("fragment %q is malformed: %v", g.Name, err))
	} else {
		p.res.Fragments = append(p.res.Fragments, &g)
	}
	p.fragIdx++
	p.resetFrag()
}

// breakHere records a break and fragments the trace.
func (p *parser) breakHere(line int, reason BreakReason, detail string) {
	p.res.Breaks = append(p.res.Breaks, Break{File: p.file, Line: line, Reason: reason, Detail: detail})
	diag.ReportInfo(diag.BagReporter{Bag: p.res.Diags}, diag.BreakCode(reason.String()), p.file, line,
		fmt.Sprintf("trace break (%s): %s", reason, detail))
	p.flush()
}

func (p *parser) errorf(line int, code diag.Code, format string, args ...any) {
	diag.ReportError(diag.BagReporter{Bag: p.res.Diags}, code, p.file, line, fmt.Sprintf(format, args...))
}

func (p *parser) parseLine(line int, raw string) {
	s := strings.TrimSpace(stripComment(raw))
	if s == "" {
		return
	}

	fields := strings.Fields(s)
	switch fields[0] {
	case "func":
		p.flush()
		if len(fields) != 2 {
			p.errorf(line, diag.TraceBadSyntax, "func wants a name")
			return
		}
		p.startSection(fields[1])
	case "call":
		p.parseCall(line, fields)
	case "input":
		if p.skipping {
			return
		}
		p.parseInput(line, fields, false)
	case "const":
		if p.skipping {
			return
		}
		p.parseInput(line, fields, true)
	case "output":
		if p.skipping {
			return
		}
		p.parseOutput(line, fields)
	case "break":
		if p.skipping {
			return
		}
		p.parseBreak(line, s, fields)
	default:
		if p.skipping {
			return
		}
		p.parseOp(line, fields)
	}
}

func (p *parser) parseBreak(line int, s string, fields []string) {
	if len(fields) < 2 {
		p.errorf(line, diag.TraceBadSyntax, "break wants a reason")
		return
	}
	reason, err := ParseBreakReason(fields[1])
	if err != nil {
		p.errorf(line, diag.TraceBadSyntax, "%v", err)
		return
	}
	detail := ""
	if i := strings.IndexByte(s, '"'); i >= 0 {
		if j := strings.LastIndexByte(s, '"'); j > i {
			detail = s[i+1 : j]
		}
	}
	p.breakHere(line, reason, detail)
}

// parseOp handles `%N = sym %a %b ... [!fail(stage)]`.
func (p *parser) parseOp(line int, fields []string) {
	if len(fields) < 3 || fields[1] != "=" || !strings.HasPrefix(fields[0], "%") {
		p.errorf(line, diag.TraceBadSyntax, "cannot parse %q", strings.Join(fields, " "))
		return
	}
	id, ok := p.nodeID(line, fields[0])
	if !ok {
		return
	}
	sym := norm.NFC.String(fields[2])
	if !graph.KnownOp(sym) {
		// representability boundary: record and fragment, never fail
		p.breakHere(line, BreakBuiltin, sym)
		return
	}

	var args []graph.NodeID
	fail := graph.StageNone
	for _, tok := range fields[3:] {
		if strings.HasPrefix(tok, "!fail(") && strings.HasSuffix(tok, ")") {
			st, err := graph.ParseStage(tok[len("!fail(") : len(tok)-1])
			if err != nil {
				p.errorf(line, diag.TraceBadSyntax, "%v", err)
				return
			}
			fail = st
			continue
		}
		ref, ok := p.resolveRef(line, tok)
		if !ok {
			return
		}
		args = append(args, ref)
	}

	if !p.defineID(line, id) {
		return
	}
	p.frag.g.Ops = append(p.frag.g.Ops, graph.Operation{
		ID: id, Sym: sym, Args: args, Fail: fail, Line: line,
	})
	p.frag.began = true
}

func (p *parser) parseOutput(line int, fields []string) {
	if len(fields) != 2 {
		p.errorf(line, diag.TraceBadSyntax, "output wants one node")
		return
	}
	ref, ok := p.resolveRef(line, fields[1])
	if !ok {
		return
	}
	p.frag.g.Outputs = append(p.frag.g.Outputs, ref)
	p.frag.began = true
}

// parseInput handles both input and const declarations.
func (p *parser) parseInput(line int, fields []string, isConst bool) {
	if len(fields) < 3 || !strings.HasPrefix(fields[1], "%") {
		p.errorf(line, diag.TraceBadSyntax, "input wants %%id and a name")
		return
	}
	id, ok := p.nodeID(line, fields[1])
	if !ok {
		return
	}
	name := fields[2]

	in := graph.Input{ID: id, Name: name, Dtype: graph.DtypeF32}
	var data []float64
	haveValue := false
	for _, tok := range fields[3:] {
		k, v, found := strings.Cut(tok, "=")
		if !found {
			p.errorf(line, diag.TraceBadSyntax, "expected key=value, got %q", tok)
			return
		}
		switch k {
		case "shape":
			sh, err := parseShape(v)
			if err != nil {
				p.errorf(line, diag.TraceBadValue, "%v", err)
				return
			}
			in.Shape = sh
		case "dtype":
			dt, err := graph.ParseDtype(v)
			if err != nil {
				p.errorf(line, diag.TraceBadValue, "%v", err)
				return
			}
			in.Dtype = dt
		case "value":
			d, err := parseData(v)
			if err != nil {
				p.errorf(line, diag.TraceBadValue, "%v", err)
				return
			}
			data = d
			haveValue = true
		default:
			p.errorf(line, diag.TraceBadSyntax, "unknown attribute %q", k)
			return
		}
	}
	if isConst && !haveValue {
		p.errorf(line, diag.TraceBadValue, "const %q wants a value", name)
		return
	}
	if haveValue {
		in.Value = &graph.Value{Shape: in.Shape, Dtype: in.Dtype, Data: data}
	}

	if !p.defineID(line, id) {
		return
	}
	p.frag.g.Inputs = append(p.frag.g.Inputs, in)
	p.frag.names[name] = id
	p.frag.began = true
}

// nodeID parses "%N".
func (p *parser) nodeID(line int, tok string) (graph.NodeID, bool) {
	if !strings.HasPrefix(tok, "%") {
		p.errorf(line, diag.TraceBadSyntax, "expected %%id, got %q", tok)
		return 0, false
	}
	var n uint64
	if _, err := fmt.Sscanf(tok[1:], "%d", &n); err != nil {
		p.errorf(line, diag.TraceBadSyntax, "bad node id %q", tok)
		return 0, false
	}
	return graph.NodeID(n), true
}

// defineID registers a new node id; ids must strictly ascend per fragment.
func (p *parser) defineID(line int, id graph.NodeID) bool {
	f := &p.frag
	if _, dup := f.seen[id]; dup {
		p.errorf(line, diag.TraceDupNode, "node %%%d already defined", id)
		return false
	}
	if f.began && id <= f.maxID {
		p.errorf(line, diag.TraceBadSyntax, "node %%%d is not greater than %%%d", id, f.maxID)
		return false
	}
	f.seen[id] = struct{}{}
	f.maxID = id
	return true
}

// resolveRef resolves "%N" against the current fragment. References across
// a fragment boundary are errors: a break makes earlier results unreachable.
func (p *parser) resolveRef(line int, tok string) (graph.NodeID, bool) {
	id, ok := p.nodeID(line, tok)
	if !ok {
		return 0, false
	}
	if _, exists := p.frag.seen[id]; !exists {
		p.errorf(line, diag.TraceBadRef, "node %%%d is not visible in this fragment", id)
		return 0, false
	}
	return id, true
}

func stripComment(s string) string {
	if i := strings.IndexByte(s, '#'); i >= 0 {
		return s[:i]
	}
	return s
}
