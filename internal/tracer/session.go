package tracer

import (
	"strconv"
	"strings"

	"triage/internal/diag"
	"triage/internal/graph"
	"triage/internal/guard"
)

// parseCall handles session records:
//
//	call <site> name=dtype(shape) ... [name=dtype(shape)!const]
//
// Each record is one invocation of a compiled call site with the observed
// input signatures. The profiler replays these against the guard cache.
func (p *parser) parseCall(line int, fields []string) {
	if len(fields) < 2 {
		p.errorf(line, diag.ProfileBadCall, "call wants a site name")
		return
	}
	call := Call{Site: fields[1], Line: line}
	for _, tok := range fields[2:] {
		sig, ok := p.parseSig(line, tok)
		if !ok {
			return
		}
		call.Sigs = append(call.Sigs, sig)
	}
	p.res.Calls = append(p.res.Calls, call)
}

// parseSig parses one "name=dtype(shape)" token, with an optional "!const"
// suffix marking a captured constant.
func (p *parser) parseSig(line int, tok string) (guard.Signature, bool) {
	name, rest, found := strings.Cut(tok, "=")
	if !found || name == "" {
		p.errorf(line, diag.ProfileBadCall, "expected name=dtype(shape), got %q", tok)
		return guard.Signature{}, false
	}

	var constPart string
	if i := strings.IndexByte(rest, '!'); i >= 0 {
		constPart = rest[i+1:]
		rest = rest[:i]
	}

	open := strings.IndexByte(rest, '(')
	if open < 0 || !strings.HasSuffix(rest, ")") {
		p.errorf(line, diag.ProfileBadCall, "expected dtype(shape) in %q", tok)
		return guard.Signature{}, false
	}
	dt, err := graph.ParseDtype(rest[:open])
	if err != nil {
		p.errorf(line, diag.ProfileBadCall, "%v", err)
		return guard.Signature{}, false
	}
	sh, err := parseShape(rest[open:])
	if err != nil {
		p.errorf(line, diag.ProfileBadCall, "%v", err)
		return guard.Signature{}, false
	}

	sig := guard.Signature{Name: name, Shape: sh, Dtype: dt}
	if constPart != "" {
		c, err := strconv.ParseFloat(constPart, 64)
		if err != nil {
			p.errorf(line, diag.ProfileBadCall, "bad constant %q", constPart)
			return guard.Signature{}, false
		}
		sig.Const = &c
	}
	return sig, true
}
