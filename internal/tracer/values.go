package tracer

import (
	"fmt"
	"strconv"
	"strings"

	"triage/internal/graph"
)

// parseShape parses "(2,3)" or "()" into a Shape.
func parseShape(s string) (graph.Shape, error) {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return nil, fmt.Errorf("bad shape %q", s)
	}
	body := s[1 : len(s)-1]
	if body == "" {
		return graph.Shape{}, nil
	}
	parts := strings.Split(body, ",")
	sh := make(graph.Shape, len(parts))
	for i, p := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || d < 0 {
			return nil, fmt.Errorf("bad dimension %q in shape %q", p, s)
		}
		sh[i] = d
	}
	return sh, nil
}

// parseData parses "[1,2.5,-3]" into a float slice. A bare scalar like
// "1.5" is accepted as a one-element list.
func parseData(s string) ([]float64, error) {
	if len(s) > 0 && s[0] != '[' {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("bad value %q", s)
		}
		return []float64{v}, nil
	}
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("bad value list %q", s)
	}
	body := s[1 : len(s)-1]
	if body == "" {
		return []float64{}, nil
	}
	parts := strings.Split(body, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q in value list", p)
		}
		out[i] = v
	}
	return out, nil
}
