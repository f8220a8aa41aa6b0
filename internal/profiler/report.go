package profiler

import (
	"fmt"
	"io"
)

// SiteReport is the recompilation history of one call site.
type SiteReport struct {
	Site       string
	State      State
	Recompiles int
	// Triggers is the ordered sequence of (failing guard, observed
	// signature) pairs, one per recompilation attempt.
	Triggers []Trigger
}

// Report returns per-site reports in first-seen call-site order.
func (p *Profiler) Report() []SiteReport {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]SiteReport, 0, len(p.order))
	for _, id := range p.order {
		s := p.sites[id]
		s.mu.Lock()
		out = append(out, SiteReport{
			Site:       id,
			State:      s.state,
			Recompiles: s.recompiles,
			Triggers:   append([]Trigger(nil), s.triggers...),
		})
		s.mu.Unlock()
	}
	return out
}

// WriteReport renders the report as text.
func WriteReport(w io.Writer, reports []SiteReport, limit int) error {
	for _, r := range reports {
		if _, err := fmt.Fprintf(w, "%s: %s, %d recompilation(s) (limit %d)\n",
			r.Site, r.State, r.Recompiles, limit); err != nil {
			return err
		}
		for i, t := range r.Triggers {
			if _, err := fmt.Fprintf(w, "  #%d guard %s failed: %s [%s]\n",
				i+1, t.Guard.ID, t.Reason, t.Signature); err != nil {
				return err
			}
		}
	}
	return nil
}
