package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Preset is a saved dashboard query.
type Preset struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Device      string      `json:"device,omitempty" yaml:"device"`
	Point       string      `json:"point,omitempty" yaml:"point"`
	Granularity Granularity `json:"granularity" yaml:"granularity"`
	// Start and End use the granularity's timestamp layout. When both are empty
	// the preset covers the last Periods periods ending with the current one.
	Start     string    `json:"start,omitempty" yaml:"start"`
	End       string    `json:"end,omitempty" yaml:"end"`
	Periods   int       `json:"periods,omitempty" yaml:"periods"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"-"`
}

// Validate checks the preset is usable by a production query.
func (p Preset) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("preset id is required")
	}
	if strings.ContainsAny(p.ID, "/ ") {
		return fmt.Errorf("invalid preset id: %q", p.ID)
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("preset name is required")
	}
	g, err := ParseGranularity(string(p.Granularity))
	if err != nil {
		return err
	}
	if (p.Start == "") != (p.End == "") {
		return errors.New("preset start and end must both be set or both be empty")
	}
	if p.Start != "" {
		start, err := g.Parse(p.Start)
		if err != nil {
			return fmt.Errorf("invalid preset start: %w", err)
		}
		end, err := g.Parse(p.End)
		if err != nil {
			return fmt.Errorf("invalid preset end: %w", err)
		}
		if end.Before(start) {
			return errors.New("preset start must be before end")
		}
	} else if p.Periods <= 0 {
		return errors.New("preset needs either start/end or a positive periods count")
	}
	return nil
}

// Range resolves the preset into a concrete start and end relative to now.
func (p Preset) Range(now time.Time) (string, string) {
	g, err := ParseGranularity(string(p.Granularity))
	if err != nil {
		g = GranularityDay
	}
	if p.Start != "" {
		return p.Start, p.End
	}
	end := g.Truncate(now)
	start := end
	for i := 1; i < p.Periods; i++ {
		prev, ok := g.Previous(g.Format(start))
		if !ok {
			break
		}
		start, _ = g.Parse(prev)
	}
	return g.Format(start), g.Format(end)
}
