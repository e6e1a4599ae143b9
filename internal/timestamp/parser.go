package timestamp

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
)

// OutputSeparator joins the start and end stamps of a merged output name.
const OutputSeparator = "__"

// ErrPattern marks a timestamp pattern that cannot be used for a session.
var ErrPattern = errors.New("invalid timestamp pattern")

// ParseError reports a name that does not match the configured pattern.
type ParseError struct {
	Name    string
	Pattern string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("parse %q with pattern %q", e.Name, e.Pattern)
	}
	return fmt.Sprintf("parse %q with pattern %q: %v", e.Name, e.Pattern, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parser applies one strftime pattern in a fixed location.
type Parser struct {
	pattern string
	layout  string
	loc     *time.Location
}

// New compiles pattern into a parser. A nil location means local time.
func New(pattern string, loc *time.Location) (*Parser, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, fmt.Errorf("%w: pattern is empty", ErrPattern)
	}
	layout, err := strftime.Layout(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrPattern, pattern, err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Parser{pattern: pattern, layout: layout, loc: loc}, nil
}

// Pattern returns the strftime pattern the parser was built from.
func (p *Parser) Pattern() string { return p.pattern }

// Location returns the location names are interpreted in.
func (p *Parser) Location() *time.Location { return p.loc }

// Parse converts a base name (extension already stripped) to an instant.
func (p *Parser) Parse(name string) (time.Time, error) {
	ts, err := time.ParseInLocation(p.layout, name, p.loc)
	if err != nil {
		return time.Time{}, &ParseError{Name: name, Pattern: p.pattern, Err: err}
	}
	return ts, nil
}

// Format renders t with the pattern in the parser's location.
func (p *Parser) Format(t time.Time) string {
	return t.In(p.loc).Format(p.layout)
}

// OutputName builds the base name of a merged output covering [start, end].
func (p *Parser) OutputName(start, end time.Time) string {
	return p.Format(start) + OutputSeparator + p.Format(end)
}

// ParseOutputName decodes a name produced by OutputName. Every occurrence of
// the separator is tried so patterns that contain it still decode.
func (p *Parser) ParseOutputName(name string) (time.Time, time.Time, error) {
	for offset := 0; offset < len(name); {
		idx := strings.Index(name[offset:], OutputSeparator)
		if idx < 0 {
			break
		}
		cut := offset + idx
		start, errStart := p.Parse(name[:cut])
		end, errEnd := p.Parse(name[cut+len(OutputSeparator):])
		if errStart == nil && errEnd == nil {
			return start, end, nil
		}
		offset = cut + 1
	}
	return time.Time{}, time.Time{}, &ParseError{
		Name:    name,
		Pattern: p.pattern + OutputSeparator + p.pattern,
		Err:     errors.New("not a merged output name"),
	}
}

// IsOutputName reports whether name decodes as a merged output name.
func (p *Parser) IsOutputName(name string) bool {
	_, _, err := p.ParseOutputName(name)
	return err == nil
}

// SelfTest checks that pattern can format the current time, distinguishes
// different instants, and parses its own output back. Sessions refuse to start with a pattern that fails it.
func SelfTest(pattern string, loc *time.Location) error {
	parser, err := New(pattern, loc)
	if err != nil {
		return err
	}
	now := time.Now().In(parser.loc)
	rendered := strftime.Format(parser.pattern, now)
	if strings.TrimSpace(rendered) == "" {
		return fmt.Errorf("%w: %q formats to an empty name", ErrPattern, pattern)
	}
	earlier := now.AddDate(-1, -1, -1).Add(-(time.Hour + time.Minute + time.Second))
	if parser.Format(earlier) == parser.Format(now) {
		return fmt.Errorf("%w: %q has no date or time fields", ErrPattern, pattern)
	}
	if _, err := parser.Parse(parser.Format(now)); err != nil {
		return fmt.Errorf("%w: %q does not parse its own output: %v", ErrPattern, pattern, err)
	}
	return nil
}
