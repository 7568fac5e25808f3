// Package params resolves the %name placeholders used in summary field
// templates: id lists chosen by the site administrator and fiscal year
// boundaries.
package params

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Placeholder names
const (
	FinancialTypeIDs              = "financial_type_ids"
	MembershipFinancialTypeIDs    = "membership_financial_type_ids"
	EventTypeIDs                  = "event_type_ids"
	ParticipantStatusIDs          = "participant_status_ids"
	ParticipantNoshowStatusIDs    = "participant_noshow_status_ids"
	CurrentFiscalYearBegin        = "current_fiscal_year_begin"
	CurrentFiscalYearEnd          = "current_fiscal_year_end"
	LastFiscalYearBegin           = "last_fiscal_year_begin"
	LastFiscalYearEnd             = "last_fiscal_year_end"
	YearBeforeLastFiscalYearBegin = "year_before_last_fiscal_year_begin"
	YearBeforeLastFiscalYearEnd   = "year_before_last_fiscal_year_end"
)

// DateLayout is the format fiscal year boundaries are rendered in
const DateLayout = "2006-01-02"

var (
	// ErrUnknownPlaceholder is returned for a %name with no value
	ErrUnknownPlaceholder = errors.New("unknown placeholder")

	placeholderRE = regexp.MustCompile(`%[a-z_]+`)

	known = map[string]bool{
		FinancialTypeIDs:              true,
		MembershipFinancialTypeIDs:    true,
		EventTypeIDs:                  true,
		ParticipantStatusIDs:          true,
		ParticipantNoshowStatusIDs:    true,
		CurrentFiscalYearBegin:        true,
		CurrentFiscalYearEnd:          true,
		LastFiscalYearBegin:           true,
		LastFiscalYearEnd:             true,
		YearBeforeLastFiscalYearBegin: true,
		YearBeforeLastFiscalYearEnd:   true,
	}
)

// IsKnown reports whether name is a placeholder this package can resolve
func IsKnown(name string) bool {
	return known[name]
}

// match is one %name occurrence in a template
type match struct {
	start, end int
	name       string
}

// matches returns the placeholders in template. Inside single-quoted
// string literals only known names count, so LIKE '%gala%' and
// DATE_FORMAT(d, '%m-%d') are left alone.
func matches(template string) []match {
	spans := literalSpans(template)

	var out []match
	for _, loc := range placeholderRE.FindAllStringIndex(template, -1) {
		name := template[loc[0]+1 : loc[1]]
		if !known[name] && inSpan(spans, loc[0]) {
			continue
		}
		out = append(out, match{start: loc[0], end: loc[1], name: name})
	}
	return out
}

// literalSpans returns the byte ranges of single-quoted literals. A
// backslash escapes the next byte; '' inside a literal closes and reopens
// it, which leaves the same range covered.
func literalSpans(s string) [][2]int {
	var spans [][2]int
	start := -1
	for i := 0; i < len(s); i++ {
		switch {
		case start >= 0 && s[i] == '\\':
			i++
		case s[i] == '\'':
			if start < 0 {
				start = i
			} else {
				spans = append(spans, [2]int{start, i + 1})
				start = -1
			}
		}
	}
	if start >= 0 {
		spans = append(spans, [2]int{start, len(s)})
	}
	return spans
}

func inSpan(spans [][2]int, pos int) bool {
	for _, sp := range spans {
		if pos >= sp[0] && pos < sp[1] {
			return true
		}
	}
	return false
}

// Placeholders returns the distinct placeholder names in a template, in
// order of first appearance
func Placeholders(template string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range matches(template) {
		if !seen[m.name] {
			seen[m.name] = true
			names = append(names, m.name)
		}
	}
	return names
}

// Substitute replaces every %name in template with values[name]
func Substitute(template string, values map[string]string) (string, error) {
	var b strings.Builder
	var missing []string
	last := 0
	for _, m := range matches(template) {
		v, ok := values[m.name]
		if !ok {
			missing = append(missing, m.name)
			continue
		}
		b.WriteString(template[last:m.start])
		b.WriteString(v)
		last = m.end
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", ErrUnknownPlaceholder, strings.Join(missing, ", "))
	}
	b.WriteString(template[last:])
	return b.String(), nil
}

// Set holds the administrator's choices that templates are specialised with
type Set struct {
	FinancialTypeIDs           []int
	MembershipFinancialTypeIDs []int
	EventTypeIDs               []int
	ParticipantStatusIDs       []int
	ParticipantNoshowStatusIDs []int
	FiscalYearStart            MonthDay
}

// Values returns the placeholder values as of now
func (s Set) Values(now time.Time) map[string]string {
	current, last, beforeLast := FiscalYears(now, s.FiscalYearStart)
	return map[string]string{
		FinancialTypeIDs:              JoinIDs(s.FinancialTypeIDs),
		MembershipFinancialTypeIDs:    JoinIDs(s.MembershipFinancialTypeIDs),
		EventTypeIDs:                  JoinIDs(s.EventTypeIDs),
		ParticipantStatusIDs:          JoinIDs(s.ParticipantStatusIDs),
		ParticipantNoshowStatusIDs:    JoinIDs(s.ParticipantNoshowStatusIDs),
		CurrentFiscalYearBegin:        current.Begin.Format(DateLayout),
		CurrentFiscalYearEnd:          current.End.Format(DateLayout),
		LastFiscalYearBegin:           last.Begin.Format(DateLayout),
		LastFiscalYearEnd:             last.End.Format(DateLayout),
		YearBeforeLastFiscalYearBegin: beforeLast.Begin.Format(DateLayout),
		YearBeforeLastFiscalYearEnd:   beforeLast.End.Format(DateLayout),
	}
}

// JoinIDs renders an id list for an IN (...) clause. An empty list renders
// as 0, which keeps the clause valid and matches no row.
func JoinIDs(ids []int) string {
	if len(ids) == 0 {
		return "0"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}
