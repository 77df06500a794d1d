// Package rule compiles human-authored recurrence rules such as
//
//	Tue, Thu, Fri 19:30 / Sat, Sun 14:00, 19:00
//	화~금 19:30 / 토 14:00, 18:00
//
// into a weekday → show-time mapping.  Clauses are separated by "/"; each
// clause pairs a comma-separated day list (single weekdays or inclusive
// ranges "A~B") with a comma-separated list of HH:MM times.
//
// Parsing is best effort: a clause or day token that cannot be understood
// contributes nothing to the rule and is reported as a Diagnostic so the
// caller can decide whether to fail loudly.
package rule

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/iliyamo/showtime-sync/internal/weekday"
)

// Sentinel errors carried by diagnostics.
var (
	ErrMalformedClause = errors.New("malformed rule clause")
	ErrUnknownWeekday  = errors.New("unknown weekday symbol")
	ErrReversedRange   = errors.New("reversed weekday range")
)

// clausePattern matches "<day-list> <time-list>" as a whole.  The day list
// may contain letters, commas, tildes and whitespace; the time list digits,
// colons, commas and whitespace.  Individual times are validated afterwards.
var clausePattern = regexp.MustCompile(`^([\p{L}\s,~]+?)\s+([0-9:,\s]+)$`)

// clockLayout is the canonical time-of-day format stored on schedules.
const clockLayout = "15:04"

// Rule maps a weekday to its ordered list of show times.  A weekday that is
// absent has no recurring show.
type Rule map[weekday.Weekday][]string

// Times returns the show times configured for wd, or nil.
func (r Rule) Times(wd weekday.Weekday) []string { return r[wd] }

// Weekdays returns the weekdays that have at least one show, in canonical
// order.
func (r Rule) Weekdays() []weekday.Weekday {
	out := make([]weekday.Weekday, 0, len(r))
	for wd, times := range r {
		if len(times) > 0 {
			out = append(out, wd)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// String renders the rule in canonical form, one clause per weekday.
func (r Rule) String() string {
	days := r.Weekdays()
	parts := make([]string, 0, len(days))
	for _, wd := range days {
		parts = append(parts, wd.Symbol()+" "+strings.Join(r[wd], ", "))
	}
	return strings.Join(parts, " / ")
}

// Diagnostic describes one part of the input that was dropped.
type Diagnostic struct {
	Clause int    // zero-based clause index
	Text   string // the trimmed clause text
	Token  string // offending day or time token, empty for whole-clause problems
	Err    error  // one of the package sentinels, possibly wrapped
}

func (d Diagnostic) Error() string {
	if d.Token != "" {
		return fmt.Sprintf("clause %d %q: token %q: %v", d.Clause+1, d.Text, d.Token, d.Err)
	}
	return fmt.Sprintf("clause %d %q: %v", d.Clause+1, d.Text, d.Err)
}

func (d Diagnostic) Unwrap() error { return d.Err }

// Result is the outcome of Parse.
type Result struct {
	Rule        Rule
	Diagnostics []Diagnostic
}

// Err joins all diagnostics into one error, or returns nil when the rule
// parsed cleanly.
func (res Result) Err() error {
	if len(res.Diagnostics) == 0 {
		return nil
	}
	errs := make([]error, 0, len(res.Diagnostics))
	for _, d := range res.Diagnostics {
		errs = append(errs, d)
	}
	return errors.Join(errs...)
}

// Parse compiles raw into a Rule.  An empty or blank string yields an empty
// rule with no diagnostics.  Later clauses overwrite earlier ones for the
// same weekday; time lists are never merged across clauses.
func Parse(raw string) Result {
	res := Result{Rule: Rule{}}
	if strings.TrimSpace(raw) == "" {
		return res
	}
	for i, clause := range strings.Split(raw, "/") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		m := clausePattern.FindStringSubmatch(clause)
		if m == nil {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{Clause: i, Text: clause, Err: ErrMalformedClause})
			continue
		}
		times, bad := parseTimes(m[2])
		if bad != "" {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Clause: i, Text: clause, Token: bad,
				Err: fmt.Errorf("%w: invalid time", ErrMalformedClause),
			})
			continue
		}
		dayList := strings.Join(strings.Fields(m[1]), "")
		for _, tok := range strings.Split(dayList, ",") {
			if tok == "" {
				continue
			}
			days, err := expandDayToken(tok)
			if err != nil {
				res.Diagnostics = append(res.Diagnostics, Diagnostic{Clause: i, Text: clause, Token: tok, Err: err})
				continue
			}
			for _, wd := range days {
				res.Rule[wd] = times
			}
		}
	}
	return res
}

// expandDayToken turns "Tue" or "Tue~Thu" into the weekdays it names.
// Ranges are inclusive in canonical order and do not wrap around the week.
func expandDayToken(tok string) ([]weekday.Weekday, error) {
	if !strings.Contains(tok, "~") {
		wd, err := weekday.Parse(tok)
		if err != nil {
			return nil, ErrUnknownWeekday
		}
		return []weekday.Weekday{wd}, nil
	}
	ends := strings.Split(tok, "~")
	if len(ends) != 2 {
		return nil, fmt.Errorf("%w: range must have exactly two ends", ErrMalformedClause)
	}
	from, err := weekday.Parse(ends[0])
	if err != nil {
		return nil, ErrUnknownWeekday
	}
	to, err := weekday.Parse(ends[1])
	if err != nil {
		return nil, ErrUnknownWeekday
	}
	if from > to {
		return nil, ErrReversedRange
	}
	days := make([]weekday.Weekday, 0, to-from+1)
	for wd := from; wd <= to; wd++ {
		days = append(days, wd)
	}
	return days, nil
}

// parseTimes splits and normalizes a time list.  It returns the offending
// token when any entry is not a valid HH:MM clock time.  Repeated times are
// kept once, in first-seen order.
func parseTimes(list string) ([]string, string) {
	var out []string
	seen := map[string]bool{}
	for _, tok := range strings.Split(list, ",") {
		tok = strings.TrimSpace(tok)
		clock, err := time.Parse(clockLayout, tok)
		if err != nil {
			if tok == "" {
				tok = list
			}
			return nil, tok
		}
		norm := clock.Format(clockLayout)
		if seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, norm)
	}
	return out, ""
}
