package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/showtime-sync/internal/rule"
	"github.com/iliyamo/showtime-sync/internal/schedule"
)

// RuleDay is one weekday of a compiled rule.
type RuleDay struct {
	Day   string   `json:"day"`
	Index int      `json:"index"`
	Times []string `json:"times"`
}

// RuleDiagnostic describes a dropped clause or token.
type RuleDiagnostic struct {
	Clause  int    `json:"clause"`
	Text    string `json:"text"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
}

// RuleResponse is the body of GET /v1/rules/parse.
type RuleResponse struct {
	Rule        string           `json:"rule"`
	Canonical   string           `json:"canonical"`
	Days        []RuleDay        `json:"days"`
	Diagnostics []RuleDiagnostic `json:"diagnostics"`
	Count       *int             `json:"count,omitempty"`
}

// NewRuleResponse renders a parse result.
func NewRuleResponse(raw string, res rule.Result) RuleResponse {
	out := RuleResponse{
		Rule:        raw,
		Canonical:   res.Rule.String(),
		Days:        []RuleDay{},
		Diagnostics: []RuleDiagnostic{},
	}
	for _, wd := range res.Rule.Weekdays() {
		out.Days = append(out.Days, RuleDay{Day: wd.Symbol(), Index: wd.Index(), Times: res.Rule.Times(wd)})
	}
	for _, d := range res.Diagnostics {
		out.Diagnostics = append(out.Diagnostics, RuleDiagnostic{
			Clause: d.Clause + 1, Text: d.Text, Token: d.Token, Message: d.Err.Error(),
		})
	}
	return out
}

// ParseRule compiles the rule query parameter.  When start and end are
// given it also reports how many slots the rule yields over that range.
func ParseRule(c echo.Context) error {
	raw := c.QueryParam("rule")
	if strings.TrimSpace(raw) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "rule is required"})
	}
	res := rule.Parse(raw)
	out := NewRuleResponse(raw, res)

	if start, end := c.QueryParam("start"), c.QueryParam("end"); start != "" || end != "" {
		iv, err := schedule.ParseInterval(start, end)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		n := schedule.Count(res.Rule, iv)
		out.Count = &n
	}
	return c.JSON(http.StatusOK, out)
}
