package core

import (
	"fmt"
	"strings"
	"time"
)

type WeatherContext struct {
	Category    Weather `json:"is"`
	Temperature float64 `json:"temp"`
}

type Context struct {
	Age     *float64        `json:"age,omitempty"`
	Date    string          `json:"date,omitempty"`
	Weather *WeatherContext `json:"weather,omitempty"`
}

func (c Context) has(field Field) bool {
	switch field {
	case FieldAge:
		return c.Age != nil
	case FieldDate:
		return c.Date != ""
	case FieldWeather:
		return c.Weather != nil
	default:
		return false
	}
}

type Verdict struct {
	Violations []string
}

func (v Verdict) Passed() bool {
	return len(v.Violations) == 0
}

func (v Verdict) Reason() string {
	return strings.Join(v.Violations, ", ")
}

func Evaluate(doc Document, context Context) Verdict {
	var violations []string

	for _, field := range doc.Required {
		if !context.has(field) {
			violations = append(violations, field.missingMessage())
		}
	}

	for _, leaf := range doc.Leaves {
		if !context.has(leaf.Field()) {
			continue
		}
		violations = append(violations, checkLeaf(leaf, context)...)
	}

	for _, group := range doc.Groups {
		if !groupPasses(group, context) {
			violations = append(violations, group.Op.failureMessage())
		}
	}

	return Verdict{Violations: dedupe(violations)}
}

func groupPasses(group Group, context Context) bool {
	switch group.Op {
	case OpAll:
		for _, member := range group.Members {
			if !Evaluate(member, context).Passed() {
				return false
			}
		}
		return true
	case OpAny:
		for _, member := range group.Members {
			if Evaluate(member, context).Passed() {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func checkLeaf(leaf Leaf, context Context) []string {
	switch c := leaf.(type) {
	case NumericConstraint:
		return checkNumeric(c, *context.Age)
	case DateConstraint:
		return checkDate(c, context.Date)
	case WeatherConstraint:
		var violations []string
		if context.Weather.Category != c.Category {
			violations = append(violations, c.CategoryMessage)
		}
		return append(violations, checkNumeric(c.Temperature, context.Weather.Temperature)...)
	default:
		panic(fmt.Sprintf("core: unknown leaf %T", leaf))
	}
}

func checkNumeric(c NumericConstraint, value float64) []string {
	var violations []string
	if c.Eq != nil && value != *c.Eq {
		violations = append(violations, c.EqMessage)
	}
	if c.Min != nil && value < *c.Min {
		violations = append(violations, c.MinMessage)
	}
	if c.Max != nil && value > *c.Max {
		violations = append(violations, c.MaxMessage)
	}
	return violations
}

func checkDate(c DateConstraint, value string) []string {
	date, err := time.Parse(DateLayout, value)
	if err != nil {
		return []string{c.InvalidMessage}
	}

	var violations []string
	if c.Min != "" {
		if min, err := time.Parse(DateLayout, c.Min); err == nil && date.Before(min) {
			violations = append(violations, c.MinMessage)
		}
	}
	if c.Max != "" {
		if max, err := time.Parse(DateLayout, c.Max); err == nil && date.After(max) {
			violations = append(violations, c.MaxMessage)
		}
	}
	return violations
}

func dedupe(messages []string) []string {
	if len(messages) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(messages))
	out := make([]string, 0, len(messages))
	for _, message := range messages {
		if _, ok := seen[message]; ok {
			continue
		}
		seen[message] = struct{}{}
		out = append(out, message)
	}
	return out
}
