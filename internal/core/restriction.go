package core

import (
	"encoding/json"
	"fmt"
)

// Restriction is one node of an eligibility tree. The set of implementations
// is closed: AgeRestriction, DateRestriction, WeatherRestriction, AllOf, AnyOf.
type Restriction interface {
	restriction()
}

type AgeRestriction struct {
	Rule NumericRule
}

type DateRestriction struct {
	Rule DateRule
}

type WeatherRestriction struct {
	Rule WeatherRule
}

type AllOf struct {
	Children []Restriction
}

type AnyOf struct {
	Children []Restriction
}

func (AgeRestriction) restriction()     {}
func (DateRestriction) restriction()    {}
func (WeatherRestriction) restriction() {}
func (AllOf) restriction()              {}
func (AnyOf) restriction()              {}

// RestrictionSpec is the flat form accepted from callers and stored as JSON.
type RestrictionSpec struct {
	Age     *NumericSpec      `json:"age,omitempty"`
	Date    *DateSpec         `json:"date,omitempty"`
	Weather *WeatherSpec      `json:"weather,omitempty"`
	And     []RestrictionSpec `json:"and,omitempty"`
	Or      []RestrictionSpec `json:"or,omitempty"`
}

func (s RestrictionSpec) empty() bool {
	return s.Age == nil && s.Date == nil && s.Weather == nil && len(s.And) == 0 && len(s.Or) == 0
}

const errNoRules = "a restriction must have at least one rule"

// BuildRestrictions turns a flat description into single-purpose sibling
// nodes: one per populated simple field, then one combinator per list.
func BuildRestrictions(spec RestrictionSpec) ([]Restriction, error) {
	return buildRestrictions(spec, "")
}

func buildRestrictions(spec RestrictionSpec, path string) ([]Restriction, error) {
	if spec.empty() {
		return nil, invalid(path, errNoRules)
	}

	var restrictions []Restriction

	if spec.Age != nil {
		rule, err := NewNumericRule(*spec.Age)
		if err != nil {
			return nil, withFieldPrefix(err, joinPath(path, "age"))
		}
		restrictions = append(restrictions, AgeRestriction{Rule: rule})
	}

	if spec.Date != nil {
		rule, err := NewDateRule(*spec.Date)
		if err != nil {
			return nil, withFieldPrefix(err, joinPath(path, "date"))
		}
		restrictions = append(restrictions, DateRestriction{Rule: rule})
	}

	if spec.Weather != nil {
		rule, err := NewWeatherRule(*spec.Weather)
		if err != nil {
			return nil, withFieldPrefix(err, joinPath(path, "weather"))
		}
		restrictions = append(restrictions, WeatherRestriction{Rule: rule})
	}

	if len(spec.And) > 0 {
		children, err := buildChildren(spec.And, joinPath(path, "and"))
		if err != nil {
			return nil, err
		}
		restrictions = append(restrictions, AllOf{Children: children})
	}

	if len(spec.Or) > 0 {
		children, err := buildChildren(spec.Or, joinPath(path, "or"))
		if err != nil {
			return nil, err
		}
		restrictions = append(restrictions, AnyOf{Children: children})
	}

	return restrictions, nil
}

func buildChildren(specs []RestrictionSpec, path string) ([]Restriction, error) {
	var children []Restriction
	for i, spec := range specs {
		built, err := buildRestrictions(spec, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		children = append(children, built...)
	}
	return children, nil
}

func joinPath(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}

// Specs converts a tree back into flat descriptions, one per node.
func Specs(restrictions []Restriction) []RestrictionSpec {
	specs := make([]RestrictionSpec, 0, len(restrictions))
	for _, restriction := range restrictions {
		specs = append(specs, specOf(restriction))
	}
	return specs
}

func specOf(restriction Restriction) RestrictionSpec {
	switch r := restriction.(type) {
	case AgeRestriction:
		age := r.Rule.Spec()
		return RestrictionSpec{Age: &age}
	case DateRestriction:
		date := r.Rule.Spec()
		return RestrictionSpec{Date: &date}
	case WeatherRestriction:
		weather := r.Rule.Spec()
		return RestrictionSpec{Weather: &weather}
	case AllOf:
		return RestrictionSpec{And: Specs(r.Children)}
	case AnyOf:
		return RestrictionSpec{Or: Specs(r.Children)}
	default:
		panic(fmt.Sprintf("core: unknown restriction %T", restriction))
	}
}

func MarshalRestrictions(restrictions []Restriction) ([]byte, error) {
	return json.Marshal(Specs(restrictions))
}

// UnmarshalRestrictions decodes the output of MarshalRestrictions, validating
// every node again.
func UnmarshalRestrictions(data []byte) ([]Restriction, error) {
	var specs []RestrictionSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("decode restrictions: %w", err)
	}

	var restrictions []Restriction
	for i, spec := range specs {
		built, err := buildRestrictions(spec, fmt.Sprintf("restrictions[%d]", i))
		if err != nil {
			return nil, err
		}
		restrictions = append(restrictions, built...)
	}
	return restrictions, nil
}
