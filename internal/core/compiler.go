package core

import (
	"fmt"
	"strconv"
)

type Field string

const (
	FieldAge     Field = "age"
	FieldDate    Field = "date"
	FieldWeather Field = "weather"
	FieldTemp    Field = "temp"
)

func (f Field) missingMessage() string {
	return string(f) + " is required"
}

type Op string

const (
	OpAll Op = "all"
	OpAny Op = "any"
)

func (o Op) failureMessage() string {
	if o == OpAny {
		return "one of the conditions is not fulfilled"
	}
	return "all the conditions must be fulfilled"
}

// Document is the compiled form of a restriction list. Every leaf, every
// required field and every group must hold for the document to pass.
type Document struct {
	Leaves   []Leaf
	Required []Field
	Groups   []Group
}

type Group struct {
	Op      Op
	Members []Document
}

type Leaf interface {
	Field() Field
	leaf()
}

type NumericConstraint struct {
	Target     Field
	Eq         *float64
	Min        *float64
	Max        *float64
	EqMessage  string
	MinMessage string
	MaxMessage string
}

type DateConstraint struct {
	Min            string
	Max            string
	MinMessage     string
	MaxMessage     string
	InvalidMessage string
}

type WeatherConstraint struct {
	Category        Weather
	CategoryMessage string
	Temperature     NumericConstraint
}

func (c NumericConstraint) Field() Field { return c.Target }
func (DateConstraint) Field() Field      { return FieldDate }
func (WeatherConstraint) Field() Field   { return FieldWeather }

func (NumericConstraint) leaf() {}
func (DateConstraint) leaf()    {}
func (WeatherConstraint) leaf() {}

// Compile merges sibling restrictions into a single document. Leaves
// accumulate in order, so repeated constraints on one field all apply.
func Compile(restrictions []Restriction) Document {
	var doc Document
	for _, restriction := range restrictions {
		doc.add(restriction)
	}
	return doc
}

func (d *Document) add(restriction Restriction) {
	switch r := restriction.(type) {
	case AgeRestriction:
		d.addLeaf(compileNumeric(FieldAge, r.Rule))
	case DateRestriction:
		d.addLeaf(compileDate(r.Rule))
	case WeatherRestriction:
		d.addLeaf(WeatherConstraint{
			Category:        r.Rule.Category(),
			CategoryMessage: fmt.Sprintf("weather must be equal to %s", r.Rule.Category()),
			Temperature:     compileNumeric(FieldTemp, r.Rule.Temperature()),
		})
	case AllOf:
		d.Groups = append(d.Groups, compileGroup(OpAll, r.Children))
	case AnyOf:
		d.Groups = append(d.Groups, compileGroup(OpAny, r.Children))
	default:
		panic(fmt.Sprintf("core: unknown restriction %T", restriction))
	}
}

func (d *Document) addLeaf(leaf Leaf) {
	d.Leaves = append(d.Leaves, leaf)
	d.require(leaf.Field())
}

func (d *Document) require(field Field) {
	for _, existing := range d.Required {
		if existing == field {
			return
		}
	}
	d.Required = append(d.Required, field)
}

func compileGroup(op Op, children []Restriction) Group {
	members := make([]Document, 0, len(children))
	for _, child := range children {
		members = append(members, Compile([]Restriction{child}))
	}
	return Group{Op: op, Members: members}
}

func compileNumeric(field Field, rule NumericRule) NumericConstraint {
	constraint := NumericConstraint{Target: field}

	if eq, ok := rule.Eq(); ok {
		constraint.Eq = &eq
		constraint.EqMessage = fmt.Sprintf("%s must be equal to %s", field, formatNumber(eq))
		return constraint
	}
	if gt, ok := rule.Gt(); ok {
		constraint.Min = &gt
		constraint.MinMessage = fmt.Sprintf("%s must not be lower than %s", field, formatNumber(gt))
	}
	if lt, ok := rule.Lt(); ok {
		constraint.Max = &lt
		constraint.MaxMessage = fmt.Sprintf("%s must not be greater than %s", field, formatNumber(lt))
	}
	return constraint
}

func compileDate(rule DateRule) DateConstraint {
	constraint := DateConstraint{
		InvalidMessage: "date must be a valid ISO 8601 date",
	}
	if after, ok := rule.After(); ok {
		constraint.Min = after
		constraint.MinMessage = fmt.Sprintf("promo code will be valid on %s", after)
	}
	if before, ok := rule.Before(); ok {
		constraint.Max = before
		constraint.MaxMessage = fmt.Sprintf("promo code was valid until %s", before)
	}
	return constraint
}

func formatNumber(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
