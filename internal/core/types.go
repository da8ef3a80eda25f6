package core

import (
	"errors"
	"math"
	"time"
)

const DateLayout = "2006-01-02"

var ErrValidation = errors.New("validation failed")

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// withFieldPrefix re-roots a validation error under prefix.
func withFieldPrefix(err error, prefix string) error {
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		return err
	}

	field := prefix
	if validationErr.Field != "" {
		field = prefix + "." + validationErr.Field
	}
	return &ValidationError{Field: field, Message: validationErr.Message}
}

type Weather string

const (
	WeatherThunderstorm Weather = "Thunderstorm"
	WeatherDrizzle      Weather = "Drizzle"
	WeatherRain         Weather = "Rain"
	WeatherSnow         Weather = "Snow"
	WeatherMist         Weather = "Mist"
	WeatherSmoke        Weather = "Smoke"
	WeatherHaze         Weather = "Haze"
	WeatherDust         Weather = "Dust"
	WeatherFog          Weather = "Fog"
	WeatherSand         Weather = "Sand"
	WeatherAsh          Weather = "Ash"
	WeatherSquall       Weather = "Squall"
	WeatherTornado      Weather = "Tornado"
	WeatherClear        Weather = "Clear"
	WeatherClouds       Weather = "Clouds"
)

var weatherCategories = map[Weather]struct{}{
	WeatherThunderstorm: {},
	WeatherDrizzle:      {},
	WeatherRain:         {},
	WeatherSnow:         {},
	WeatherMist:         {},
	WeatherSmoke:        {},
	WeatherHaze:         {},
	WeatherDust:         {},
	WeatherFog:          {},
	WeatherSand:         {},
	WeatherAsh:          {},
	WeatherSquall:       {},
	WeatherTornado:      {},
	WeatherClear:        {},
	WeatherClouds:       {},
}

func ParseWeather(value string) (Weather, bool) {
	weather := Weather(value)
	_, ok := weatherCategories[weather]
	return weather, ok
}

type NumericSpec struct {
	Eq *float64 `json:"eq,omitempty"`
	Lt *float64 `json:"lt,omitempty"`
	Gt *float64 `json:"gt,omitempty"`
}

type DateSpec struct {
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
}

type WeatherSpec struct {
	Is   string       `json:"is,omitempty"`
	Temp *NumericSpec `json:"temp,omitempty"`
}

// NumericRule is either an equality or an inclusive range; never both.
type NumericRule struct {
	eq *float64
	lt *float64
	gt *float64
}

func NewNumericRule(spec NumericSpec) (NumericRule, error) {
	checks := []struct {
		field string
		value *float64
	}{
		{"eq", spec.Eq},
		{"lt", spec.Lt},
		{"gt", spec.Gt},
	}
	for _, check := range checks {
		if check.value != nil && !isFinite(*check.value) {
			return NumericRule{}, invalid(check.field, check.field+" must be a valid number")
		}
	}

	if spec.Eq != nil && (spec.Lt != nil || spec.Gt != nil) {
		return NumericRule{}, invalid("eq", "cannot use eq and lt/gt at the same time")
	}

	return NumericRule{
		eq: copyFloat(spec.Eq),
		lt: copyFloat(spec.Lt),
		gt: copyFloat(spec.Gt),
	}, nil
}

func (r NumericRule) Eq() (float64, bool) { return deref(r.eq) }
func (r NumericRule) Lt() (float64, bool) { return deref(r.lt) }
func (r NumericRule) Gt() (float64, bool) { return deref(r.gt) }

func (r NumericRule) Spec() NumericSpec {
	return NumericSpec{Eq: copyFloat(r.eq), Lt: copyFloat(r.lt), Gt: copyFloat(r.gt)}
}

// DateRule bounds are calendar dates in DateLayout.
type DateRule struct {
	before string
	after  string
}

func NewDateRule(spec DateSpec) (DateRule, error) {
	var before, after time.Time
	var err error

	if spec.Before != "" {
		if before, err = time.Parse(DateLayout, spec.Before); err != nil {
			return DateRule{}, invalid("before", "before must be a valid ISO 8601 date")
		}
	}
	if spec.After != "" {
		if after, err = time.Parse(DateLayout, spec.After); err != nil {
			return DateRule{}, invalid("after", "after must be a valid ISO 8601 date")
		}
	}

	if spec.Before != "" && spec.After != "" && before.Before(after) {
		return DateRule{}, invalid("before", "before must not be earlier than after")
	}

	return DateRule{before: spec.Before, after: spec.After}, nil
}

func (r DateRule) Before() (string, bool) { return r.before, r.before != "" }
func (r DateRule) After() (string, bool)  { return r.after, r.after != "" }

func (r DateRule) Spec() DateSpec {
	return DateSpec{Before: r.before, After: r.after}
}

type WeatherRule struct {
	category    Weather
	temperature NumericRule
}

func NewWeatherRule(spec WeatherSpec) (WeatherRule, error) {
	if spec.Is == "" {
		return WeatherRule{}, invalid("is", "is is required")
	}
	category, ok := ParseWeather(spec.Is)
	if !ok {
		return WeatherRule{}, invalid("is", "is must be a valid enum")
	}

	if spec.Temp == nil {
		return WeatherRule{}, invalid("temp", "temp is required")
	}
	temperature, err := NewNumericRule(*spec.Temp)
	if err != nil {
		return WeatherRule{}, withFieldPrefix(err, "temp")
	}

	return WeatherRule{category: category, temperature: temperature}, nil
}

func (r WeatherRule) Category() Weather        { return r.category }
func (r WeatherRule) Temperature() NumericRule { return r.temperature }

func (r WeatherRule) Spec() WeatherSpec {
	temp := r.temperature.Spec()
	return WeatherSpec{Is: string(r.category), Temp: &temp}
}

func isFinite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}

func copyFloat(value *float64) *float64 {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}

func deref(value *float64) (float64, bool) {
	if value == nil {
		return 0, false
	}
	return *value, true
}
