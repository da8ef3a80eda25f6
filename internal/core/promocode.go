package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Advantage struct {
	Percent decimal.Decimal `json:"percent"`
}

func NewAdvantage(percent *float64) (Advantage, error) {
	if percent == nil {
		return Advantage{}, invalid("advantage.percent", "percent is required")
	}
	if !isFinite(*percent) {
		return Advantage{}, invalid("advantage.percent", "percent must be a valid number")
	}
	return Advantage{Percent: decimal.NewFromFloat(*percent)}, nil
}

// MarshalJSON writes the percentage as a JSON number rather than a string.
func (a Advantage) MarshalJSON() ([]byte, error) {
	return []byte(`{"percent":` + a.Percent.String() + `}`), nil
}

type PromoCode struct {
	Name         string        `json:"name"`
	Advantage    Advantage     `json:"advantage"`
	Restrictions []Restriction `json:"-"`
}

func NewPromoCode(name string, advantage Advantage, restrictions []Restriction) (PromoCode, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return PromoCode{}, invalid("name", "name is required")
	}

	return PromoCode{
		Name:         name,
		Advantage:    advantage,
		Restrictions: append([]Restriction(nil), restrictions...),
	}, nil
}
