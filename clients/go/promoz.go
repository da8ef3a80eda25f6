// Package promoz provides client interfaces and domain types for the promoz
// promo code service.
//
// Use the http sub-package to create a client:
//
//	import promozhttp "github.com/matt-riley/promoz/clients/go/http"
package promoz

import "context"

// PromoCodeManager covers creating and reading promo codes.
type PromoCodeManager interface {
	CreatePromoCode(ctx context.Context, promo PromoCode) (PromoCode, error)
	GetPromoCode(ctx context.Context, name string) (PromoCode, error)
	ListPromoCodes(ctx context.Context) ([]PromoCode, error)
}

// Checker validates a promo code against a request context.
type Checker interface {
	CheckPromoCode(ctx context.Context, req CheckRequest) (CheckResult, error)
}

// Status is the outcome of a promo code check.
type Status string

const (
	StatusAccepted Status = "Accepted"
	StatusDenied   Status = "Denied"
)

// PromoCode is the client-side representation of a promo code.
type PromoCode struct {
	Name         string        `json:"name"`
	Advantage    Advantage     `json:"advantage"`
	Restrictions []Restriction `json:"restrictions"`
}

// Advantage is the discount granted when a promo code is accepted.
type Advantage struct {
	Percent float64 `json:"percent"`
}

// Restriction is one node of a restriction tree. A node holds any mix of
// leaves and nested and/or groups; all of them must pass.
type Restriction struct {
	Age     *NumericRule  `json:"age,omitempty"`
	Date    *DateRule     `json:"date,omitempty"`
	Weather *WeatherRule  `json:"weather,omitempty"`
	And     []Restriction `json:"and,omitempty"`
	Or      []Restriction `json:"or,omitempty"`
}

// NumericRule bounds a numeric value. Unset bounds are ignored.
type NumericRule struct {
	Eq *float64 `json:"eq,omitempty"`
	Lt *float64 `json:"lt,omitempty"`
	Gt *float64 `json:"gt,omitempty"`
}

// DateRule bounds a YYYY-MM-DD date.
type DateRule struct {
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
}

// WeatherRule matches the current weather of the requested town.
type WeatherRule struct {
	Is   string       `json:"is,omitempty"`
	Temp *NumericRule `json:"temp,omitempty"`
}

// CheckRequest carries the values a promo code is checked against.
type CheckRequest struct {
	Name string
	Age  *float64 // nil when unknown
	Town string
}

// CheckResult is the outcome of a promo code check.
type CheckResult struct {
	Name      string     `json:"name"`
	Status    Status     `json:"status"`
	Advantage *Advantage `json:"advantage,omitempty"`
	Reasons   string     `json:"reasons,omitempty"`
}

// Accepted reports whether the promo code was accepted.
func (r CheckResult) Accepted() bool {
	return r.Status == StatusAccepted
}
