package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/matt-riley/promoz/internal/core"
	"github.com/matt-riley/promoz/internal/service"
)

type promoCodeCreator interface {
	CreatePromoCode(ctx context.Context, req service.CreateRequest) (core.PromoCode, error)
}

func float(v float64) *float64 { return &v }

// samplePromoCodes lets a database-less server answer checks out of the box.
func samplePromoCodes() []service.CreateRequest {
	return []service.CreateRequest{
		{
			Name:             "happy10",
			AdvantagePercent: float(10),
			Restrictions: core.RestrictionSpec{
				Date: &core.DateSpec{After: "2021-03-20", Before: "2050-04-22"},
				Or: []core.RestrictionSpec{
					{Age: &core.NumericSpec{Eq: float(40)}},
					{And: []core.RestrictionSpec{
						{Age: &core.NumericSpec{Lt: float(30), Gt: float(15)}},
						{Weather: &core.WeatherSpec{Is: string(core.WeatherAsh), Temp: &core.NumericSpec{Gt: float(15)}}},
					}},
				},
			},
		},
	}
}

func seedPromoCodes(ctx context.Context, svc promoCodeCreator, log *slog.Logger) error {
	for _, req := range samplePromoCodes() {
		if _, err := svc.CreatePromoCode(ctx, req); err != nil {
			if errors.Is(err, service.ErrPromoCodeExists) {
				continue
			}
			return err
		}
		log.Info("seeded promo code", "name", req.Name)
	}
	return nil
}
