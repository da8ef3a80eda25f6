package server

import (
	"context"

	"github.com/matt-riley/promoz/internal/core"
	"github.com/matt-riley/promoz/internal/service"
)

type Service interface {
	CreatePromoCode(ctx context.Context, req service.CreateRequest) (core.PromoCode, error)
	GetPromoCode(ctx context.Context, name string) (core.PromoCode, error)
	ListPromoCodes(ctx context.Context) ([]core.PromoCode, error)
	CheckPromoCode(ctx context.Context, req service.CheckRequest) (service.CheckResult, error)
}

var _ Service = (*service.Service)(nil)
