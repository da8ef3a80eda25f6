package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/matt-riley/promoz/internal/core"
	"github.com/matt-riley/promoz/internal/repository"
	"github.com/matt-riley/promoz/internal/weather"
)

const (
	defaultCacheResyncInterval = time.Minute
	cacheReloadTimeout         = 5 * time.Second
	tracerName                 = "github.com/matt-riley/promoz/internal/service"
)

var (
	ErrPromoCodeExists   = errors.New("promo code name already exists")
	ErrPromoCodeNotFound = errors.New("no promo code with this name was found")
	ErrInvalidPromoCode  = errors.New("invalid stored promo code")
)

const (
	WeatherLookupHit     = "ok"
	WeatherLookupError   = "error"
	WeatherLookupSkipped = "skipped"
)

type Repository interface {
	CreatePromoCode(ctx context.Context, promo repository.PromoCode) (repository.PromoCode, error)
	GetPromoCode(ctx context.Context, name string) (repository.PromoCode, error)
	ListPromoCodes(ctx context.Context) ([]repository.PromoCode, error)
}

type WeatherProvider interface {
	CurrentWeather(ctx context.Context, town string) (weather.Conditions, error)
}

type cacheInvalidationSubscriber interface {
	SubscribePromoCodeInvalidation(ctx context.Context) (<-chan struct{}, error)
}

type CreateRequest struct {
	Name             string
	AdvantagePercent *float64
	Restrictions     core.RestrictionSpec
}

type CheckRequest struct {
	Name string
	Age  *float64
	Town string
}

type CheckResult struct {
	Name      string
	Status    core.Status
	Advantage *core.Advantage
	Reasons   string
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithWeatherProvider(provider WeatherProvider) Option {
	return func(s *Service) {
		s.weather = provider
	}
}

// WithClock overrides the source of the current date used in check contexts.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithCheckRecorder(record func(status string)) Option {
	return func(s *Service) {
		s.recordCheck = record
	}
}

func WithWeatherLookupRecorder(record func(result string)) Option {
	return func(s *Service) {
		s.recordWeatherLookup = record
	}
}

func WithCacheMetrics(incLoads, incInvalidations func(), setSize func(float64)) Option {
	return func(s *Service) {
		s.incCacheLoads = incLoads
		s.incCacheInvalidations = incInvalidations
		s.setCacheSize = setSize
	}
}

func WithCacheResyncInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.resyncInterval = interval
		}
	}
}

type Service struct {
	repo           Repository
	weather        WeatherProvider
	logger         *slog.Logger
	now            func() time.Time
	resyncInterval time.Duration

	recordCheck           func(status string)
	recordWeatherLookup   func(result string)
	incCacheLoads         func()
	incCacheInvalidations func()
	setCacheSize          func(float64)

	mu    sync.RWMutex
	cache map[string]core.PromoCode
}

func New(ctx context.Context, repo Repository, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("repository is nil")
	}

	svc := &Service{
		repo:           repo,
		logger:         slog.Default(),
		now:            time.Now,
		resyncInterval: defaultCacheResyncInterval,
		cache:          make(map[string]core.PromoCode),
	}
	for _, opt := range opts {
		opt(svc)
	}

	if err := svc.LoadCache(ctx); err != nil {
		return nil, err
	}
	if subscriber, ok := repo.(cacheInvalidationSubscriber); ok {
		if err := svc.startCacheInvalidationListener(ctx, subscriber); err != nil {
			return nil, err
		}
	}

	return svc, nil
}

func (s *Service) LoadCache(ctx context.Context) error {
	rows, err := s.repo.ListPromoCodes(ctx)
	if err != nil {
		return fmt.Errorf("load promo codes: %w", err)
	}

	next := make(map[string]core.PromoCode, len(rows))
	for _, row := range rows {
		promo, err := promoCodeFromRow(row)
		if err != nil {
			s.logger.Error("skipping unreadable promo code", "name", row.Name, "error", err)
			continue
		}
		next[promo.Name] = promo
	}

	s.mu.Lock()
	s.cache = next
	s.mu.Unlock()

	if s.incCacheLoads != nil {
		s.incCacheLoads()
	}
	if s.setCacheSize != nil {
		s.setCacheSize(float64(len(next)))
	}

	return nil
}

func (s *Service) CreatePromoCode(ctx context.Context, req CreateRequest) (core.PromoCode, error) {
	s.logger.DebugContext(ctx, "creating promo code", "name", req.Name)

	if _, err := s.GetPromoCode(ctx, req.Name); err == nil {
		return core.PromoCode{}, ErrPromoCodeExists
	} else if !errors.Is(err, ErrPromoCodeNotFound) {
		return core.PromoCode{}, err
	}

	advantage, err := core.NewAdvantage(req.AdvantagePercent)
	if err != nil {
		return core.PromoCode{}, err
	}
	restrictions, err := core.BuildRestrictions(req.Restrictions)
	if err != nil {
		return core.PromoCode{}, err
	}
	promo, err := core.NewPromoCode(req.Name, advantage, restrictions)
	if err != nil {
		return core.PromoCode{}, err
	}

	row, err := promoCodeToRow(promo)
	if err != nil {
		return core.PromoCode{}, fmt.Errorf("encode promo code: %w", err)
	}
	if _, err := s.repo.CreatePromoCode(ctx, row); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return core.PromoCode{}, ErrPromoCodeExists
		}
		return core.PromoCode{}, fmt.Errorf("create promo code: %w", err)
	}

	s.setCachedPromoCode(promo)
	s.logger.InfoContext(ctx, "promo code created", "name", promo.Name, "restrictions", len(promo.Restrictions))

	return promo, nil
}

func (s *Service) GetPromoCode(ctx context.Context, name string) (core.PromoCode, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.PromoCode{}, &core.ValidationError{Field: "name", Message: "name is required"}
	}

	if promo, ok := s.getCachedPromoCode(name); ok {
		return promo, nil
	}

	row, err := s.repo.GetPromoCode(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return core.PromoCode{}, ErrPromoCodeNotFound
		}
		return core.PromoCode{}, fmt.Errorf("get promo code: %w", err)
	}

	promo, err := promoCodeFromRow(row)
	if err != nil {
		return core.PromoCode{}, err
	}

	s.setCachedPromoCode(promo)
	return promo, nil
}

func (s *Service) ListPromoCodes(_ context.Context) ([]core.PromoCode, error) {
	s.mu.RLock()
	promos := make([]core.PromoCode, 0, len(s.cache))
	for _, promo := range s.cache {
		promos = append(promos, promo)
	}
	s.mu.RUnlock()

	sort.Slice(promos, func(i, j int) bool {
		return promos[i].Name < promos[j].Name
	})

	return promos, nil
}

// CheckPromoCode resolves the promo code, looks up the requester's weather
// only once the code is known, then evaluates the assembled context.
func (s *Service) CheckPromoCode(ctx context.Context, req CheckRequest) (CheckResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "service.CheckPromoCode")
	defer span.End()
	span.SetAttributes(attribute.String("promo_code.name", req.Name))

	s.logger.DebugContext(ctx, "checking promo code", "name", req.Name, "town", req.Town)

	promo, err := s.GetPromoCode(ctx, req.Name)
	if err != nil {
		if errors.Is(err, ErrPromoCodeNotFound) {
			s.observeCheck(core.StatusDenied)
			return CheckResult{Name: req.Name, Status: core.StatusDenied, Reasons: ErrPromoCodeNotFound.Error()}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup promo code")
		return CheckResult{}, err
	}

	conditions := s.lookupWeather(ctx, req.Town)

	checkContext := core.Context{
		Age:  req.Age,
		Date: s.now().UTC().Format(core.DateLayout),
	}
	if conditions != nil {
		checkContext.Weather = &core.WeatherContext{
			Category:    conditions.Category,
			Temperature: conditions.Temperature,
		}
	}

	decision := core.CheckEligibility(promo, checkContext)
	s.observeCheck(decision.Status)
	span.SetAttributes(attribute.String("promo_code.status", string(decision.Status)))

	result := CheckResult{Name: promo.Name, Status: decision.Status}
	if decision.Accepted() {
		advantage := promo.Advantage
		result.Advantage = &advantage
		s.logger.InfoContext(ctx, "promo code accepted", "name", promo.Name)
	} else {
		result.Reasons = decision.Reason
		s.logger.InfoContext(ctx, "promo code denied", "name", promo.Name, "reasons", decision.Reason)
	}

	return result, nil
}

// lookupWeather never fails the check: any provider error drops weather
// from the context.
func (s *Service) lookupWeather(ctx context.Context, town string) *weather.Conditions {
	town = strings.TrimSpace(town)
	if town == "" || s.weather == nil {
		s.observeWeatherLookup(WeatherLookupSkipped)
		return nil
	}

	conditions, err := s.weather.CurrentWeather(ctx, town)
	if err != nil {
		s.observeWeatherLookup(WeatherLookupError)
		s.logger.WarnContext(ctx, "weather lookup failed, omitting weather", "town", town, "error", err)
		return nil
	}

	s.observeWeatherLookup(WeatherLookupHit)
	return &conditions
}

func (s *Service) observeCheck(status core.Status) {
	if s.recordCheck != nil {
		s.recordCheck(string(status))
	}
}

func (s *Service) observeWeatherLookup(result string) {
	if s.recordWeatherLookup != nil {
		s.recordWeatherLookup(result)
	}
}

func (s *Service) getCachedPromoCode(name string) (core.PromoCode, bool) {
	s.mu.RLock()
	promo, ok := s.cache[name]
	s.mu.RUnlock()

	return promo, ok
}

func (s *Service) setCachedPromoCode(promo core.PromoCode) {
	s.mu.Lock()
	s.cache[promo.Name] = promo
	size := len(s.cache)
	s.mu.Unlock()

	if s.setCacheSize != nil {
		s.setCacheSize(float64(size))
	}
}

func (s *Service) startCacheInvalidationListener(ctx context.Context, subscriber cacheInvalidationSubscriber) error {
	invalidations, err := subscriber.SubscribePromoCodeInvalidation(ctx)
	if err != nil {
		return fmt.Errorf("subscribe cache invalidation: %w", err)
	}

	go func() {
		resyncTicker := time.NewTicker(s.resyncInterval)
		defer resyncTicker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-resyncTicker.C:
				if invalidations == nil {
					next, err := subscriber.SubscribePromoCodeInvalidation(ctx)
					if err == nil {
						invalidations = next
					}
				}
				s.reloadCache(ctx)
			case _, ok := <-invalidations:
				if !ok {
					next, err := subscriber.SubscribePromoCodeInvalidation(ctx)
					if err != nil {
						invalidations = nil
						continue
					}
					invalidations = next
					continue
				}
				if s.incCacheInvalidations != nil {
					s.incCacheInvalidations()
				}
				s.reloadCache(ctx)
			}
		}
	}()

	return nil
}

func (s *Service) reloadCache(ctx context.Context) {
	reloadCtx, cancel := context.WithTimeout(ctx, cacheReloadTimeout)
	defer cancel()
	if err := s.LoadCache(reloadCtx); err != nil {
		s.logger.Error("reload promo code cache", "error", err)
	}
}

func promoCodeToRow(promo core.PromoCode) (repository.PromoCode, error) {
	restrictions, err := core.MarshalRestrictions(promo.Restrictions)
	if err != nil {
		return repository.PromoCode{}, err
	}

	return repository.PromoCode{
		Name:             promo.Name,
		AdvantagePercent: promo.Advantage.Percent,
		Restrictions:     restrictions,
	}, nil
}

func promoCodeFromRow(row repository.PromoCode) (core.PromoCode, error) {
	restrictions, err := core.UnmarshalRestrictions(row.Restrictions)
	if err != nil {
		return core.PromoCode{}, fmt.Errorf("%w %q: %v", ErrInvalidPromoCode, row.Name, err)
	}

	return core.PromoCode{
		Name:         row.Name,
		Advantage:    core.Advantage{Percent: row.AdvantagePercent},
		Restrictions: restrictions,
	}, nil
}
