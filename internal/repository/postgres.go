// Package repository stores promo codes. PostgresRepository keeps them in a
// promo_codes table and pushes LISTEN/NOTIFY invalidations to the service
// cache; MemoryRepository keeps them in process for local runs and tests.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	defaultNotifyChannel = "promo_code_events"
	uniqueViolationCode  = "23505"
)

var (
	ErrNotFound  = errors.New("promo code not found")
	ErrDuplicate = errors.New("promo code already exists")
)

// PromoCode is the stored form of a promo code. Restrictions holds the JSON
// produced by core.MarshalRestrictions.
type PromoCode struct {
	Name             string
	AdvantagePercent decimal.Decimal
	Restrictions     json.RawMessage
	CreatedAt        time.Time
}

// PostgresRepository implements promo code persistence backed by a pgxpool
// connection pool.
type PostgresRepository struct {
	pool          *pgxpool.Pool
	notifyChannel string
}

// NewPostgresRepository creates a [PostgresRepository] listening on the
// default "promo_code_events" channel.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return NewPostgresRepositoryWithChannel(pool, defaultNotifyChannel)
}

func NewPostgresRepositoryWithChannel(pool *pgxpool.Pool, notifyChannel string) *PostgresRepository {
	return &PostgresRepository{
		pool:          pool,
		notifyChannel: normalizeNotifyChannel(notifyChannel),
	}
}

// CreatePromoCode inserts a row. A name that is already taken returns
// ErrDuplicate.
func (r *PostgresRepository) CreatePromoCode(ctx context.Context, promo PromoCode) (PromoCode, error) {
	var (
		created PromoCode
		percent string
	)
	err := r.pool.QueryRow(ctx, `
		INSERT INTO promo_codes (name, advantage_percent, restrictions)
		VALUES ($1, $2::numeric, $3)
		RETURNING name, advantage_percent::text, restrictions, created_at
	`,
		promo.Name,
		promo.AdvantagePercent.String(),
		ensureJSON(promo.Restrictions, "[]"),
	).Scan(
		&created.Name,
		&percent,
		&created.Restrictions,
		&created.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return PromoCode{}, fmt.Errorf("create promo code %q: %w", promo.Name, ErrDuplicate)
		}
		return PromoCode{}, fmt.Errorf("create promo code: %w", err)
	}

	if created.AdvantagePercent, err = decimal.NewFromString(percent); err != nil {
		return PromoCode{}, fmt.Errorf("parse advantage percent: %w", err)
	}

	return created, nil
}

func (r *PostgresRepository) GetPromoCode(ctx context.Context, name string) (PromoCode, error) {
	var (
		promo   PromoCode
		percent string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT name, advantage_percent::text, restrictions, created_at
		FROM promo_codes
		WHERE name = $1
	`, name).Scan(
		&promo.Name,
		&percent,
		&promo.Restrictions,
		&promo.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PromoCode{}, fmt.Errorf("get promo code %q: %w", name, ErrNotFound)
		}
		return PromoCode{}, fmt.Errorf("get promo code: %w", err)
	}

	if promo.AdvantagePercent, err = decimal.NewFromString(percent); err != nil {
		return PromoCode{}, fmt.Errorf("parse advantage percent: %w", err)
	}

	return promo, nil
}

func (r *PostgresRepository) ListPromoCodes(ctx context.Context) ([]PromoCode, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT name, advantage_percent::text, restrictions, created_at
		FROM promo_codes
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list promo codes: %w", err)
	}
	defer rows.Close()

	promos := make([]PromoCode, 0)
	for rows.Next() {
		var (
			promo   PromoCode
			percent string
		)
		if err := rows.Scan(&promo.Name, &percent, &promo.Restrictions, &promo.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan promo code: %w", err)
		}
		if promo.AdvantagePercent, err = decimal.NewFromString(percent); err != nil {
			return nil, fmt.Errorf("parse advantage percent for %q: %w", promo.Name, err)
		}
		promos = append(promos, promo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate promo codes: %w", err)
	}

	return promos, nil
}

// SubscribePromoCodeInvalidation returns a channel that receives a value
// whenever another writer inserts a promo code. The channel is closed when
// ctx is done.
func (r *PostgresRepository) SubscribePromoCodeInvalidation(ctx context.Context) (<-chan struct{}, error) {
	invalidations := make(chan struct{}, 1)

	go r.runInvalidationListener(ctx, invalidations)

	return invalidations, nil
}

func (r *PostgresRepository) runInvalidationListener(ctx context.Context, invalidations chan<- struct{}) {
	defer close(invalidations)

	for {
		err := r.listenForInvalidation(ctx, invalidations)
		if err == nil || ctx.Err() != nil {
			return
		}

		retryTimer := time.NewTimer(time.Second)
		select {
		case <-ctx.Done():
			retryTimer.Stop()
			return
		case <-retryTimer.C:
		}
	}
}

func (r *PostgresRepository) listenForInvalidation(ctx context.Context, invalidations chan<- struct{}) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, listenStatement(r.notifyChannel)); err != nil {
		return fmt.Errorf("listen on %q: %w", r.notifyChannel, err)
	}

	for {
		if _, err := conn.Conn().WaitForNotification(ctx); err != nil {
			return fmt.Errorf("wait for promo code notification: %w", err)
		}

		select {
		case invalidations <- struct{}{}:
		default:
		}
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

func normalizeNotifyChannel(channel string) string {
	if trimmed := strings.TrimSpace(channel); trimmed != "" {
		return trimmed
	}

	return defaultNotifyChannel
}

func ensureJSON(input json.RawMessage, fallback string) json.RawMessage {
	if len(input) == 0 {
		return json.RawMessage(fallback)
	}

	return input
}

func listenStatement(channel string) string {
	return fmt.Sprintf("LISTEN %s", pgx.Identifier{channel}.Sanitize())
}
