package metrics

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newLazyPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	// Connections are opened lazily, so an unreachable DSN is enough for Stat().
	pool, err := pgxpool.New(context.Background(), "postgres://promoz@127.0.0.1:1/promoz")
	if err != nil {
		t.Skipf("unable to create pgxpool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestRegisterPoolMetrics(t *testing.T) {
	pool := newLazyPool(t)

	reg := prometheus.NewPedanticRegistry()
	RegisterPoolMetrics(reg, pool)

	expected := fmt.Sprintf(`
# HELP promoz_db_pool_acquired Number of currently acquired database connections.
# TYPE promoz_db_pool_acquired gauge
promoz_db_pool_acquired 0
# HELP promoz_db_pool_empty_acquires_total Acquires that had to wait for a connection.
# TYPE promoz_db_pool_empty_acquires_total counter
promoz_db_pool_empty_acquires_total 0
# HELP promoz_db_pool_max Maximum number of database connections allowed in the pool.
# TYPE promoz_db_pool_max gauge
promoz_db_pool_max %d
`, pool.Stat().MaxConns())

	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"promoz_db_pool_acquired",
		"promoz_db_pool_empty_acquires_total",
		"promoz_db_pool_max",
	); err != nil {
		t.Errorf("unexpected metrics output:\n%v", err)
	}
}

func TestRegisterPoolMetricsFamilies(t *testing.T) {
	pool := newLazyPool(t)

	reg := prometheus.NewPedanticRegistry()
	RegisterPoolMetrics(reg, pool)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if len(mfs) != 5 {
		t.Errorf("expected 5 metric families, got %d", len(mfs))
	}
}
