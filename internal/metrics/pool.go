package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

type poolStat struct {
	desc      *prometheus.Desc
	valueType prometheus.ValueType
	value     func(*pgxpool.Stat) float64
}

// poolCollector reads pgxpool statistics at scrape time rather than on a
// polling loop.
type poolCollector struct {
	pool  *pgxpool.Pool
	stats []poolStat
}

// RegisterPoolMetrics exposes live pgxpool connection statistics on reg.
func RegisterPoolMetrics(reg prometheus.Registerer, pool *pgxpool.Pool) {
	gauge := func(name, help string, value func(*pgxpool.Stat) float64) poolStat {
		return poolStat{
			desc:      prometheus.NewDesc("promoz_db_pool_"+name, help, nil, nil),
			valueType: prometheus.GaugeValue,
			value:     value,
		}
	}
	counter := func(name, help string, value func(*pgxpool.Stat) float64) poolStat {
		stat := gauge(name, help, value)
		stat.valueType = prometheus.CounterValue
		return stat
	}

	reg.MustRegister(&poolCollector{
		pool: pool,
		stats: []poolStat{
			gauge("acquired", "Number of currently acquired database connections.",
				func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }),
			gauge("idle", "Number of idle database connections in the pool.",
				func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }),
			gauge("total", "Total number of database connections in the pool.",
				func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }),
			gauge("max", "Maximum number of database connections allowed in the pool.",
				func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) }),
			counter("empty_acquires_total", "Acquires that had to wait for a connection.",
				func(s *pgxpool.Stat) float64 { return float64(s.EmptyAcquireCount()) }),
		},
	})
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, stat := range c.stats {
		ch <- stat.desc
	}
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.pool.Stat()
	for _, stat := range c.stats {
		ch <- prometheus.MustNewConstMetric(stat.desc, stat.valueType, stat.value(snapshot))
	}
}
