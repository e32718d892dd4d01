package book

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================
// PROMETHEUS МЕТРИКИ КНИГИ ЗАЯВОК
// ============================================

var (
	snapshotsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cyclebot_book_snapshots_applied_total",
		Help: "Total number of order book snapshots applied",
	}, []string{"trading_pair"})

	diffsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cyclebot_book_diffs_applied_total",
		Help: "Total number of order book diff updates applied",
	}, []string{"trading_pair"})

	staleDiffs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cyclebot_book_stale_diffs_total",
		Help: "Total number of diff updates dropped as stale (update_id not newer)",
	}, []string{"trading_pair"})

	levelsEvicted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cyclebot_book_levels_evicted_total",
		Help: "Total number of price levels evicted while resolving a crossed book",
	}, []string{"trading_pair", "mode", "side"})
)
