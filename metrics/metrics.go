// Package metrics exposes the driver's Prometheus instrumentation: one
// counter or histogram per concern (connect, query, rows, transaction,
// error kind), registered once via Init and served over Handler.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectTotal counts connection attempts by outcome ("ok", "transport_error",
	// "protocol_error", "postgres_error").
	ConnectTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgactor_connect_total",
			Help: "Total connection attempts by outcome",
		},
		[]string{"outcome"},
	)

	// ConnectLatency tracks the time from dial to the first ReadyForQuery
	// after bootstrap, including the authentication round trip.
	ConnectLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pgactor_connect_latency_seconds",
			Help:    "Time to establish and bootstrap a connection",
			Buckets: prometheus.DefBuckets,
		},
	)

	// QueryTotal counts queries by command atom ("select", "insert", ...)
	// and outcome.
	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgactor_query_total",
			Help: "Total number of queries processed",
		},
		[]string{"command", "outcome"},
	)

	// QueryLatency tracks query latency from request submission to reply.
	QueryLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pgactor_query_latency_seconds",
			Help:    "Query latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	// RowsReturned tracks how many rows a query's result carried.
	RowsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pgactor_query_rows_returned",
			Help:    "Number of rows returned per query",
			Buckets: []float64{0, 1, 2, 5, 10, 50, 100, 1000, 10000},
		},
	)

	// TransactionTotal counts Begin/Commit/Rollback calls by the depth they
	// were issued at ("outer" for depth 0->1 or 1->0, "nested" otherwise).
	TransactionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgactor_transaction_total",
			Help: "Total transaction control operations",
		},
		[]string{"op", "depth"},
	)

	// ErrorTotal counts errors by the transport/protocol/postgres/codec kind they fall into.
	ErrorTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgactor_error_total",
			Help: "Total errors by kind",
		},
		[]string{"kind"},
	)

	once sync.Once
)

// Init registers all metrics with the default Prometheus registry. Safe to
// call more than once; only the first call takes effect.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(ConnectTotal)
		prometheus.MustRegister(ConnectLatency)
		prometheus.MustRegister(QueryTotal)
		prometheus.MustRegister(QueryLatency)
		prometheus.MustRegister(RowsReturned)
		prometheus.MustRegister(TransactionTotal)
		prometheus.MustRegister(ErrorTotal)
	})
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// errorKinder is satisfied by any error type that knows its own metric
// label; postgres.TransportError/ProtocolError/PostgresError/CodecError all
// implement it (see postgres/errors.go), which keeps this package from
// needing to import postgres just to classify an error.
type errorKinder interface {
	MetricKind() string
}

// ErrorKind maps a driver error to the metric label recorded for it,
// mirroring the driver's four-way error-kind split. Errors that don't
// implement errorKinder are labeled "other".
func ErrorKind(err error) string {
	if k, ok := err.(errorKinder); ok {
		return k.MetricKind()
	}
	return "other"
}
