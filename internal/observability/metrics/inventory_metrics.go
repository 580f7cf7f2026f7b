package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	RegisterOutcomeCommitted         = "committed"
	RegisterOutcomeEmptyCart         = "empty_cart"
	RegisterOutcomeInvalidHeader     = "invalid_header"
	RegisterOutcomeMalformedCart     = "malformed_cart"
	RegisterOutcomeProductNotFound   = "product_not_found"
	RegisterOutcomeInvalidQuantity   = "invalid_quantity"
	RegisterOutcomeInsufficientStock = "insufficient_stock"
	RegisterOutcomeLockTimeout       = "lock_timeout"
	RegisterOutcomeCodeCollision     = "code_collision"
	RegisterOutcomePersistence       = "persistence"
)

const (
	RetryReasonDeadlineExceeded     = "deadline_exceeded"
	RetryReasonDBLockTimeout        = "db_lock_timeout"
	RetryReasonSerializationFailure = "serialization_failure"
	RetryReasonDeadlock             = "deadlock"
	RetryReasonUniqueViolation      = "unique_violation"
	RetryReasonUnknown              = "unknown"
)

const (
	StockMovementOut = "out"
	StockMovementIn  = "in"
)

// InventoryMetrics captures stock and invoice registration health signals.
type InventoryMetrics struct {
	registrations    *prometheus.CounterVec
	registerDuration prometheus.Observer
	registerRetries  *prometheus.CounterVec
	lockWait         *prometheus.HistogramVec
	stockMovements   *prometheus.CounterVec
	lowStock         prometheus.Counter
}

var (
	inventoryMetricsOnce sync.Once
	inventoryMetrics     *InventoryMetrics
)

// Inventory returns the singleton inventory metrics registry.
func Inventory() *InventoryMetrics {
	return InventoryWithConfig(Config{})
}

// InventoryWithConfig returns the singleton inventory metrics registry using config labels.
func InventoryWithConfig(cfg Config) *InventoryMetrics {
	inventoryMetricsOnce.Do(func() {
		inventoryMetrics = newInventoryMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return inventoryMetrics
}

// NewInventoryMetricsForTest builds an isolated registry-backed instance.
func NewInventoryMetricsForTest(registerer prometheus.Registerer) *InventoryMetrics {
	return newInventoryMetrics(registerer, Config{ServiceName: "kontago", Environment: "test"})
}

func newInventoryMetrics(registerer prometheus.Registerer, cfg Config) *InventoryMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "kontago"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	registrations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "kontago_invoice_register_total",
		Help:        "Invoice registrations by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	registerDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "kontago_invoice_register_duration_seconds",
		Help:        "Invoice registration latency including lock waits and retries.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	})
	registerRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "kontago_invoice_register_retries_total",
		Help:        "Invoice registration transaction replays by reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	lockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "kontago_product_lock_wait_seconds",
		Help:        "Time spent waiting for a product row lock.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	}, []string{"backend"})
	stockMovements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "kontago_stock_units_moved_total",
		Help:        "Stock units moved by direction.",
		ConstLabels: constLabels,
	}, []string{"movement"})
	lowStock := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "kontago_low_stock_alerts_total",
		Help:        "Products that fell to or below their minimum stock after a sale.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		registrations,
		registerDuration,
		registerRetries,
		lockWait,
		stockMovements,
		lowStock,
	)

	return &InventoryMetrics{
		registrations:    registrations,
		registerDuration: registerDuration,
		registerRetries:  registerRetries,
		lockWait:         lockWait,
		stockMovements:   stockMovements,
		lowStock:         lowStock,
	}
}

// IncRegistration increments the registration counter for an outcome.
func (m *InventoryMetrics) IncRegistration(outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcome).Inc()
}

// ObserveRegisterDuration records end-to-end registration latency.
func (m *InventoryMetrics) ObserveRegisterDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.registerDuration.Observe(d.Seconds())
}

// IncRegisterRetry counts a replayed registration transaction.
func (m *InventoryMetrics) IncRegisterRetry(err error) {
	if m == nil || err == nil {
		return
	}
	m.registerRetries.WithLabelValues(ClassifyRetryReason(err)).Inc()
}

// ObserveLockWait records time spent acquiring a product lock.
func (m *InventoryMetrics) ObserveLockWait(backend string, d time.Duration) {
	if m == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	m.lockWait.WithLabelValues(backend).Observe(d.Seconds())
}

// AddStockMovement adds units to the stock movement counter.
func (m *InventoryMetrics) AddStockMovement(movement string, units int64) {
	if m == nil || units <= 0 {
		return
	}
	m.stockMovements.WithLabelValues(movement).Add(float64(units))
}

func (m *InventoryMetrics) IncLowStock() {
	if m == nil {
		return
	}
	m.lowStock.Inc()
}

// ClassifyRetryReason maps database aborts to low-cardinality labels.
func ClassifyRetryReason(err error) string {
	if err == nil {
		return RetryReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return RetryReasonDeadlineExceeded
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return RetryReasonUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return RetryReasonDBLockTimeout
		case "40001":
			return RetryReasonSerializationFailure
		case "40P01":
			return RetryReasonDeadlock
		case "23505":
			return RetryReasonUniqueViolation
		}
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return RetryReasonUniqueViolation
	}
	return RetryReasonUnknown
}
