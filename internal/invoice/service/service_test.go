package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/kontago/internal/clock"
	"github.com/smallbiznis/kontago/internal/config"
	"github.com/smallbiznis/kontago/internal/events"
	inventorydomain "github.com/smallbiznis/kontago/internal/inventory/domain"
	"github.com/smallbiznis/kontago/internal/inventory/lock"
	inventoryservice "github.com/smallbiznis/kontago/internal/inventory/service"
	invoicedomain "github.com/smallbiznis/kontago/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/kontago/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/kontago/internal/invoice/service"
	"github.com/smallbiznis/kontago/internal/migration"
	obsmetrics "github.com/smallbiznis/kontago/internal/observability/metrics"
	productdomain "github.com/smallbiznis/kontago/internal/product/domain"
	"github.com/smallbiznis/kontago/pkg/db"
	"github.com/smallbiznis/kontago/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	productA = snowflake.ID(101)
	productB = snowflake.ID(102)
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, evt := range p.events {
		out = append(out, evt.Type)
	}
	return out
}

// trackingLocker wraps a real locker and remembers which leases are out.
type trackingLocker struct {
	inner lock.Locker

	mu       sync.Mutex
	held     map[string]bool
	order    []string
	overlaps int
}

func newTrackingLocker(inner lock.Locker) *trackingLocker {
	return &trackingLocker{inner: inner, held: map[string]bool{}}
}

func (l *trackingLocker) Acquire(ctx context.Context, key string, wait time.Duration) (func(), error) {
	release, err := l.inner.Acquire(ctx, key, wait)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	if l.held[key] {
		l.overlaps++
	}
	l.held[key] = true
	l.order = append(l.order, key)
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		l.held[key] = false
		l.mu.Unlock()
		release()
	}, nil
}

func (l *trackingLocker) Backend() string {
	return l.inner.Backend()
}

func (l *trackingLocker) isHeld(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[key]
}

func (l *trackingLocker) acquired() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.order...)
}

func (l *trackingLocker) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.order = nil
}

type fixture struct {
	db        *gorm.DB
	svc       invoicedomain.Service
	clock     *clock.FakeClock
	publisher *recordingPublisher
	registry  *prometheus.Registry
	locker    *trackingLocker
}

func newFixture(t *testing.T, cfg config.InventoryConfig) fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	holder := config.NewStaticInventoryConfigHolder(cfg)
	fakeClock := clock.NewFakeClock(time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC))
	registry := prometheus.NewRegistry()
	metrics := obsmetrics.NewInventoryMetricsForTest(registry)
	publisher := &recordingPublisher{}
	locker := newTrackingLocker(lock.NewLocalLocker())

	ledger := inventoryservice.NewLedger(inventoryservice.Params{
		Log:     zap.NewNop(),
		Locker:  locker,
		Config:  holder,
		Clock:   fakeClock,
		Metrics: metrics,
	})

	svc := invoiceservice.NewService(invoiceservice.ServiceParam{
		DB:         conn,
		Log:        zap.NewNop(),
		GenID:      node,
		Repo:       invoicerepo.Provide(),
		Ledger:     ledger,
		Clock:      fakeClock,
		Config:     holder,
		Dispatcher: events.NewDispatcher(publisher, zap.NewNop(), nil),
		Metrics:    metrics,
	})

	f := fixture{db: conn, svc: svc, clock: fakeClock, publisher: publisher, registry: registry, locker: locker}
	f.seed(t, productA, "Notebook", "2.50", 10, 2)
	f.seed(t, productB, "Shampoo", "9.99", 3, 1)
	return f
}

func (f fixture) seed(t *testing.T, id snowflake.ID, name, price string, qty, minStock int64) {
	t.Helper()
	now := f.clock.Now()
	require.NoError(t, f.db.Create(&productdomain.Product{
		ID:        id.Int64(),
		Name:      name,
		Slug:      strings.ToLower(name),
		Price:     decimal.RequireFromString(price),
		Quantity:  qty,
		MinStock:  minStock,
		CreatedAt: now,
		UpdatedAt: now,
	}).Error)
}

func (f fixture) quantity(t *testing.T, id snowflake.ID) int64 {
	t.Helper()
	var p productdomain.Product
	require.NoError(t, f.db.First(&p, id.Int64()).Error)
	return p.Quantity
}

func (f fixture) count(t *testing.T, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Table(table).Count(&n).Error)
	return n
}

func (f fixture) assertUntouched(t *testing.T) {
	t.Helper()
	assert.Equal(t, int64(10), f.quantity(t, productA))
	assert.Equal(t, int64(3), f.quantity(t, productB))
	assert.Zero(t, f.count(t, "invoices"))
	assert.Zero(t, f.count(t, "invoice_items"))
}

func register(f fixture, cart ...invoicedomain.CartEntry) (*invoicedomain.Invoice, error) {
	return f.svc.Register(context.Background(), invoicedomain.RegisterRequest{Customer: "Ana", Cart: cart})
}

func TestRegisterCommitsWholeCart(t *testing.T) {
	f := newFixture(t, config.DefaultInventoryConfig())

	inv, err := register(f, invoicedomain.Item(productA, 2), invoicedomain.Item(productB, 3))
	require.NoError(t, err)

	assert.Equal(t, "F0001", inv.Code)
	assert.Equal(t, "34.97", inv.Total.StringFixed(2))
	require.Len(t, inv.Items, 2)
	assert.Equal(t, productA, inv.Items[0].ProductID)
	assert.Equal(t, 1, inv.Items[0].Position)
	assert.Equal(t, "5.00", inv.Items[0].Subtotal.StringFixed(2))
	assert.Equal(t, "29.97", inv.Items[1].Subtotal.StringFixed(2))
	require.NotNil(t, inv.Customer)
	assert.Equal(t, "Ana", *inv.Customer)

	assert.Equal(t, int64(8), f.quantity(t, productA))
	assert.Equal(t, int64(0), f.quantity(t, productB))

	stored, err := f.svc.GetByID(context.Background(), inv.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "34.97", stored.Total.StringFixed(2))
	require.Len(t, stored.Items, 2)
	assert.Equal(t, "Notebook", stored.Items[0].ProductName)
	assert.Equal(t, "Shampoo", stored.Items[1].ProductName)

	assert.Equal(t, []string{events.TypeInvoiceRegistered, events.TypeStockLow}, f.publisher.types())
}

func TestRegisterInsufficientStockRollsBackEverything(t *testing.T) {
	f := newFixture(t, config.DefaultInventoryConfig())

	inv, err := register(f, invoicedomain.Item(productA, 2), invoicedomain.Item(productB, 5))
	require.Error(t, err)
	assert.Nil(t, inv)

	var insufficient *inventorydomain.InsufficientStockError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, productB, insufficient.ProductID)
	assert.Equal(t, int64(3), insufficient.Available)
	assert.Equal(t, int64(5), insufficient.Requested)

	f.assertUntouched(t)
	assert.Empty(t, f.publisher.types())
}

func TestRegisterRejectsEmptyCart(t *testing.T) {
	f := newFixture(t, config.DefaultInventoryConfig())

	_, err := register(f)
	assert.ErrorIs(t, err, invoicedomain.ErrEmptyCart)
	f.assertUntouched(t)
}

func TestRegisterRejectsLongCustomer(t *testing.T) {
	f := newFixture(t, config.DefaultInventoryConfig())

	_, err := f.svc.Register(context.Background(), invoicedomain.RegisterRequest{
		Customer: strings.Repeat("x", 101),
		Cart:     []invoicedomain.CartEntry{invoicedomain.Item(productA, 1)},
	})

	var header *invoicedomain.InvalidHeaderError
	require.True(t, errors.As(err, &header))
	require.Len(t, header.Fields, 1)
	assert.Equal(t, "customer", header.Fields[0].Field)
	f.assertUntouched(t)
}

func TestRegisterLineFailures(t *testing.T) {
	cases := []struct {
		name   string
		cart   []invoicedomain.CartEntry
		target error
		check  func(t *testing.T, err error)
	}{
		{
			name:   "malformed entry after a valid one",
			cart:   []invoicedomain.CartEntry{invoicedomain.Item(productA, 2), {ProductID: json.RawMessage(`"abc"`), Quantity: json.RawMessage(`1`)}},
			target: invoicedomain.ErrMalformedCartItem,
			check: func(t *testing.T, err error) {
				var malformed *invoicedomain.MalformedCartItemError
				require.True(t, errors.As(err, &malformed))
				assert.Equal(t, 1, malformed.Index)
			},
		},
		{
			name:   "unknown product",
			cart:   []invoicedomain.CartEntry{invoicedomain.Item(productA, 1), invoicedomain.Item(snowflake.ID(999), 1)},
			target: inventorydomain.ErrProductNotFound,
			check: func(t *testing.T, err error) {
				var notFound *inventorydomain.ProductNotFoundError
				require.True(t, errors.As(err, &notFound))
				assert.Equal(t, snowflake.ID(999), notFound.ProductID)
			},
		},
		{
			name:   "zero quantity",
			cart:   []invoicedomain.CartEntry{invoicedomain.Item(productA, 0)},
			target: inventorydomain.ErrInvalidQuantity,
		},
		{
			name:   "negative quantity",
			cart:   []invoicedomain.CartEntry{invoicedomain.Item(productB, 1), invoicedomain.Item(productA, -1)},
			target: inventorydomain.ErrInvalidQuantity,
		},
		{
			name:   "same product twice exceeds stock",
			cart:   []invoicedomain.CartEntry{invoicedomain.Item(productB, 2), invoicedomain.Item(productB, 2)},
			target: inventorydomain.ErrInsufficientStock,
			check: func(t *testing.T, err error) {
				var insufficient *inventorydomain.InsufficientStockError
				require.True(t, errors.As(err, &insufficient))
				assert.Equal(t, int64(1), insufficient.Available)
				assert.Equal(t, int64(2), insufficient.Requested)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, config.DefaultInventoryConfig())

			_, err := register(f, tc.cart...)
			require.ErrorIs(t, err, tc.target)
			if tc.check != nil {
				tc.check(t, err)
			}
			f.assertUntouched(t)
		})
	}
}

func TestRegisterAssignsIncreasingCodes(t *testing.T) {
	f := newFixture(t, config.DefaultInventoryConfig())

	var codes []string
	for i := 0; i < 3; i++ {
		inv, err := register(f, invoicedomain.Item(productA, 1))
		require.NoError(t, err)
		codes = append(codes, inv.Code)
		f.clock.Advance(time.Minute)
	}

	assert.Equal(t, []string{"F0001", "F0002", "F0003"}, codes)
	assert.Equal(t, int64(7), f.quantity(t, productA))
}

// requireLeaseOnStockWrites fails the test when a products UPDATE runs without the product lease.
func requireLeaseOnStockWrites(t *testing.T, f fixture) *atomic.Int32 {
	t.Helper()
	var unguarded atomic.Int32
	require.NoError(t, f.db.Callback().Raw().Before("gorm:raw").Register("test:lease_guard", func(tx *gorm.DB) {
		if !strings.HasPrefix(strings.TrimSpace(tx.Statement.SQL.String()), "UPDATE products") {
			return
		}
		vars := tx.Statement.Vars
		if len(vars) < 3 || !f.locker.isHeld(fmt.Sprintf("product:%v", vars[2])) {
			unguarded.Add(1)
		}
	}))
	return &unguarded
}

func TestRegisterNoOversellUnderConcurrency(t *testing.T) {
	f := newFixture(t, config.DefaultInventoryConfig())
	f.seed(t, snowflake.ID(103), "Soap", "1.00", 5, 0)
	unguarded := requireLeaseOnStockWrites(t, f)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = register(f, invoicedomain.Item(snowflake.ID(103), 3))
		}(i)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, inventorydomain.ErrInsufficientStock):
			rejected++
			var insufficient *inventorydomain.InsufficientStockError
			require.True(t, errors.As(err, &insufficient))
			assert.Equal(t, int64(2), insufficient.Available)
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, int64(2), f.quantity(t, snowflake.ID(103)))
	assert.Equal(t, int64(1), f.count(t, "invoices"))

	assert.Equal(t, []string{"product:103", "product:103"}, f.locker.acquired())
	assert.Zero(t, f.locker.overlaps)
	assert.Zero(t, unguarded.Load())
	assert.False(t, f.locker.isHeld("product:103"))
}

func TestRegisterLockTimeoutLeavesStockUntouched(t *testing.T) {
	cfg := config.DefaultInventoryConfig()
	cfg.LockTimeout = 50 * time.Millisecond
	f := newFixture(t, cfg)

	release, err := f.locker.Acquire(context.Background(), "product:102", 0)
	require.NoError(t, err)

	_, err = register(f, invoicedomain.Item(productA, 2), invoicedomain.Item(productB, 1))
	require.ErrorIs(t, err, inventorydomain.ErrLockTimeout)
	var timeout *inventorydomain.LockTimeoutError
	require.True(t, errors.As(err, &timeout))
	assert.Equal(t, productB, timeout.ProductID)

	f.assertUntouched(t)
	assert.False(t, f.locker.isHeld("product:101"))

	release()

	inv, err := register(f, invoicedomain.Item(productA, 2), invoicedomain.Item(productB, 1))
	require.NoError(t, err)
	assert.Equal(t, "F0001", inv.Code)
	assert.Equal(t, int64(2), f.quantity(t, productB))
}

func TestRegisterLocksProductsInAscendingOrder(t *testing.T) {
	f := newFixture(t, config.DefaultInventoryConfig())
	unguarded := requireLeaseOnStockWrites(t, f)

	_, err := register(f, invoicedomain.Item(productB, 1), invoicedomain.Item(productA, 1))
	require.NoError(t, err)
	assert.Equal(t, []string{"product:101", "product:102"}, f.locker.acquired())

	f.locker.reset()
	var wg sync.WaitGroup
	carts := [][]invoicedomain.CartEntry{
		{invoicedomain.Item(productA, 1), invoicedomain.Item(productB, 1)},
		{invoicedomain.Item(productB, 1), invoicedomain.Item(productA, 1)},
	}
	errs := make([]error, len(carts))
	for i, cart := range carts {
		wg.Add(1)
		go func(i int, cart []invoicedomain.CartEntry) {
			defer wg.Done()
			_, errs[i] = register(f, cart...)
		}(i, cart)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"product:101", "product:102", "product:101", "product:102"}, f.locker.acquired())
	assert.Zero(t, f.locker.overlaps)
	assert.Zero(t, unguarded.Load())
	assert.Equal(t, int64(7), f.quantity(t, productA))
	assert.Equal(t, int64(0), f.quantity(t, productB))
	assert.Equal(t, int64(3), f.count(t, "invoices"))
}

func collideOnInvoiceInsert(t *testing.T, conn *gorm.DB, times int32) *atomic.Int32 {
	t.Helper()
	var fired atomic.Int32
	require.NoError(t, conn.Callback().Raw().Before("gorm:raw").Register("test:collide", func(tx *gorm.DB) {
		if !strings.HasPrefix(strings.TrimSpace(tx.Statement.SQL.String()), "INSERT INTO invoices") {
			return
		}
		if fired.Add(1) <= times {
			_ = tx.AddError(errors.New("UNIQUE constraint failed: invoices.sequence"))
		}
	}))
	return &fired
}

func TestRegisterRetriesCodeCollision(t *testing.T) {
	f := newFixture(t, config.DefaultInventoryConfig())
	collideOnInvoiceInsert(t, f.db, 1)

	inv, err := register(f, invoicedomain.Item(productA, 4))
	require.NoError(t, err)
	assert.Equal(t, "F0001", inv.Code)
	assert.Equal(t, int64(6), f.quantity(t, productA))

	expected := `
# HELP kontago_invoice_register_retries_total Invoice registration transaction replays by reason.
# TYPE kontago_invoice_register_retries_total counter
kontago_invoice_register_retries_total{env="test",reason="unique_violation",service="kontago"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(f.registry, strings.NewReader(expected), "kontago_invoice_register_retries_total"))
}

func TestRegisterSurfacesCollisionWhenRetriesExhausted(t *testing.T) {
	cfg := config.DefaultInventoryConfig()
	cfg.RegisterMaxAttempts = 2
	f := newFixture(t, cfg)
	fired := collideOnInvoiceInsert(t, f.db, 100)

	_, err := register(f, invoicedomain.Item(productA, 1))
	assert.ErrorIs(t, err, invoicedomain.ErrCodeCollision)
	assert.Equal(t, int32(2), fired.Load())
	f.assertUntouched(t)
}

func TestListPagesNewestFirst(t *testing.T) {
	f := newFixture(t, config.DefaultInventoryConfig())

	for i := 0; i < 3; i++ {
		_, err := register(f, invoicedomain.Item(productA, 1))
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	ctx := context.Background()
	first, err := f.svc.List(ctx, invoicedomain.ListInvoiceRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, first.Invoices, 2)
	assert.True(t, first.HasMore)
	assert.NotEmpty(t, first.NextPageToken)
	assert.Equal(t, "F0003", first.Invoices[0].Code)
	assert.Equal(t, "F0002", first.Invoices[1].Code)
	require.Len(t, first.Invoices[0].Items, 1)
	assert.Equal(t, "Notebook", first.Invoices[0].Items[0].ProductName)

	second, err := f.svc.List(ctx, invoicedomain.ListInvoiceRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, second.Invoices, 1)
	assert.False(t, second.HasMore)
	assert.Equal(t, "F0001", second.Invoices[0].Code)

	_, err = f.svc.List(ctx, invoicedomain.ListInvoiceRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: "%%%"},
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidPageToken)
}

func TestGetByIDErrors(t *testing.T) {
	f := newFixture(t, config.DefaultInventoryConfig())

	_, err := f.svc.GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidID)

	_, err = f.svc.GetByID(context.Background(), "12345")
	assert.ErrorIs(t, err, invoicedomain.ErrNotFound)
}
