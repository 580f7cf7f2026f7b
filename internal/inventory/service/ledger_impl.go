package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kontago/internal/clock"
	"github.com/smallbiznis/kontago/internal/config"
	"github.com/smallbiznis/kontago/internal/inventory/domain"
	"github.com/smallbiznis/kontago/internal/inventory/lock"
	obsmetrics "github.com/smallbiznis/kontago/internal/observability/metrics"
	"github.com/smallbiznis/kontago/pkg/db"
	"github.com/smallbiznis/kontago/pkg/db/uow"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Locker    lock.Locker
	Config    *config.InventoryConfigHolder
	Clock     clock.Clock
	Metrics   *obsmetrics.InventoryMetrics `optional:"true"`
	OTMetrics *obsmetrics.Metrics          `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	locker    lock.Locker
	cfg       *config.InventoryConfigHolder
	clock     clock.Clock
	metrics   *obsmetrics.InventoryMetrics
	otMetrics *obsmetrics.Metrics
}

func NewLedger(p Params) domain.Ledger {
	return &Service{
		log:       p.Log.Named("inventory.ledger"),
		locker:    p.Locker,
		cfg:       p.Config,
		clock:     p.Clock,
		metrics:   p.Metrics,
		otMetrics: p.OTMetrics,
	}
}

const pgLockTimeoutKey = "pg:lock_timeout"

func productLockKey(id snowflake.ID) string {
	return fmt.Sprintf("product:%d", id)
}

func (s *Service) LockForUpdate(ctx context.Context, unit *uow.Unit, productID snowflake.ID) (*domain.ProductHandle, error) {
	if unit == nil || unit.DB() == nil {
		return nil, errors.New("inventory: lock requires an active unit of work")
	}

	wait := s.cfg.Get().LockTimeout
	key := productLockKey(productID)
	if !unit.Holds(key) {
		start := time.Now()
		release, err := s.locker.Acquire(ctx, key, wait)
		s.metrics.ObserveLockWait(s.locker.Backend(), time.Since(start))
		if err != nil {
			if errors.Is(err, lock.ErrWaitTimeout) {
				s.log.Warn("product lock wait exceeded",
					zap.String("product_id", productID.String()),
					zap.Duration("wait", wait),
				)
				return nil, &domain.LockTimeoutError{ProductID: productID}
			}
			return nil, fmt.Errorf("inventory: acquire lock %s: %w", key, err)
		}
		unit.Track(key, release)
	}

	tx := unit.DB().WithContext(ctx)
	if db.IsPostgres(tx) && !unit.Holds(pgLockTimeoutKey) && wait > 0 {
		if err := tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", wait.Milliseconds())).Error; err != nil {
			return nil, fmt.Errorf("inventory: set lock_timeout: %w", err)
		}
		unit.Track(pgLockTimeoutKey, nil)
	}

	query := `SELECT id, name, price, quantity, min_stock FROM products WHERE id = ?`
	if db.SupportsRowLocks(tx) {
		query += ` FOR UPDATE`
	}

	var handle domain.ProductHandle
	if err := tx.Raw(query, productID).Scan(&handle).Error; err != nil {
		if db.IsLockTimeout(err) {
			return nil, &domain.LockTimeoutError{ProductID: productID}
		}
		return nil, fmt.Errorf("inventory: read product %d: %w", productID, err)
	}
	if handle.ID == 0 {
		return nil, &domain.ProductNotFoundError{ProductID: productID}
	}

	return &handle, nil
}

func (s *Service) Decrement(ctx context.Context, unit *uow.Unit, handle *domain.ProductHandle, qty int64) error {
	if err := s.checkHeld(unit, handle); err != nil {
		return err
	}
	if qty <= 0 {
		return &domain.InvalidQuantityError{ProductID: handle.ID, Quantity: qty}
	}
	if qty > handle.Quantity {
		return &domain.InsufficientStockError{
			ProductID: handle.ID,
			Available: handle.Quantity,
			Requested: qty,
		}
	}

	res := unit.DB().WithContext(ctx).Exec(
		`UPDATE products SET quantity = quantity - ?, updated_at = ? WHERE id = ? AND quantity >= ?`,
		qty,
		s.clock.Now(),
		handle.ID,
		qty,
	)
	if res.Error != nil {
		if db.IsCheckViolation(res.Error) {
			return &domain.InsufficientStockError{ProductID: handle.ID, Available: handle.Quantity, Requested: qty}
		}
		return s.wrapWriteErr(handle.ID, res)
	}
	if res.RowsAffected == 0 {
		return &domain.InsufficientStockError{ProductID: handle.ID, Available: handle.Quantity, Requested: qty}
	}

	handle.Quantity -= qty
	s.metrics.AddStockMovement(obsmetrics.StockMovementOut, qty)
	s.otMetrics.RecordStockMovement(ctx, obsmetrics.StockMovementOut, qty)
	s.log.Debug("stock decremented",
		zap.String("product_id", handle.ID.String()),
		zap.Int64("quantity", qty),
		zap.Int64("remaining", handle.Quantity),
	)
	return nil
}

func (s *Service) Increment(ctx context.Context, unit *uow.Unit, handle *domain.ProductHandle, qty int64) error {
	if err := s.checkHeld(unit, handle); err != nil {
		return err
	}
	if qty <= 0 {
		return &domain.InvalidQuantityError{ProductID: handle.ID, Quantity: qty}
	}

	res := unit.DB().WithContext(ctx).Exec(
		`UPDATE products SET quantity = quantity + ?, updated_at = ? WHERE id = ?`,
		qty,
		s.clock.Now(),
		handle.ID,
	)
	if res.Error != nil {
		return s.wrapWriteErr(handle.ID, res)
	}
	if res.RowsAffected == 0 {
		return &domain.ProductNotFoundError{ProductID: handle.ID}
	}

	handle.Quantity += qty
	s.metrics.AddStockMovement(obsmetrics.StockMovementIn, qty)
	s.otMetrics.RecordStockMovement(ctx, obsmetrics.StockMovementIn, qty)
	return nil
}

func (s *Service) checkHeld(unit *uow.Unit, handle *domain.ProductHandle) error {
	if unit == nil || unit.DB() == nil {
		return errors.New("inventory: mutation requires an active unit of work")
	}
	if handle == nil {
		return errors.New("inventory: nil product handle")
	}
	if !unit.Holds(productLockKey(handle.ID)) {
		return fmt.Errorf("inventory: product %d is not locked by this unit", handle.ID)
	}
	return nil
}

func (s *Service) wrapWriteErr(id snowflake.ID, res *gorm.DB) error {
	if db.IsLockTimeout(res.Error) {
		return &domain.LockTimeoutError{ProductID: id}
	}
	return fmt.Errorf("inventory: update product %d: %w", id, res.Error)
}
