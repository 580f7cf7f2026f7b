package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/kontago/internal/clock"
	"github.com/smallbiznis/kontago/internal/config"
	"github.com/smallbiznis/kontago/internal/events"
	inventorydomain "github.com/smallbiznis/kontago/internal/inventory/domain"
	obsmetrics "github.com/smallbiznis/kontago/internal/observability/metrics"
	"github.com/smallbiznis/kontago/internal/product/domain"
	"github.com/smallbiznis/kontago/pkg/db"
	"github.com/smallbiznis/kontago/pkg/db/uow"
	"github.com/smallbiznis/kontago/pkg/validate"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Ledger     inventorydomain.Ledger
	Clock      clock.Clock
	Config     *config.InventoryConfigHolder
	Dispatcher *events.Dispatcher           `optional:"true"`
	Metrics    *obsmetrics.InventoryMetrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       domain.Repository
	genID      *snowflake.Node
	ledger     inventorydomain.Ledger
	clock      clock.Clock
	cfg        *config.InventoryConfigHolder
	dispatcher *events.Dispatcher
	metrics    *obsmetrics.InventoryMetrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("product.service"),
		repo:       p.Repo,
		genID:      p.GenID,
		ledger:     p.Ledger,
		clock:      p.Clock,
		cfg:        p.Config,
		dispatcher: p.Dispatcher,
		metrics:    p.Metrics,
	}
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Response, error) {
	filter := domain.ListRequest{
		Category: strings.TrimSpace(req.Category),
		InStock:  req.InStock,
		SortBy:   strings.TrimSpace(req.SortBy),
		OrderBy:  strings.TrimSpace(req.OrderBy),
	}
	if filter.Category != "" && !domain.Category(filter.Category).Valid() {
		return nil, domain.ErrInvalidCategory
	}
	if filter.SortBy == "" {
		filter.SortBy = "name"
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, s.toResponse(&items[i]))
	}

	return resp, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	req.ExpirationDate = trimmedPtr(req.ExpirationDate)
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if req.Price.IsNegative() {
		return nil, validate.Fields(validate.FieldError{Field: "price", Rule: "gte", Param: "0"})
	}

	name := req.Name
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	category := domain.Category(req.Category)
	if !category.Valid() {
		return nil, domain.ErrInvalidCategory
	}
	if category.Expires() && req.ExpirationDate == nil {
		return nil, validate.Fields(validate.FieldError{Field: "expiration_date", Rule: "required_if", Param: "category " + string(category)})
	}

	minStock := s.cfg.Get().DefaultMinStock
	if req.MinStock != nil {
		minStock = *req.MinStock
	}

	var expiration *datatypes.Date
	if category.Expires() && req.ExpirationDate != nil {
		parsed, err := time.Parse("2006-01-02", *req.ExpirationDate)
		if err != nil {
			return nil, validate.Fields(validate.FieldError{Field: "expiration_date", Rule: "datetime", Param: "2006-01-02"})
		}
		date := datatypes.Date(parsed)
		expiration = &date
	}

	now := s.clock.Now()
	p := &domain.Product{
		ID:             s.genID.Generate().Int64(),
		Name:           name,
		Slug:           slug.Make(name),
		Category:       category,
		Description:    trimmedPtr(req.Description),
		Price:          req.Price.Round(2),
		Quantity:       req.Quantity,
		MinStock:       minStock,
		Supplier:       trimmedPtr(req.Supplier),
		ExpirationDate: expiration,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	inserted, err := s.repo.Insert(ctx, s.db, p)
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateName
		}
		return nil, err
	}
	if !inserted {
		return nil, domain.ErrDuplicateName
	}

	s.log.Info("product created",
		zap.String("product_id", snowflake.ID(p.ID).String()),
		zap.String("slug", p.Slug),
		zap.Int64("quantity", p.Quantity),
	)

	resp := s.toResponse(p)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	productID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	item, err := s.repo.FindByID(ctx, s.db, productID.Int64())
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}

	resp := s.toResponse(item)
	return &resp, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	productID, err := parseID(id)
	if err != nil {
		return err
	}

	return uow.Run(ctx, s.db, func(unit *uow.Unit) error {
		if _, err := s.ledger.LockForUpdate(ctx, unit, productID); err != nil {
			if errors.Is(err, inventorydomain.ErrProductNotFound) {
				return domain.ErrNotFound
			}
			return err
		}

		lines, err := s.repo.CountInvoiceLines(ctx, unit.DB(), productID.Int64())
		if err != nil {
			return err
		}
		if lines > 0 {
			return domain.ErrInUse
		}

		deleted, err := s.repo.Delete(ctx, unit.DB(), productID.Int64())
		if err != nil {
			return err
		}
		if !deleted {
			return domain.ErrNotFound
		}
		return nil
	})
}

// AddUnit puts a single unit back on the shelf.
func (s *Service) AddUnit(ctx context.Context, id string) (*domain.Response, error) {
	productID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var item *domain.Product
	err = uow.Run(ctx, s.db, func(unit *uow.Unit) error {
		handle, err := s.ledger.LockForUpdate(ctx, unit, productID)
		if err != nil {
			return err
		}
		if err := s.ledger.Increment(ctx, unit, handle, 1); err != nil {
			return err
		}
		item, err = s.repo.FindByID(ctx, unit.DB(), productID.Int64())
		return err
	})
	if err != nil {
		if errors.Is(err, inventorydomain.ErrProductNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}

	resp := s.toResponse(item)
	return &resp, nil
}

// Takeout sells stock by product name without issuing an invoice.
func (s *Service) Takeout(ctx context.Context, req domain.TakeoutRequest) (*domain.SaleResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	id, err := s.repo.FindIDByName(ctx, s.db, req.Name)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, domain.ErrNotFound
	}
	productID := snowflake.ID(id)

	var (
		sale   *domain.Sale
		handle *inventorydomain.ProductHandle
	)
	err = uow.Run(ctx, s.db, func(unit *uow.Unit) error {
		var err error
		handle, err = s.ledger.LockForUpdate(ctx, unit, productID)
		if err != nil {
			return err
		}
		if err := s.ledger.Decrement(ctx, unit, handle, req.Quantity); err != nil {
			return err
		}

		sale = &domain.Sale{
			ID:        s.genID.Generate().Int64(),
			ProductID: id,
			Quantity:  req.Quantity,
			Total:     handle.Price.Mul(decimal.NewFromInt(req.Quantity)).Round(2),
			CreatedAt: s.clock.Now(),
		}
		if err := s.repo.InsertSale(ctx, unit.DB(), sale); err != nil {
			return err
		}

		if handle.LowStock() {
			low := *handle
			unit.AfterCommit(func(ctx context.Context) {
				s.metrics.IncLowStock()
				s.dispatcher.Dispatch(ctx, LowStockEvent(&low))
			})
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, inventorydomain.ErrProductNotFound) {
			return nil, domain.ErrNotFound
		}
		s.log.Info("takeout rejected", zap.String("product_id", productID.String()), zap.Error(err))
		return nil, err
	}

	return &domain.SaleResponse{
		ID:          snowflake.ID(sale.ID).String(),
		ProductID:   productID.String(),
		ProductName: handle.Name,
		Quantity:    sale.Quantity,
		Total:       sale.Total,
		Remaining:   handle.Quantity,
		CreatedAt:   sale.CreatedAt,
	}, nil
}

// LowStockEvent describes a product that fell to its minimum stock.
func LowStockEvent(h *inventorydomain.ProductHandle) events.Event {
	return events.NewStockLow(h.ID.String(), h.Name, h.Quantity, h.MinStock)
}

func (s *Service) toResponse(p *domain.Product) domain.Response {
	resp := domain.Response{
		ID:          snowflake.ID(p.ID).String(),
		Name:        p.Name,
		Slug:        p.Slug,
		Category:    p.Category,
		Description: p.Description,
		Price:       p.Price,
		Quantity:    p.Quantity,
		MinStock:    p.MinStock,
		LowStock:    p.Quantity <= p.MinStock,
		Supplier:    p.Supplier,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if p.ExpirationDate != nil {
		formatted := time.Time(*p.ExpirationDate).Format("2006-01-02")
		resp.ExpirationDate = &formatted
	}
	return resp
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
