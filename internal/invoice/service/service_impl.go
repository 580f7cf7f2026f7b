package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kontago/internal/clock"
	"github.com/smallbiznis/kontago/internal/config"
	"github.com/smallbiznis/kontago/internal/events"
	inventorydomain "github.com/smallbiznis/kontago/internal/inventory/domain"
	invoicedomain "github.com/smallbiznis/kontago/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/kontago/internal/observability/metrics"
	"github.com/smallbiznis/kontago/pkg/db/option"
	"github.com/smallbiznis/kontago/pkg/db/pagination"
	"github.com/smallbiznis/kontago/pkg/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       invoicedomain.Repository
	Ledger     inventorydomain.Ledger
	Clock      clock.Clock
	Config     *config.InventoryConfigHolder
	Dispatcher *events.Dispatcher           `optional:"true"`
	Metrics    *obsmetrics.InventoryMetrics `optional:"true"`
	OTMetrics  *obsmetrics.Metrics          `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID       *snowflake.Node
	repo        invoicedomain.Repository
	invoicerepo repository.Repository[invoicedomain.Invoice]
	ledger      inventorydomain.Ledger
	clock       clock.Clock
	cfg         *config.InventoryConfigHolder
	dispatcher  *events.Dispatcher
	metrics     *obsmetrics.InventoryMetrics
	otMetrics   *obsmetrics.Metrics
	tracer      trace.Tracer
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,

		repo:        p.Repo,
		invoicerepo: repository.ProvideStore[invoicedomain.Invoice](p.DB),
		ledger:      p.Ledger,
		clock:       p.Clock,
		cfg:         p.Config,
		dispatcher:  p.Dispatcher,
		metrics:     p.Metrics,
		otMetrics:   p.OTMetrics,
		tracer:      otel.Tracer("kontago/invoice"),
	}
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	options := []option.QueryOption{
		option.ApplyPagination(pagination.Pagination{PageToken: req.PageToken, PageSize: pageSize}),
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true}}),
	}
	if req.CreatedFrom != nil {
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "created_at",
			Operator: option.GTE,
			Value:    *req.CreatedFrom,
		}))
	}
	if req.CreatedTo != nil {
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "created_at",
			Operator: option.LTE,
			Value:    *req.CreatedTo,
		}))
	}

	items, err := s.invoicerepo.Find(ctx, &invoicedomain.Invoice{}, options...)
	if err != nil {
		if errors.Is(err, option.ErrInvalidPageToken) {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidPageToken
		}
		return invoicedomain.ListInvoiceResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(inv *invoicedomain.Invoice) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        inv.ID.String(),
			CreatedAt: inv.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > pageSize {
		items = items[:pageSize]
	}

	invoices := make([]invoicedomain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}
	if err := s.attachItems(ctx, invoices); err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	return invoicedomain.ListInvoiceResponse{PageInfo: *pageInfo, Invoices: invoices}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || invoiceID <= 0 {
		return nil, invoicedomain.ErrInvalidID
	}

	item, err := s.invoicerepo.FindOne(ctx, &invoicedomain.Invoice{ID: invoiceID})
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, invoicedomain.ErrNotFound
	}

	invoices := []invoicedomain.Invoice{*item}
	if err := s.attachItems(ctx, invoices); err != nil {
		return nil, err
	}
	return &invoices[0], nil
}

func (s *Service) attachItems(ctx context.Context, invoices []invoicedomain.Invoice) error {
	if len(invoices) == 0 {
		return nil
	}

	ids := make([]snowflake.ID, 0, len(invoices))
	index := make(map[snowflake.ID]int, len(invoices))
	for i := range invoices {
		ids = append(ids, invoices[i].ID)
		index[invoices[i].ID] = i
		invoices[i].Items = []invoicedomain.InvoiceItem{}
	}

	items, err := s.repo.ListItems(ctx, s.db, ids)
	if err != nil {
		return err
	}
	for _, item := range items {
		if i, ok := index[item.InvoiceID]; ok {
			invoices[i].Items = append(invoices[i].Items, item)
		}
	}
	return nil
}
