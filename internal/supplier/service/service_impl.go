package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kontago/internal/clock"
	"github.com/smallbiznis/kontago/internal/supplier/domain"
	"github.com/smallbiznis/kontago/pkg/db"
	"github.com/smallbiznis/kontago/pkg/db/option"
	"github.com/smallbiznis/kontago/pkg/db/uow"
	"github.com/smallbiznis/kontago/pkg/repository"
	"github.com/smallbiznis/kontago/pkg/validate"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  repository.Repository[domain.Supplier]
	links repository.Repository[domain.SupplierProduct]
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("supplier.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  repository.ProvideStore[domain.Supplier](p.DB),
		links: repository.ProvideStore[domain.SupplierProduct](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.ContactName = trimmedPtr(req.ContactName)
	req.Phone = trimmedPtr(req.Phone)
	req.Email = trimmedPtr(req.Email)
	req.Address = trimmedPtr(req.Address)
	req.Notes = trimmedPtr(req.Notes)
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	productIDs, err := parseProductIDs(req.ProductIDs)
	if err != nil {
		return nil, err
	}

	supplier := &domain.Supplier{
		ID:          s.genID.Generate().Int64(),
		Name:        req.Name,
		ContactName: req.ContactName,
		Phone:       req.Phone,
		Email:       req.Email,
		Address:     req.Address,
		Notes:       req.Notes,
		CreatedAt:   s.clock.Now(),
	}
	err = uow.Run(ctx, s.db, func(unit *uow.Unit) error {
		if err := s.repo.WithTrx(unit.DB()).Create(ctx, supplier); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateName
			}
			return err
		}
		if len(productIDs) == 0 {
			return nil
		}

		var known int64
		if err := unit.DB().WithContext(ctx).Table("products").Where("id IN ?", productIDs).Count(&known).Error; err != nil {
			return err
		}
		if known != int64(len(productIDs)) {
			return domain.ErrUnknownProduct
		}

		links := make([]*domain.SupplierProduct, 0, len(productIDs))
		for _, id := range productIDs {
			links = append(links, &domain.SupplierProduct{SupplierID: supplier.ID, ProductID: id})
		}
		return s.links.WithTrx(unit.DB()).BatchCreate(ctx, links)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("supplier created",
		zap.Int64("supplier_id", supplier.ID),
		zap.Int("products", len(productIDs)),
	)
	resp := toResponse(supplier, productIDs)
	return &resp, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Response, error) {
	items, err := s.repo.Find(ctx, &domain.Supplier{},
		option.WithSortBy(option.QuerySortBy{SortBy: "name", Allow: map[string]bool{"name": true}}),
	)
	if err != nil {
		return nil, err
	}

	links, err := s.links.Find(ctx, &domain.SupplierProduct{},
		option.WithSortBy(option.QuerySortBy{SortBy: "product_id", Allow: map[string]bool{"product_id": true}}),
	)
	if err != nil {
		return nil, err
	}
	carried := make(map[int64][]int64, len(items))
	for _, link := range links {
		carried[link.SupplierID] = append(carried[link.SupplierID], link.ProductID)
	}

	resp := make([]domain.Response, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		resp = append(resp, toResponse(item, carried[item.ID]))
	}
	return resp, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	supplierID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || supplierID <= 0 {
		return domain.ErrInvalidID
	}

	return uow.Run(ctx, s.db, func(unit *uow.Unit) error {
		if err := unit.DB().WithContext(ctx).Exec(`DELETE FROM supplier_products WHERE supplier_id = ?`, supplierID.Int64()).Error; err != nil {
			return err
		}
		deleted, err := s.repo.WithTrx(unit.DB()).Delete(ctx, supplierID.Int64())
		if err != nil {
			return err
		}
		if deleted == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

// parseProductIDs drops duplicates and keeps request order.
func parseProductIDs(raw []string) ([]int64, error) {
	out := make([]int64, 0, len(raw))
	seen := make(map[int64]struct{}, len(raw))
	for _, value := range raw {
		id, err := snowflake.ParseString(strings.TrimSpace(value))
		if err != nil || id <= 0 {
			return nil, validate.Fields(validate.FieldError{Field: "product_ids", Rule: "snowflake"})
		}
		if _, ok := seen[id.Int64()]; ok {
			continue
		}
		seen[id.Int64()] = struct{}{}
		out = append(out, id.Int64())
	}
	return out, nil
}

func toResponse(s *domain.Supplier, productIDs []int64) domain.Response {
	ids := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		ids = append(ids, snowflake.ID(id).String())
	}
	return domain.Response{
		ID:          snowflake.ID(s.ID).String(),
		Name:        s.Name,
		ContactName: s.ContactName,
		Phone:       s.Phone,
		Email:       s.Email,
		Address:     s.Address,
		Notes:       s.Notes,
		ProductIDs:  ids,
		CreatedAt:   s.CreatedAt,
	}
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
