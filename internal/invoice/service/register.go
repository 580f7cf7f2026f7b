package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/kontago/internal/config"
	"github.com/smallbiznis/kontago/internal/events"
	inventorydomain "github.com/smallbiznis/kontago/internal/inventory/domain"
	invoicedomain "github.com/smallbiznis/kontago/internal/invoice/domain"
	"github.com/smallbiznis/kontago/internal/invoice/format"
	obsmetrics "github.com/smallbiznis/kontago/internal/observability/metrics"
	"github.com/smallbiznis/kontago/pkg/db"
	"github.com/smallbiznis/kontago/pkg/db/uow"
	"github.com/smallbiznis/kontago/pkg/validate"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	stateStarted          = "started"
	stateValidatingHeader = "validating_header"
	stateProcessingLines  = "processing_lines"
	stateLocking          = "locking"
	stateChecking         = "checking"
	stateDecrementing     = "decrementing"
	stateAllLinesOK       = "all_lines_ok"
	stateFinalizing       = "finalizing"
	stateCommitted        = "committed"
	stateFailed           = "failed"
)

type cartLine struct {
	productID snowflake.ID
	quantity  int64
}

// Register turns a cart into one invoice inside a single unit of work.
// Either every line is recorded and every stock decrement applied, or nothing is.
func (s *Service) Register(ctx context.Context, req invoicedomain.RegisterRequest) (*invoicedomain.Invoice, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "invoice.register",
		trace.WithAttributes(attribute.Int("invoice.cart_lines", len(req.Cart))),
	)
	defer span.End()

	invoice, err := s.register(ctx, req)

	outcome := registerOutcome(err)
	s.metrics.IncRegistration(outcome)
	s.metrics.ObserveRegisterDuration(time.Since(start))
	s.otMetrics.RecordInvoiceRegistered(ctx, outcome, len(req.Cart))
	span.SetAttributes(attribute.String("invoice.outcome", outcome))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		fields := []zap.Field{
			zap.String("outcome", outcome),
			zap.Int("cart_lines", len(req.Cart)),
			zap.Error(err),
		}
		if errors.Is(err, invoicedomain.ErrPersistence) {
			s.log.Error("invoice registration failed", fields...)
		} else {
			s.log.Info("invoice registration rejected", fields...)
		}
		return nil, err
	}

	span.SetAttributes(attribute.String("invoice.code", invoice.Code))
	return invoice, nil
}

func (s *Service) register(ctx context.Context, req invoicedomain.RegisterRequest) (*invoicedomain.Invoice, error) {
	if len(req.Cart) == 0 {
		return nil, invoicedomain.ErrEmptyCart
	}

	s.logState(ctx, stateValidatingHeader)
	req.Customer = strings.TrimSpace(req.Customer)
	if err := validate.Struct(req); err != nil {
		var verr *validate.Error
		if errors.As(err, &verr) {
			return nil, &invoicedomain.InvalidHeaderError{Fields: verr.Fields}
		}
		return nil, err
	}

	lines, malformedAt := parseCart(req.Cart)
	cfg := s.cfg.Get()
	attempts := cfg.RegisterMaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		invoice, err := s.registerOnce(ctx, cfg, req.Customer, lines, malformedAt)
		if err == nil {
			return invoice, nil
		}
		s.logState(ctx, stateFailed, zap.Int("attempt", attempt), zap.Error(err))

		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
		if attempt < attempts {
			s.metrics.IncRegisterRetry(err)
			s.log.Warn("invoice registration aborted, retrying",
				zap.Int("attempt", attempt),
				zap.String("reason", obsmetrics.ClassifyRetryReason(err)),
			)
		}
	}

	return nil, classify(lastErr)
}

func (s *Service) registerOnce(
	ctx context.Context,
	cfg config.InventoryConfig,
	customer string,
	lines []cartLine,
	malformedAt int,
) (*invoicedomain.Invoice, error) {
	var invoice *invoicedomain.Invoice

	err := uow.Run(ctx, s.db, func(unit *uow.Unit) error {
		s.logState(ctx, stateStarted)
		now := s.clock.Now()
		seq, err := s.repo.NextSequence(ctx, unit.DB())
		if err != nil {
			return err
		}
		code, err := format.FormatInvoiceNumber(format.CodeTemplate(cfg.InvoiceCodePrefix), now, seq)
		if err != nil {
			return err
		}

		inv := &invoicedomain.Invoice{
			ID:        s.genID.Generate(),
			Sequence:  seq,
			Code:      code,
			Total:     decimal.Zero,
			CreatedAt: now,
			Items:     make([]invoicedomain.InvoiceItem, 0, len(lines)),
		}
		if customer != "" {
			inv.Customer = &customer
		}
		if err := s.repo.InsertHeader(ctx, unit.DB(), inv); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return &invoicedomain.CodeCollisionError{Code: code, Err: err}
			}
			return err
		}

		s.logState(ctx, stateProcessingLines, zap.Int("lines", len(lines)))
		s.logState(ctx, stateLocking)
		handles, err := s.lockProducts(ctx, unit, lines)
		if err != nil {
			return err
		}

		total := decimal.Zero
		for i, line := range lines {
			s.logState(ctx, stateChecking, zap.Int("index", i))
			handle := handles[line.productID]
			if handle == nil {
				return &inventorydomain.ProductNotFoundError{ProductID: line.productID}
			}

			unitPrice := handle.Price
			s.logState(ctx, stateDecrementing, zap.Int("index", i))
			if err := s.ledger.Decrement(ctx, unit, handle, line.quantity); err != nil {
				return err
			}

			item := invoicedomain.InvoiceItem{
				ID:          s.genID.Generate(),
				InvoiceID:   inv.ID,
				ProductID:   handle.ID,
				ProductName: handle.Name,
				Position:    i + 1,
				Quantity:    line.quantity,
				UnitPrice:   unitPrice,
				Subtotal:    unitPrice.Mul(decimal.NewFromInt(line.quantity)).Round(2),
			}
			if err := s.repo.InsertItem(ctx, unit.DB(), &item); err != nil {
				return err
			}
			total = total.Add(item.Subtotal)
			inv.Items = append(inv.Items, item)
		}
		if malformedAt >= 0 {
			return &invoicedomain.MalformedCartItemError{Index: malformedAt}
		}
		s.logState(ctx, stateAllLinesOK)

		s.logState(ctx, stateFinalizing, zap.String("total", total.StringFixed(2)))
		if err := s.repo.UpdateTotal(ctx, unit.DB(), inv.ID, total); err != nil {
			return err
		}
		inv.Total = total

		low := lowStockHandles(handles)
		unit.AfterCommit(func(ctx context.Context) {
			s.logState(ctx, stateCommitted, zap.String("invoice_code", inv.Code))
			s.log.Info("invoice registered",
				zap.String("invoice_id", inv.ID.String()),
				zap.String("invoice_code", inv.Code),
				zap.String("total", inv.Total.StringFixed(2)),
				zap.Int("lines", len(inv.Items)),
			)
			s.dispatcher.Dispatch(ctx, registeredEvent(inv))
			for _, h := range low {
				s.metrics.IncLowStock()
				s.dispatcher.Dispatch(ctx, events.NewStockLow(h.ID.String(), h.Name, h.Quantity, h.MinStock))
			}
		})

		invoice = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// lockProducts takes every product lock the cart needs in ascending id order so
// two carts sharing products never wait on each other in opposite directions.
// A missing product is left nil and reported when its line is reached.
func (s *Service) lockProducts(ctx context.Context, unit *uow.Unit, lines []cartLine) (map[snowflake.ID]*inventorydomain.ProductHandle, error) {
	ids := make([]snowflake.ID, 0, len(lines))
	seen := make(map[snowflake.ID]struct{}, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.productID]; ok {
			continue
		}
		seen[line.productID] = struct{}{}
		ids = append(ids, line.productID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	handles := make(map[snowflake.ID]*inventorydomain.ProductHandle, len(ids))
	for _, id := range ids {
		handle, err := s.ledger.LockForUpdate(ctx, unit, id)
		if err != nil {
			if errors.Is(err, inventorydomain.ErrProductNotFound) {
				handles[id] = nil
				continue
			}
			return nil, err
		}
		handles[id] = handle
	}
	return handles, nil
}

func (s *Service) logState(ctx context.Context, state string, fields ...zap.Field) {
	if ce := s.log.Check(zap.DebugLevel, "invoice registration state"); ce != nil {
		fields = append(fields, zap.String("state", state))
		if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
			fields = append(fields, zap.String("trace_id", span.SpanContext().TraceID().String()))
		}
		ce.Write(fields...)
	}
}

// parseCart decodes entries up to the first malformed one and returns its
// index, or -1 when every entry parsed.
func parseCart(entries []invoicedomain.CartEntry) ([]cartLine, int) {
	lines := make([]cartLine, 0, len(entries))
	for i, entry := range entries {
		productID, quantity, ok := entry.Parse()
		if !ok {
			return lines, i
		}
		lines = append(lines, cartLine{productID: productID, quantity: quantity})
	}
	return lines, -1
}

func lowStockHandles(handles map[snowflake.ID]*inventorydomain.ProductHandle) []inventorydomain.ProductHandle {
	var out []inventorydomain.ProductHandle
	for _, h := range handles {
		if h != nil && h.LowStock() {
			out = append(out, *h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func registeredEvent(inv *invoicedomain.Invoice) events.Event {
	return events.Event{
		Type: events.TypeInvoiceRegistered,
		Key:  inv.ID.String(),
		Data: events.InvoiceRegistered{
			InvoiceID: inv.ID.String(),
			Code:      inv.Code,
			Customer:  inv.Customer,
			Total:     inv.Total,
			Lines:     len(inv.Items),
		},
	}
}

func retryable(err error) bool {
	return errors.Is(err, invoicedomain.ErrCodeCollision) || db.IsRetryable(err)
}

// classify keeps domain failures as they are and hides storage faults behind PersistenceError.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, invoicedomain.ErrMalformedCartItem),
		errors.Is(err, invoicedomain.ErrCodeCollision),
		errors.Is(err, inventorydomain.ErrProductNotFound),
		errors.Is(err, inventorydomain.ErrInvalidQuantity),
		errors.Is(err, inventorydomain.ErrInsufficientStock),
		errors.Is(err, inventorydomain.ErrLockTimeout):
		return err
	default:
		return &invoicedomain.PersistenceError{Op: "register invoice", Err: err}
	}
}

func registerOutcome(err error) string {
	switch {
	case err == nil:
		return obsmetrics.RegisterOutcomeCommitted
	case errors.Is(err, invoicedomain.ErrEmptyCart):
		return obsmetrics.RegisterOutcomeEmptyCart
	case errors.Is(err, invoicedomain.ErrInvalidHeader):
		return obsmetrics.RegisterOutcomeInvalidHeader
	case errors.Is(err, invoicedomain.ErrMalformedCartItem), errors.Is(err, invoicedomain.ErrMalformedCart):
		return obsmetrics.RegisterOutcomeMalformedCart
	case errors.Is(err, inventorydomain.ErrProductNotFound):
		return obsmetrics.RegisterOutcomeProductNotFound
	case errors.Is(err, inventorydomain.ErrInvalidQuantity):
		return obsmetrics.RegisterOutcomeInvalidQuantity
	case errors.Is(err, inventorydomain.ErrInsufficientStock):
		return obsmetrics.RegisterOutcomeInsufficientStock
	case errors.Is(err, inventorydomain.ErrLockTimeout):
		return obsmetrics.RegisterOutcomeLockTimeout
	case errors.Is(err, invoicedomain.ErrCodeCollision):
		return obsmetrics.RegisterOutcomeCodeCollision
	default:
		return obsmetrics.RegisterOutcomePersistence
	}
}
