package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	inventorydomain "github.com/smallbiznis/kontago/internal/inventory/domain"
	invoicedomain "github.com/smallbiznis/kontago/internal/invoice/domain"
	productdomain "github.com/smallbiznis/kontago/internal/product/domain"
	supplierdomain "github.com/smallbiznis/kontago/internal/supplier/domain"
	"github.com/smallbiznis/kontago/pkg/validate"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
	Details map[string]any    `json:"details,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// classifyErrorForLog feeds the request logger; 409s are tagged "conflict" so they log at warn.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "internal", payload.Type
	case status == http.StatusConflict:
		return "conflict", payload.Type
	case status == http.StatusNotFound:
		return "not_found", payload.Type
	default:
		return "validation", payload.Type
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return internalError()
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var fieldErr *validate.Error
	if errors.As(err, &fieldErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  fieldErrors(fieldErr.Fields),
		}
	}

	if status, payload, ok := mapRegistrationError(err); ok {
		return status, payload
	}

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(err),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, productdomain.ErrDuplicateName),
		errors.Is(err, supplierdomain.ErrDuplicateName):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "name already exists",
		}
	case errors.Is(err, productdomain.ErrInUse):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "product is referenced by invoices",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return internalError()
	}
}

// mapRegistrationError covers the stock and invoice taxonomy. Parameters go to details.
func mapRegistrationError(err error) (int, errorPayload, bool) {
	var (
		header       *invoicedomain.InvalidHeaderError
		malformed    *invoicedomain.MalformedCartItemError
		notFound     *inventorydomain.ProductNotFoundError
		badQuantity  *inventorydomain.InvalidQuantityError
		insufficient *inventorydomain.InsufficientStockError
		timeout      *inventorydomain.LockTimeoutError
		collision    *invoicedomain.CodeCollisionError
	)

	switch {
	case errors.Is(err, invoicedomain.ErrEmptyCart):
		return http.StatusBadRequest, errorPayload{Type: "empty_cart", Message: "cart is empty"}, true
	case errors.Is(err, invoicedomain.ErrMalformedCart):
		return http.StatusBadRequest, errorPayload{Type: "malformed_cart", Message: "cart_data is not a JSON list"}, true
	case errors.As(err, &header):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_header",
			Message: "invalid invoice header",
			Errors:  fieldErrors(header.Fields),
		}, true
	case errors.As(err, &malformed):
		return http.StatusBadRequest, errorPayload{
			Type:    "malformed_cart_item",
			Message: fmt.Sprintf("cart item %d must carry integer product_id and quantity", malformed.Index),
			Details: map[string]any{"index": malformed.Index},
		}, true
	case errors.As(err, &badQuantity):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_quantity",
			Message: "quantity must be greater than zero",
			Details: map[string]any{"product_id": badQuantity.ProductID.String(), "quantity": badQuantity.Quantity},
		}, true
	case errors.As(err, &notFound):
		return http.StatusNotFound, errorPayload{
			Type:    "product_not_found",
			Message: fmt.Sprintf("product %s does not exist", notFound.ProductID),
			Details: map[string]any{"product_id": notFound.ProductID.String()},
		}, true
	case errors.As(err, &insufficient):
		return http.StatusConflict, errorPayload{
			Type:    "insufficient_stock",
			Message: fmt.Sprintf("only %d unit(s) of product %s available", insufficient.Available, insufficient.ProductID),
			Details: map[string]any{
				"product_id": insufficient.ProductID.String(),
				"available":  insufficient.Available,
				"requested":  insufficient.Requested,
			},
		}, true
	case errors.As(err, &timeout):
		return http.StatusConflict, errorPayload{
			Type:    "lock_timeout",
			Message: "product is busy, try again",
			Details: map[string]any{"product_id": timeout.ProductID.String()},
		}, true
	case errors.As(err, &collision):
		return http.StatusConflict, errorPayload{
			Type:    "code_collision",
			Message: "could not allocate an invoice code, try again",
		}, true
	case errors.Is(err, invoicedomain.ErrPersistence):
		status, payload := internalError()
		return status, payload, true
	default:
		return 0, errorPayload{}, false
	}
}

func internalError() (int, errorPayload) {
	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

func fieldErrors(fields []validate.FieldError) []ValidationError {
	out := make([]ValidationError, 0, len(fields))
	for _, f := range fields {
		out = append(out, ValidationError{
			Field:   f.Field,
			Code:    f.Rule,
			Message: fieldMessage(f),
		})
	}
	return out
}

func fieldMessage(f validate.FieldError) string {
	switch f.Rule {
	case "required":
		return "is required"
	case "required_if":
		return "is required for " + f.Param
	case "max":
		return "must be at most " + f.Param + " characters"
	case "oneof":
		return "must be one of: " + f.Param
	default:
		return "invalid value"
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, productdomain.ErrInvalidName),
		errors.Is(err, productdomain.ErrInvalidPrice),
		errors.Is(err, productdomain.ErrInvalidCategory),
		errors.Is(err, productdomain.ErrInvalidRequest),
		errors.Is(err, productdomain.ErrInvalidID),
		errors.Is(err, supplierdomain.ErrInvalidID),
		errors.Is(err, supplierdomain.ErrUnknownProduct),
		errors.Is(err, invoicedomain.ErrInvalidID),
		errors.Is(err, invoicedomain.ErrInvalidPageToken):
		return true
	default:
		return false
	}
}

func validationErrorField(err error) string {
	switch {
	case errors.Is(err, productdomain.ErrInvalidName):
		return "name"
	case errors.Is(err, productdomain.ErrInvalidPrice):
		return "price"
	case errors.Is(err, productdomain.ErrInvalidCategory):
		return "category"
	case errors.Is(err, invoicedomain.ErrInvalidPageToken):
		return "page_token"
	case errors.Is(err, supplierdomain.ErrUnknownProduct):
		return "product_ids"
	case errors.Is(err, productdomain.ErrInvalidID),
		errors.Is(err, supplierdomain.ErrInvalidID),
		errors.Is(err, invoicedomain.ErrInvalidID):
		return "id"
	default:
		return "request"
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, productdomain.ErrNotFound),
		errors.Is(err, supplierdomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
