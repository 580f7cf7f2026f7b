package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/kontago/internal/invoice/domain"
	"github.com/smallbiznis/kontago/pkg/db/pagination"
)

type registerInvoiceRequest struct {
	Customer string          `json:"customer"`
	CartData json.RawMessage `json:"cart_data"`
}

// RegisterInvoice accepts the cart form either as JSON or as url-encoded fields.
// cart_data is JSON text; a JSON body may also carry it as a plain array.
func (s *Server) RegisterInvoice(c *gin.Context) {
	customer, cartText, err := readInvoiceForm(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	cart, err := invoicedomain.DecodeCart(cartText)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	invoice, err := s.invoiceSvc.Register(c.Request.Context(), invoicedomain.RegisterRequest{
		Customer: customer,
		Cart:     cart,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("invoice_code", invoice.Code)
	c.JSON(http.StatusCreated, gin.H{"data": invoice})
}

func readInvoiceForm(c *gin.Context) (string, string, error) {
	if c.ContentType() != gin.MIMEJSON {
		return c.PostForm("customer"), c.PostForm("cart_data"), nil
	}

	var req registerInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return "", "", invalidRequestError()
	}

	raw := bytes.TrimSpace(req.CartData)
	if len(raw) > 0 && raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return "", "", invalidRequestError()
		}
		return req.Customer, text, nil
	}
	return req.Customer, string(raw), nil
}

func (s *Server) ListInvoices(c *gin.Context) {
	var query struct {
		PageToken   string `form:"page_token"`
		PageSize    string `form:"page_size"`
		CreatedFrom string `form:"created_from"`
		CreatedTo   string `form:"created_to"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := invoicedomain.ListInvoiceRequest{
		Pagination: pagination.Pagination{PageToken: strings.TrimSpace(query.PageToken)},
	}
	if raw := strings.TrimSpace(query.PageSize); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 || size > 250 {
			AbortWithError(c, newValidationError("page_size", "invalid_page_size", "page_size must be between 1 and 250"))
			return
		}
		req.PageSize = size
	}

	createdFrom, err := parseOptionalTime(query.CreatedFrom, false)
	if err != nil {
		AbortWithError(c, newValidationError("created_from", "invalid_created_from", "invalid created_from"))
		return
	}
	createdTo, err := parseOptionalTime(query.CreatedTo, true)
	if err != nil {
		AbortWithError(c, newValidationError("created_to", "invalid_created_to", "invalid created_to"))
		return
	}
	req.CreatedFrom = createdFrom
	req.CreatedTo = createdTo

	resp, err := s.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.Invoices,
		"page_info": resp.PageInfo,
	})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	item, err := s.invoiceSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}
