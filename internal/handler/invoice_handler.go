package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"

	"github.com/luminapay/invoice-engine/internal/dto"
	"github.com/luminapay/invoice-engine/internal/model"
	"github.com/luminapay/invoice-engine/internal/service"
)

// InvoiceCreator is the slice of the invoice service the HTTP layer needs.
type InvoiceCreator interface {
	CreateInvoiceLegacy(ctx context.Context, storeID string, req *dto.LegacyCreateInvoiceRequest) (*model.InvoiceEntity, error)
	CreateInvoice(ctx context.Context, storeID string, req *dto.CreateInvoiceRequest) (*model.InvoiceEntity, error)
	GetInvoice(ctx context.Context, invoiceID string) (*model.InvoiceEntity, []model.InvoiceLogEntry, error)
	ListInvoices(ctx context.Context, storeID string, limit, offset int) ([]*model.InvoiceEntity, int, error)
}

type InvoiceHandler struct {
	svc InvoiceCreator
}

func NewInvoiceHandler(svc InvoiceCreator) *InvoiceHandler {
	return &InvoiceHandler{svc: svc}
}

// CreateLegacy serves POST /invoices. The store is identified by header, as
// the legacy API predates store-scoped routes.
func (h *InvoiceHandler) CreateLegacy(c *gin.Context) {
	storeID := c.GetHeader("X-Store-Id")
	if storeID == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "missing X-Store-Id header"})
		return
	}

	var req dto.LegacyCreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "validation failed: " + err.Error()})
		return
	}

	inv, err := h.svc.CreateInvoiceLegacy(c.Request.Context(), storeID, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewInvoiceResponse(inv, nil))
}

// Create serves POST /api/v1/stores/:storeID/invoices.
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req dto.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "validation failed: " + err.Error()})
		return
	}

	inv, err := h.svc.CreateInvoice(c.Request.Context(), c.Param("storeID"), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewInvoiceResponse(inv, nil))
}

// Get serves GET /api/v1/invoices/:invoiceID, log trail included.
func (h *InvoiceHandler) Get(c *gin.Context) {
	inv, logs, err := h.svc.GetInvoice(c.Request.Context(), c.Param("invoiceID"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "invoice not found"})
			return
		}
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.NewInvoiceResponse(inv, logs))
}

// List serves GET /api/v1/stores/:storeID/invoices.
func (h *InvoiceHandler) List(c *gin.Context) {
	params := dto.ParsePagination(c)

	invoices, total, err := h.svc.ListInvoices(c.Request.Context(), c.Param("storeID"), params.PageSize, params.Offset)
	if err != nil {
		c.Error(err)
		return
	}

	resp := dto.InvoiceListResponse{
		Invoices:   make([]dto.InvoiceResponse, len(invoices)),
		Pagination: dto.NewPagination(params.Page, params.PageSize, total),
	}
	for i, inv := range invoices {
		resp.Invoices[i] = dto.NewInvoiceResponse(inv, nil)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *InvoiceHandler) writeError(c *gin.Context, err error) {
	var invErr *service.InvoiceError
	if errors.As(err, &invErr) {
		c.JSON(invErr.Status, dto.ErrorResponse{Error: invErr.Message})
		return
	}
	if errors.Is(err, context.Canceled) {
		c.Status(499) // client closed request
		return
	}
	c.Error(err)
}
