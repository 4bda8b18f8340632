package controllers

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/cuidarte/crm/internal/pkg/invoices"
	"github.com/cuidarte/crm/internal/pkg/settlement"
	"github.com/cuidarte/crm/internal/pkg/usercontext"
)

// HandleListInvoices lists invoices filtered by ?status=&month=&year=&role=.
func (a *APIController) HandleListInvoices(c *fiber.Ctx) error {
	if _, ok := currentUser(c); !ok {
		return unauthorized(c)
	}
	year, month, err := queryFilterPeriod(c)
	if err != nil {
		return respondError(c, err)
	}
	views, err := a.invoices.List(c.UserContext(), usercontext.CurrentUser(c), invoices.Filter{
		Status: strings.TrimSpace(c.Query("status")),
		Month:  month,
		Year:   year,
		Role:   strings.TrimSpace(c.Query("role")),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"invoices": views})
}

// HandleSubmitInvoice accepts a multipart form with month, year, amount,
// notes, an optional replaces id and the PDF in "file".
func (a *APIController) HandleSubmitInvoice(c *fiber.Ctx) error {
	if _, ok := currentUser(c); !ok {
		return unauthorized(c)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "Missing file")
	}
	month, err := formInt(c, "month")
	if err != nil {
		return badRequest(c, "Invalid month")
	}
	year, err := formInt(c, "year")
	if err != nil {
		return badRequest(c, "Invalid year")
	}

	var replaces *uuid.UUID
	if raw := strings.TrimSpace(c.FormValue("replaces")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return badRequest(c, "Invalid replaces id")
		}
		replaces = &id
	}

	f, err := fh.Open()
	if err != nil {
		return respondError(c, fmt.Errorf("open upload: %w", err))
	}
	defer f.Close()

	inv, err := a.invoices.Submit(c.UserContext(), usercontext.CurrentUser(c), invoices.SubmitRequest{
		Month:    month,
		Year:     year,
		Amount:   c.FormValue("amount"),
		Notes:    c.FormValue("notes"),
		FileName: fh.Filename,
		File:     f,
		Size:     fh.Size,
	}, replaces)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(inv)
}

// HandleDeleteInvoice withdraws one of the caller's own unpaid invoices.
func (a *APIController) HandleDeleteInvoice(c *fiber.Ctx) error {
	if _, ok := currentUser(c); !ok {
		return unauthorized(c)
	}
	id, ok := paramUUID(c, "id")
	if !ok {
		return badRequest(c, "Invalid invoice id")
	}
	if err := a.invoices.Delete(c.UserContext(), usercontext.CurrentUser(c), id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type versionRequest struct {
	Version int `json:"version"`
}

// HandleReviewInvoice approves a pending invoice.
func (a *APIController) HandleReviewInvoice(c *fiber.Ctx) error {
	if _, ok := currentUser(c); !ok {
		return unauthorized(c)
	}
	id, ok := paramUUID(c, "id")
	if !ok {
		return badRequest(c, "Invalid invoice id")
	}
	var req versionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
	}
	inv, err := a.invoices.Review(c.UserContext(), usercontext.CurrentUser(c), id, req.Version)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(inv)
}

// HandleSettlementPreview lists what paying the invoice would settle.
func (a *APIController) HandleSettlementPreview(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return badRequest(c, "Invalid invoice id")
	}
	p, err := a.settlement.PreviewInvoice(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"invoice":      p.Invoice,
		"preview":      p.Preview,
		"mismatch":     p.Mismatch,
		"needs_review": p.Preview.NeedsReview(),
	})
}

type payInvoiceRequest struct {
	Method          string `json:"payment_method"`
	Reference       string `json:"reference_number"`
	Notes           string `json:"notes"`
	PaidDate        string `json:"paid_date"`
	Version         int    `json:"version"`
	AcceptEstimates bool   `json:"accept_estimates"`
}

// HandlePayInvoice confirms the settlement. The Idempotency-Key header makes
// retries return the first outcome.
func (a *APIController) HandlePayInvoice(c *fiber.Ctx) error {
	uc, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := paramUUID(c, "id")
	if !ok {
		return badRequest(c, "Invalid invoice id")
	}
	var req payInvoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	var paid time.Time
	if strings.TrimSpace(req.PaidDate) != "" {
		t, err := time.Parse("2006-01-02", strings.TrimSpace(req.PaidDate))
		if err != nil {
			return badRequest(c, "paid_date must be YYYY-MM-DD")
		}
		paid = t
	}

	res, err := a.settlement.Confirm(c.UserContext(), settlement.ConfirmRequest{
		InvoiceID:       id,
		ActorID:         uc.UserID,
		Method:          req.Method,
		Reference:       req.Reference,
		Notes:           req.Notes,
		PaidDate:        paid,
		IdempotencyKey:  c.Get("Idempotency-Key"),
		ExpectedVersion: req.Version,
		AcceptEstimates: req.AcceptEstimates,
	})
	if err != nil {
		return respondError(c, err)
	}
	status := fiber.StatusOK
	if !res.Replayed {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(res)
}

type rejectInvoiceRequest struct {
	Note    string `json:"note"`
	Version int    `json:"version"`
}

// HandleRejectInvoice returns the invoice to its owner with a mandatory note.
func (a *APIController) HandleRejectInvoice(c *fiber.Ctx) error {
	uc, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := paramUUID(c, "id")
	if !ok {
		return badRequest(c, "Invalid invoice id")
	}
	var req rejectInvoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	inv, err := a.settlement.Reject(c.UserContext(), settlement.RejectRequest{
		InvoiceID:       id,
		ActorID:         uc.UserID,
		Note:            req.Note,
		ExpectedVersion: req.Version,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(inv)
}

func formInt(c *fiber.Ctx, key string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(c.FormValue(key)))
}
