package controllers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/cuidarte/crm/app/models"
	"github.com/cuidarte/crm/internal/pkg/invoices"
	"github.com/cuidarte/crm/internal/pkg/money"
	"github.com/cuidarte/crm/internal/pkg/renewals"
	"github.com/cuidarte/crm/internal/pkg/settlement"
)

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{settlement.ErrNoteRequired, fiber.StatusBadRequest, "note_required"},
	{money.ErrInvalidAmount, fiber.StatusBadRequest, "invalid_amount"},
	{renewals.ErrInvalidPeriod, fiber.StatusBadRequest, "invalid_period"},
	{renewals.ErrUnsupportedFile, fiber.StatusBadRequest, "unsupported_file"},
	{renewals.ErrEmptyFile, fiber.StatusBadRequest, "empty_file"},
	{invoices.ErrNotPDF, fiber.StatusBadRequest, "unsupported_file"},
	{invoices.ErrEmptyFile, fiber.StatusBadRequest, "empty_file"},
	{models.ErrInvalidFeePercentage, fiber.StatusBadRequest, "invalid_fee_percentage"},

	{invoices.ErrForbidden, fiber.StatusForbidden, "forbidden"},

	{invoices.ErrNotFound, fiber.StatusNotFound, "not_found"},
	{settlement.ErrInvoiceNotFound, fiber.StatusNotFound, "not_found"},
	{settlement.ErrStaffNotFound, fiber.StatusNotFound, "staff_not_found"},
	{renewals.ErrClientNotFound, fiber.StatusNotFound, "not_found"},
	{gorm.ErrRecordNotFound, fiber.StatusNotFound, "not_found"},

	{settlement.ErrVersionConflict, fiber.StatusConflict, "version_conflict"},
	{invoices.ErrVersionConflict, fiber.StatusConflict, "version_conflict"},
	{settlement.ErrSettlementInProgress, fiber.StatusConflict, "settlement_in_progress"},
	{settlement.ErrNeedsConfirmation, fiber.StatusConflict, "needs_confirmation"},
	{settlement.ErrIdempotencyKeyReused, fiber.StatusConflict, "idempotency_key_reused"},
	{models.ErrInvalidTransition, fiber.StatusConflict, "invalid_transition"},
	{invoices.ErrNotDeletable, fiber.StatusConflict, "not_deletable"},
	{gorm.ErrDuplicatedKey, fiber.StatusConflict, "duplicate"},
}

// respondError writes the JSON error body for err. Unknown errors are logged
// and reported as 500 without details.
func respondError(c *fiber.Ctx, err error) error {
	var verr validator.ValidationErrors
	if errors.As(err, &verr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_error", "message": verr.Error()})
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return c.Status(m.status).JSON(fiber.Map{"error": m.code, "message": err.Error()})
		}
	}
	log.Errorf("[API] %s %s: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Internal server error"})
}
