package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/cuidarte/crm/app/models"
	"github.com/cuidarte/crm/app/repository"
	"github.com/cuidarte/crm/internal/pkg/permissions"
)

// HandleListPayments returns the payout history for ?year=&month=. Staff
// without the history capability only see their own payouts.
func (a *APIController) HandleListPayments(c *fiber.Ctx) error {
	uc, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	year, month, err := queryFilterPeriod(c)
	if err != nil {
		return respondError(c, err)
	}
	f := repository.PaymentFilter{Year: year, Month: month}
	if !permissions.Can(uc.Role, permissions.ViewPaymentHistory) {
		id := uc.UserID
		f.StaffID = &id
	}
	payments, err := a.repos.Payment.List(c.UserContext(), f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"payments": payments})
}

// HandleListPaymentMethods returns the configured gateways.
func (a *APIController) HandleListPaymentMethods(c *fiber.Ctx) error {
	methods, err := a.repos.PaymentMethod.List(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"payment_methods": methods})
}

type paymentMethodRequest struct {
	Name                  string          `json:"name"`
	PlatformFeePercentage decimal.Decimal `json:"platform_fee_percentage"`
}

func (r paymentMethodRequest) model() *models.PaymentMethod {
	return &models.PaymentMethod{
		Name:                  strings.TrimSpace(r.Name),
		PlatformFeePercentage: r.PlatformFeePercentage,
	}
}

func (a *APIController) HandleCreatePaymentMethod(c *fiber.Ctx) error {
	var req paymentMethodRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	m := req.model()
	if err := m.Validate(); err != nil {
		return respondError(c, err)
	}
	if err := a.repos.PaymentMethod.Create(c.UserContext(), m); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(m)
}

func (a *APIController) HandleUpdatePaymentMethod(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return badRequest(c, "Invalid payment method id")
	}
	var req paymentMethodRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	m := req.model()
	m.ID = id
	if err := m.Validate(); err != nil {
		return respondError(c, err)
	}
	if err := a.repos.PaymentMethod.Update(c.UserContext(), m); err != nil {
		return respondError(c, err)
	}
	updated, err := a.repos.PaymentMethod.GetByID(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(updated)
}

func (a *APIController) HandleDeletePaymentMethod(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return badRequest(c, "Invalid payment method id")
	}
	if err := a.repos.PaymentMethod.Delete(c.UserContext(), id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
