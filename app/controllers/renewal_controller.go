package controllers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/cuidarte/crm/internal/pkg/permissions"
	"github.com/cuidarte/crm/internal/pkg/renewals"
	"github.com/cuidarte/crm/internal/pkg/usercontext"
)

// HandleListRenewals returns the renewals report for ?month=&year=. Staff
// without the view-all capability only see their own clients.
func (a *APIController) HandleListRenewals(c *fiber.Ctx) error {
	uc, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	period, err := queryPeriod(c, a.now())
	if err != nil {
		return respondError(c, err)
	}

	ctx := c.UserContext()
	clients, err := a.repos.Client.List(ctx)
	if err != nil {
		return respondError(c, fmt.Errorf("list clients: %w", err))
	}
	staff, err := a.repos.User.ListStaff(ctx)
	if err != nil {
		return respondError(c, fmt.Errorf("list staff: %w", err))
	}
	methods, err := a.repos.PaymentMethod.List(ctx)
	if err != nil {
		return respondError(c, fmt.Errorf("list payment methods: %w", err))
	}
	links, err := a.repos.PaymentLink.List(ctx)
	if err != nil {
		return respondError(c, fmt.Errorf("list payment links: %w", err))
	}
	sales, err := a.repos.Sale.ListBetween(ctx, period.Prev().Start(), period.End())
	if err != nil {
		return respondError(c, fmt.Errorf("list sales: %w", err))
	}

	report := renewals.BuildReport(clients, period, renewals.Sources{
		PaymentLinks:   links,
		Sales:          sales,
		PaymentMethods: methods,
		Staff:          staff,
	}, renewals.ReportOptions{
		Viewer:   usercontext.CurrentUser(c),
		ViewAll:  permissions.Can(uc.Role, permissions.ViewAllStaff),
		OnlyPaid: c.QueryBool("only_paid", false),
	})
	return c.JSON(report)
}

type renewalAmountRequest struct {
	Amount        string `json:"amount"`
	PaymentMethod string `json:"payment_method"`
}

// HandleUpdateRenewal sets the amount and payment method of a client's phase.
func (a *APIController) HandleUpdateRenewal(c *fiber.Ctx) error {
	clientID, ok, err := a.editableClient(c)
	if !ok {
		return err
	}
	var req renewalAmountRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	client, err := a.editor.UpdateAmount(c.UserContext(), clientID, c.Params("phase"), req.Amount, req.PaymentMethod)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(client)
}

// HandleClearRenewal resets a phase amount and payment method.
func (a *APIController) HandleClearRenewal(c *fiber.Ctx) error {
	clientID, ok, err := a.editableClient(c)
	if !ok {
		return err
	}
	client, err := a.editor.ClearAmount(c.UserContext(), clientID, c.Params("phase"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(client)
}

// HandleUploadRenewalReceipt stores the multipart "file" as the phase receipt.
func (a *APIController) HandleUploadRenewalReceipt(c *fiber.Ctx) error {
	clientID, ok, err := a.editableClient(c)
	if !ok {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "Missing file")
	}
	f, err := fh.Open()
	if err != nil {
		return respondError(c, fmt.Errorf("open upload: %w", err))
	}
	defer f.Close()

	client, err := a.editor.AttachReceipt(c.UserContext(), clientID, c.Params("phase"), fh.Filename, f, fh.Size)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(client)
}

// editableClient parses :clientId and checks that the caller may edit the
// client. When ok is false the response has been written and err is the
// result of writing it.
func (a *APIController) editableClient(c *fiber.Ctx) (id uuid.UUID, ok bool, err error) {
	uc, loggedIn := currentUser(c)
	if !loggedIn {
		return uuid.Nil, false, unauthorized(c)
	}
	clientID, valid := paramUUID(c, "clientId")
	if !valid {
		return uuid.Nil, false, badRequest(c, "Invalid client id")
	}
	if permissions.Can(uc.Role, permissions.ViewAllStaff) {
		return clientID, true, nil
	}

	client, err := a.repos.Client.GetClient(c.UserContext(), clientID)
	if err != nil {
		return uuid.Nil, false, respondError(c, err)
	}
	if !renewals.BelongsTo(usercontext.CurrentUser(c), client) {
		return uuid.Nil, false, c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Client is not assigned to you"})
	}
	return clientID, true, nil
}
