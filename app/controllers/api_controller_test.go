package controllers

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cuidarte/crm/app/models"
	"github.com/cuidarte/crm/internal/pkg/invoices"
	"github.com/cuidarte/crm/internal/pkg/renewals"
	"github.com/cuidarte/crm/internal/pkg/settlement"
	"github.com/cuidarte/crm/internal/pkg/usercontext"
)

func withUser(u *models.User) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(usercontext.LocalsKey, usercontext.UserContext{
			UserID:     u.ID,
			Name:       u.Name,
			Role:       u.Role,
			IsLoggedIn: true,
		})
		c.Locals(usercontext.KeyUser, u)
		return c.Next()
	}
}

// newSettlementApp wires handlers whose request validation runs before any
// repository access, so a nil repository is never reached.
func newSettlementApp(u *models.User) *fiber.App {
	api := NewAPIController(nil, invoices.NewService(nil, nil), settlement.NewService(nil, nil), nil)
	app := fiber.New()
	if u != nil {
		app.Use(withUser(u))
	}
	app.Post("/invoices/:id/reject", api.HandleRejectInvoice)
	app.Post("/invoices/:id/pay", api.HandlePayInvoice)
	app.Delete("/invoices/:id", api.HandleDeleteInvoice)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestRejectRequiresNote(t *testing.T) {
	admin := &models.User{ID: uuid.New(), Name: "Admin", Role: models.ROLE_CONTABILIDAD}
	app := newSettlementApp(admin)
	path := fmt.Sprintf("/invoices/%s/reject", uuid.New())

	for _, body := range []string{`{"note":""}`, `{"note":"   "}`, `{}`} {
		status, resp := doJSON(t, app, "POST", path, body)
		assert.Equal(t, fiber.StatusBadRequest, status, body)
		assert.Contains(t, resp, "note_required", body)
	}
}

func TestPayRequiresMethod(t *testing.T) {
	admin := &models.User{ID: uuid.New(), Name: "Admin", Role: models.ROLE_ADMIN}
	app := newSettlementApp(admin)
	status, resp := doJSON(t, app, "POST", fmt.Sprintf("/invoices/%s/pay", uuid.New()), `{"payment_method":" "}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, resp, "validation_error")

	status, _ = doJSON(t, app, "POST", fmt.Sprintf("/invoices/%s/pay", uuid.New()), `{"payment_method":"transferencia","paid_date":"05/06/2024"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestInvoiceHandlersValidateInput(t *testing.T) {
	coach := &models.User{ID: uuid.New(), Name: "Ana", Role: models.ROLE_COACH}
	app := newSettlementApp(coach)

	status, _ := doJSON(t, app, "DELETE", "/invoices/not-a-uuid", "")
	assert.Equal(t, fiber.StatusBadRequest, status)

	anon := newSettlementApp(nil)
	status, _ = doJSON(t, anon, "POST", fmt.Sprintf("/invoices/%s/reject", uuid.New()), `{"note":"x"}`)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestRespondErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{settlement.ErrNoteRequired, fiber.StatusBadRequest},
		{fmt.Errorf("amount: %w", renewals.ErrInvalidPeriod), fiber.StatusBadRequest},
		{invoices.ErrForbidden, fiber.StatusForbidden},
		{settlement.ErrInvoiceNotFound, fiber.StatusNotFound},
		{gorm.ErrRecordNotFound, fiber.StatusNotFound},
		{settlement.ErrVersionConflict, fiber.StatusConflict},
		{settlement.ErrSettlementInProgress, fiber.StatusConflict},
		{settlement.ErrNeedsConfirmation, fiber.StatusConflict},
		{fmt.Errorf("%w: paid -> rejected", models.ErrInvalidTransition), fiber.StatusConflict},
		{errors.New("boom"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		app := fiber.New()
		err := tt.err
		app.Get("/", func(c *fiber.Ctx) error { return respondError(c, err) })
		resp, e := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, e)
		assert.Equal(t, tt.want, resp.StatusCode, tt.err.Error())
	}
}

func TestQueryPeriod(t *testing.T) {
	now := time.Date(2024, time.June, 14, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		query   string
		want    string
		wantErr bool
	}{
		{"", "2024-06", false},
		{"?month=2&year=2023", "2023-02", false},
		{"?month=11", "2024-11", false},
		{"?month=13", "", true},
		{"?year=abc", "", true},
	}
	for _, tt := range tests {
		app := fiber.New()
		var got renewals.Period
		var gotErr error
		app.Get("/", func(c *fiber.Ctx) error {
			got, gotErr = queryPeriod(c, now)
			return nil
		})
		_, err := app.Test(httptest.NewRequest("GET", "/"+tt.query, nil))
		require.NoError(t, err)
		if tt.wantErr {
			assert.Error(t, gotErr, tt.query)
			continue
		}
		require.NoError(t, gotErr, tt.query)
		assert.Equal(t, tt.want, got.String(), tt.query)
	}
}

func TestListFiltersRejectMalformedPeriod(t *testing.T) {
	coach := &models.User{ID: uuid.New(), Name: "Ana", Role: models.ROLE_COACH}
	api := NewAPIController(nil, invoices.NewService(nil, nil), nil, nil)
	app := fiber.New()
	app.Use(withUser(coach))
	app.Get("/invoices", api.HandleListInvoices)
	app.Get("/payments", api.HandleListPayments)

	for _, path := range []string{
		"/invoices?year=20x4",
		"/invoices?month=13",
		"/invoices?month=0",
		"/payments?month=abc",
		"/payments?year=99",
	} {
		status, body := doJSON(t, app, "GET", path, "")
		if status != fiber.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", path, status)
		}
		assert.Contains(t, body, "invalid_period", path)
	}
}

func TestQueryFilterPeriod(t *testing.T) {
	tests := []struct {
		query     string
		year, mon int
		wantErr   bool
	}{
		{"", 0, 0, false},
		{"?year=2024", 2024, 0, false},
		{"?year=2024&month=", 2024, 0, false},
		{"?month=3", 0, 3, false},
		{"?year=2024&month=x", 0, 0, true},
	}
	for _, tt := range tests {
		var y, m int
		var gotErr error
		app := fiber.New()
		app.Get("/", func(c *fiber.Ctx) error {
			y, m, gotErr = queryFilterPeriod(c)
			return nil
		})
		_, err := app.Test(httptest.NewRequest("GET", "/"+tt.query, nil))
		require.NoError(t, err)
		if tt.wantErr {
			assert.ErrorIs(t, gotErr, renewals.ErrInvalidPeriod, tt.query)
			continue
		}
		require.NoError(t, gotErr, tt.query)
		assert.Equal(t, tt.year, y, tt.query)
		assert.Equal(t, tt.mon, m, tt.query)
	}
}
