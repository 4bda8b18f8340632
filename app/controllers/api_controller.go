package controllers

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/cuidarte/crm/app/repository"
	"github.com/cuidarte/crm/internal/pkg/invoices"
	"github.com/cuidarte/crm/internal/pkg/renewals"
	"github.com/cuidarte/crm/internal/pkg/settlement"
	"github.com/cuidarte/crm/internal/pkg/usercontext"
)

// APIController serves the JSON endpoints under /api/v1.
type APIController struct {
	repos      *repository.Repositories
	invoices   *invoices.Service
	settlement *settlement.Service
	editor     *renewals.Editor
	now        func() time.Time
}

// NewAPIController creates the controller. Repositories and services are shared
// with the rest of the process.
func NewAPIController(repos *repository.Repositories, inv *invoices.Service, set *settlement.Service, editor *renewals.Editor) *APIController {
	return &APIController{
		repos:      repos,
		invoices:   inv,
		settlement: set,
		editor:     editor,
		now:        time.Now,
	}
}

// HandleHealth reports liveness.
func HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": msg})
}

func paramUUID(c *fiber.Ctx, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params(name))
	return id, err == nil
}

// queryPeriod reads month and year, defaulting to the current month.
func queryPeriod(c *fiber.Ctx, now time.Time) (renewals.Period, error) {
	year, month := now.Year(), int(now.Month())
	if v := strings.TrimSpace(c.Query("year")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return renewals.Period{}, renewals.ErrInvalidPeriod
		}
		year = n
	}
	if v := strings.TrimSpace(c.Query("month")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return renewals.Period{}, renewals.ErrInvalidPeriod
		}
		month = n
	}
	return renewals.NewPeriod(year, month)
}

// queryFilterPeriod reads the optional year and month list filters. Absent
// values are 0; malformed ones yield renewals.ErrInvalidPeriod.
func queryFilterPeriod(c *fiber.Ctx) (year, month int, err error) {
	for _, q := range []struct {
		key      string
		dst      *int
		min, max int
	}{
		{"year", &year, 2000, 2100},
		{"month", &month, 1, 12},
	} {
		v := strings.TrimSpace(c.Query(q.key))
		if v == "" {
			continue
		}
		n, perr := strconv.Atoi(v)
		if perr != nil || n < q.min || n > q.max {
			return 0, 0, fmt.Errorf("%w: %s=%q", renewals.ErrInvalidPeriod, q.key, v)
		}
		*q.dst = n
	}
	return year, month, nil
}

func currentUser(c *fiber.Ctx) (uc usercontext.UserContext, ok bool) {
	uc = usercontext.GetUserContext(c)
	return uc, uc.IsLoggedIn && usercontext.CurrentUser(c) != nil
}
