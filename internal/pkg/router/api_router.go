package router

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/cuidarte/crm/app/controllers"
	"github.com/cuidarte/crm/internal/pkg/constants"
	"github.com/cuidarte/crm/internal/pkg/env"
	"github.com/cuidarte/crm/internal/pkg/middleware"
	"github.com/cuidarte/crm/internal/pkg/permissions"
)

type ApiRouter struct {
	api     *controllers.APIController
	auth    fiber.Handler
	limiter fiber.Handler
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	app.Get(constants.HealthRoute, controllers.HandleHealth)

	api := app.Group(constants.APIRoute, cors.New(cors.Config{
		AllowOrigins: strings.Join(allowedOrigins(), ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, Idempotency-Key",
	}))
	if h.limiter != nil {
		api.Use(h.limiter)
	}
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group(constants.APIVersion, h.auth, middleware.RequireAuth)
	h.registerRenewalRoutes(v1)
	h.registerPaymentMethodRoutes(v1)
	h.registerInvoiceRoutes(v1)
	v1.Get(constants.PaymentsRoute, h.api.HandleListPayments)
}

func (h ApiRouter) registerRenewalRoutes(v1 fiber.Router) {
	edit := middleware.RequireCapability(permissions.EditRenewals)

	v1.Get(constants.RenewalsRoute, h.api.HandleListRenewals)
	v1.Put(constants.RenewalPhaseRoute, edit, h.api.HandleUpdateRenewal)
	v1.Delete(constants.RenewalPhaseRoute, edit, h.api.HandleClearRenewal)
	v1.Post(constants.RenewalPhaseRoute+"/receipt", edit, h.api.HandleUploadRenewalReceipt)
}

func (h ApiRouter) registerPaymentMethodRoutes(v1 fiber.Router) {
	manage := middleware.RequireCapability(permissions.ManagePaymentMethods)

	v1.Get(constants.PaymentMethodsRoute, h.api.HandleListPaymentMethods)
	v1.Post(constants.PaymentMethodsRoute, manage, h.api.HandleCreatePaymentMethod)
	v1.Put(constants.PaymentMethodsRoute+"/:id", manage, h.api.HandleUpdatePaymentMethod)
	v1.Delete(constants.PaymentMethodsRoute+"/:id", manage, h.api.HandleDeletePaymentMethod)
}

func (h ApiRouter) registerInvoiceRoutes(v1 fiber.Router) {
	settle := middleware.RequireCapability(permissions.SettleInvoices)
	submit := middleware.RequireCapability(permissions.SubmitInvoices)

	v1.Get(constants.InvoicesRoute, h.api.HandleListInvoices)
	v1.Post(constants.InvoicesRoute, submit, h.api.HandleSubmitInvoice)
	v1.Delete(constants.InvoicesRoute+"/:id", submit, h.api.HandleDeleteInvoice)
	v1.Post(constants.InvoicesRoute+"/:id/review", settle, h.api.HandleReviewInvoice)
	v1.Get(constants.InvoicesRoute+"/:id/settlement", settle, h.api.HandleSettlementPreview)
	v1.Post(constants.InvoicesRoute+"/:id/pay", settle, h.api.HandlePayInvoice)
	v1.Post(constants.InvoicesRoute+"/:id/reject", settle, h.api.HandleRejectInvoice)
}

// NewApiRouter wires the API with Supabase JWT auth and the redis-backed limiter.
func NewApiRouter(api *controllers.APIController) *ApiRouter {
	return &ApiRouter{
		api:     api,
		auth:    middleware.SupabaseAuth(),
		limiter: APIRateLimiter(newLimiterStorage()),
	}
}

func allowedOrigins() []string {
	raw := env.GetEnv("CORS_ORIGINS", "*")
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
