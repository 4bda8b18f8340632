package constants

// Route constants
const (
	HealthRoute  = "/health"
	MetricsRoute = "/metrics"
	DocsRoute    = "/docs/api/"
	APIRoute     = "/api"
	APIVersion   = "/v1"

	RenewalsRoute       = "/renewals"
	RenewalPhaseRoute   = "/renewals/:clientId/:phase"
	PaymentMethodsRoute = "/payment-methods"
	InvoicesRoute       = "/invoices"
	PaymentsRoute       = "/payments"
)
