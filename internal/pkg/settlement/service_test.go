package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cuidarte/crm/app/models"
	"github.com/cuidarte/crm/internal/pkg/money"
	"github.com/cuidarte/crm/internal/pkg/renewals"
)

type fakeState struct {
	invoices map[uuid.UUID]models.StaffInvoice
	users    []models.User
	clients  []*models.Client
	methods  []models.PaymentMethod
	sales    []models.Sale
	payments []models.StaffPayment
}

func (s fakeState) clone() fakeState {
	out := s
	out.invoices = make(map[uuid.UUID]models.StaffInvoice, len(s.invoices))
	for k, v := range s.invoices {
		out.invoices[k] = v
	}
	out.sales = append([]models.Sale(nil), s.sales...)
	out.payments = append([]models.StaffPayment(nil), s.payments...)
	return out
}

type fakeRepo struct {
	state         *fakeState
	failPayment   error
	ledgerQueries int
}

func (r *fakeRepo) GetInvoice(_ context.Context, id uuid.UUID) (*models.StaffInvoice, error) {
	inv, ok := r.state.invoices[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &inv, nil
}

func (r *fakeRepo) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	for _, u := range r.state.users {
		if u.ID == id {
			u := u
			return &u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) ListStaff(context.Context) ([]models.User, error) {
	return r.state.users, nil
}

func (r *fakeRepo) ListClients(context.Context) ([]*models.Client, error) {
	return r.state.clients, nil
}

func (r *fakeRepo) ListPaymentMethods(context.Context) ([]models.PaymentMethod, error) {
	return r.state.methods, nil
}

func (r *fakeRepo) ListPaymentLinks(context.Context) ([]models.PaymentLink, error) {
	return nil, nil
}

func (r *fakeRepo) ListSalesBetween(_ context.Context, from, to time.Time) ([]models.Sale, error) {
	var out []models.Sale
	for _, s := range r.state.sales {
		if !s.SaleDate.Before(from) && s.SaleDate.Before(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListLedger(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]models.Sale, error) {
	r.ledgerQueries++
	all, _ := r.ListSalesBetween(ctx, from, to)
	var out []models.Sale
	for _, s := range all {
		if s.CloserID == staffID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeRepo) ExistingRenewalRefs(_ context.Context, refs []string) (map[string]bool, error) {
	found := map[string]bool{}
	for _, s := range r.state.sales {
		if s.SourceRenewalRef == nil {
			continue
		}
		for _, ref := range refs {
			if *s.SourceRenewalRef == ref {
				found[ref] = true
			}
		}
	}
	return found, nil
}

func (r *fakeRepo) FindPaymentByIdempotencyKey(_ context.Context, key string) (*models.StaffPayment, error) {
	for _, p := range r.state.payments {
		if p.IdempotencyKey != nil && *p.IdempotencyKey == key {
			p := p
			return &p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) InsertSales(_ context.Context, sales []models.Sale) error {
	for _, s := range sales {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		r.state.sales = append(r.state.sales, s)
	}
	return nil
}

func (r *fakeRepo) MarkCommissionPaid(_ context.Context, ids []uuid.UUID, invoiceID uuid.UUID) (int64, error) {
	var n int64
	for i := range r.state.sales {
		for _, id := range ids {
			if r.state.sales[i].ID == id && !r.state.sales[i].CommissionPaid {
				r.state.sales[i].CommissionPaid = true
				inv := invoiceID
				r.state.sales[i].SettledInvoiceID = &inv
				n++
			}
		}
	}
	return n, nil
}

func (r *fakeRepo) AdoptRenewalRef(_ context.Context, saleID uuid.UUID, ref string) error {
	for i := range r.state.sales {
		if r.state.sales[i].ID == saleID && r.state.sales[i].SourceRenewalRef == nil {
			ref := ref
			r.state.sales[i].SourceRenewalRef = &ref
		}
	}
	return nil
}

func (r *fakeRepo) UpdateInvoice(_ context.Context, id uuid.UUID, version int, fields map[string]interface{}) (int64, error) {
	inv, ok := r.state.invoices[id]
	if !ok || inv.Version != version {
		return 0, nil
	}
	if v, ok := fields["status"].(string); ok {
		inv.Status = v
	}
	if v, ok := fields["admin_notes"].(string); ok {
		inv.AdminNotes = v
	}
	if v, ok := fields["paid_at"].(time.Time); ok {
		inv.PaidAt = &v
	}
	if v, ok := fields["version"].(int); ok {
		inv.Version = v
	}
	r.state.invoices[id] = inv
	return 1, nil
}

func (r *fakeRepo) InsertPayment(_ context.Context, p *models.StaffPayment) error {
	if r.failPayment != nil {
		return r.failPayment
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.state.payments = append(r.state.payments, *p)
	return nil
}

func (r *fakeRepo) WithinTx(_ context.Context, fn func(tx Repository) error) error {
	draft := r.state.clone()
	tx := &fakeRepo{state: &draft, failPayment: r.failPayment}
	if err := fn(tx); err != nil {
		return err
	}
	*r.state = draft
	return nil
}

type fakeLocker struct {
	held bool
	err  error
	keys []string
}

func (l *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	l.keys = append(l.keys, key)
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held {
		return nil, false, nil
	}
	return func() {}, true, nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	repo      *fakeRepo
	svc       *Service
	staff     models.User
	other     models.User
	client    *models.Client
	invoiceID uuid.UUID
	paidSale  uuid.UUID
	openSale  uuid.UUID
	otherSale uuid.UUID
	aprilSale uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		staff:     models.User{ID: uuid.New(), Name: "Helena Martín", Role: models.ROLE_COACH, CommissionPercentage: decimal.NewNullDecimal(decimal.NewFromInt(10))},
		other:     models.User{ID: uuid.New(), Name: "Bruno", Role: models.ROLE_CLOSER},
		invoiceID: uuid.New(),
		paidSale:  uuid.New(),
		openSale:  uuid.New(),
		otherSale: uuid.New(),
		aprilSale: uuid.New(),
	}
	march15 := date(2024, time.March, 15)
	f.client = &models.Client{ID: uuid.New(), FirstName: "Carla", Surname: "Gómez", Email: "carla@example.com", Status: models.CLIENT_STATUS_ACTIVE, CoachID: f.staff.ID.String()}
	f.client.Program.F1EndDate = &march15
	f.client.Program.RenewalF2Contracted = true
	f.client.Program.F2AmountCents = 100000
	f.client.Program.F2PaymentMethod = "Transferencia"

	state := &fakeState{
		invoices: map[uuid.UUID]models.StaffInvoice{
			f.invoiceID: {ID: f.invoiceID, StaffID: f.staff.ID, PeriodDate: date(2024, time.March, 1), AmountCents: 12000, Status: models.INVOICE_STATUS_PENDING, Version: 1},
		},
		users:   []models.User{f.staff, f.other},
		clients: []*models.Client{f.client},
		sales: []models.Sale{
			{ID: f.openSale, CloserID: f.staff.ID, ClientFirstName: "Ana", SaleAmountCents: 20000, CommissionAmountCents: 2000, SaleDate: date(2024, time.March, 5), Status: models.SALE_STATUS_WON},
			{ID: f.paidSale, CloserID: f.staff.ID, ClientFirstName: "Old", SaleAmountCents: 5000, CommissionAmountCents: 0, SaleDate: date(2024, time.March, 6), Status: models.SALE_STATUS_WON, CommissionPaid: true},
			{ID: uuid.New(), CloserID: f.staff.ID, ClientFirstName: "Lost", SaleAmountCents: 9000, CommissionAmountCents: 900, SaleDate: date(2024, time.March, 7), Status: models.SALE_STATUS_FAILED},
			{ID: f.otherSale, CloserID: f.other.ID, ClientFirstName: "Other", SaleAmountCents: 30000, CommissionAmountCents: 3000, SaleDate: date(2024, time.March, 8), Status: models.SALE_STATUS_WON},
			{ID: f.aprilSale, CloserID: f.staff.ID, ClientFirstName: "Next", SaleAmountCents: 30000, CommissionAmountCents: 3000, SaleDate: date(2024, time.April, 1), Status: models.SALE_STATUS_WON},
		},
	}
	f.repo = &fakeRepo{state: state}
	f.svc = NewService(f.repo, nil)
	f.svc.now = func() time.Time { return date(2024, time.April, 3) }
	return f
}

func (f *fixture) sale(id uuid.UUID) models.Sale {
	for _, s := range f.repo.state.sales {
		if s.ID == id {
			return s
		}
	}
	return models.Sale{}
}

func march(t *testing.T) renewals.Period {
	p, err := renewals.NewPeriod(2024, 3)
	require.NoError(t, err)
	return p
}

func TestPreview_MergesLedgerAndVirtualRenewals(t *testing.T) {
	f := newFixture(t)

	p, err := f.svc.Preview(context.Background(), &f.staff, march(t))
	require.NoError(t, err)
	require.Len(t, p.Items, 3)

	assert.True(t, p.Items[0].Persisted)
	assert.True(t, p.Items[1].Persisted)
	virtual := p.Items[2]
	assert.False(t, virtual.Persisted)
	assert.Equal(t, ITEM_TYPE_RENEWAL, virtual.Type)
	assert.Equal(t, models.RenewalRef(f.client.ID, models.PhaseF2), virtual.Ref)
	assert.Equal(t, money.Cents(10000), virtual.Commission)
	assert.Equal(t, money.Cents(12000), p.Total)
	assert.False(t, p.NeedsReview())
}

func TestPreview_MatchesRenewalRowsWithoutRef(t *testing.T) {
	tests := []struct {
		name    string
		row     models.Sale
		matched bool
	}{
		{"same client id", models.Sale{Type: models.SALE_TYPE_RENEWAL, SaleAmountCents: 100000, SaleDate: date(2024, time.March, 20)}, true},
		{"legacy last name marker", models.Sale{ClientFirstName: "Carla", ClientLastName: "(Renovación)", SaleAmountCents: 100005, SaleDate: date(2024, time.March, 18)}, true},
		{"amount drift too large", models.Sale{Type: models.SALE_TYPE_RENEWAL, SaleAmountCents: 100011, SaleDate: date(2024, time.March, 20)}, false},
		{"plain sale", models.Sale{Type: models.SALE_TYPE_SALE, SaleAmountCents: 100000, SaleDate: date(2024, time.March, 20)}, false},
		{"other first name", models.Sale{ClientFirstName: "Marta", ClientLastName: "(Renovación)", SaleAmountCents: 100000, SaleDate: date(2024, time.March, 20)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			row := tt.row
			row.ID = uuid.New()
			row.CloserID = f.staff.ID
			row.Status = models.SALE_STATUS_WON
			row.CommissionAmountCents = 10000
			if row.ClientFirstName == "" {
				id := f.client.ID
				row.ClientID = &id
			}
			f.repo.state.sales = append(f.repo.state.sales, row)

			p, err := f.svc.Preview(context.Background(), &f.staff, march(t))
			require.NoError(t, err)
			virtual := 0
			for _, it := range p.Items {
				if !it.Persisted {
					virtual++
				}
			}
			if tt.matched {
				assert.Equal(t, 0, virtual)
				assert.Equal(t, money.Cents(12000), p.Total)
			} else {
				assert.Equal(t, 1, virtual)
				assert.Equal(t, money.Cents(22000), p.Total)
			}
		})
	}
}

func TestConfirm_AdoptsRefOfLegacyRenewalRow(t *testing.T) {
	f := newFixture(t)
	legacy := uuid.New()
	clientID := f.client.ID
	f.repo.state.sales = append(f.repo.state.sales, models.Sale{
		ID: legacy, CloserID: f.staff.ID, ClientID: &clientID, Type: models.SALE_TYPE_RENEWAL,
		SaleAmountCents: 100000, CommissionAmountCents: 10000, SaleDate: date(2024, time.March, 20), Status: models.SALE_STATUS_WON,
	})
	salesBefore := len(f.repo.state.sales)

	res, err := f.svc.Confirm(context.Background(), ConfirmRequest{InvoiceID: f.invoiceID, Method: "transferencia", IdempotencyKey: "key-legacy"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, int64(2), res.MarkedPaid)
	assert.Len(t, f.repo.state.sales, salesBefore)

	row := f.sale(legacy)
	assert.True(t, row.CommissionPaid)
	require.NotNil(t, row.SourceRenewalRef)
	assert.Equal(t, models.RenewalRef(f.client.ID, models.PhaseF2), *row.SourceRenewalRef)
}

func TestPreview_IsIdempotent(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.Preview(context.Background(), &f.staff, march(t))
	require.NoError(t, err)
	second, err := f.svc.Preview(context.Background(), &f.staff, march(t))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPreview_OtherStaffSeesNoRenewal(t *testing.T) {
	f := newFixture(t)

	p, err := f.svc.Preview(context.Background(), &f.other, march(t))
	require.NoError(t, err)
	require.Len(t, p.Items, 1)
	assert.Equal(t, money.Cents(3000), p.Total)
}

func TestCheckMismatch(t *testing.T) {
	m := CheckMismatch(100000, 99000)
	assert.True(t, m.Flagged)
	assert.Equal(t, money.Cents(1000), m.Diff)

	m = CheckMismatch(100000, 99700)
	assert.False(t, m.Flagged)

	assert.False(t, CheckMismatch(100000, 100500).Flagged)
	assert.True(t, CheckMismatch(100000, 100501).Flagged)
}

func TestPreviewInvoice(t *testing.T) {
	f := newFixture(t)

	ip, err := f.svc.PreviewInvoice(context.Background(), f.invoiceID)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(12000), ip.Preview.Total)
	assert.False(t, ip.Mismatch.Flagged)

	_, err = f.svc.PreviewInvoice(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrInvoiceNotFound)
}

func TestConfirm_SettlesOnlyPreviewRows(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Confirm(context.Background(), ConfirmRequest{
		InvoiceID:      f.invoiceID,
		Method:         "transferencia",
		Reference:      "TRX-1",
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, int64(1), res.MarkedPaid)
	assert.False(t, res.Replayed)

	inv := f.repo.state.invoices[f.invoiceID]
	assert.Equal(t, models.INVOICE_STATUS_PAID, inv.Status)
	assert.Equal(t, 2, inv.Version)
	require.NotNil(t, inv.PaidAt)

	open := f.sale(f.openSale)
	assert.True(t, open.CommissionPaid)
	require.NotNil(t, open.SettledInvoiceID)
	assert.Equal(t, f.invoiceID, *open.SettledInvoiceID)
	assert.False(t, f.sale(f.otherSale).CommissionPaid)
	assert.False(t, f.sale(f.aprilSale).CommissionPaid)

	var renewal *models.Sale
	for i, s := range f.repo.state.sales {
		if s.SourceRenewalRef != nil {
			renewal = &f.repo.state.sales[i]
		}
	}
	require.NotNil(t, renewal)
	assert.Equal(t, models.RenewalRef(f.client.ID, models.PhaseF2), *renewal.SourceRenewalRef)
	assert.Equal(t, money.Cents(100000), renewal.SaleAmountCents)
	assert.Equal(t, money.Cents(10000), renewal.CommissionAmountCents)
	assert.True(t, renewal.CommissionPaid)
	assert.Equal(t, models.SALE_TYPE_RENEWAL, renewal.Type)

	require.Len(t, f.repo.state.payments, 1)
	pay := f.repo.state.payments[0]
	assert.Equal(t, "2024-03", pay.Period)
	assert.Equal(t, models.PAYMENT_STATUS_COMPLETED, pay.Status)
	assert.Equal(t, money.Cents(12000), pay.AmountCents)
	assert.Equal(t, "Pago factura 2024-03", pay.Notes)

	// The renewal is now persisted, so the preview total is unchanged.
	p, err := f.svc.Preview(context.Background(), &f.staff, march(t))
	require.NoError(t, err)
	assert.Equal(t, money.Cents(12000), p.Total)
	for _, it := range p.Items {
		assert.True(t, it.Persisted)
	}
}

func TestConfirm_ReplayReturnsStoredResult(t *testing.T) {
	f := newFixture(t)
	req := ConfirmRequest{InvoiceID: f.invoiceID, Method: "transferencia", IdempotencyKey: "key-1"}

	_, err := f.svc.Confirm(context.Background(), req)
	require.NoError(t, err)
	salesAfterFirst := len(f.repo.state.sales)

	res, err := f.svc.Confirm(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Equal(t, models.INVOICE_STATUS_PAID, res.Invoice.Status)
	assert.Len(t, f.repo.state.payments, 1)
	assert.Len(t, f.repo.state.sales, salesAfterFirst)

	// A new key on a paid invoice is an invalid transition.
	_, err = f.svc.Confirm(context.Background(), ConfirmRequest{InvoiceID: f.invoiceID, Method: "transferencia", IdempotencyKey: "key-2"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestConfirm_KeyReusedForOtherInvoice(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Confirm(context.Background(), ConfirmRequest{InvoiceID: f.invoiceID, Method: "transferencia", IdempotencyKey: "key-1"})
	require.NoError(t, err)

	_, err = f.svc.Confirm(context.Background(), ConfirmRequest{InvoiceID: uuid.New(), Method: "transferencia", IdempotencyKey: "key-1"})
	assert.ErrorIs(t, err, ErrIdempotencyKeyReused)
}

func TestConfirm_RollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	f.repo.failPayment = errors.New("connection reset")
	salesBefore := len(f.repo.state.sales)

	_, err := f.svc.Confirm(context.Background(), ConfirmRequest{InvoiceID: f.invoiceID, Method: "transferencia"})
	require.Error(t, err)

	assert.Len(t, f.repo.state.sales, salesBefore)
	assert.False(t, f.sale(f.openSale).CommissionPaid)
	inv := f.repo.state.invoices[f.invoiceID]
	assert.Equal(t, models.INVOICE_STATUS_PENDING, inv.Status)
	assert.Equal(t, 1, inv.Version)
	assert.Empty(t, f.repo.state.payments)
}

func TestConfirm_EstimatesNeedExplicitAcceptance(t *testing.T) {
	f := newFixture(t)
	f.client.Program.F2PaymentMethod = ""

	_, err := f.svc.Confirm(context.Background(), ConfirmRequest{InvoiceID: f.invoiceID, Method: "transferencia"})
	assert.ErrorIs(t, err, ErrNeedsConfirmation)
	assert.Equal(t, models.INVOICE_STATUS_PENDING, f.repo.state.invoices[f.invoiceID].Status)

	res, err := f.svc.Confirm(context.Background(), ConfirmRequest{InvoiceID: f.invoiceID, Method: "transferencia", AcceptEstimates: true})
	require.NoError(t, err)
	// Stripe is assumed: 1000.00 - 4% = 960.00, 10% commission.
	assert.Equal(t, money.Cents(2000+9600), res.Preview.Total)
}

func TestConfirm_UnresolvedAmountIsNotWritten(t *testing.T) {
	f := newFixture(t)
	f.client.Program.F2AmountCents = 0

	_, err := f.svc.Confirm(context.Background(), ConfirmRequest{InvoiceID: f.invoiceID, Method: "transferencia"})
	assert.ErrorIs(t, err, ErrNeedsConfirmation)

	res, err := f.svc.Confirm(context.Background(), ConfirmRequest{InvoiceID: f.invoiceID, Method: "transferencia", AcceptEstimates: true})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 1, res.Skipped)
}

func TestConfirm_VersionConflict(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Confirm(context.Background(), ConfirmRequest{InvoiceID: f.invoiceID, Method: "transferencia", ExpectedVersion: 3})
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Empty(t, f.repo.state.payments)
}

func TestConfirm_Locking(t *testing.T) {
	f := newFixture(t)
	locker := &fakeLocker{held: true}
	f.svc.locker = locker

	_, err := f.svc.Confirm(context.Background(), ConfirmRequest{InvoiceID: f.invoiceID, Method: "transferencia"})
	assert.ErrorIs(t, err, ErrSettlementInProgress)
	assert.Equal(t, []string{"settlement:invoice:" + f.invoiceID.String()}, locker.keys)

	// An unreachable lock backend does not block payments.
	locker.held = false
	locker.err = errors.New("dial tcp: connection refused")
	_, err = f.svc.Confirm(context.Background(), ConfirmRequest{InvoiceID: f.invoiceID, Method: "transferencia"})
	assert.NoError(t, err)
}

func TestConfirm_RequiresMethod(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Confirm(context.Background(), ConfirmRequest{InvoiceID: f.invoiceID, Method: "  "})
	assert.Error(t, err)
	assert.Equal(t, 0, f.repo.ledgerQueries)
}

func TestReject(t *testing.T) {
	f := newFixture(t)

	for _, note := range []string{"", "   \n"} {
		_, err := f.svc.Reject(context.Background(), RejectRequest{InvoiceID: f.invoiceID, Note: note})
		assert.ErrorIs(t, err, ErrNoteRequired)
	}
	assert.Equal(t, models.INVOICE_STATUS_PENDING, f.repo.state.invoices[f.invoiceID].Status)

	inv, err := f.svc.Reject(context.Background(), RejectRequest{InvoiceID: f.invoiceID, Note: " Falta el IBAN "})
	require.NoError(t, err)
	assert.Equal(t, models.INVOICE_STATUS_REJECTED, inv.Status)
	assert.Equal(t, "Falta el IBAN", f.repo.state.invoices[f.invoiceID].AdminNotes)
	assert.Equal(t, 2, f.repo.state.invoices[f.invoiceID].Version)
	assert.False(t, f.sale(f.openSale).CommissionPaid)

	_, err = f.svc.Reject(context.Background(), RejectRequest{InvoiceID: f.invoiceID, Note: "again"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Reject(context.Background(), RejectRequest{InvoiceID: uuid.New(), Note: "x"})
	assert.ErrorIs(t, err, ErrInvoiceNotFound)
}
