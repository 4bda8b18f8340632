package renewals

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cuidarte/crm/app/models"
	"github.com/cuidarte/crm/internal/pkg/money"
)

type fakeClientStore struct {
	clients map[uuid.UUID]*models.Client
	updates []map[string]interface{}
}

func (s *fakeClientStore) GetClient(_ context.Context, id uuid.UUID) (*models.Client, error) {
	c, ok := s.clients[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return c, nil
}

func (s *fakeClientStore) UpdateClientColumns(_ context.Context, id uuid.UUID, cols map[string]interface{}) error {
	if _, ok := s.clients[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	s.updates = append(s.updates, cols)
	return nil
}

type fakeUploader struct {
	key         string
	contentType string
	body        string
	err         error
}

func (u *fakeUploader) Upload(_ context.Context, key string, body io.Reader, _ int64, contentType string) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	b, _ := io.ReadAll(body)
	u.key, u.contentType, u.body = key, contentType, string(b)
	return "https://cdn.example.com/" + key, nil
}

func newEditorFixture() (*Editor, *fakeClientStore, *fakeUploader, uuid.UUID) {
	id := uuid.New()
	store := &fakeClientStore{clients: map[uuid.UUID]*models.Client{id: {ID: id}}}
	up := &fakeUploader{}
	e := NewEditor(store, up)
	e.now = func() time.Time { return time.Unix(1710000000, 0) }
	return e, store, up, id
}

func TestEditor_UpdateAmount(t *testing.T) {
	e, store, _, id := newEditorFixture()

	_, err := e.UpdateAmount(context.Background(), id, "F3", "1234,5", " Hotmart ")
	require.NoError(t, err)
	require.Len(t, store.updates, 1)
	assert.Equal(t, money.Cents(123450), store.updates[0]["f3_amount_cents"])
	assert.Equal(t, "Hotmart", store.updates[0]["f3_payment_method"])

	_, err = e.UpdateAmount(context.Background(), id, "F1", "90", "stripe")
	require.NoError(t, err)
	assert.Equal(t, money.Cents(9000), store.updates[1]["renewal_amount_cents"])
	assert.Equal(t, "stripe", store.updates[1]["renewal_payment_method"])
}

func TestEditor_UpdateAmountRejectsGarbage(t *testing.T) {
	e, store, _, id := newEditorFixture()

	_, err := e.UpdateAmount(context.Background(), id, "F2", "abc", "stripe")
	assert.ErrorIs(t, err, money.ErrInvalidAmount)
	assert.Empty(t, store.updates)

	_, err = e.UpdateAmount(context.Background(), uuid.New(), "F2", "10", "stripe")
	assert.ErrorIs(t, err, ErrClientNotFound)
}

func TestEditor_ClearAmount(t *testing.T) {
	e, store, _, id := newEditorFixture()

	_, err := e.ClearAmount(context.Background(), id, "f4")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"f4_amount_cents": money.Cents(0), "f4_payment_method": ""}, store.updates[0])
}

func TestEditor_AttachReceipt(t *testing.T) {
	e, store, up, id := newEditorFixture()

	_, err := e.AttachReceipt(context.Background(), id, "F2", "Recibo.PDF", strings.NewReader("%PDF-1.4"), 8)
	require.NoError(t, err)
	assert.Equal(t, "receipts/renewal_receipt_"+id.String()+"_1710000000.pdf", up.key)
	assert.Equal(t, "application/pdf", up.contentType)
	assert.Equal(t, "https://cdn.example.com/"+up.key, store.updates[0]["f2_receipt_url"])

	_, err = e.AttachReceipt(context.Background(), id, "F2", "virus.exe", strings.NewReader("x"), 1)
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	_, err = e.AttachReceipt(context.Background(), id, "F2", "empty.pdf", strings.NewReader(""), 0)
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = e.AttachReceipt(context.Background(), id, "F2", "fake.png", strings.NewReader("<html></html>"), 13)
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	up.err = errors.New("bucket down")
	_, err = e.AttachReceipt(context.Background(), id, "F2", "r.png", strings.NewReader("\x89PNG\r\n\x1a\n"), 8)
	assert.Error(t, err)
	assert.Len(t, store.updates, 1)
}
