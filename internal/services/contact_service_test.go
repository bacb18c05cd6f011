package services

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fillesume/storefront/internal/platform/jobs"
)

func newTestContactService(t *testing.T, events jobs.Publisher) ContactService {
	t.Helper()
	svc, err := NewContactService(ContactServiceDeps{
		Events: events,
		Clock:  func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.FixedZone("CET", 3600)) },
		IDGen:  func() string { return "01HZCONTACT" },
	})
	require.NoError(t, err)
	return svc
}

func TestContactServiceSubmitPublishes(t *testing.T) {
	events := &recordingPublisher{}
	svc := newTestContactService(t, events)

	receipt, err := svc.Submit(context.Background(), ContactCommand{
		SessionID: "sess-9",
		Name:      "  Ana <b>López</b> ",
		Email:     "ana@example.com",
		Subject:   "Wholesale",
		Message:   "Hola <script>alert(1)</script>quiero información",
	})
	require.NoError(t, err)
	assert.Equal(t, "01HZCONTACT", receipt.ID)
	assert.Equal(t, MessageContactSent, receipt.Message)
	assert.Equal(t, time.UTC, receipt.ReceivedAt.Location())

	published := events.published()
	require.Len(t, published, 1)
	ev := published[0]
	assert.Equal(t, jobs.EventContactSubmitted, ev.Type)
	assert.Equal(t, "sess-9", ev.SessionID)
	assert.Equal(t, "Ana López", ev.Payload["name"])
	assert.Equal(t, "wholesale", ev.Payload["subject"])
	assert.Equal(t, "Ventas al Mayor", ev.Payload["subjectLabel"])
	assert.NotContains(t, ev.Payload["message"], "<script>")
	assert.Contains(t, ev.Payload["message"], "quiero información")
}

func TestContactServiceValidation(t *testing.T) {
	events := &recordingPublisher{}
	svc := newTestContactService(t, events)

	_, err := svc.Submit(context.Background(), ContactCommand{
		Name:    "<i></i>",
		Email:   "not-an-email",
		Subject: "gossip",
		Message: "   ",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContactInvalidInput)

	var verr *ContactValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"email", "message", "name", "subject"}, sortedKeys(verr.Fields))
	assert.Empty(t, events.published())

	_, err = svc.Submit(context.Background(), ContactCommand{
		Name:    "Ana",
		Email:   "Ana <ana@example.com>",
		Subject: "general",
		Message: "hola",
	})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "email")
}

func TestContactServiceDeliveryFailure(t *testing.T) {
	svc := newTestContactService(t, &recordingPublisher{err: errors.New("unavailable")})

	_, err := svc.Submit(context.Background(), ContactCommand{
		Name:    "Ana",
		Email:   "ana@example.com",
		Subject: "press",
		Message: "Entrevista",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContactDeliveryFailed)
	assert.NotErrorIs(t, err, ErrContactInvalidInput)
}

func TestNewContactServiceRequiresPublisher(t *testing.T) {
	_, err := NewContactService(ContactServiceDeps{})
	assert.Error(t, err)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
