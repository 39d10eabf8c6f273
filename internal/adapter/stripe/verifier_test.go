package stripe

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"care-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func signHeader(payload []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func depositPayload(familyID, userID, walletID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"type": "payment_intent.succeeded",
		"data": {"object": {
			"id": "pi_1",
			"object": "payment_intent",
			"amount": 2500,
			"currency": "usd",
			"description": "Weekly deposit",
			"metadata": {"familyId": %q, "userId": %q, "walletId": %q}
		}}
	}`, familyID, userID, walletID))
}

func transferPayload(eventType, transferID, hireID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_tr",
		"object": "event",
		"type": %q,
		"data": {"object": {
			"id": %q,
			"object": "transfer",
			"amount": 13750,
			"currency": "usd",
			"metadata": {"hireId": %q}
		}}
	}`, eventType, transferID, hireID))
}

func TestWebhookVerifier_DepositEvent(t *testing.T) {
	v := NewWebhookVerifier(testSecret, zerolog.Nop())
	familyID, userID, walletID := uuid.New(), uuid.New(), uuid.New()
	payload := depositPayload(familyID.String(), userID.String(), walletID.String())

	event, err := v.Parse(payload, signHeader(payload, testSecret, time.Now().Unix()))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, domain.EventPaymentIntentSucceeded, event.Type)
	require.NotNil(t, event.Deposit)
	assert.Nil(t, event.Transfer)

	d := event.Deposit
	assert.Equal(t, "pi_1", d.PaymentIntentID)
	assert.Equal(t, int64(2500), d.AmountMinor)
	assert.Equal(t, "25", d.Amount().String())
	assert.Equal(t, familyID, d.FamilyID)
	assert.Equal(t, userID, d.UserID)
	require.NotNil(t, d.WalletID)
	assert.Equal(t, walletID, *d.WalletID)
	require.NotNil(t, d.Description)
	assert.Equal(t, "Weekly deposit", *d.Description)
}

func TestWebhookVerifier_RejectsBadSignature(t *testing.T) {
	v := NewWebhookVerifier(testSecret, zerolog.Nop())
	payload := depositPayload(uuid.NewString(), uuid.NewString(), "")

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong secret", signHeader(payload, "whsec_other", time.Now().Unix())},
		{"garbage", "t=1,v1=invalid"},
		{"too old", signHeader(payload, testSecret, time.Now().Add(-time.Hour).Unix())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Parse(payload, tt.header)
			assert.True(t, errors.Is(err, domain.ErrInvalidSignature), "got %v", err)
		})
	}
}

func TestWebhookVerifier_MissingMetadata(t *testing.T) {
	v := NewWebhookVerifier(testSecret, zerolog.Nop())

	tests := []struct {
		name     string
		familyID string
		userID   string
	}{
		{"no family", "", uuid.NewString()},
		{"no user", uuid.NewString(), ""},
		{"family not a uuid", "family-1", uuid.NewString()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := depositPayload(tt.familyID, tt.userID, "")
			_, err := v.Parse(payload, signHeader(payload, testSecret, time.Now().Unix()))
			assert.True(t, errors.Is(err, domain.ErrMissingMetadata), "got %v", err)
		})
	}
}

func TestWebhookVerifier_InvalidWalletHintIgnored(t *testing.T) {
	var buf bytes.Buffer
	v := NewWebhookVerifier(testSecret, zerolog.New(&buf))
	payload := depositPayload(uuid.NewString(), uuid.NewString(), "not-a-wallet")

	event, err := v.Parse(payload, signHeader(payload, testSecret, time.Now().Unix()))
	require.NoError(t, err)
	assert.Nil(t, event.Deposit.WalletID)
	assert.Contains(t, buf.String(), "discarding unparseable metadata id")
	assert.Contains(t, buf.String(), `"value":"not-a-wallet"`)
}

func TestWebhookVerifier_EmptyWalletHintNotLogged(t *testing.T) {
	var buf bytes.Buffer
	v := NewWebhookVerifier(testSecret, zerolog.New(&buf))
	payload := depositPayload(uuid.NewString(), uuid.NewString(), "")

	event, err := v.Parse(payload, signHeader(payload, testSecret, time.Now().Unix()))
	require.NoError(t, err)
	assert.Nil(t, event.Deposit.WalletID)
	assert.Empty(t, buf.String())
}

func TestWebhookVerifier_TransferEvent(t *testing.T) {
	v := NewWebhookVerifier(testSecret, zerolog.Nop())
	hireID := uuid.New()
	payload := transferPayload(domain.EventTransferPaid, "tr_1", hireID.String())

	event, err := v.Parse(payload, signHeader(payload, testSecret, time.Now().Unix()))
	require.NoError(t, err)
	require.NotNil(t, event.Transfer)
	assert.Nil(t, event.Deposit)
	assert.Equal(t, "tr_1", event.Transfer.TransferID)
	assert.Equal(t, domain.EventTransferPaid, event.Transfer.EventType)
	require.NotNil(t, event.Transfer.HireID)
	assert.Equal(t, hireID, *event.Transfer.HireID)
}

func TestWebhookVerifier_TransferWithoutHire(t *testing.T) {
	var buf bytes.Buffer
	v := NewWebhookVerifier(testSecret, zerolog.New(&buf))
	payload := transferPayload(domain.EventTransferFailed, "tr_2", "hire-1")

	event, err := v.Parse(payload, signHeader(payload, testSecret, time.Now().Unix()))
	require.NoError(t, err)
	assert.Nil(t, event.Transfer.HireID)
	assert.Contains(t, buf.String(), `"key":"hireId"`)
	assert.Contains(t, buf.String(), `"event_id":"evt_tr"`)
}

func TestWebhookVerifier_UnknownTypeCarriesNoPayload(t *testing.T) {
	v := NewWebhookVerifier(testSecret, zerolog.Nop())
	payload := []byte(`{"id":"evt_9","object":"event","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)

	event, err := v.Parse(payload, signHeader(payload, testSecret, time.Now().Unix()))
	require.NoError(t, err)
	assert.Equal(t, "customer.created", event.Type)
	assert.Nil(t, event.Deposit)
	assert.Nil(t, event.Transfer)
}

func TestWebhookVerifier_DevelopmentBypass(t *testing.T) {
	v := NewWebhookVerifier("", zerolog.Nop())
	payload := depositPayload(uuid.NewString(), uuid.NewString(), "")

	event, err := v.Parse(payload, "")
	require.NoError(t, err)
	assert.NotNil(t, event.Deposit)

	_, err = v.Parse([]byte("{not json"), "")
	assert.True(t, errors.Is(err, domain.ErrMalformedEvent), "got %v", err)
}
