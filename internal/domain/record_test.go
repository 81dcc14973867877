package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceIDAcceptsNumbersAndStrings(t *testing.T) {
	var h Hold
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"amount":500,"status":"active"}`), &h))
	assert.Equal(t, ResourceID("1"), h.ID)
	assert.Equal(t, Money(500), h.Amount)

	var p Payment
	require.NoError(t, json.Unmarshal([]byte(`{"id":"pay_9","status":"pending"}`), &p))
	assert.Equal(t, ResourceID("pay_9"), p.ID)
	assert.Equal(t, PaymentPending, p.State())
}

func TestRecordPreservesUnknownFields(t *testing.T) {
	body := `{"id":77,"amount":500,"status":"captured","fee":12,"meta":{"batch":"b-1"}}`
	var c Capture
	require.NoError(t, json.Unmarshal([]byte(body), &c))

	out, err := json.Marshal(&c)
	require.NoError(t, err)
	assert.JSONEq(t, body, string(out))
}

func TestRecordWithoutRawMarshalsKnownFields(t *testing.T) {
	h := Hold{Record{ID: "12", Amount: 300, Status: "active"}}
	out, err := json.Marshal(h)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":12,"amount":300,"status":"active"}`, string(out))

	h = Hold{Record{ID: "hold-a", Amount: 300, Status: "active"}}
	out, err = json.Marshal(h)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"hold-a","amount":300,"status":"active"}`, string(out))
}

func TestRecordToleratesOddAmounts(t *testing.T) {
	var p Payment
	require.NoError(t, json.Unmarshal([]byte(`{"id":3,"amount":"5.00","status":"settled"}`), &p))
	assert.Equal(t, Money(0), p.Amount)
	assert.True(t, p.State().Terminal())
}

func TestPaymentStatusTerminal(t *testing.T) {
	assert.False(t, PaymentPending.Terminal())
	assert.False(t, PaymentStatus("processing").Terminal())
	assert.True(t, PaymentSettled.Terminal())
	assert.True(t, PaymentFailed.Terminal())
}

func TestMoneyValidate(t *testing.T) {
	assert.NoError(t, Money(1).Validate())
	assert.ErrorIs(t, Money(0).Validate(), ErrInvalidAmount)
	assert.ErrorIs(t, Money(-5).Validate(), ErrInvalidAmount)
}

func TestOutcomeRoundTripIsStable(t *testing.T) {
	var hold Hold
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"status":"active"}`), &hold))
	o := &Outcome{Status: OutcomeFailed, CardID: 4, Amount: 500, Hold: &hold}

	first, err := json.Marshal(o)
	require.NoError(t, err)

	var decoded Outcome
	require.NoError(t, json.Unmarshal(first, &decoded))
	second, err := json.Marshal(&decoded)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
	assert.True(t, decoded.Matches(4, 500))
	assert.False(t, decoded.Matches(4, 501))
}

func TestIdempotencyKeyValidate(t *testing.T) {
	assert.NoError(t, IdempotencyKey("k").Validate())
	assert.NoError(t, IdempotencyKey(strings.Repeat("k", MaxIdempotencyKeyLen)).Validate())
	assert.ErrorIs(t, IdempotencyKey("").Validate(), ErrInvalidKey)
	assert.ErrorIs(t, IdempotencyKey(strings.Repeat("k", MaxIdempotencyKeyLen+1)).Validate(), ErrInvalidKey)
}
