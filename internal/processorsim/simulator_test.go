package processorsim

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wakala/payments/internal/domain"
	"github.com/wakala/payments/internal/idempotency"
	"github.com/wakala/payments/internal/orchestrator"
	"github.com/wakala/payments/internal/processor"
	"github.com/wakala/payments/internal/settlement"
)

func newClient(t *testing.T, cfg Config) *processor.Client {
	t.Helper()
	srv := httptest.NewServer(New(cfg).Handler())
	t.Cleanup(srv.Close)
	return processor.NewClient(processor.Config{BaseURL: srv.URL, AuthToken: cfg.AuthToken, Timeout: time.Second})
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AuthToken = "teeth"
	cfg.FailRate = 0
	cfg.StuckRate = 0
	return cfg
}

func TestSimulatorHoldAndCapture(t *testing.T) {
	c := newClient(t, testConfig())
	ctx := context.Background()

	hold, err := c.CreateHold(ctx, 7, 500)
	require.NoError(t, err)
	assert.Equal(t, "active", hold.Status)

	capture, err := c.CaptureHold(ctx, 7, hold.ID, 500)
	require.NoError(t, err)
	assert.Equal(t, "captured", capture.Status)

	_, err = c.CaptureHold(ctx, 7, hold.ID, 500)
	pe, ok := processor.AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, pe.StatusCode)

	_, err = c.CaptureHold(ctx, 8, hold.ID, 500)
	pe, ok = processor.AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, pe.StatusCode)
}

func TestSimulatorRejectsBadToken(t *testing.T) {
	cfg := testConfig()
	srv := httptest.NewServer(New(cfg).Handler())
	defer srv.Close()
	c := processor.NewClient(processor.Config{BaseURL: srv.URL, AuthToken: "wrong"})

	_, err := c.CreatePayment(context.Background(), 500)
	pe, ok := processor.AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, pe.StatusCode)
}

func TestSimulatorPaymentSettlesAfterPolls(t *testing.T) {
	c := newClient(t, testConfig())
	ctx := context.Background()

	p, err := c.CreatePayment(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, p.State())

	for i := 0; i < 2; i++ {
		snap, err := c.GetPaymentStatus(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentPending, snap.State())
	}
	snap, err := c.GetPaymentStatus(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentSettled, snap.State())
}

func TestSimulatorDeclinesHolds(t *testing.T) {
	cfg := testConfig()
	cfg.HoldDeclineRate = 1
	c := newClient(t, cfg)

	_, err := c.CreateHold(context.Background(), 7, 500)
	pe, ok := processor.AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusPaymentRequired, pe.StatusCode)
}

func TestOrchestratorAgainstSimulator(t *testing.T) {
	tests := []struct {
		name      string
		failRate  float64
		stuckRate float64
		want      domain.OutcomeStatus
		reason    domain.AbortReason
	}{
		{"settles", 0, 0, domain.OutcomeSuccess, ""},
		{"fails", 1, 0, domain.OutcomeFailed, ""},
		{"stuck", 0, 1, domain.OutcomeError, domain.ReasonSettlementTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.FailRate = tt.failRate
			cfg.StuckRate = tt.stuckRate
			c := newClient(t, cfg)

			poller := settlement.NewPoller(c, 5*time.Millisecond, 100*time.Millisecond, nil)
			guard := idempotency.NewGuard(idempotency.NewMemoryStore(), idempotency.PolicyAll)
			svc := orchestrator.NewService(c, poller, guard, nil)

			res, err := svc.Pay(context.Background(), "k", 7, 500)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Outcome.Status)
			assert.Equal(t, tt.reason, res.Outcome.Reason)
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	vars := map[string]string{
		"PROCESSOR_AUTH_TOKEN":  "teeth",
		"SIM_SEED":              "7",
		"SIM_SETTLE_AFTER":      "0",
		"SIM_HOLD_DECLINE_RATE": "0.25",
		"SIM_FAIL_RATE":         "0.5",
		"SIM_STUCK_RATE":        "0.5",
	}
	cfg, err := ConfigFromEnv(func(k string) string { return vars[k] })
	require.NoError(t, err)
	assert.Equal(t, "teeth", cfg.AuthToken)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, 0, cfg.SettleAfter)
	assert.Equal(t, 0.25, cfg.HoldDeclineRate)
	assert.Equal(t, 0.5, cfg.FailRate)
	assert.Equal(t, 0.5, cfg.StuckRate)

	defaults, err := ConfigFromEnv(func(string) string { return "" })
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), defaults)
}

func TestConfigFromEnvRejectsBadValues(t *testing.T) {
	tests := map[string]map[string]string{
		"bad seed":        {"SIM_SEED": "x"},
		"negative settle": {"SIM_SETTLE_AFTER": "-1"},
		"rate above one":  {"SIM_FAIL_RATE": "1.5"},
		"rate not number": {"SIM_STUCK_RATE": "lots"},
		"rates over one":  {"SIM_FAIL_RATE": "0.6", "SIM_STUCK_RATE": "0.6"},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ConfigFromEnv(func(k string) string { return vars[k] })
			assert.Error(t, err)
		})
	}
}

func TestWriteJSONLogsEncodeError(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]any{"bad": make(chan int)})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, buf.String(), "[processorsim] encode error")
}
