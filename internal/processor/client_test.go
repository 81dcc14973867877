package processor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wakala/payments/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate func(*Config)) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg := Config{BaseURL: server.URL + "/", AuthToken: "teeth", Timeout: time.Second}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewClient(cfg)
}

func TestCreateHoldSendsAmountAndAuth(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/card/42/hold", r.URL.Path)
		assert.Equal(t, "teeth", r.Header.Get(DefaultAuthHeader))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]int64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(500), body["amount"])

		w.Write([]byte(`{"id":1,"amount":500,"status":"active"}`))
	}, nil)

	hold, err := client.CreateHold(context.Background(), 42, 500)
	require.NoError(t, err)
	assert.Equal(t, domain.ResourceID("1"), hold.ID)
	assert.Equal(t, "active", hold.Status)
}

func TestCustomAuthHeader(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get(DefaultAuthHeader))
		w.Write([]byte(`{"id":9,"amount":500,"status":"pending"}`))
	}, func(cfg *Config) {
		cfg.AuthHeader = "Authorization"
		cfg.AuthToken = "secret"
	})

	payment, err := client.CreatePayment(context.Background(), 500)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, payment.State())
}

func TestPaymentStatusAndCapturePaths(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		switch r.URL.Path {
		case "/payment/9":
			w.Write([]byte(`{"id":9,"amount":500,"status":"settled"}`))
		case "/card/42/hold/1/capture":
			w.Write([]byte(`{"id":77,"amount":500,"status":"captured"}`))
		default:
			http.NotFound(w, r)
		}
	}, nil)

	payment, err := client.GetPaymentStatus(context.Background(), "9")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentSettled, payment.State())

	capture, err := client.CaptureHold(context.Background(), 42, "1", 500)
	require.NoError(t, err)
	assert.Equal(t, domain.ResourceID("77"), capture.ID)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"GET /payment/9", "POST /card/42/hold/1/capture"}, paths)
}

func TestNon2xxBecomesError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"detail":"insufficient funds"}`))
	}, nil)

	_, err := client.CreateHold(context.Background(), 1, 500)
	pe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, OpCreateHold, pe.Op)
	assert.Equal(t, http.StatusPaymentRequired, pe.StatusCode)
	assert.Equal(t, `{"detail":"insufficient funds"}`, pe.Detail)
	assert.False(t, pe.Transient())
}

func TestMalformedBodyBecomesBadGateway(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}, nil)

	_, err := client.CreatePayment(context.Background(), 500)
	pe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, pe.StatusCode)
}

func TestMissingIDBecomesBadGateway(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"pending"}`))
	}, nil)

	_, err := client.CreatePayment(context.Background(), 500)
	pe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, pe.StatusCode)
}

func TestPerCallTimeout(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, func(cfg *Config) {
		cfg.Timeout = 50 * time.Millisecond
	})
	defer close(release)

	start := time.Now()
	_, err := client.GetPaymentStatus(context.Background(), "9")
	elapsed := time.Since(start)

	pe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusGatewayTimeout, pe.StatusCode)
	assert.Less(t, elapsed, time.Second)
}

func TestConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient(Config{BaseURL: url, AuthToken: "teeth", Timeout: time.Second})
	_, err := client.CreateHold(context.Background(), 1, 100)
	pe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, pe.StatusCode)
	assert.True(t, pe.Transient())
}

func TestBreakerOpensOnTransientFailuresOnly(t *testing.T) {
	var calls atomic.Int32
	status := atomic.Int32{}
	status.Store(http.StatusBadRequest)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(int(status.Load()))
	}, func(cfg *Config) {
		cfg.Breaker = NewBreaker("test", 2, time.Minute)
	})

	// Rejections never trip the breaker.
	for i := 0; i < 3; i++ {
		_, err := client.CreateHold(context.Background(), 1, 100)
		pe, ok := AsError(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusBadRequest, pe.StatusCode)
	}
	assert.Equal(t, int32(3), calls.Load())

	status.Store(http.StatusInternalServerError)
	for i := 0; i < 2; i++ {
		_, err := client.CreateHold(context.Background(), 1, 100)
		pe, _ := AsError(err)
		assert.Equal(t, http.StatusInternalServerError, pe.StatusCode)
	}

	_, err := client.CreateHold(context.Background(), 1, 100)
	pe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, pe.StatusCode)
	assert.Equal(t, int32(5), calls.Load())
}
