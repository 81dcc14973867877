// Package processorsim is an in-process stand-in for the remote card
// processor. Outcomes are drawn from a seeded generator, so a run with the
// same seed and request order is reproducible.
package processorsim

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Config struct {
	Seed       int64
	AuthHeader string
	AuthToken  string

	// SettleAfter is the number of status polls a payment stays pending
	// before reaching its final status.
	SettleAfter int

	// Rates are probabilities in [0, 1].
	HoldDeclineRate float64
	FailRate        float64
	StuckRate       float64
}

// DefaultConfig mirrors a healthy processor: 85% of payments settle, 10%
// never leave pending and 5% fail.
func DefaultConfig() Config {
	return Config{
		Seed:        42,
		AuthHeader:  "X-Torch-Auth",
		SettleAfter: 2,
		FailRate:    0.05,
		StuckRate:   0.10,
	}
}

// ConfigFromEnv overrides DefaultConfig with PROCESSOR_AUTH_TOKEN, SIM_SEED,
// SIM_SETTLE_AFTER, SIM_HOLD_DECLINE_RATE, SIM_FAIL_RATE and SIM_STUCK_RATE.
func ConfigFromEnv(getenv func(string) string) (Config, error) {
	cfg := DefaultConfig()
	cfg.AuthToken = getenv("PROCESSOR_AUTH_TOKEN")

	if v := getenv("SIM_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("SIM_SEED: %w", err)
		}
		cfg.Seed = seed
	}
	if v := getenv("SIM_SETTLE_AFTER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("SIM_SETTLE_AFTER: invalid value %q", v)
		}
		cfg.SettleAfter = n
	}

	rates := []struct {
		name string
		dst  *float64
	}{
		{"SIM_HOLD_DECLINE_RATE", &cfg.HoldDeclineRate},
		{"SIM_FAIL_RATE", &cfg.FailRate},
		{"SIM_STUCK_RATE", &cfg.StuckRate},
	}
	for _, r := range rates {
		v := getenv(r.name)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return Config{}, fmt.Errorf("%s: invalid rate %q", r.name, v)
		}
		*r.dst = f
	}
	if cfg.FailRate+cfg.StuckRate > 1 {
		return Config{}, fmt.Errorf("SIM_FAIL_RATE + SIM_STUCK_RATE must not exceed 1")
	}
	return cfg, nil
}

type hold struct {
	ID       int64  `json:"id"`
	CardID   int64  `json:"card_id"`
	Amount   int64  `json:"amount"`
	Status   string `json:"status"`
	captured bool
}

type payment struct {
	ID     int64  `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
	final  string
	polls  int
}

type Simulator struct {
	cfg Config

	mu       sync.Mutex
	rng      *rand.Rand
	nextID   int64
	holds    map[int64]*hold
	payments map[int64]*payment
}

func New(cfg Config) *Simulator {
	return &Simulator{
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		holds:    make(map[int64]*hold),
		payments: make(map[int64]*payment),
	}
}

func (s *Simulator) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))
	r.Use(s.authenticate)

	r.Post("/card/{cardId}/hold", s.createHold)
	r.Post("/payment", s.createPayment)
	r.Get("/payment/{paymentId}", s.paymentStatus)
	r.Post("/card/{cardId}/hold/{holdId}/capture", s.captureHold)
	return r
}

func (s *Simulator) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken != "" && r.Header.Get(s.cfg.AuthHeader) != s.cfg.AuthToken {
			writeError(w, http.StatusUnauthorized, "invalid auth token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[processorsim] encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func readAmount(r *http.Request) (int64, error) {
	var body struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("invalid body: %w", err)
	}
	if body.Amount <= 0 {
		return 0, fmt.Errorf("amount must be positive")
	}
	return body.Amount, nil
}

func pathInt(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func (s *Simulator) createHold(w http.ResponseWriter, r *http.Request) {
	card, err := pathInt(r, "cardId")
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown card")
		return
	}
	amount, err := readAmount(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rng.Float64() < s.cfg.HoldDeclineRate {
		writeError(w, http.StatusPaymentRequired, "insufficient funds")
		return
	}
	s.nextID++
	h := &hold{ID: s.nextID, CardID: card, Amount: amount, Status: "active"}
	s.holds[h.ID] = h
	writeJSON(w, http.StatusCreated, h)
}

func (s *Simulator) createPayment(w http.ResponseWriter, r *http.Request) {
	amount, err := readAmount(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	final := "settled"
	roll := s.rng.Float64()
	switch {
	case roll < s.cfg.FailRate:
		final = "failed"
	case roll < s.cfg.FailRate+s.cfg.StuckRate:
		final = "pending"
	}
	s.nextID++
	p := &payment{ID: s.nextID, Amount: amount, Status: "pending", final: final}
	s.payments[p.ID] = p
	writeJSON(w, http.StatusCreated, p)
}

func (s *Simulator) paymentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "paymentId")
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown payment")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown payment")
		return
	}
	p.polls++
	if p.polls > s.cfg.SettleAfter {
		p.Status = p.final
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Simulator) captureHold(w http.ResponseWriter, r *http.Request) {
	card, err1 := pathInt(r, "cardId")
	id, err2 := pathInt(r, "holdId")
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusNotFound, "unknown hold")
		return
	}
	amount, err := readAmount(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holds[id]
	switch {
	case !ok || h.CardID != card:
		writeError(w, http.StatusNotFound, "unknown hold")
		return
	case h.captured:
		writeError(w, http.StatusConflict, "hold already captured")
		return
	case amount > h.Amount:
		writeError(w, http.StatusUnprocessableEntity, "capture exceeds hold")
		return
	}
	h.captured = true
	h.Status = "captured"
	s.nextID++
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      s.nextID,
		"hold_id": h.ID,
		"amount":  amount,
		"status":  "captured",
	})
}
