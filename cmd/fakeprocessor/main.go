package main

import (
	"log"
	"net/http"
	"os"

	"github.com/wakala/payments/internal/processorsim"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	cfg, err := processorsim.ConfigFromEnv(os.Getenv)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Printf("Fake card processor (seed %d)", cfg.Seed)
	log.Printf("Rates: hold decline %.2f, fail %.2f, stuck %.2f; settles after %d polls",
		cfg.HoldDeclineRate, cfg.FailRate, cfg.StuckRate, cfg.SettleAfter)
	log.Printf("Listening on http://localhost:%s", port)
	if err := http.ListenAndServe(":"+port, processorsim.New(cfg).Handler()); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
