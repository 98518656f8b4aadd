package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"pawtrace-qr/internal/adapters/auth/introspect"
	"pawtrace-qr/internal/platform/metrics"
	"pawtrace-qr/internal/ports/auth"
	"pawtrace-qr/internal/router"
)

func main() {
	addr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}

	// Sin AUTH_URL/AUTH_API_KEY queda en modo dev (X-Debug-User-ID).
	var verifier auth.AuthVerifier
	if v, err := introspect.NewVerifier(introspect.Config{
		BaseURL: os.Getenv("AUTH_URL"),
		APIKey:  os.Getenv("AUTH_API_KEY"),
	}); err == nil {
		verifier = v
	}

	r := router.NewRouter(router.Options{
		AuthVerifier: verifier,
		Metrics:      metrics.New(),
	})

	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 5 * time.Second,
		// Los exports batch renderizan decenas de QRs; margen generoso.
		WriteTimeout: 60 * time.Second,
	}

	log.Printf("starting server on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
