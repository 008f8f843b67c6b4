package web

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"os"
	"time"

	"enrollment/internal/adapters/http/middleware"
	enrollmentStore "enrollment/internal/adapters/storage/enrollment"
	workshopStore "enrollment/internal/adapters/storage/workshop"
	"enrollment/internal/application/admission"
)

// Stores holds all storage dependencies used directly by handlers. The
// admission write path goes through the core, never through these.
type Stores struct {
	WorkshopStore   workshopStore.Store
	EnrollmentStore enrollmentStore.Store
}

// Options carries handler configuration that is not a store.
type Options struct {
	// WebhookSecret enables Stripe signature verification on the payment
	// event endpoint. Empty switches the endpoint to the unsigned JSON shape
	// used in development and tests.
	WebhookSecret string

	// OperatorKeyHash is the bcrypt hash protecting operator endpoints.
	// Empty disables those endpoints entirely.
	OperatorKeyHash string
}

// loadCSRFKey reads the CSRF secret from ENROLL_CSRF_KEY (hex-encoded, 32 bytes).
// In production, the key MUST be set. In development, a random key is generated per startup.
func loadCSRFKey() []byte {
	if keyHex := os.Getenv("ENROLL_CSRF_KEY"); keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil || len(key) != 32 {
			log.Fatal("ENROLL_CSRF_KEY must be 64 hex characters (32 bytes)")
		}
		return key
	}
	if os.Getenv("ENROLL_ENV") == "production" {
		log.Fatal("ENROLL_CSRF_KEY is required in production")
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		log.Fatalf("failed to generate CSRF key: %v", err)
	}
	log.Println("WARNING: using random CSRF key (claim forms won't survive restart). Set ENROLL_CSRF_KEY for production.")
	return key
}

// Global stores instance (set by NewMux)
var stores *Stores

// Global admission core instance (set by NewMux)
var core *admission.Core

// Global handler options (set by NewMux)
var options Options

// RateLimitPerSecond controls the per-IP rate limit. Tests can increase this.
var RateLimitPerSecond = 10

// NewMux wires HTTP handlers for the app.
func NewMux(s *Stores, c *admission.Core, opts Options) http.Handler {
	stores = s
	core = c
	options = opts

	mux := http.NewServeMux()
	registerRoutes(mux)

	// CSRF key: 32-byte hex-encoded secret from env var
	csrfKey := loadCSRFKey()

	// Rate limiter: configurable requests per second per IP (OWASP A04)
	limiter := middleware.NewRateLimiter(RateLimitPerSecond, time.Second)

	// Apply middleware: SecurityHeaders -> CSRF -> RateLimit -> Mux
	return middleware.Chain(mux,
		middleware.SecurityHeaders,
		middleware.CSRF(csrfKey),
		middleware.RateLimit(limiter),
	)
}
