package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	_ "modernc.org/sqlite"

	emailPkg "enrollment/internal/adapters/email"
	web "enrollment/internal/adapters/http"
	paymentAdapter "enrollment/internal/adapters/payment"
	"enrollment/internal/adapters/storage"
	enrollmentStorePkg "enrollment/internal/adapters/storage/enrollment"
	dedupStore "enrollment/internal/adapters/storage/payment"
	waitlistStorePkg "enrollment/internal/adapters/storage/waitlist"
	workshopStorePkg "enrollment/internal/adapters/storage/workshop"
	"enrollment/internal/application/admission"
	"enrollment/internal/application/notify"
	"enrollment/internal/application/orchestrators"
	"enrollment/internal/config"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Initialize database with WAL mode, foreign keys, and busy timeout
	dsn := cfg.DBPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	// Connection pool settings for WAL mode
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)

	if err := db.Ping(); err != nil {
		log.Fatalf("database unreachable: %v", err)
	}
	if err := storage.InitDB(db); err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	log.Println("Database initialized successfully!")

	workshopStore := workshopStorePkg.NewSQLiteStore(db)
	enrollmentStore := enrollmentStorePkg.NewSQLiteStore(db)
	waitlistStore := waitlistStorePkg.NewSQLiteStore(db)
	eventStore := dedupStore.NewSQLiteStore(db)

	// Seed development workshops
	if !cfg.Production() {
		seedDeps := orchestrators.SeedWorkshopsDeps{WorkshopStore: workshopStore}
		if err := orchestrators.ExecuteSeedWorkshops(context.Background(), seedDeps); err != nil {
			log.Fatalf("failed to seed workshops: %v", err)
		}
	}

	// Configure email sender
	var sender emailPkg.Sender
	if cfg.ResendKey != "" {
		sender = emailPkg.NewResendSender(cfg.ResendKey, cfg.EmailFrom)
		log.Println("Email sender configured (Resend)")
	} else {
		sender = emailPkg.NewNoopSender()
		if cfg.Production() {
			log.Println("WARNING: ENROLL_RESEND_KEY is not set, email delivery is DISABLED in production")
		} else {
			log.Println("Email sender configured (noop, set ENROLL_RESEND_KEY for real delivery)")
		}
	}
	notifier := notify.NewEmailNotifier(sender, cfg.EmailFrom, cfg.ReplyTo, cfg.BaseURL)

	// Configure payment provider
	var provider paymentAdapter.Provider
	if cfg.StripeKey != "" {
		provider = paymentAdapter.NewStripeProvider(cfg.StripeKey, cfg.StripeSuccessURL, cfg.StripeCancelURL)
		log.Println("Payment provider configured (Stripe)")
	} else {
		if cfg.Production() {
			log.Println("WARNING: ENROLL_STRIPE_KEY is not set, running in record-only payment mode")
		} else {
			log.Println("Payment provider in record-only mode, set ENROLL_STRIPE_KEY for real checkouts")
		}
	}

	core := admission.NewCore(
		admission.Config{ClaimTTL: cfg.ClaimTTL, DedupRetention: cfg.DedupRetention},
		admission.Deps{
			WorkshopStore:   workshopStore,
			EnrollmentStore: enrollmentStore,
			WaitlistStore:   waitlistStore,
			DedupStore:      eventStore,
			Provider:        provider,
			Notifier:        notifier,
		},
	)

	// Start sweep worker for claim expiry and dedup window trimming
	sweepStopCh := make(chan struct{})
	admission.StartSweepWorker(core.NewSweeper(), cfg.SweepInterval, sweepStopCh)
	defer close(sweepStopCh)

	stores := &web.Stores{
		WorkshopStore:   workshopStore,
		EnrollmentStore: enrollmentStore,
	}
	mux := web.NewMux(stores, core, web.Options{
		WebhookSecret:   cfg.StripeWebhookSecret,
		OperatorKeyHash: cfg.OperatorKeyHash,
	})

	log.Printf("Enrollment %s starting on %s (env=%s)", version, cfg.Addr, cfg.Env)
	if err := http.ListenAndServe(cfg.Addr, mux); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
