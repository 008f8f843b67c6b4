package orchestrators

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"enrollment/internal/domain/workshop"
)

// WorkshopStoreForSeed defines the store interface needed by SeedWorkshops.
type WorkshopStoreForSeed interface {
	Save(ctx context.Context, w workshop.Workshop) error
	List(ctx context.Context) ([]workshop.Workshop, error)
}

// SeedWorkshopsDeps holds dependencies for SeedWorkshops.
type SeedWorkshopsDeps struct {
	WorkshopStore WorkshopStoreForSeed
}

// ExecuteSeedWorkshops creates a few development workshops if none exist.
func ExecuteSeedWorkshops(ctx context.Context, deps SeedWorkshopsDeps) error {
	existing, err := deps.WorkshopStore.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil // Already seeded
	}

	workshops := []workshop.Workshop{
		{
			ID:              uuid.New().String(),
			Title:           "Sourdough Basics",
			Description:     "A hands-on introduction to **sourdough** baking. Bring an apron.",
			Capacity:        8,
			WaitlistEnabled: true,
			PriceCents:      4500,
			Currency:        "nzd",
		},
		{
			ID:              uuid.New().String(),
			Title:           "Knife Skills",
			Description:     "Two hours of chopping, dicing and keeping all ten fingers.",
			Capacity:        12,
			WaitlistEnabled: true,
			PriceCents:      3500,
			Currency:        "nzd",
		},
		{
			ID:              uuid.New().String(),
			Title:           "Open Kitchen Night",
			Description:     "Drop in and cook with us. No cap on numbers.",
			Capacity:        workshop.UnlimitedCapacity,
			WaitlistEnabled: false,
			PriceCents:      0,
			Currency:        "nzd",
		},
	}

	for _, w := range workshops {
		if err := deps.WorkshopStore.Save(ctx, w); err != nil {
			return err
		}
	}

	slog.Info("seed_event", "event", "workshops_seeded", "count", len(workshops))
	return nil
}
