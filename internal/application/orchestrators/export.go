package orchestrators

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	enrollmentDomain "enrollment/internal/domain/enrollment"
	"enrollment/internal/domain/workshop"
)

// EnrollmentStoreForExport defines the store interface needed by ExportEnrollments.
type EnrollmentStoreForExport interface {
	ListByWorkshop(ctx context.Context, workshopID string) ([]enrollmentDomain.Enrollment, error)
}

// WorkshopStoreForExport defines the store interface needed by ExportEnrollments.
type WorkshopStoreForExport interface {
	GetByID(ctx context.Context, id string) (workshop.Workshop, error)
}

// ExportEnrollmentsDeps holds dependencies for ExportEnrollments.
type ExportEnrollmentsDeps struct {
	EnrollmentStore EnrollmentStoreForExport
	WorkshopStore   WorkshopStoreForExport
}

// ExecuteExportEnrollments writes a workshop's enrollments as CSV.
// PRE: workshopID references an existing workshop
// POST: w contains a header row plus one row per enrollment, every status
// included
func ExecuteExportEnrollments(ctx context.Context, deps ExportEnrollmentsDeps, workshopID string, w io.Writer) error {
	ws, err := deps.WorkshopStore.GetByID(ctx, workshopID)
	if err != nil {
		return err
	}

	enrollments, err := deps.EnrollmentStore.ListByWorkshop(ctx, ws.ID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{"enrollment_id", "name", "email", "phone", "status", "pricing_option", "amount_cents", "currency", "payment_reference", "refund_reference", "created_at"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, e := range enrollments {
		row := []string{
			e.ID,
			e.Customer.Name,
			e.Customer.Email,
			e.Customer.Phone,
			e.Status,
			e.PricingOption,
			strconv.FormatInt(e.AmountCents, 10),
			e.Currency,
			e.PaymentReference,
			e.RefundReference,
			e.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
