package metrics

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"dialer-engine/internal/compliance"
)

const exportPageSize = 200

// ExportViolationsCSV streams the violations in [from, to) as CSV,
// paging through the repository so the export never loads the full
// range into memory.
func ExportViolationsCSV(ctx context.Context, w io.Writer, repo compliance.ViolationRepository, from, to time.Time) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "timestamp", "phone_number", "type", "reason"}); err != nil {
		return fmt.Errorf("metrics: csv header: %w", err)
	}
	for page := 1; ; page++ {
		rows, total, err := repo.ListRange(ctx, from, to, page, exportPageSize)
		if err != nil {
			return fmt.Errorf("metrics: list violations: %w", err)
		}
		for _, v := range rows {
			rec := []string{
				v.ID,
				v.Timestamp.UTC().Format(time.RFC3339),
				v.PhoneNumber,
				string(v.Type),
				v.Reason,
			}
			if err := cw.Write(rec); err != nil {
				return fmt.Errorf("metrics: csv row: %w", err)
			}
		}
		if page*exportPageSize >= total || len(rows) == 0 {
			break
		}
	}
	cw.Flush()
	return cw.Error()
}
