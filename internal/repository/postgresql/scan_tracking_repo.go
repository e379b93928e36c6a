package postgresql

import (
	"context"
	"fmt"

	"campus_parking/internal/domain"
)

type pgScanTrackingRepository struct {
	db querier
}

func (r *pgScanTrackingRepository) Create(ctx context.Context, scan *domain.ScanRecord) error {
	query := `INSERT INTO qr_scan_tracking
	            (reservation_id, actor_id, scan_type, scan_timestamp, status_at_scan, spot_id, vehicle_id)
	          VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	err := r.db.QueryRowContext(ctx, query,
		scan.ReservationID, scan.ActorID, scan.ScanType, scan.ScanTimestamp.UTC(),
		scan.StatusAtScan, scan.SpotID, scan.VehicleID,
	).Scan(&scan.ID)
	if err != nil {
		return fmt.Errorf("ScanTrackingRepository.Create: %w", classify(err))
	}
	return nil
}
