package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/repository"
)

const appointmentColumns = `
	id, service_id, patient_name, patient_email, starts_at,
	duration_minutes, status, notes, cancel_reason, created_at, updated_at
`

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	query := `
		INSERT INTO appointments (` + appointmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if appointment.ID == uuid.Nil {
		appointment.ID = uuid.New()
	}
	now := time.Now().UTC()
	appointment.CreatedAt = now
	appointment.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		appointment.ID,
		appointment.ServiceID,
		appointment.PatientName,
		appointment.PatientEmail,
		appointment.StartsAt,
		appointment.DurationMinutes,
		appointment.Status,
		appointment.Notes,
		appointment.CancelReason,
		appointment.CreatedAt,
		appointment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	var appointment model.Appointment
	err := sqlx.GetContext(ctx, r.db, &appointment, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &appointment, nil
}

func (r *appointmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus, reason *string) error {
	query := `
		UPDATE appointments
		SET status = $1, cancel_reason = COALESCE($2, cancel_reason), updated_at = $3
		WHERE id = $4
	`
	result, err := r.db.ExecContext(ctx, query, status, reason, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update appointment status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *appointmentRepository) ListOccupying(ctx context.Context, from, to time.Time) ([]model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE status = ANY($1)
		  AND starts_at < $3
		  AND starts_at + duration_minutes * INTERVAL '1 minute' > $2
		ORDER BY starts_at
	`
	statuses := make([]string, len(model.OccupyingStatuses))
	for i, s := range model.OccupyingStatuses {
		statuses[i] = string(s)
	}

	var appointments []model.Appointment
	if err := sqlx.SelectContext(ctx, r.db, &appointments, query, pq.Array(statuses), from, to); err != nil {
		return nil, fmt.Errorf("failed to list occupying appointments: %w", err)
	}
	return appointments, nil
}
