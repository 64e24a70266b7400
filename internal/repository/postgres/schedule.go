package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/repository"
)

func (r *scheduleRepository) ScheduleVersion(ctx context.Context) (int64, error) {
	var version int64
	err := sqlx.GetContext(ctx, r.db, &version, `SELECT version FROM schedule_versions WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get schedule version: %w", err)
	}
	return version, nil
}

func (r *scheduleRepository) ListWeeklyRules(ctx context.Context) ([]model.WeeklyRule, error) {
	query := `
		SELECT id, weekday, start_time, end_time, service_id
		FROM weekly_rules
		ORDER BY weekday, start_time, end_time
	`
	var rules []model.WeeklyRule
	if err := sqlx.SelectContext(ctx, r.db, &rules, query); err != nil {
		return nil, fmt.Errorf("failed to list weekly rules: %w", err)
	}
	return rules, nil
}

func (r *scheduleRepository) ReplaceWeeklyRules(ctx context.Context, rules []model.WeeklyRule) (int64, error) {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM weekly_rules`); err != nil {
		return 0, fmt.Errorf("failed to clear weekly rules: %w", err)
	}

	insert := `
		INSERT INTO weekly_rules (id, weekday, start_time, end_time, service_id)
		VALUES ($1, $2, $3, $4, $5)
	`
	for i := range rules {
		if rules[i].ID == uuid.Nil {
			rules[i].ID = uuid.New()
		}
		rule := rules[i]
		if _, err := r.db.ExecContext(ctx, insert,
			rule.ID,
			rule.Weekday,
			rule.StartTime,
			rule.EndTime,
			rule.ServiceID,
		); err != nil {
			return 0, fmt.Errorf("failed to insert weekly rule: %w", err)
		}
	}

	bump := `
		INSERT INTO schedule_versions (id, version, updated_at)
		VALUES (1, 1, $1)
		ON CONFLICT (id) DO UPDATE
		SET version = schedule_versions.version + 1, updated_at = EXCLUDED.updated_at
		RETURNING version
	`
	var version int64
	if err := sqlx.GetContext(ctx, r.db, &version, bump, time.Now().UTC()); err != nil {
		return 0, fmt.Errorf("failed to bump schedule version: %w", err)
	}
	return version, nil
}

func (r *scheduleRepository) ListBlackoutDates(ctx context.Context, start, end model.Date) ([]model.BlackoutDate, error) {
	query := `
		SELECT id, date, reason, source, created_at
		FROM blackout_dates
		WHERE date BETWEEN $1 AND $2
		ORDER BY date
	`
	var blackouts []model.BlackoutDate
	if err := sqlx.SelectContext(ctx, r.db, &blackouts, query, start, end); err != nil {
		return nil, fmt.Errorf("failed to list blackout dates: %w", err)
	}
	return blackouts, nil
}

// UpsertBlackoutDates inserts the dates that are not closed yet and
// returns how many were added. Existing dates are left untouched.
func (r *scheduleRepository) UpsertBlackoutDates(ctx context.Context, blackouts []model.BlackoutDate) (int, error) {
	query := `
		INSERT INTO blackout_dates (id, date, reason, source, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (date) DO NOTHING
	`
	added := 0
	now := time.Now().UTC()
	for i := range blackouts {
		b := &blackouts[i]
		if b.ID == uuid.Nil {
			b.ID = uuid.New()
		}
		if b.Source == "" {
			b.Source = model.BlackoutSourceManual
		}
		b.CreatedAt = now
		result, err := r.db.ExecContext(ctx, query, b.ID, b.Date, b.Reason, b.Source, b.CreatedAt)
		if err != nil {
			return added, fmt.Errorf("failed to insert blackout date: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return added, fmt.Errorf("failed to get rows affected: %w", err)
		}
		added += int(n)
	}
	return added, nil
}

func (r *scheduleRepository) DeleteBlackoutDate(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM blackout_dates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete blackout date: %w", err)
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
