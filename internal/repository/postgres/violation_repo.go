package postgres

/*
Файл violation_repo.go — хранилище записей о нарушениях.
Таблица append-only: записи никогда не удаляются, единственный UPDATE —
пометка reviewed (ReviewViolation). Это след для форензики, а не кэш.
*/

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skillancer/securedesk/internal/detector"
	"github.com/skillancer/securedesk/internal/domain"
)

type ViolationRepo struct {
	pool *pgxpool.Pool
}

func NewViolationRepo(pool *pgxpool.Pool) *ViolationRepo {
	return &ViolationRepo{pool: pool}
}

func (r *ViolationRepo) Create(ctx context.Context, v *domain.SecurityViolation) error {
	details, _ := json.Marshal(v.Details)

	query := `
		INSERT INTO security_violations
			(id, session_id, tenant_id, violation_type, severity, description,
			 details, action, source_ip, user_agent, reviewed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, false, $11)`

	_, err := r.pool.Exec(ctx, query,
		v.ID, v.SessionID, v.TenantID, v.ViolationType, v.Severity, v.Description,
		details, v.Action, nullable(v.SourceIP), nullable(v.UserAgent), v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to insert violation: %w", err)
	}
	return nil
}

// Review помечает запись разобранной и возвращает обновленное состояние
func (r *ViolationRepo) Review(ctx context.Context, id, reviewer, notes string) (*domain.SecurityViolation, error) {
	query := `
		UPDATE security_violations
		SET reviewed = true, reviewed_by = $1, reviewed_at = NOW(), review_notes = $2
		WHERE id = $3
		RETURNING id, session_id, tenant_id, violation_type, severity, description,
		          details, action, source_ip, user_agent,
		          reviewed, reviewed_by, reviewed_at, review_notes, created_at`

	v, err := scanViolation(r.pool.QueryRow(ctx, query, reviewer, notes, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, detector.ErrViolationNotFound
		}
		return nil, fmt.Errorf("postgres: failed to review violation: %w", err)
	}
	return v, nil
}

func (r *ViolationRepo) List(ctx context.Context, f domain.ViolationFilter) ([]domain.SecurityViolation, int64, error) {
	where := "WHERE 1=1"
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.TenantID != "" {
		where += " AND tenant_id = " + arg(f.TenantID)
	}
	if f.SessionID != "" {
		where += " AND session_id = " + arg(f.SessionID)
	}
	if f.Type != "" {
		where += " AND violation_type = " + arg(f.Type)
	}
	if f.Severity != "" {
		where += " AND severity = " + arg(f.Severity)
	}
	if !f.Since.IsZero() {
		where += " AND created_at >= " + arg(f.Since)
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM security_violations "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres: failed to count violations: %w", err)
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := fmt.Sprintf(
		"SELECT id, session_id, tenant_id, violation_type, severity, description, details, action, source_ip, user_agent, reviewed, reviewed_by, reviewed_at, review_notes, created_at FROM security_violations %s ORDER BY created_at DESC LIMIT %s OFFSET %s",
		where, arg(limit), arg(f.Offset),
	)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: failed to list violations: %w", err)
	}
	defer rows.Close()

	var out []domain.SecurityViolation
	for rows.Next() {
		v, err := scanViolation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *v)
	}
	return out, total, rows.Err()
}

// Summary — агрегат за окно: totals + разрезы + последние 10 записей
func (r *ViolationRepo) Summary(ctx context.Context, tenantID string, since time.Time) (*domain.ViolationSummary, error) {
	s := &domain.ViolationSummary{
		ByType:     make(map[domain.ViolationType]int64),
		BySeverity: make(map[domain.Severity]int64),
		ByAction:   make(map[domain.ViolationAction]int64),
	}

	query := `
		SELECT violation_type, severity, action, COUNT(*)
		FROM security_violations
		WHERE tenant_id = $1 AND created_at >= $2
		GROUP BY violation_type, severity, action`

	rows, err := r.pool.Query(ctx, query, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to aggregate violations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t domain.ViolationType
		var sev domain.Severity
		var a domain.ViolationAction
		var n int64
		if err := rows.Scan(&t, &sev, &a, &n); err != nil {
			return nil, err
		}
		s.Total += n
		s.ByType[t] += n
		s.BySeverity[sev] += n
		s.ByAction[a] += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	recent, _, err := r.List(ctx, domain.ViolationFilter{TenantID: tenantID, Since: since, Limit: 10})
	if err != nil {
		return nil, err
	}
	s.RecentViolations = recent
	return s, nil
}

// scanViolation — общий маппинг строки в домен
func scanViolation(row pgx.Row) (*domain.SecurityViolation, error) {
	var v domain.SecurityViolation
	var details []byte
	var sourceIP, userAgent, reviewedBy, reviewNotes *string
	var reviewedAt *time.Time

	err := row.Scan(
		&v.ID, &v.SessionID, &v.TenantID, &v.ViolationType, &v.Severity, &v.Description,
		&details, &v.Action, &sourceIP, &userAgent,
		&v.Reviewed, &reviewedBy, &reviewedAt, &reviewNotes, &v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(details) > 0 {
		_ = json.Unmarshal(details, &v.Details)
	}
	v.SourceIP = deref(sourceIP)
	v.UserAgent = deref(userAgent)
	v.ReviewedBy = deref(reviewedBy)
	v.ReviewNotes = deref(reviewNotes)
	v.ReviewedAt = reviewedAt
	return &v, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
