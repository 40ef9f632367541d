package postgres

/*
Файл killswitch_repo.go — персистенция событий kill switch и записей отзыва.
RevocationRecord удаляется только логически (is_active = false):
запись об отзыве — сама по себе улика аудита.
*/

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skillancer/securedesk/internal/domain"
	"github.com/skillancer/securedesk/internal/killswitch"
)

type KillSwitchRepo struct {
	pool *pgxpool.Pool
}

func NewKillSwitchRepo(pool *pgxpool.Pool) *KillSwitchRepo {
	return &KillSwitchRepo{pool: pool}
}

func (r *KillSwitchRepo) CreateEvent(ctx context.Context, e *domain.KillSwitchEvent) error {
	details, _ := json.Marshal(e.Details)
	query := `
		INSERT INTO kill_switch_events
			(id, scope, tenant_id, user_id, pod_id, session_id, reason, triggered_by,
			 status, sessions_terminated, pods_terminated, tokens_revoked,
			 execution_time_ms, errors, details, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, 0, 0, 0, '[]', $10, $11, $12)`

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.Scope, nullable(e.TenantID), nullable(e.UserID), nullable(e.PodID), nullable(e.SessionID),
		e.Reason, e.TriggeredBy, e.Status, details, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to insert kill switch event: %w", err)
	}
	return nil
}

// UpdateEvent пишет прогресс каскада. Терминальные статусы защищены на
// уровне запроса: завершенное событие больше не мутируется.
func (r *KillSwitchRepo) UpdateEvent(ctx context.Context, e *domain.KillSwitchEvent) error {
	errs, _ := json.Marshal(e.Errors)
	query := `
		UPDATE kill_switch_events
		SET status = $1, sessions_terminated = $2, pods_terminated = $3,
		    tokens_revoked = $4, execution_time_ms = $5, errors = $6, updated_at = $7
		WHERE id = $8
		  AND status NOT IN ('COMPLETED', 'PARTIAL_FAILURE', 'FAILED')`

	ct, err := r.pool.Exec(ctx, query,
		e.Status, e.SessionsTerminated, e.PodsTerminated,
		e.TokensRevoked, e.ExecutionTimeMs, errs, e.UpdatedAt, e.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to update kill switch event: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("postgres: event %s not found or already terminal", e.ID)
	}
	return nil
}

func (r *KillSwitchRepo) GetEvent(ctx context.Context, id string) (*domain.KillSwitchEvent, error) {
	query := selectEvent + ` WHERE id = $1`
	e, err := scanEvent(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, killswitch.ErrEventNotFound
		}
		return nil, err
	}
	return e, nil
}

func (r *KillSwitchRepo) ListEvents(ctx context.Context, f domain.EventFilter) ([]domain.KillSwitchEvent, int64, error) {
	where := "WHERE 1=1"
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Scope != "" {
		where += " AND scope = " + arg(f.Scope)
	}
	if f.Status != "" {
		where += " AND status = " + arg(f.Status)
	}
	if f.TenantID != "" {
		where += " AND tenant_id = " + arg(f.TenantID)
	}
	if !f.Since.IsZero() {
		where += " AND created_at >= " + arg(f.Since)
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM kill_switch_events "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres: failed to count events: %w", err)
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := fmt.Sprintf("%s %s ORDER BY created_at DESC LIMIT %s OFFSET %s",
		selectEvent, where, arg(limit), arg(f.Offset))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: failed to list events: %w", err)
	}
	defer rows.Close()

	var out []domain.KillSwitchEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *e)
	}
	return out, total, rows.Err()
}

// Stats — сводка для дашборда: разрезы, среднее время, SLA-превышения
func (r *KillSwitchRepo) Stats(ctx context.Context, slaMs int64) (*domain.KillSwitchStats, error) {
	s := &domain.KillSwitchStats{
		ByStatus: make(map[domain.KillSwitchStatus]int64),
		ByScope:  make(map[domain.KillSwitchScope]int64),
	}

	rows, err := r.pool.Query(ctx, `SELECT scope, status, COUNT(*) FROM kill_switch_events GROUP BY scope, status`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to aggregate events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var scope domain.KillSwitchScope
		var status domain.KillSwitchStatus
		var n int64
		if err := rows.Scan(&scope, &status, &n); err != nil {
			return nil, err
		}
		s.TotalEvents += n
		s.ByScope[scope] += n
		s.ByStatus[status] += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = r.pool.QueryRow(ctx, `
		SELECT COALESCE(AVG(execution_time_ms), 0),
		       COUNT(*) FILTER (WHERE execution_time_ms > $1)
		FROM kill_switch_events
		WHERE status IN ('COMPLETED', 'PARTIAL_FAILURE', 'FAILED')`, slaMs,
	).Scan(&s.AvgExecutionMs, &s.SLABreaches)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to compute SLA stats: %w", err)
	}

	err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM revocation_records WHERE is_active`).Scan(&s.ActiveRevoked)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *KillSwitchRepo) CreateRevocation(ctx context.Context, rec *domain.RevocationRecord) error {
	query := `
		INSERT INTO revocation_records
			(id, user_id, event_id, revoked_by, reason, scope, is_active, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, true, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.UserID, rec.EventID, rec.RevokedBy, rec.Reason, rec.Scope, rec.ExpiresAt, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to insert revocation: %w", err)
	}
	return nil
}

// ActiveRevocation возвращает nil без ошибки, если активной записи нет
func (r *KillSwitchRepo) ActiveRevocation(ctx context.Context, userID string) (*domain.RevocationRecord, error) {
	query := selectRevocation + ` WHERE user_id = $1 AND is_active ORDER BY created_at DESC LIMIT 1`
	rec, err := scanRevocation(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// Reinstate гасит активную запись; ErrNoActiveRevocation — если гасить нечего
func (r *KillSwitchRepo) Reinstate(ctx context.Context, userID, reinstatedBy, reason string) (*domain.RevocationRecord, error) {
	query := `
		UPDATE revocation_records
		SET is_active = false, reinstated_by = $1, reinstated_at = NOW(), reinstate_reason = $2
		WHERE user_id = $3 AND is_active
		RETURNING id, user_id, event_id, revoked_by, reason, scope, is_active, expires_at,
		          reinstated_by, reinstated_at, reinstate_reason, created_at`

	rec, err := scanRevocation(r.pool.QueryRow(ctx, query, reinstatedBy, reason, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, killswitch.ErrNoActiveRevocation
		}
		return nil, fmt.Errorf("postgres: failed to reinstate: %w", err)
	}
	return rec, nil
}

func (r *KillSwitchRepo) RevocationHistory(ctx context.Context, userID string) ([]domain.RevocationRecord, error) {
	query := selectRevocation + ` WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to load history: %w", err)
	}
	defer rows.Close()

	var out []domain.RevocationRecord
	for rows.Next() {
		rec, err := scanRevocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

const selectEvent = `
	SELECT id, scope, tenant_id, user_id, pod_id, session_id, reason, triggered_by,
	       status, sessions_terminated, pods_terminated, tokens_revoked,
	       execution_time_ms, errors, details, created_at, updated_at
	FROM kill_switch_events`

const selectRevocation = `
	SELECT id, user_id, event_id, revoked_by, reason, scope, is_active, expires_at,
	       reinstated_by, reinstated_at, reinstate_reason, created_at
	FROM revocation_records`

func scanEvent(row pgx.Row) (*domain.KillSwitchEvent, error) {
	var e domain.KillSwitchEvent
	var tenantID, userID, podID, sessionID *string
	var errs, details []byte

	err := row.Scan(
		&e.ID, &e.Scope, &tenantID, &userID, &podID, &sessionID, &e.Reason, &e.TriggeredBy,
		&e.Status, &e.SessionsTerminated, &e.PodsTerminated, &e.TokensRevoked,
		&e.ExecutionTimeMs, &errs, &details, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.TenantID = deref(tenantID)
	e.UserID = deref(userID)
	e.PodID = deref(podID)
	e.SessionID = deref(sessionID)
	if len(errs) > 0 {
		_ = json.Unmarshal(errs, &e.Errors)
	}
	if len(details) > 0 {
		_ = json.Unmarshal(details, &e.Details)
	}
	return &e, nil
}

func scanRevocation(row pgx.Row) (*domain.RevocationRecord, error) {
	var rec domain.RevocationRecord
	var reinstatedBy, reinstateReason *string

	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.EventID, &rec.RevokedBy, &rec.Reason, &rec.Scope,
		&rec.IsActive, &rec.ExpiresAt,
		&reinstatedBy, &rec.ReinstatedAt, &reinstateReason, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.ReinstatedBy = deref(reinstatedBy)
	rec.ReinstateReason = deref(reinstateReason)
	return &rec, nil
}
