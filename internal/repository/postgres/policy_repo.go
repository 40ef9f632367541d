package postgres

/*
Файл policy_repo.go отвечает за хранение правил изоляции (SecurityPolicy).
Долговременное хранение живет в PostgreSQL; рантайм читает политики
только из in-memory кэша (internal/policy), который загружается отсюда.
*/

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skillancer/securedesk/internal/domain"
)

type PolicyRepo struct {
	pool *pgxpool.Pool
}

func NewPolicyRepo(pool *pgxpool.Pool) *PolicyRepo {
	return &PolicyRepo{pool: pool}
}

const selectPolicy = `
	SELECT id, tenant_id, clipboard_enabled, file_transfer_out, file_transfer_in,
	       printing_enabled, usb_enabled, watermark_enabled, watermark_codec,
	       idle_timeout_sec, max_duration_sec, created_at, updated_at
	FROM security_policies`

// GetAllPolicies выполняет "холодную загрузку" всего набора политик при старте
func (r *PolicyRepo) GetAllPolicies(ctx context.Context) ([]domain.SecurityPolicy, error) {
	rows, err := r.pool.Query(ctx, selectPolicy)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.SecurityPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *p)
	}
	return results, rows.Err()
}

// GetPolicyByTenant — точечная выборка с учетом wildcard-иерархии:
// сначала персональная политика арендатора, потом глобальная ('*').
func (r *PolicyRepo) GetPolicyByTenant(ctx context.Context, tenantID string) (*domain.SecurityPolicy, error) {
	query := selectPolicy + `
		WHERE tenant_id = $1 OR tenant_id = '*'
		ORDER BY (tenant_id != '*') DESC
		LIMIT 1`

	p, err := scanPolicy(r.pool.QueryRow(ctx, query, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Нет записи = строгий дефолт на стороне кэша
		}
		return nil, err
	}
	return p, nil
}

// UpsertPolicy создает или обновляет политику арендатора.
// tenant_id = '*' задает глобальное правило.
func (r *PolicyRepo) UpsertPolicy(ctx context.Context, p *domain.SecurityPolicy) error {
	query := `
		INSERT INTO security_policies
			(id, tenant_id, clipboard_enabled, file_transfer_out, file_transfer_in,
			 printing_enabled, usb_enabled, watermark_enabled, watermark_codec,
			 idle_timeout_sec, max_duration_sec, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		ON CONFLICT (tenant_id) DO UPDATE SET
			clipboard_enabled = EXCLUDED.clipboard_enabled,
			file_transfer_out = EXCLUDED.file_transfer_out,
			file_transfer_in  = EXCLUDED.file_transfer_in,
			printing_enabled  = EXCLUDED.printing_enabled,
			usb_enabled       = EXCLUDED.usb_enabled,
			watermark_enabled = EXCLUDED.watermark_enabled,
			watermark_codec   = EXCLUDED.watermark_codec,
			idle_timeout_sec  = EXCLUDED.idle_timeout_sec,
			max_duration_sec  = EXCLUDED.max_duration_sec,
			updated_at        = NOW()`

	_, err := r.pool.Exec(ctx, query,
		p.TenantID, p.ClipboardEnabled, p.FileTransferOut, p.FileTransferIn,
		p.PrintingEnabled, p.USBEnabled, p.WatermarkEnabled, p.WatermarkCodec,
		int64(p.IdleTimeout/time.Second), int64(p.MaxDuration/time.Second),
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to upsert policy: %w", err)
	}
	return nil
}

// DeletePolicy удаляет политику арендатора; изоляция падает обратно на строгий дефолт
func (r *PolicyRepo) DeletePolicy(ctx context.Context, tenantID string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM security_policies WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete policy: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("postgres: policy not found")
	}
	return nil
}

func scanPolicy(row pgx.Row) (*domain.SecurityPolicy, error) {
	var p domain.SecurityPolicy
	var idleSec, maxSec int64

	err := row.Scan(
		&p.ID, &p.TenantID, &p.ClipboardEnabled, &p.FileTransferOut, &p.FileTransferIn,
		&p.PrintingEnabled, &p.USBEnabled, &p.WatermarkEnabled, &p.WatermarkCodec,
		&idleSec, &maxSec, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.IdleTimeout = time.Duration(idleSec) * time.Second
	p.MaxDuration = time.Duration(maxSec) * time.Second
	return &p, nil
}
