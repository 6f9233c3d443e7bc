package services

import (
	"context"
	"database/sql"
	"fmt"

	"treasure-chest/internal/config"
	"treasure-chest/internal/database"
	"treasure-chest/internal/logger"
	"treasure-chest/internal/models"
)

// AuditLog журнал выигрышей: только добавление, без изменений.
type AuditLog struct {
	db        *database.DB
	log       *logger.Logger
	listLimit int
}

// NewAuditLog создаёт журнал выигрышей.
func NewAuditLog(db *database.DB, log *logger.Logger, cfg *config.GameConfig) *AuditLog {
	listLimit := defaultListLimit
	if cfg != nil && cfg.DefaultListLimit > 0 {
		listLimit = normalizeLimit(cfg.DefaultListLimit, defaultListLimit)
	}
	return &AuditLog{
		db:        db,
		log:       log,
		listLimit: listLimit,
	}
}

// AppendWithTx добавляет запись в рамках транзакции погашения и заполняет rec.ID.
func (a *AuditLog) AppendWithTx(ctx context.Context, tx *sql.Tx, rec *models.RedemptionRecord) error {
	query := `
		INSERT INTO redemption_log (code_id, code, player, prize_label, prize_value, chest_index, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	var chestIndex interface{}
	if rec.ChestIndex != nil {
		chestIndex = *rec.ChestIndex
	}

	if err := tx.QueryRowContext(ctx, query,
		rec.CodeID, rec.Code, rec.Player, rec.PrizeLabel, rec.PrizeValue, chestIndex, rec.CreatedAt,
	).Scan(&rec.ID); err != nil {
		return fmt.Errorf("failed to append redemption log: %w", err)
	}
	return nil
}

// ListRedemptions возвращает последние записи журнала.
func (a *AuditLog) ListRedemptions(ctx context.Context, limit int) ([]*models.RedemptionRecord, error) {
	limit = normalizeLimit(limit, a.listLimit)
	query := `
		SELECT id, code_id, code, player, prize_label, prize_value, chest_index, created_at
		FROM redemption_log
		ORDER BY id DESC
		LIMIT $1
	`

	rows, err := a.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list redemptions: %w", err)
	}
	defer rows.Close()

	records := make([]*models.RedemptionRecord, 0)
	for rows.Next() {
		var (
			rec        models.RedemptionRecord
			chestIndex sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &rec.CodeID, &rec.Code, &rec.Player, &rec.PrizeLabel, &rec.PrizeValue, &chestIndex, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan redemption: %w", err)
		}
		if chestIndex.Valid {
			idx := int(chestIndex.Int64)
			rec.ChestIndex = &idx
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate redemptions: %w", err)
	}

	return records, nil
}
