package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"treasure-chest/internal/apperror"
	"treasure-chest/internal/config"
	"treasure-chest/internal/database"
	"treasure-chest/internal/logger"
	"treasure-chest/internal/models"

	"github.com/google/uuid"
)

const (
	maxTokenAttempts     = 5
	defaultListLimit     = 100
	maxListLimit         = 1000
	defaultMaxIssueCount = 500
)

// ErrCodeUnavailable означает, что условное списание не затронуло ни одной строки.
var ErrCodeUnavailable = errors.New("code is not available for redemption")

const codeColumns = `id, code, uses_allowed, uses_count, prize_label, prize_value, revoked, revoked_at, created_at, expires_at`

// CodeService хранит коды и атомарно списывает использования.
type CodeService struct {
	db        *database.DB
	log       *logger.Logger
	publisher EventPublisher
	stats     StatsInvalidator
	maxIssue  int
	listLimit int
	newToken  func() string
	now       func() time.Time
}

// NewCodeService создаёт сервис кодов. publisher и stats могут быть nil.
func NewCodeService(db *database.DB, log *logger.Logger, cfg *config.GameConfig, publisher EventPublisher, stats StatsInvalidator) *CodeService {
	maxIssue := defaultMaxIssueCount
	listLimit := defaultListLimit
	if cfg != nil {
		if cfg.MaxIssueCount > 0 {
			maxIssue = cfg.MaxIssueCount
		}
		if cfg.DefaultListLimit > 0 {
			listLimit = normalizeLimit(cfg.DefaultListLimit, defaultListLimit)
		}
	}

	return &CodeService{
		db:        db,
		log:       log,
		publisher: publisher,
		stats:     stats,
		maxIssue:  maxIssue,
		listLimit: listLimit,
		newToken:  generateToken,
		now:       time.Now,
	}
}

// generateToken берёт первый сегмент UUID v4: 8 hex-символов в верхнем регистре.
func generateToken() string {
	head, _, _ := strings.Cut(uuid.New().String(), "-")
	return strings.ToUpper(head)
}

// Lookup находит код по точному совпадению канонической формы.
func (s *CodeService) Lookup(ctx context.Context, token string) (*models.Code, error) {
	token = models.NormalizeCode(token)
	query := `SELECT ` + codeColumns + ` FROM codes WHERE code = $1`

	code, err := scanCode(s.db.QueryRowContext(ctx, query, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("code not found", err)
		}
		return nil, fmt.Errorf("failed to get code: %w", err)
	}
	return code, nil
}

// lookupByIDWithTx перечитывает код внутри транзакции.
func (s *CodeService) lookupByIDWithTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Code, error) {
	query := `SELECT ` + codeColumns + ` FROM codes WHERE id = $1`

	code, err := scanCode(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("code not found", err)
		}
		return nil, fmt.Errorf("failed to reload code: %w", err)
	}
	return code, nil
}

// IssueCodes выпускает партию кодов в одной транзакции: либо все, либо ни одного.
func (s *CodeService) IssueCodes(ctx context.Context, req *models.IssueCodesRequest) ([]*models.Code, error) {
	if err := s.validateIssueRequest(req); err != nil {
		return nil, err
	}

	usesAllowed := req.UsesAllowed
	if usesAllowed == 0 {
		usesAllowed = 1
	}

	now := s.now().UTC()
	var expiresAt *time.Time
	if req.TTLDays > 0 {
		t := now.Add(time.Duration(req.TTLDays) * 24 * time.Hour)
		expiresAt = &t
	}

	var fixed *models.Prize
	if req.FixedPrize != nil {
		fixed = normalizeFixedPrize(*req.FixedPrize)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	codes := make([]*models.Code, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		code := &models.Code{
			UsesAllowed: usesAllowed,
			CreatedAt:   now,
			ExpiresAt:   expiresAt,
			FixedPrize:  fixed,
		}
		if err := s.insertCodeWithTx(ctx, tx, code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit issued codes: %w", err)
	}

	s.log.WithFields(map[string]interface{}{
		"count":        len(codes),
		"uses_allowed": usesAllowed,
		"fixed_prize":  fixed != nil,
	}).Info("Codes issued")

	s.invalidateStats(ctx)
	if s.publisher != nil {
		if err := s.publisher.PublishCodesIssued(codes); err != nil {
			s.log.WithError(err).Warn("Failed to publish codes issued event")
		}
	}

	return codes, nil
}

// insertCodeWithTx вставляет код, перегенерируя токен при коллизии.
func (s *CodeService) insertCodeWithTx(ctx context.Context, tx *sql.Tx, code *models.Code) error {
	query := `
		INSERT INTO codes (code, uses_allowed, uses_count, prize_label, prize_value, revoked, created_at, expires_at)
		VALUES ($1, $2, 0, $3, $4, FALSE, $5, $6)
		ON CONFLICT (code) DO NOTHING
		RETURNING id
	`

	var prizeLabel, prizeValue interface{}
	if code.FixedPrize != nil {
		prizeLabel = code.FixedPrize.Label
		prizeValue = code.FixedPrize.Value
	}

	for attempt := 1; attempt <= maxTokenAttempts; attempt++ {
		token := s.newToken()
		err := tx.QueryRowContext(ctx, query, token, code.UsesAllowed, prizeLabel, prizeValue, code.CreatedAt, code.ExpiresAt).Scan(&code.ID)
		if err == nil {
			code.Code = token
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to insert code: %w", err)
		}
		s.log.WithFields(map[string]interface{}{
			"token":   token,
			"attempt": attempt,
		}).Warn("Code token collision, regenerating")
	}

	return apperror.Conflict("could not generate a unique code", nil)
}

// MarkConsumedWithTx списывает одно использование, если код всё ещё доступен.
// Возвращает новое значение uses_count или ErrCodeUnavailable.
func (s *CodeService) MarkConsumedWithTx(ctx context.Context, tx *sql.Tx, codeID int64, now time.Time) (int, error) {
	query := `
		UPDATE codes
		SET uses_count = uses_count + 1
		WHERE id = $1
		  AND uses_count < uses_allowed
		  AND NOT revoked
		  AND (expires_at IS NULL OR expires_at >= $2)
		RETURNING uses_count
	`

	var usesCount int
	if err := tx.QueryRowContext(ctx, query, codeID, now).Scan(&usesCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrCodeUnavailable
		}
		return 0, fmt.Errorf("failed to consume code: %w", err)
	}
	return usesCount, nil
}

// RevokeCode помечает код отозванным. Возвращает число затронутых строк: 0 для
// отсутствующего или уже отозванного кода.
func (s *CodeService) RevokeCode(ctx context.Context, token string) (int64, error) {
	token = models.NormalizeCode(token)
	if token == "" {
		return 0, apperror.Validation("code is required", nil)
	}

	result, err := s.db.ExecContext(ctx, `UPDATE codes SET revoked = TRUE, revoked_at = $2 WHERE code = $1 AND NOT revoked`, token, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to revoke code: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.log.WithFields(map[string]interface{}{
		"code":     token,
		"affected": affected,
	}).Info("Code revoke requested")

	if affected > 0 {
		s.invalidateStats(ctx)
		if s.publisher != nil {
			if err := s.publisher.PublishCodeRevoked(token, affected); err != nil {
				s.log.WithError(err).WithField("code", token).Warn("Failed to publish code revoked event")
			}
		}
	}

	return affected, nil
}

// ListCodes возвращает последние выпущенные коды.
func (s *CodeService) ListCodes(ctx context.Context, limit int) ([]*models.Code, error) {
	limit = normalizeLimit(limit, s.listLimit)
	query := `SELECT ` + codeColumns + ` FROM codes ORDER BY id DESC LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list codes: %w", err)
	}
	defer rows.Close()

	codes := make([]*models.Code, 0)
	for rows.Next() {
		code, err := scanCode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan code: %w", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate codes: %w", err)
	}

	return codes, nil
}

func (s *CodeService) validateIssueRequest(req *models.IssueCodesRequest) error {
	if req == nil {
		return apperror.Validation("request is required", nil)
	}
	if req.Count < 1 || req.Count > s.maxIssue {
		return apperror.Validation(fmt.Sprintf("count must be between 1 and %d", s.maxIssue), nil)
	}
	if req.UsesAllowed < 0 {
		return apperror.Validation("uses_allowed must be positive", nil)
	}
	if req.FixedPrize != nil && req.FixedPrize.Value < 0 {
		return apperror.Validation("prize value must be non-negative", nil)
	}
	return nil
}

func (s *CodeService) invalidateStats(ctx context.Context) {
	if s.stats == nil {
		return
	}
	if err := s.stats.InvalidateCache(ctx); err != nil {
		s.log.WithError(err).Warn("Failed to invalidate stats cache")
	}
}

func normalizeFixedPrize(p models.Prize) *models.Prize {
	p.Value = roundMoney(p.Value)
	p.Label = strings.TrimSpace(p.Label)
	if p.Label == "" {
		p.Label = FormatPrizeLabel(p.Value)
	}
	return &p
}

func normalizeLimit(limit, defaultLimit int) int {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCode(row rowScanner) (*models.Code, error) {
	var (
		code       models.Code
		prizeLabel sql.NullString
		prizeValue sql.NullFloat64
	)

	if err := row.Scan(
		&code.ID, &code.Code, &code.UsesAllowed, &code.UsesCount,
		&prizeLabel, &prizeValue, &code.Revoked, &code.RevokedAt,
		&code.CreatedAt, &code.ExpiresAt,
	); err != nil {
		return nil, err
	}

	if prizeValue.Valid {
		code.FixedPrize = &models.Prize{Label: prizeLabel.String, Value: prizeValue.Float64}
	}
	return &code, nil
}
