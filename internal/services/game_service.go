package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"treasure-chest/internal/apperror"
	"treasure-chest/internal/config"
	"treasure-chest/internal/database"
	"treasure-chest/internal/logger"
	"treasure-chest/internal/models"
)

const (
	defaultChestCount   = 6
	maxPlayerNameLength = 64
	prizeRevealMessage  = "Prêmio revelado"
)

// ErrRaceLost код исчерпан конкурентной игрой между проверкой и списанием.
var ErrRaceLost = errors.New("redemption race lost")

// GameService проверяет коды и проводит игру: списание и запись в журнал в одной транзакции.
type GameService struct {
	db         *database.DB
	codes      *CodeService
	selector   *PrizeSelector
	audit      *AuditLog
	publisher  EventPublisher
	stats      StatsInvalidator
	log        *logger.Logger
	chestCount int
	now        func() time.Time
}

// NewGameService создаёт сервис игры. publisher и stats могут быть nil.
func NewGameService(db *database.DB, codes *CodeService, selector *PrizeSelector, audit *AuditLog, publisher EventPublisher, stats StatsInvalidator, log *logger.Logger, cfg *config.GameConfig) *GameService {
	chestCount := defaultChestCount
	if cfg != nil && cfg.ChestCount > 0 {
		chestCount = cfg.ChestCount
	}

	return &GameService{
		db:         db,
		codes:      codes,
		selector:   selector,
		audit:      audit,
		publisher:  publisher,
		stats:      stats,
		log:        log,
		chestCount: chestCount,
		now:        time.Now,
	}
}

// CheckEligibility проверяет код без списания.
func (s *GameService) CheckEligibility(ctx context.Context, token string) (*models.Eligibility, error) {
	token = models.NormalizeCode(token)
	if token == "" {
		return nil, apperror.Validation("code is required", nil)
	}

	code, err := s.codes.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := checkRedeemable(code, s.now()); err != nil {
		return nil, err
	}

	return &models.Eligibility{Code: code.Code, Remaining: code.Remaining()}, nil
}

// Play списывает одно использование кода, выбирает приз и пишет журнал.
func (s *GameService) Play(ctx context.Context, req *models.PlayRequest) (*models.PrizeAward, error) {
	token, player, err := s.validatePlayRequest(req)
	if err != nil {
		return nil, err
	}

	code, err := s.codes.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := checkRedeemable(code, now); err != nil {
		return nil, err
	}

	prize := s.selector.Select(code)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	usesCount, err := s.codes.MarkConsumedWithTx(ctx, tx, code.ID, now)
	if err != nil {
		if errors.Is(err, ErrCodeUnavailable) {
			return nil, s.classifyUnavailable(ctx, tx, code.ID, now)
		}
		return nil, err
	}

	record := &models.RedemptionRecord{
		CodeID:     code.ID,
		Code:       code.Code,
		Player:     player,
		PrizeLabel: prize.Label,
		PrizeValue: prize.Value,
		ChestIndex: req.ChestIndex,
		CreatedAt:  now.UTC(),
	}
	if err := s.audit.AppendWithTx(ctx, tx, record); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit redemption: %w", err)
	}

	remaining := code.UsesAllowed - usesCount
	if remaining < 0 {
		remaining = 0
	}

	s.log.WithFields(map[string]interface{}{
		"code":          code.Code,
		"player":        player,
		"prize":         prize.Label,
		"remaining":     remaining,
		"redemption_id": record.ID,
	}).Info("Prize awarded")

	s.afterRedeem(ctx, record, prize, remaining)

	return &models.PrizeAward{
		Prize:        prize,
		Code:         code.Code,
		Remaining:    remaining,
		ChestIndex:   req.ChestIndex,
		RedemptionID: record.ID,
		Message:      prizeRevealMessage,
	}, nil
}

// classifyUnavailable объясняет, почему условное списание не затронуло строку.
// Код прошёл проверку до транзакции, поэтому исчерпание здесь означает проигранную гонку.
func (s *GameService) classifyUnavailable(ctx context.Context, tx *sql.Tx, codeID int64, now time.Time) error {
	code, err := s.codes.lookupByIDWithTx(ctx, tx, codeID)
	if err != nil {
		return err
	}
	switch {
	case code.Revoked:
		return apperror.Revoked("code has been revoked", nil)
	case code.IsExpired(now):
		return apperror.Expired("code has expired", nil)
	default:
		s.log.WithField("code", code.Code).Info("Redemption lost to a concurrent play")
		return apperror.Exhausted("code has no remaining uses", ErrRaceLost)
	}
}

// afterRedeem сбрасывает кеш статистики и публикует событие; ошибки только логируются.
func (s *GameService) afterRedeem(ctx context.Context, record *models.RedemptionRecord, prize models.Prize, remaining int) {
	if s.stats != nil {
		if err := s.stats.InvalidateCache(ctx); err != nil {
			s.log.WithError(err).Warn("Failed to invalidate stats cache")
		}
	}

	if s.publisher == nil {
		return
	}
	data := &models.CodeRedeemedData{
		Code:         record.Code,
		Player:       record.Player,
		Prize:        prize,
		ChestIndex:   record.ChestIndex,
		RedemptionID: record.ID,
		Remaining:    remaining,
	}
	if err := s.publisher.PublishCodeRedeemed(data); err != nil {
		s.log.WithError(err).WithField("code", record.Code).Warn("Failed to publish code redeemed event")
	}
}

func (s *GameService) validatePlayRequest(req *models.PlayRequest) (string, string, error) {
	if req == nil {
		return "", "", apperror.Validation("request is required", nil)
	}

	token := models.NormalizeCode(req.Code)
	if token == "" {
		return "", "", apperror.Validation("code is required", nil)
	}

	player := strings.TrimSpace(req.Player)
	if player == "" {
		return "", "", apperror.Validation("player is required", nil)
	}
	if utf8.RuneCountInString(player) > maxPlayerNameLength {
		return "", "", apperror.Validation(fmt.Sprintf("player must be at most %d characters", maxPlayerNameLength), nil)
	}

	if req.ChestIndex != nil && (*req.ChestIndex < 0 || *req.ChestIndex >= s.chestCount) {
		return "", "", apperror.Validation(fmt.Sprintf("chest_index must be between 0 and %d", s.chestCount-1), nil)
	}

	return token, player, nil
}

// checkRedeemable проверяет код в порядке: отозван, истёк, исчерпан.
func checkRedeemable(code *models.Code, now time.Time) error {
	switch {
	case code.Revoked:
		return apperror.Revoked("code has been revoked", nil)
	case code.IsExpired(now):
		return apperror.Expired("code has expired", nil)
	case code.Remaining() == 0:
		return apperror.Exhausted("code has no remaining uses", nil)
	}
	return nil
}
