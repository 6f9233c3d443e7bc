package services

import (
	"context"
	"fmt"
	"time"

	"treasure-chest/internal/config"
	"treasure-chest/internal/database"
	"treasure-chest/internal/logger"
	"treasure-chest/internal/models"
	"treasure-chest/internal/redis"
)

const defaultStatsCacheTTL = 5 * time.Minute

// StatsService агрегирует статистику выигрышей и кеширует её в Redis.
type StatsService struct {
	db       *database.DB
	cache    statsCache
	log      *logger.Logger
	cacheTTL time.Duration
	now      func() time.Time
}

type statsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// NewStatsService создает сервис статистики. redisClient может быть nil: тогда кеш не используется.
func NewStatsService(db *database.DB, redisClient *redis.Client, log *logger.Logger, cfg *config.GameConfig) *StatsService {
	cacheTTL := defaultStatsCacheTTL
	if cfg != nil && cfg.StatsCacheTTLMinutes > 0 {
		cacheTTL = time.Duration(cfg.StatsCacheTTLMinutes) * time.Minute
	}

	s := &StatsService{
		db:       db,
		log:      log,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
	if redisClient != nil {
		s.cache = redisClient
	}
	return s
}

// GetStats возвращает сводку за период с опциональной группировкой.
func (s *StatsService) GetStats(ctx context.Context, filter *models.StatsFilter) (*models.RedemptionStats, error) {
	if filter.GroupBy == "" {
		filter.GroupBy = models.StatsGroupNone
	}
	cacheKey := s.buildCacheKey(filter)

	var cached models.RedemptionStats
	if s.tryGetFromCache(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	result := &models.RedemptionStats{
		From:        filter.From,
		To:          filter.To,
		GeneratedAt: s.now().UTC(),
		GroupBy:     string(filter.GroupBy),
	}

	if err := s.fetchSummary(ctx, filter, result); err != nil {
		return nil, err
	}

	prizes, err := s.fetchPrizes(ctx, filter)
	if err != nil {
		return nil, err
	}
	result.Prizes = prizes

	periods, err := s.fetchPeriods(ctx, filter)
	if err != nil {
		return nil, err
	}
	result.Periods = periods

	counters, err := s.fetchCodeCounters(ctx, result.GeneratedAt)
	if err != nil {
		return nil, err
	}
	result.Codes = *counters

	s.saveToCache(ctx, cacheKey, result)
	return result, nil
}

// InvalidateCache удаляет все закешированные отчёты.
func (s *StatsService) InvalidateCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.DeleteByPrefix(ctx, redis.KeyPrefixStats+":")
}

func (s *StatsService) fetchSummary(ctx context.Context, filter *models.StatsFilter, dest *models.RedemptionStats) error {
	query := `
		SELECT COUNT(*) AS redemptions,
		       COALESCE(SUM(prize_value), 0) AS total_value,
		       COUNT(DISTINCT player) AS unique_players
		FROM redemption_log
		WHERE created_at BETWEEN $1 AND $2
	`

	if err := s.db.QueryRowContext(ctx, query, filter.From, filter.To).Scan(&dest.Redemptions, &dest.TotalValue, &dest.UniquePlayers); err != nil {
		return fmt.Errorf("failed to load stats summary: %w", err)
	}
	return nil
}

func (s *StatsService) fetchPrizes(ctx context.Context, filter *models.StatsFilter) ([]models.PrizeStat, error) {
	query := `
		SELECT prize_label,
		       COUNT(*) AS awarded,
		       COALESCE(SUM(prize_value), 0) AS total_value
		FROM redemption_log
		WHERE created_at BETWEEN $1 AND $2
		GROUP BY prize_label
		ORDER BY awarded DESC, prize_label ASC
	`

	rows, err := s.db.QueryContext(ctx, query, filter.From, filter.To)
	if err != nil {
		return nil, fmt.Errorf("failed to load prize stats: %w", err)
	}
	defer rows.Close()

	result := make([]models.PrizeStat, 0)
	for rows.Next() {
		var item models.PrizeStat
		if err := rows.Scan(&item.Label, &item.Count, &item.Value); err != nil {
			return nil, fmt.Errorf("failed to scan prize stat: %w", err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate prize stats: %w", err)
	}

	return result, nil
}

func (s *StatsService) fetchPeriods(ctx context.Context, filter *models.StatsFilter) ([]models.StatsPeriod, error) {
	if filter.GroupBy == models.StatsGroupNone {
		return nil, nil
	}

	periodExpr := "date_trunc('day', created_at)"
	switch filter.GroupBy {
	case models.StatsGroupWeek:
		periodExpr = "date_trunc('week', created_at)"
	case models.StatsGroupMonth:
		periodExpr = "date_trunc('month', created_at)"
	}

	query := fmt.Sprintf(`
		SELECT %[1]s AS period,
		       COUNT(*) AS redemptions,
		       COALESCE(SUM(prize_value), 0) AS total_value
		FROM redemption_log
		WHERE created_at BETWEEN $1 AND $2
		GROUP BY period
		ORDER BY period ASC
	`, periodExpr)

	rows, err := s.db.QueryContext(ctx, query, filter.From, filter.To)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats periods: %w", err)
	}
	defer rows.Close()

	var result []models.StatsPeriod
	for rows.Next() {
		var (
			periodTime time.Time
			item       models.StatsPeriod
		)
		if err := rows.Scan(&periodTime, &item.Redemptions, &item.TotalValue); err != nil {
			return nil, fmt.Errorf("failed to scan stats period: %w", err)
		}
		item.Period = formatPeriod(periodTime, filter.GroupBy)
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stats periods: %w", err)
	}

	return result, nil
}

// fetchCodeCounters раскладывает коды по состояниям в том же порядке, что и проверка кода.
func (s *StatsService) fetchCodeCounters(ctx context.Context, now time.Time) (*models.CodeCounters, error) {
	query := `
		SELECT COUNT(*) AS issued,
		       COUNT(*) FILTER (WHERE NOT revoked AND (expires_at IS NULL OR expires_at >= $1) AND uses_count < uses_allowed) AS active,
		       COUNT(*) FILTER (WHERE NOT revoked AND (expires_at IS NULL OR expires_at >= $1) AND uses_count >= uses_allowed) AS exhausted,
		       COUNT(*) FILTER (WHERE revoked) AS revoked,
		       COUNT(*) FILTER (WHERE NOT revoked AND expires_at < $1) AS expired
		FROM codes
	`

	counters := &models.CodeCounters{}
	if err := s.db.QueryRowContext(ctx, query, now).Scan(
		&counters.Issued, &counters.Active, &counters.Exhausted, &counters.Revoked, &counters.Expired,
	); err != nil {
		return nil, fmt.Errorf("failed to load code counters: %w", err)
	}
	return counters, nil
}

func (s *StatsService) buildCacheKey(filter *models.StatsFilter) string {
	return redis.GenerateKey(redis.KeyPrefixStats, fmt.Sprintf(
		"redemptions:%s:%s:%s",
		filter.From.Format("2006-01-02"),
		filter.To.Format("2006-01-02"),
		filter.GroupBy,
	))
}

func (s *StatsService) tryGetFromCache(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	return s.cache.Get(ctx, key, dest) == nil
}

func (s *StatsService) saveToCache(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.cacheTTL); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("Failed to cache stats result")
	}
}

func formatPeriod(period time.Time, groupBy models.StatsGroupBy) string {
	switch groupBy {
	case models.StatsGroupMonth:
		return period.Format("2006-01")
	default:
		return period.Format("2006-01-02") // для недели это её начало
	}
}
