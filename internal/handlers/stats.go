package handlers

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"treasure-chest/internal/config"
	"treasure-chest/internal/logger"
	"treasure-chest/internal/models"
)

const (
	defaultStatsRangeDays = 30
	defaultStatsMaxRange  = 365
)

// StatsHandler отдает статистику выигрышей.
type StatsHandler struct {
	service StatsProvider
	log     *logger.Logger
	cfg     *config.GameConfig
	now     func() time.Time
}

// NewStatsHandler создает обработчик статистики.
func NewStatsHandler(service StatsProvider, log *logger.Logger, cfg *config.GameConfig) *StatsHandler {
	return &StatsHandler{
		service: service,
		log:     log,
		cfg:     cfg,
		now:     time.Now,
	}
}

// GetStats возвращает статистику с возможностью экспорта в CSV.
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	filter, format, err := parseStatsFilter(r, h.cfg, h.now().UTC())
	if err != nil {
		writeKindErrorResponse(w, http.StatusBadRequest, err.Error(), "validation")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout(h.cfg))
	defer cancel()

	stats, err := h.service.GetStats(ctx, filter)
	if err != nil {
		h.log.WithError(err).Error("Failed to load redemption stats")
		writeErrorResponse(w, http.StatusInternalServerError, "Failed to load stats")
		return
	}

	if format == "csv" {
		if err := writeStatsCSV(w, stats); err != nil {
			h.log.WithError(err).Warn("Failed to stream stats CSV")
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, stats)
}

func parseStatsFilter(r *http.Request, cfg *config.GameConfig, now time.Time) (*models.StatsFilter, string, error) {
	query := r.URL.Query()

	maxRangeDays := defaultStatsMaxRange
	if cfg != nil && cfg.StatsMaxRangeDays > 0 {
		maxRangeDays = cfg.StatsMaxRangeDays
	}

	to := endOfDay(now)
	if toParam := query.Get("to"); toParam != "" {
		parsed, err := time.Parse("2006-01-02", toParam)
		if err != nil {
			return nil, "", fmt.Errorf("invalid 'to' date, expected YYYY-MM-DD")
		}
		to = endOfDay(parsed)
	}

	defaultDays := defaultStatsRangeDays
	if defaultDays > maxRangeDays {
		defaultDays = maxRangeDays
	}
	from := startOfDay(to.AddDate(0, 0, -defaultDays+1))
	if fromParam := query.Get("from"); fromParam != "" {
		parsed, err := time.Parse("2006-01-02", fromParam)
		if err != nil {
			return nil, "", fmt.Errorf("invalid 'from' date, expected YYYY-MM-DD")
		}
		from = startOfDay(parsed)
	}

	if from.After(to) {
		return nil, "", fmt.Errorf("'from' date must be before 'to' date")
	}

	minAllowedFrom := startOfDay(to.AddDate(0, 0, -maxRangeDays+1))
	if from.Before(minAllowedFrom) {
		return nil, "", fmt.Errorf("date range too wide, max %d days", maxRangeDays)
	}

	groupBy := models.StatsGroupBy(strings.ToLower(query.Get("group_by")))
	switch groupBy {
	case "":
		groupBy = models.StatsGroupNone
	case models.StatsGroupNone, models.StatsGroupDay, models.StatsGroupWeek, models.StatsGroupMonth:
	default:
		return nil, "", fmt.Errorf("group_by must be one of: day, week, month, none")
	}

	format := strings.ToLower(query.Get("format"))
	if format != "" && format != "json" && format != "csv" {
		return nil, "", fmt.Errorf("format must be json or csv")
	}

	return &models.StatsFilter{From: from, To: to, GroupBy: groupBy}, format, nil
}

func writeStatsCSV(w http.ResponseWriter, stats *models.RedemptionStats) error {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=redemptions.csv")
	w.WriteHeader(http.StatusOK)

	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"section", "period", "redemptions", "total_value", "unique_players"})
	rangeLabel := fmt.Sprintf("%s..%s", stats.From.Format("2006-01-02"), stats.To.Format("2006-01-02"))
	_ = writer.Write([]string{"summary", rangeLabel, strconv.Itoa(stats.Redemptions), fmt.Sprintf("%.2f", stats.TotalValue), strconv.Itoa(stats.UniquePlayers)})

	for _, period := range stats.Periods {
		_ = writer.Write([]string{"period", period.Period, strconv.Itoa(period.Redemptions), fmt.Sprintf("%.2f", period.TotalValue), ""})
	}

	_ = writer.Write([]string{})
	_ = writer.Write([]string{"section", "prize_label", "awarded", "total_value"})
	for _, prize := range stats.Prizes {
		_ = writer.Write([]string{"prize", prize.Label, strconv.Itoa(prize.Count), fmt.Sprintf("%.2f", prize.Value)})
	}

	_ = writer.Write([]string{})
	_ = writer.Write([]string{"section", "issued", "active", "exhausted", "revoked", "expired"})
	c := stats.Codes
	_ = writer.Write([]string{"codes", strconv.Itoa(c.Issued), strconv.Itoa(c.Active), strconv.Itoa(c.Exhausted), strconv.Itoa(c.Revoked), strconv.Itoa(c.Expired)})

	writer.Flush()
	return writer.Error()
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Millisecond*999), time.UTC)
}
