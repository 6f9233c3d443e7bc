package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"treasure-chest/internal/config"
	"treasure-chest/internal/models"
)

type stubStatsService struct {
	stats      *models.RedemptionStats
	err        error
	lastFilter *models.StatsFilter
}

func (s *stubStatsService) GetStats(ctx context.Context, filter *models.StatsFilter) (*models.RedemptionStats, error) {
	s.lastFilter = filter
	return s.stats, s.err
}

func newStatsHandlerAt(service StatsProvider, cfg *config.GameConfig, now time.Time) *StatsHandler {
	h := NewStatsHandler(service, newTestLogger(), cfg)
	h.now = func() time.Time { return now }
	return h
}

func TestStatsHandler_GetStats_JSON(t *testing.T) {
	stats := &models.RedemptionStats{
		From:          time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		To:            time.Date(2025, 1, 2, 23, 59, 59, 0, time.UTC),
		Redemptions:   5,
		TotalValue:    7.5,
		UniquePlayers: 4,
		Prizes:        []models.PrizeStat{{Label: "R$0,50", Count: 3, Value: 1.5}},
	}
	service := &stubStatsService{stats: stats}
	h := newStatsHandlerAt(service, &config.GameConfig{StatsMaxRangeDays: 30}, time.Now())

	req := httptest.NewRequest(http.MethodGet, "/admin/stats?from=2025-01-01&to=2025-01-02&group_by=DAY", nil)
	rr := httptest.NewRecorder()
	h.GetStats(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp models.RedemptionStats
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Redemptions != 5 || resp.TotalValue != 7.5 {
		t.Fatalf("unexpected stats response: %+v", resp)
	}

	f := service.lastFilter
	if f.GroupBy != models.StatsGroupDay || !f.From.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) || f.To.Day() != 2 || f.To.Hour() != 23 {
		t.Fatalf("unexpected filter: %+v", f)
	}
}

func TestStatsHandler_GetStats_CSV(t *testing.T) {
	stats := &models.RedemptionStats{
		Redemptions: 2,
		Prizes:      []models.PrizeStat{{Label: "R$10,00", Count: 1, Value: 10}},
		Periods:     []models.StatsPeriod{{Period: "2025-01-01", Redemptions: 2, TotalValue: 10.5}},
		Codes:       models.CodeCounters{Issued: 4, Active: 2},
	}
	h := newStatsHandlerAt(&stubStatsService{stats: stats}, nil, time.Now())

	req := httptest.NewRequest(http.MethodGet, "/admin/stats?format=csv", nil)
	rr := httptest.NewRecorder()
	h.GetStats(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "text/csv") {
		t.Fatalf("expected text/csv content type, got %s", ct)
	}
	body := rr.Body.String()
	for _, want := range []string{"prize_label", "R$10,00", "2025-01-01", "codes,4,2"} {
		if !strings.Contains(body, want) {
			t.Fatalf("CSV body missing %q: %s", want, body)
		}
	}
}

func TestStatsHandler_DefaultRange(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	service := &stubStatsService{stats: &models.RedemptionStats{}}
	h := newStatsHandlerAt(service, nil, now)

	rr := httptest.NewRecorder()
	h.GetStats(rr, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	f := service.lastFilter
	if !f.From.Equal(time.Date(2025, 2, 9, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected 30-day default window, got from=%s", f.From)
	}
	if f.GroupBy != models.StatsGroupNone {
		t.Fatalf("expected no grouping by default, got %s", f.GroupBy)
	}
}

func TestStatsHandler_BadRequests(t *testing.T) {
	h := newStatsHandlerAt(&stubStatsService{}, &config.GameConfig{StatsMaxRangeDays: 7}, time.Now())

	urls := []string{
		"/admin/stats?from=2024-01-01&to=2024-02-01",
		"/admin/stats?from=2024-02-01&to=2024-01-01",
		"/admin/stats?from=01-01-2024",
		"/admin/stats?to=tomorrow",
		"/admin/stats?group_by=year",
		"/admin/stats?format=xml",
	}
	for _, url := range urls {
		rr := httptest.NewRecorder()
		h.GetStats(rr, httptest.NewRequest(http.MethodGet, url, nil))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", url, rr.Code)
		}
	}
}

func TestStatsHandler_ServiceError(t *testing.T) {
	h := newStatsHandlerAt(&stubStatsService{err: errors.New("db down")}, nil, time.Now())
	rr := httptest.NewRecorder()
	h.GetStats(rr, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
}
