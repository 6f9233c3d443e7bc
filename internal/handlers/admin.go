package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"treasure-chest/internal/config"
	"treasure-chest/internal/logger"
	"treasure-chest/internal/models"
)

const legacyDefaultTTLDays = 30

// AdminHandler обрабатывает административные эндпоинты кодов и журнала.
type AdminHandler struct {
	codes   CodeAdmin
	logs    RedemptionLister
	log     *logger.Logger
	timeout time.Duration
}

// NewAdminHandler создает административный обработчик.
func NewAdminHandler(codes CodeAdmin, logs RedemptionLister, log *logger.Logger, cfg *config.GameConfig) *AdminHandler {
	return &AdminHandler{
		codes:   codes,
		logs:    logs,
		log:     log,
		timeout: requestTimeout(cfg),
	}
}

type issueResponse struct {
	Codes []*models.Code `json:"codes"`
	Count int            `json:"count"`
}

// legacyGenerateRequest формат старого /admin/generate.
type legacyGenerateRequest struct {
	Count         int      `json:"count"`
	UsesAllowed   int      `json:"uses_allowed"`
	ExpiresInDays *int     `json:"expires_in_days"`
	PrizeLabel    string   `json:"prize_label"`
	PrizeValue    *float64 `json:"prize_value"`
}

func (l *legacyGenerateRequest) normalize() *models.IssueCodesRequest {
	req := &models.IssueCodesRequest{
		Count:       l.Count,
		UsesAllowed: l.UsesAllowed,
		TTLDays:     legacyDefaultTTLDays,
	}
	if req.Count == 0 {
		req.Count = 1
	}
	if l.ExpiresInDays != nil {
		req.TTLDays = *l.ExpiresInDays
	}
	if l.PrizeValue != nil {
		req.FixedPrize = &models.Prize{Label: l.PrizeLabel, Value: *l.PrizeValue}
	}
	return req
}

type revokeResponse struct {
	OK       bool  `json:"ok"`
	Affected int64 `json:"affected"`
}

// Codes обслуживает /admin/codes: GET список, POST выпуск.
func (h *AdminHandler) Codes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.ListCodes(w, r)
	case http.MethodPost:
		h.IssueCodes(w, r)
	default:
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// IssueCodes выпускает партию кодов.
func (h *AdminHandler) IssueCodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.IssueCodesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	codes, ok := h.issue(w, r, &req)
	if !ok {
		return
	}

	writeJSONResponse(w, http.StatusCreated, issueResponse{Codes: codes, Count: len(codes)})
}

// GenerateLegacy выпускает коды в формате старого клиента.
func (h *AdminHandler) GenerateLegacy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var legacy legacyGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&legacy); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	codes, ok := h.issue(w, r, legacy.normalize())
	if !ok {
		return
	}

	inserted := make([]string, 0, len(codes))
	for _, code := range codes {
		inserted = append(inserted, code.Code)
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"inserted": inserted,
		"count":    len(inserted),
	})
}

func (h *AdminHandler) issue(w http.ResponseWriter, r *http.Request, req *models.IssueCodesRequest) ([]*models.Code, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	codes, err := h.codes.IssueCodes(ctx, req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to issue codes")
		return nil, false
	}
	return codes, true
}

// Revoke отзывает код. Отсутствующий код не ошибка: affected = 0.
func (h *AdminHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.RevokeCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	affected, err := h.codes.RevokeCode(ctx, req.Code)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to revoke code")
		return
	}

	writeJSONResponse(w, http.StatusOK, revokeResponse{OK: true, Affected: affected})
}

// ListCodes возвращает последние коды.
func (h *AdminHandler) ListCodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	codes, err := h.codes.ListCodes(ctx, parseLimit(r))
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to list codes")
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{"codes": codes})
}

// Logs возвращает последние записи журнала выигрышей.
func (h *AdminHandler) Logs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	logs, err := h.logs.ListRedemptions(ctx, parseLimit(r))
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to list redemptions")
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{"logs": logs})
}
