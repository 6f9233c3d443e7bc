package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"treasure-chest/internal/apperror"
	"treasure-chest/internal/config"
	"treasure-chest/internal/logger"
	"treasure-chest/internal/models"
)

const defaultRequestTimeout = 5 * time.Second

// GameHandler обрабатывает публичные эндпоинты игры.
type GameHandler struct {
	game    GameProvider
	log     *logger.Logger
	timeout time.Duration
}

// NewGameHandler создает обработчик игры.
func NewGameHandler(game GameProvider, log *logger.Logger, cfg *config.GameConfig) *GameHandler {
	return &GameHandler{
		game:    game,
		log:     log,
		timeout: requestTimeout(cfg),
	}
}

// redeemResponse ответ проверки кода без списания.
type redeemResponse struct {
	OK        bool   `json:"ok"`
	Code      string `json:"code"`
	Remaining int    `json:"remaining"`
}

// playRequest принимает и текущие поля, и старые username/chestIndex.
type playRequest struct {
	Code             string          `json:"code"`
	Player           string          `json:"player"`
	Username         string          `json:"username"`
	ChestIndex       *int            `json:"chest_index"`
	LegacyChestIndex json.RawMessage `json:"chestIndex"`
}

// normalize сводит старые поля к текущим. Старый клиент шлёт chestIndex строкой ("2").
func (p *playRequest) normalize() (*models.PlayRequest, error) {
	req := &models.PlayRequest{
		Code:       p.Code,
		Player:     p.Player,
		ChestIndex: p.ChestIndex,
	}
	if req.Player == "" {
		req.Player = p.Username
	}
	if req.ChestIndex == nil {
		idx, err := parseLegacyIndex(p.LegacyChestIndex)
		if err != nil {
			return nil, err
		}
		req.ChestIndex = idx
	}
	return req, nil
}

// parseLegacyIndex принимает число или числовую строку; null и "" означают отсутствие индекса.
func parseLegacyIndex(raw json.RawMessage) (*int, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return nil, nil
	}
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, apperror.Validation("chestIndex must be a number", err)
		}
		text = strings.TrimSpace(s)
		if text == "" {
			return nil, nil
		}
	}
	idx, err := strconv.Atoi(text)
	if err != nil {
		return nil, apperror.Validation("chestIndex must be a number", err)
	}
	return &idx, nil
}

// Redeem проверяет код, не списывая использование.
func (h *GameHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.game.CheckEligibility(ctx, req.Code)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to check code")
		return
	}

	writeJSONResponse(w, http.StatusOK, redeemResponse{OK: true, Code: res.Code, Remaining: res.Remaining})
}

// Play списывает использование кода и открывает сундук.
func (h *GameHandler) Play(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var raw playRequest
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req, err := raw.normalize()
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to play")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	award, err := h.game.Play(ctx, req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to play")
		return
	}

	writeJSONResponse(w, http.StatusOK, award)
}

func requestTimeout(cfg *config.GameConfig) time.Duration {
	if cfg != nil && cfg.RequestTimeoutSeconds > 0 {
		return time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	}
	return defaultRequestTimeout
}
