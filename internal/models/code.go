package models

import (
	"strings"
	"time"
)

// Prize описывает приз: подпись и денежное значение.
type Prize struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// WeightedPrize описывает элемент пула призов с весом.
type WeightedPrize struct {
	Prize
	Weight int `json:"weight"`
}

// Code представляет выданный код погашения.
type Code struct {
	ID          int64      `json:"id" db:"id"`
	Code        string     `json:"code" db:"code"`
	UsesAllowed int        `json:"uses_allowed" db:"uses_allowed"`
	UsesCount   int        `json:"uses_count" db:"uses_count"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	FixedPrize  *Prize     `json:"fixed_prize,omitempty"`
	Revoked     bool       `json:"revoked" db:"revoked"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
}

// Remaining возвращает число оставшихся использований.
func (c *Code) Remaining() int {
	if c.UsesCount >= c.UsesAllowed {
		return 0
	}
	return c.UsesAllowed - c.UsesCount
}

// IsExpired сообщает, истёк ли код на момент now. Момент expires_at ещё считается действующим.
func (c *Code) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// NormalizeCode приводит введённый код к каноническому виду.
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// IssueCodesRequest описывает запрос на выпуск партии кодов.
type IssueCodesRequest struct {
	Count       int    `json:"count"`
	UsesAllowed int    `json:"uses_allowed,omitempty"` // 0 = 1
	TTLDays     int    `json:"ttl_days,omitempty"`     // 0 = бессрочно
	FixedPrize  *Prize `json:"fixed_prize,omitempty"`
}

// RevokeCodeRequest описывает запрос на отзыв кода.
type RevokeCodeRequest struct {
	Code string `json:"code"`
}

// RedeemRequest описывает проверку кода игроком.
type RedeemRequest struct {
	Code string `json:"code"`
}

// PlayRequest описывает попытку открыть сундук.
type PlayRequest struct {
	Code       string `json:"code"`
	Player     string `json:"player"`
	ChestIndex *int   `json:"chest_index,omitempty"`
}

// Eligibility результат проверки кода без погашения.
type Eligibility struct {
	Code      string `json:"code"`
	Remaining int    `json:"remaining"`
}

// PrizeAward результат успешной игры.
type PrizeAward struct {
	Prize        Prize  `json:"prize"`
	Code         string `json:"code"`
	Remaining    int    `json:"remaining"`
	ChestIndex   *int   `json:"chest_index,omitempty"`
	RedemptionID int64  `json:"redemption_id"`
	Message      string `json:"message"`
}
