package models

import "time"

// RedemptionRecord запись журнала выигрышей. Создаётся один раз на успешную игру.
type RedemptionRecord struct {
	ID         int64     `json:"id" db:"id"`
	CodeID     int64     `json:"code_id" db:"code_id"`
	Code       string    `json:"code" db:"code"`
	Player     string    `json:"player" db:"player"`
	PrizeLabel string    `json:"prize_label" db:"prize_label"`
	PrizeValue float64   `json:"prize_value" db:"prize_value"`
	ChestIndex *int      `json:"chest_index,omitempty" db:"chest_index"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
