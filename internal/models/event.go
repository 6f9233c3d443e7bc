package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType тип доменного события.
type EventType string

const (
	EventTypeCodesIssued  EventType = "code.issued"
	EventTypeCodeRevoked  EventType = "code.revoked"
	EventTypeCodeRedeemed EventType = "code.redeemed"
)

// Event конверт события, публикуемого в Kafka.
type Event struct {
	ID        uuid.UUID   `json:"id"`
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// CodesIssuedData данные события выпуска кодов.
type CodesIssuedData struct {
	Codes []string `json:"codes"`
	Count int      `json:"count"`
}

// CodeRevokedData данные события отзыва кода.
type CodeRevokedData struct {
	Code     string `json:"code"`
	Affected int64  `json:"affected"`
}

// CodeRedeemedData данные события выигрыша.
type CodeRedeemedData struct {
	Code         string `json:"code"`
	Player       string `json:"player"`
	Prize        Prize  `json:"prize"`
	ChestIndex   *int   `json:"chest_index,omitempty"`
	RedemptionID int64  `json:"redemption_id"`
	Remaining    int    `json:"remaining"`
}
