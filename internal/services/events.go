package services

import (
	"context"

	"treasure-chest/internal/models"
)

// EventPublisher публикует доменные события после фиксации транзакции.
type EventPublisher interface {
	PublishCodesIssued(codes []*models.Code) error
	PublishCodeRevoked(code string, affected int64) error
	PublishCodeRedeemed(data *models.CodeRedeemedData) error
}

// StatsInvalidator сбрасывает кеш статистики после изменения данных.
type StatsInvalidator interface {
	InvalidateCache(ctx context.Context) error
}
