package handlers

import (
	"context"

	"treasure-chest/internal/models"
)

// ----- Game -----

type GameProvider interface {
	CheckEligibility(ctx context.Context, code string) (*models.Eligibility, error)
	Play(ctx context.Context, req *models.PlayRequest) (*models.PrizeAward, error)
}

// ----- Admin -----

type CodeAdmin interface {
	IssueCodes(ctx context.Context, req *models.IssueCodesRequest) ([]*models.Code, error)
	RevokeCode(ctx context.Context, code string) (int64, error)
	ListCodes(ctx context.Context, limit int) ([]*models.Code, error)
}

type RedemptionLister interface {
	ListRedemptions(ctx context.Context, limit int) ([]*models.RedemptionRecord, error)
}

// ----- Stats -----

type StatsProvider interface {
	GetStats(ctx context.Context, filter *models.StatsFilter) (*models.RedemptionStats, error)
}

// ----- Health -----

type DBHealth interface {
	Health() error
}

type RedisHealth interface {
	Health(ctx context.Context) error
}
