package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"treasure-chest/internal/config"
	"treasure-chest/internal/database"
	"treasure-chest/internal/logger"
	"treasure-chest/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
)

func newTestLogger() *logger.Logger {
	return logger.New(&config.LoggerConfig{
		Level:  "debug",
		Format: "json",
	})
}

func newMockDB(t *testing.T) (*database.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	return &database.DB{DB: db}, mock
}

var codeRowColumns = []string{"id", "code", "uses_allowed", "uses_count", "prize_label", "prize_value", "revoked", "revoked_at", "created_at", "expires_at"}

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// codeRows строит строку таблицы codes без фиксированного приза.
func codeRows(id int64, token string, allowed, used int, revoked bool, expiresAt *time.Time) *sqlmock.Rows {
	var exp interface{}
	if expiresAt != nil {
		exp = *expiresAt
	}
	return sqlmock.NewRows(codeRowColumns).
		AddRow(id, token, allowed, used, nil, nil, revoked, nil, testNow.Add(-time.Hour), exp)
}

type fakePublisher struct {
	issued   [][]*models.Code
	revoked  []string
	redeemed []*models.CodeRedeemedData
	err      error
}

func (f *fakePublisher) PublishCodesIssued(codes []*models.Code) error {
	f.issued = append(f.issued, codes)
	return f.err
}

func (f *fakePublisher) PublishCodeRevoked(code string, affected int64) error {
	f.revoked = append(f.revoked, code)
	return f.err
}

func (f *fakePublisher) PublishCodeRedeemed(data *models.CodeRedeemedData) error {
	f.redeemed = append(f.redeemed, data)
	return f.err
}

type fakeStats struct {
	calls int
	err   error
}

func (f *fakeStats) InvalidateCache(ctx context.Context) error {
	f.calls++
	return f.err
}

var errBoom = errors.New("boom")

// tokenSequence возвращает генератор, выдающий токены по порядку.
func tokenSequence(tokens ...string) func() string {
	i := 0
	return func() string {
		tok := tokens[i%len(tokens)]
		i++
		return tok
	}
}
