package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/attaboy/walletcore/internal/domain"
)

func TestUnitOfWorkError(t *testing.T) {
	assert.NoError(t, unitOfWorkError(nil))

	busy := fmt.Errorf("lock wallet: %w", &pgconn.PgError{Code: lockNotAvailable, Message: "canceling statement due to lock timeout"})
	err := unitOfWorkError(busy)
	assert.True(t, domain.HasCode(err, domain.CodeConflict), "got %v", err)

	other := errors.New("connection reset by peer")
	err = unitOfWorkError(other)
	assert.ErrorIs(t, err, other)
	assert.Nil(t, domain.AsAppError(err))
}
