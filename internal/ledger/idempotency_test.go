package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockIdempotencyStore is a mock implementation of IdempotencyStore
type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) IdempotencyExists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func TestIdempotencyGuard_Reserved(t *testing.T) {
	ctx := context.Background()
	store := new(MockIdempotencyStore)
	store.On("IdempotencyExists", ctx, "k1").Return(false, nil)

	res, err := NewIdempotencyGuard(store).CheckAndReserve(ctx, "k1")

	require.NoError(t, err)
	assert.Equal(t, Reserved, res)
	store.AssertExpectations(t)
}

func TestIdempotencyGuard_Duplicate(t *testing.T) {
	ctx := context.Background()
	store := new(MockIdempotencyStore)
	store.On("IdempotencyExists", ctx, "k1").Return(true, nil)

	res, err := NewIdempotencyGuard(store).CheckAndReserve(ctx, "k1")

	require.NoError(t, err)
	assert.Equal(t, Duplicate, res)
}

func TestIdempotencyGuard_EmptyKey(t *testing.T) {
	store := new(MockIdempotencyStore)

	_, err := NewIdempotencyGuard(store).CheckAndReserve(context.Background(), "  ")

	assert.ErrorIs(t, err, ErrInvalidInput)
	store.AssertNotCalled(t, "IdempotencyExists", mock.Anything, mock.Anything)
}

func TestIdempotencyGuard_StoreFailure(t *testing.T) {
	ctx := context.Background()
	store := new(MockIdempotencyStore)
	cause := errors.New("db down")
	store.On("IdempotencyExists", ctx, "k1").Return(false, cause)

	_, err := NewIdempotencyGuard(store).CheckAndReserve(ctx, "k1")

	assert.ErrorIs(t, err, ErrPersistenceFailure)
	assert.ErrorIs(t, err, cause)
}

func TestReservation_String(t *testing.T) {
	assert.Equal(t, "reserved", Reserved.String())
	assert.Equal(t, "duplicate", Duplicate.String())
}
