package gateway

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closingClient struct {
	Client
	closed   int
	closeErr error
}

func (c *closingClient) Close() error {
	c.closed++
	return c.closeErr
}

func (c *closingClient) GetPayment(_ context.Context, id string) (*Payment, error) {
	return &Payment{ID: id}, nil
}

func TestRegistry_GetReturnsSameHandle(t *testing.T) {
	r := NewRegistry()
	client := &closingClient{}
	require.NoError(t, r.Register("tenant-a", client))

	first, err := r.Get("tenant-a")
	require.NoError(t, err)
	second, err := r.Get("tenant-a")
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = r.Get("tenant-b")
	assert.ErrorIs(t, err, ErrClientNotConfigured)
	assert.Contains(t, err.Error(), "tenant-b")
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("tenant-a", &closingClient{}))
	assert.Error(t, r.Register("tenant-a", &closingClient{}))
}

func TestRegistry_CloseTearsDownEveryClient(t *testing.T) {
	r := NewRegistry()
	a := &closingClient{}
	b := &closingClient{closeErr: errors.New("stuck")}
	require.NoError(t, r.Register("tenant-a", a))
	require.NoError(t, r.Register("tenant-b", b))

	tenants := r.Tenants()
	sort.Strings(tenants)
	assert.Equal(t, []string{"tenant-a", "tenant-b"}, tenants)

	err := r.Close()
	assert.ErrorContains(t, err, "tenant-b")
	assert.Equal(t, 1, a.closed)
	assert.Equal(t, 1, b.closed)

	assert.NoError(t, r.Close())
	assert.Equal(t, 1, a.closed)

	_, err = r.Get("tenant-a")
	assert.ErrorIs(t, err, ErrRegistryClosed)
	assert.ErrorIs(t, r.Register("tenant-c", &closingClient{}), ErrRegistryClosed)
}
