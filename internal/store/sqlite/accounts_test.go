package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ethermail_farm/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsertAndGetAccount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	acc, err := s.InsertAccount(ctx, model.Account{
		WalletAddress: "0xabc",
		PrivateKey:    "0xdead",
		Mnemonic:      "test test test",
		Email:         "0xabc@ethermail.io",
		Token:         "tok",
		Proxy:         "http://p1:8080",
		UserAgent:     "Mozilla/5.0",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, acc.ID)
	assert.False(t, acc.CreatedAt.IsZero())

	got, err := s.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", got.WalletAddress)
	assert.Equal(t, "0xdead", got.PrivateKey)
	assert.Equal(t, "0xabc@ethermail.io", got.Email)
	assert.Equal(t, "http://p1:8080", got.Proxy)
	assert.WithinDuration(t, acc.CreatedAt, got.CreatedAt, time.Second)
}

func TestInsertRequiresWalletAddress(t *testing.T) {
	s := newTestStore(t)
	_, err := s.InsertAccount(context.Background(), model.Account{})
	assert.Error(t, err)
}

func TestGetAccountByEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.InsertAccount(ctx, model.Account{
		WalletAddress: "0xabc",
		Email:         "0xabc@ethermail.io",
	})
	require.NoError(t, err)

	got, err := s.GetAccountByEmail(ctx, "0xabc@ethermail.io")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", got.WalletAddress)

	_, err = s.GetAccountByEmail(ctx, "nobody@ethermail.io")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDuplicateWalletAddressRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.InsertAccount(ctx, model.Account{WalletAddress: "0xabc"})
	require.NoError(t, err)
	_, err = s.InsertAccount(ctx, model.Account{WalletAddress: "0xabc"})
	assert.Error(t, err)
}

func TestListAccountsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := time.Now().Add(-time.Hour)
	_, err := s.InsertAccount(ctx, model.Account{WalletAddress: "0xold", CreatedAt: older, LastUsed: older})
	require.NoError(t, err)
	_, err = s.InsertAccount(ctx, model.Account{WalletAddress: "0xnew"})
	require.NoError(t, err)

	accounts, err := s.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "0xnew", accounts[0].WalletAddress)
	assert.Equal(t, "0xold", accounts[1].WalletAddress)
}

func TestUpdateAccountToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	acc, err := s.InsertAccount(ctx, model.Account{WalletAddress: "0xabc", Token: "old"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateAccountToken(ctx, acc.ID, "new"))
	got, err := s.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Token)

	err = s.UpdateAccountToken(ctx, "missing", "new")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpdateAccountProxy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	acc, err := s.InsertAccount(ctx, model.Account{WalletAddress: "0xabc", Proxy: "http://old:8080"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateAccountProxy(ctx, acc.ID, "http://new:8080"))
	got, err := s.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "http://new:8080", got.Proxy)

	err = s.UpdateAccountProxy(ctx, "missing", "http://new:8080")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestTouchAccountBumpsLastUsed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stale := time.Now().Add(-48 * time.Hour)
	acc, err := s.InsertAccount(ctx, model.Account{WalletAddress: "0xabc", CreatedAt: stale, LastUsed: stale})
	require.NoError(t, err)

	require.NoError(t, s.TouchAccount(ctx, acc.ID))
	got, err := s.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), got.LastUsed, time.Minute)
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stale := time.Now().Add(-48 * time.Hour)
	_, err := s.InsertAccount(ctx, model.Account{WalletAddress: "0xstale", CreatedAt: stale, LastUsed: stale})
	require.NoError(t, err)
	_, err = s.InsertAccount(ctx, model.Account{WalletAddress: "0xfresh"})
	require.NoError(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Active24h)
	assert.Equal(t, 1, stats.Created24h)
}
