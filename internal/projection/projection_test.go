package projection

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attaboy/walletcore/internal/domain"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// --- InMemoryStore Tests ---

func TestInMemoryStore_SetAndGet(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k1", []byte("hello"), 0))

	val, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), val)
}

func TestInMemoryStore_KeyNotFound(t *testing.T) {
	_, err := NewInMemoryStore().Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestInMemoryStore_Delete(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	_ = store.Set(ctx, "k1", []byte("data"), 0)
	_ = store.Delete(ctx, "k1")

	_, err := store.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestInMemoryStore_TTLExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewInMemoryStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	_ = store.Set(ctx, "k1", []byte("data"), time.Minute)
	_, err := store.Get(ctx, "k1")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = store.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrMiss)
}

// --- BalanceObserver Tests ---

func TestBalanceObserver_OnPosting(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	obs := NewBalanceObserver(store, discardLogger())

	w := domain.Wallet{
		UserID:        uuid.New(),
		Balance:       decimal.RequireFromString("150.25"),
		LockedBalance: decimal.NewFromInt(40),
		Currency:      "BDT",
		UpdatedAt:     time.Now().UTC(),
	}
	obs.OnPosting(ctx, domain.Transaction{ID: "DEP_1"}, w)

	got, err := GetBalance(ctx, store, w.UserID.String())
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(w.Balance))
	assert.True(t, got.LockedBalance.Equal(w.LockedBalance))
	assert.Equal(t, "DEP_1", got.LastTxID)
	assert.Equal(t, "BDT", got.Currency)

	require.NoError(t, InvalidateBalance(ctx, store, w.UserID))
	_, err = GetBalance(ctx, store, w.UserID.String())
	assert.ErrorIs(t, err, ErrMiss)
}

// --- LiveStats Tests ---

type published struct {
	room, event string
	data        any
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *recordingPublisher) Publish(room, event string, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{room: room, event: event, data: data})
}

func (p *recordingPublisher) events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.room+"/"+m.event)
	}
	return out
}

func gameTx(txType domain.TransactionType, amount int64, gameID string) domain.Transaction {
	return domain.Transaction{
		ID:       uuid.NewString(),
		UserID:   uuid.New(),
		Type:     txType,
		Status:   domain.TxStatusCompleted,
		Amount:   decimal.NewFromInt(amount),
		Metadata: domain.Metadata{"gameId": gameID},
	}
}

func TestLiveStats_BetsAndWins(t *testing.T) {
	store := NewInMemoryStore()
	pub := &recordingPublisher{}
	live := NewLiveStats(store, pub, discardLogger())
	ctx := context.Background()

	live.OnPosting(ctx, gameTx(domain.TxBet, -100, "crash"), domain.Wallet{})
	live.OnPosting(ctx, gameTx(domain.TxBet, -50, "crash"), domain.Wallet{})
	live.OnPosting(ctx, gameTx(domain.TxWin, 300, "crash"), domain.Wallet{})
	live.OnPosting(ctx, gameTx(domain.TxWin, 20000, "crash"), domain.Wallet{})

	stats := live.Stats(ctx, "crash")
	assert.True(t, stats.TotalWagered.Equal(decimal.NewFromInt(150)))
	require.Len(t, stats.RecentWins, 2)
	assert.True(t, stats.RecentWins[0].Amount.Equal(decimal.NewFromInt(20000)), "newest first")

	assert.Equal(t, []string{
		"game:crash/game-stats",
		"game:crash/game-stats",
		"game:crash/game-win",
		"game:crash/game-stats",
		"live/big-win",
		"game:crash/game-stats",
	}, pub.events())

	t.Run("read through cache from another process", func(t *testing.T) {
		other := NewLiveStats(store, nil, discardLogger())
		cached := other.Stats(ctx, "crash")
		assert.True(t, cached.TotalWagered.Equal(decimal.NewFromInt(150)))
		assert.Len(t, cached.RecentWins, 2)
	})
}

func TestLiveStats_CapsRecentWins(t *testing.T) {
	live := NewLiveStats(NewInMemoryStore(), nil, discardLogger())
	ctx := context.Background()

	for i := 1; i <= 15; i++ {
		live.OnPosting(ctx, gameTx(domain.TxWin, int64(i), "slots"), domain.Wallet{})
	}

	stats := live.Stats(ctx, "slots")
	require.Len(t, stats.RecentWins, 10)
	assert.Equal(t, "15", stats.RecentWins[0].Amount.String())
	assert.Equal(t, strconv.Itoa(6), stats.RecentWins[9].Amount.String())
}

func TestLiveStats_IgnoresUnrelatedPostings(t *testing.T) {
	pub := &recordingPublisher{}
	live := NewLiveStats(NewInMemoryStore(), pub, discardLogger())
	ctx := context.Background()

	noGame := gameTx(domain.TxWin, 10, "")
	pending := gameTx(domain.TxBet, -10, "crash")
	pending.Status = domain.TxStatusPending
	deposit := gameTx(domain.TxDeposit, 10, "crash")

	live.OnPosting(ctx, noGame, domain.Wallet{})
	live.OnPosting(ctx, pending, domain.Wallet{})
	live.OnPosting(ctx, deposit, domain.Wallet{})

	assert.Empty(t, pub.events())
	stats := live.Stats(ctx, "crash")
	assert.True(t, stats.TotalWagered.IsZero())
	assert.Empty(t, stats.RecentWins)
}
