package projection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/attaboy/walletcore/internal/domain"
)

const (
	// LiveRoom receives big wins from every game.
	LiveRoom = "live"

	maxRecentWins = 10
	liveStatsTTL  = time.Hour
)

// BigWinThreshold is the win amount broadcast to the whole live room.
var BigWinThreshold = decimal.NewFromInt(10000)

// Publisher delivers events to a websocket room.
type Publisher interface {
	Publish(room string, event string, data any)
}

// LiveWin is one entry of a game's recent-wins list.
type LiveWin struct {
	UserID    string          `json:"user_id"`
	GameID    string          `json:"game_id"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// GameStats is the live snapshot for one game.
type GameStats struct {
	GameID       string          `json:"game_id"`
	TotalWagered decimal.Decimal `json:"total_wagered"`
	RecentWins   []LiveWin       `json:"recent_wins"`
}

// GameRoom returns the websocket room for a game.
func GameRoom(gameID string) string { return "game:" + gameID }

func gameStatsKey(gameID string) string { return "projection:game_stats:" + gameID }

// LiveStats aggregates bets and wins per game from committed postings.
type LiveStats struct {
	mu        sync.Mutex
	games     map[string]*GameStats
	store     Store
	publisher Publisher
	logger    *slog.Logger
}

// NewLiveStats creates the observer. publisher may be nil.
func NewLiveStats(store Store, publisher Publisher, logger *slog.Logger) *LiveStats {
	return &LiveStats{
		games:     make(map[string]*GameStats),
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// OnPosting folds completed bets and wins into the game's stats. Entries
// without a gameId in their metadata are ignored.
func (l *LiveStats) OnPosting(ctx context.Context, tx domain.Transaction, _ domain.Wallet) {
	if tx.Status != domain.TxStatusCompleted {
		return
	}
	gameID, _ := tx.Metadata["gameId"].(string)
	if gameID == "" {
		return
	}

	var win *LiveWin
	l.mu.Lock()
	stats := l.game(gameID)
	switch tx.Type {
	case domain.TxBet:
		stats.TotalWagered = stats.TotalWagered.Add(tx.Amount.Abs())
	case domain.TxWin:
		win = &LiveWin{UserID: tx.UserID.String(), GameID: gameID, Amount: tx.Amount, Timestamp: tx.CreatedAt}
		stats.RecentWins = append([]LiveWin{*win}, stats.RecentWins...)
		if len(stats.RecentWins) > maxRecentWins {
			stats.RecentWins = stats.RecentWins[:maxRecentWins]
		}
	default:
		l.mu.Unlock()
		return
	}
	snapshot := cloneStats(stats)
	l.mu.Unlock()

	if err := SetJSON(ctx, l.store, gameStatsKey(gameID), snapshot, liveStatsTTL); err != nil {
		l.logger.Warn("live stats cache failed", "game_id", gameID, "error", err)
	}
	if l.publisher == nil {
		return
	}
	if win != nil {
		if win.Amount.GreaterThanOrEqual(BigWinThreshold) {
			l.publisher.Publish(LiveRoom, "big-win", win)
		} else {
			l.publisher.Publish(GameRoom(gameID), "game-win", win)
		}
	}
	l.publisher.Publish(GameRoom(gameID), "game-stats", snapshot)
}

// Stats returns the current snapshot for a game, reading through the cache
// when this process has not seen the game yet.
func (l *LiveStats) Stats(ctx context.Context, gameID string) GameStats {
	l.mu.Lock()
	if s, ok := l.games[gameID]; ok {
		out := cloneStats(s)
		l.mu.Unlock()
		return out
	}
	l.mu.Unlock()

	var cached GameStats
	if err := GetJSON(ctx, l.store, gameStatsKey(gameID), &cached); err == nil {
		return cached
	}
	return GameStats{GameID: gameID, TotalWagered: decimal.Zero, RecentWins: []LiveWin{}}
}

func (l *LiveStats) game(gameID string) *GameStats {
	s, ok := l.games[gameID]
	if !ok {
		s = &GameStats{GameID: gameID, TotalWagered: decimal.Zero, RecentWins: []LiveWin{}}
		l.games[gameID] = s
	}
	return s
}

func cloneStats(s *GameStats) GameStats {
	out := *s
	out.RecentWins = append(make([]LiveWin, 0, len(s.RecentWins)), s.RecentWins...)
	return out
}
