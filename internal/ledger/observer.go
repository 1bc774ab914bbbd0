package ledger

import (
	"context"

	"github.com/attaboy/walletcore/internal/domain"
)

// Observer is told about postings after their unit of work commits.
type Observer interface {
	OnPosting(ctx context.Context, tx domain.Transaction, w domain.Wallet)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, tx domain.Transaction, w domain.Wallet)

func (f ObserverFunc) OnPosting(ctx context.Context, tx domain.Transaction, w domain.Wallet) {
	f(ctx, tx, w)
}

// Observers fans a posting out to every observer in order.
type Observers []Observer

// Notify delivers each posting. Nil postings are skipped.
func (o Observers) Notify(ctx context.Context, postings ...*Posting) {
	for _, p := range postings {
		if p == nil || p.Transaction == nil || p.Wallet == nil {
			continue
		}
		for _, obs := range o {
			obs.OnPosting(ctx, *p.Transaction, *p.Wallet)
		}
	}
}
