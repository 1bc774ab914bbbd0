package ledger

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const (
	txIDAlphabet   = "0123456789abcdefghijklmnopqrstuvwxyz"
	txIDRandLength = 9
)

// NewTransactionID returns "{PREFIX}_{unix millis}_{9 base36 chars}".
func NewTransactionID(prefix string, now time.Time) string {
	return fmt.Sprintf("%s_%d_%s", prefix, now.UnixMilli(), randomBase36(txIDRandLength))
}

func randomBase36(n int) string {
	out := make([]byte, n)
	limit := big.NewInt(int64(len(txIDAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
		}
		out[i] = txIDAlphabet[idx.Int64()]
	}
	return string(out)
}
