package automation

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"reservation-sync-backend/internal/model"
)

const pinDigits = 6

// RandomPinIssuer generates door PINs locally. Deployments with a smart
// lock gateway replace this with an issuer that registers the code there.
type RandomPinIssuer struct{}

// IssuePin returns a random numeric PIN.
func (RandomPinIssuer) IssuePin(_ context.Context, _ *model.Reservation) (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < pinDigits; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("failed to generate pin: %w", err)
	}
	return fmt.Sprintf("%0*d", pinDigits, n), nil
}
