package model

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GeneratePassword returns a random alphanumeric credential of length n
func GeneratePassword(n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	max := big.NewInt(int64(len(passwordAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		b.WriteByte(passwordAlphabet[idx.Int64()])
	}
	return b.String(), nil
}

// CardNumberCandidate builds "<CODE>-<6 digits>" for the given library code
func CardNumberCandidate(libraryCode string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate card number: %w", err)
	}
	return fmt.Sprintf("%s-%d", strings.ToUpper(libraryCode), 100000+n.Int64()), nil
}
