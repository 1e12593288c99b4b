package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const codeAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// EventCodeLength is the length of generated public event codes.
const EventCodeLength = 8

// GenerateCode returns n random characters from [a-z0-9].
func GenerateCode(n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b.WriteByte(codeAlphabet[idx.Int64()])
	}
	return b.String(), nil
}

func GenerateEventCode() (string, error) {
	return GenerateCode(EventCodeLength)
}
