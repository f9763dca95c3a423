package utils

import (
	"crypto/rand"
	"math/big"
)

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // omit easily confused chars

// GenerateCode returns prefix followed by n random characters.
func GenerateCode(n int, prefix string) (string, error) {
	if n <= 0 {
		n = 8
	}
	b := make([]byte, 0, len(prefix)+n)
	b = append(b, prefix...)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b = append(b, codeAlphabet[idx.Int64()])
	}
	return string(b), nil
}
