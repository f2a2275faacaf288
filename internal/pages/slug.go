package pages

import (
	"crypto/rand"
	"math/big"
)

const (
	SlugLength   = 8
	slugAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// SlugGenerator returns a fresh random slug.
type SlugGenerator func() (string, error)

func GenerateSlug() (string, error) {
	max := big.NewInt(int64(len(slugAlphabet)))
	out := make([]byte, SlugLength)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = slugAlphabet[n.Int64()]
	}
	return string(out), nil
}

func ValidSlug(s string) bool {
	if len(s) != SlugLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// candidates returns up to n distinct slugs from gen.
func candidates(gen SlugGenerator, n int) ([]string, error) {
	seen := make(map[string]struct{}, n)
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		s, err := gen()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}
