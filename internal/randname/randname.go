// Package randname generates the random suffix used for `cub tmp`'s
// environment names, in the same spirit as the original
// RandomNameGenerator: prefer a short word from the system dictionary
// so names stay memorable, and fall back to random letters when no
// dictionary is available or every candidate is rejected.
package randname

import (
	"bufio"
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/google/uuid"
)

const dictPath = "/usr/share/dict/words"

// Filter reports whether a candidate word is acceptable, e.g. because
// no environment with that name already exists.
type Filter func(candidate string) bool

// Generate returns a word accepted by filter, trying /usr/share/dict/words
// first and falling back to random letter sequences.
func Generate(filter Filter) (string, error) {
	if word, ok := fromDict(dictPath, 8, filter); ok {
		return word, nil
	}
	if word, ok := randomLetters(6, 20, filter); ok {
		return word, nil
	}
	// Last resort: the dictionary is missing or exhausted and even
	// twenty random six-letter attempts collided. A UUID all but
	// guarantees a fresh name in one try.
	if word, ok := uuidSuffix(filter); ok {
		return word, nil
	}
	return "", fmt.Errorf("randname: found no acceptable candidate")
}

func fromDict(path string, maxLen int, filter Filter) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		w := scanner.Text()
		if len(w) > 0 && len(w) < maxLen && isAlpha(w) {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return "", false
	}

	for attempt := 0; attempt < 200; attempt++ {
		idx, err := randIntn(len(words))
		if err != nil {
			return "", false
		}
		candidate := words[idx]
		if filter(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func randomLetters(length, attempts int, filter Filter) (string, bool) {
	const alphabet = "abcdefghijklmnopqrstuvwxyz"
	for attempt := 0; attempt < attempts; attempt++ {
		buf := make([]byte, length)
		for i := range buf {
			idx, err := randIntn(len(alphabet))
			if err != nil {
				return "", false
			}
			buf[i] = alphabet[idx]
		}
		candidate := string(buf)
		if filter(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func uuidSuffix(filter Filter) (string, bool) {
	candidate := strings.ReplaceAll(uuid.NewString(), "-", "")
	if filter(candidate) {
		return candidate, true
	}
	return "", false
}

func randIntn(n int) (int, error) {
	max := big.NewInt(int64(n))
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return false
		}
	}
	return true
}
