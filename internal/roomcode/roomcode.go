// Package roomcode allocates short, memorable room codes.
package roomcode

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

// Words is the number of words in a generated code.
const Words = 3

// MaxAttempts bounds how many candidates Generate tries before giving up.
const MaxAttempts = 64

// ErrExhausted is returned when every candidate was already in use.
var ErrExhausted = errors.New("roomcode: no unused code found")

var lists = [][]string{moods, colors, creatures, foods, places}

// Generate returns a code such as "plucky-teal-otter". Each word comes from a
// different list. exists reports codes already in use and may be nil.
func Generate(exists func(string) bool) (string, error) {
	for i := 0; i < MaxAttempts; i++ {
		code := candidate()
		if exists == nil || !exists(code) {
			return code, nil
		}
	}
	return "", ErrExhausted
}

// Valid reports whether code looks like something Generate produces. Clients
// may still join rooms under arbitrary codes; this only guards the CLI.
func Valid(code string) bool {
	parts := strings.Split(code, "-")
	if len(parts) != Words {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
		for _, r := range p {
			if r < 'a' || r > 'z' {
				return false
			}
		}
	}
	return true
}

func candidate() string {
	// Pick Words distinct lists, then one word from each.
	order := make([]int, len(lists))
	for i := range order {
		order[i] = i
	}
	for i := len(order) - 1; i > 0; i-- {
		j := randomIndex(i + 1)
		order[i], order[j] = order[j], order[i]
	}

	words := make([]string, Words)
	for i := 0; i < Words; i++ {
		list := lists[order[i]]
		words[i] = list[randomIndex(len(list))]
	}
	return strings.Join(words, "-")
}

// randomIndex returns a cryptographically secure random index below max.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic("roomcode: crypto/rand failed: " + err.Error())
	}
	return int(n.Int64())
}
