// Copyright © 2018 One Concern

// Package rand produces random strings for tokens and names.
//
// All values are drawn from crypto/rand.
package rand

import (
	"crypto/rand"
	"fmt"
)

const (
	alphaNumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	lowerAlnum   = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// Bytes returns a random slice of bytes
func Bytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("reading random bytes: %w", err)
	}
	return buf, nil
}

// AlphaNumeric returns a random string picked in the [A-Z]|[a-z]|[0-9] range
func AlphaNumeric(n int) (string, error) {
	return pick(alphaNumeric, n)
}

// LetterString returns a random string picked in the [0-9]|[a-z] range.
//
// It panics if the system random source fails.
func LetterString(n int) string {
	s, err := pick(lowerAlnum, n)
	if err != nil {
		panic(err)
	}
	return s
}

// pick draws n characters from alphabet, uniformly: bytes beyond the
// largest multiple of the alphabet size are rejected.
func pick(alphabet string, n int) (string, error) {
	limit := 256 - 256%len(alphabet)
	out := make([]byte, 0, n)
	buf := make([]byte, n+n/4+1)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("reading random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
