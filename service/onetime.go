package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const oneTimeTokenBytes = 32

// oneTimeToken is mailed in plain form and stored only as its hash.
type oneTimeToken struct {
	plain string
	hash  string
}

func newOneTimeToken() (oneTimeToken, error) {
	buf := make([]byte, oneTimeTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return oneTimeToken{}, fmt.Errorf("failed to generate token: %w", err)
	}
	plain := hex.EncodeToString(buf)
	return oneTimeToken{plain: plain, hash: hashToken(plain)}, nil
}

// hashToken ignores hex case, links that pass through case-folding
// clients still resolve.
func hashToken(plain string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(plain)))
	return hex.EncodeToString(sum[:])
}

// validOneTimeToken accepts exactly 64 lowercase or uppercase hex digits.
func validOneTimeToken(token string) bool {
	if len(token) != 2*oneTimeTokenBytes {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}
