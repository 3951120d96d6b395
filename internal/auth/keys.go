package auth

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const keySize = 32

// deriveKey expands secret into the MAC key for one token type, so that a
// token of one type never verifies under another type's key.
func deriveKey(secret []byte, tokenType string) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, nil, []byte("satauth/"+tokenType+"/v1"))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", tokenType, err)
	}
	return key, nil
}
