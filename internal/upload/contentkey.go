package upload

import (
	"fmt"

	"github.com/multiformats/go-multihash"
)

// Digest returns the base58 sha2-256 multihash of data
func Digest(data []byte) (string, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}
	return mh.B58String(), nil
}

// ContentKey is the object key a payload is stored under
func ContentKey(data []byte, ext string) (string, error) {
	digest, err := Digest(data)
	if err != nil {
		return "", err
	}
	if ext == "" {
		return digest, nil
	}
	return digest + "." + ext, nil
}
