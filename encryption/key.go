package encryption

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var keyCharset = []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

// GenerateKey creates random key material for size. The key is alphanumeric so
// it can be handed to clients as a command-line argument; each byte carries
// about 5.95 bits of entropy rather than 8.
//
// Parameters:
//   - size: The key size; the returned key is size/8 bytes long
//
// Returns:
//   - The generated key
//   - An error if the system random source fails
func GenerateKey(size KeySize) (string, error) {
	b := make([]byte, size.Bytes())
	limit := big.NewInt(int64(len(keyCharset)))
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate key: %w", err)
		}
		b[i] = keyCharset[n.Int64()]
	}

	return string(b), nil
}
