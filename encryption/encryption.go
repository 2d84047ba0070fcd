// Package encryption implements the closed set of ciphers a relay can be
// configured with. A Codec is a tagged variant: one struct switched on its Kind
// rather than one type per cipher, so every kind honours the same contract.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rc4"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var (
	// ErrUnknownKind is returned when a cipher name is not one of the supported kinds.
	ErrUnknownKind = errors.New("unknown cipher kind")
	// ErrKeySize is returned when key material does not match a supported key size.
	ErrKeySize = errors.New("invalid key size")
	// ErrCiphertext is returned when a ciphertext is truncated or its padding is corrupt.
	ErrCiphertext = errors.New("malformed ciphertext")
)

// Kind identifies a cipher mode.
type Kind int

const (
	AesCbc Kind = iota // AES in CBC mode with a random IV per message
	AesCtr             // AES in CTR mode with a random IV per message
	AesEcb             // AES in ECB mode; weak, equal blocks encrypt equally
	Rc4                // RC4 keyed with key||nonce per message; weak, biased keystream
)

// Kinds lists every supported cipher kind in the order they are presented to operators.
var Kinds = []Kind{AesCbc, AesCtr, AesEcb, Rc4}

// String returns the operator-facing name of the cipher kind.
func (k Kind) String() string {
	switch k {
	case AesCbc:
		return "AesCbc"
	case AesCtr:
		return "AesCtr"
	case AesEcb:
		return "AesEcb"
	case Rc4:
		return "Rc4"
	default:
		return "Unknown"
	}
}

// Weak reports whether the kind is cryptographically unsafe. Weak kinds are
// kept for compatibility and behave exactly like the others.
func (k Kind) Weak() bool {
	return k == AesEcb || k == Rc4
}

// ParseKind converts an operator-facing name (e.g. "AesCbc") into a Kind.
//
// Parameters:
//   - name: The cipher name, matched exactly
//
// Returns:
//   - The matching Kind
//   - ErrUnknownKind if the name is not supported
func ParseKind(name string) (Kind, error) {
	for _, k := range Kinds {
		if k.String() == name {
			return k, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// KeySize is a key length in bits.
type KeySize int

const (
	Size128 KeySize = 128
	Size192 KeySize = 192
	Size256 KeySize = 256
)

// KeySizes lists every supported key size.
var KeySizes = []KeySize{Size128, Size192, Size256}

// Bytes returns the key length in bytes.
func (s KeySize) Bytes() int {
	return int(s) / 8
}

func (s KeySize) String() string {
	return strconv.Itoa(int(s))
}

// ParseKeySize converts a decimal bit count into a KeySize.
//
// Parameters:
//   - bits: The key size in bits, e.g. "128"
//
// Returns:
//   - The matching KeySize
//   - An error wrapping ErrKeySize if the value is not a supported size
func ParseKeySize(bits string) (KeySize, error) {
	n, err := strconv.Atoi(strings.TrimSpace(bits))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrKeySize, bits)
	}

	for _, s := range KeySizes {
		if int(s) == n {
			return s, nil
		}
	}

	return 0, fmt.Errorf("%w: %d (valid sizes are 128, 192, 256)", ErrKeySize, n)
}

const nonceSize = 16

// Codec encrypts and decrypts whole messages with one configured cipher.
// Every ciphertext is self-contained, so messages can be decrypted
// independently and in any order. A Codec is safe for concurrent use.
type Codec struct {
	kind  Kind
	key   []byte
	block cipher.Block
}

// New builds a Codec for kind using key as raw key material.
//
// Parameters:
//   - kind: The cipher kind
//   - key: Key material; len(key)*8 must be one of KeySizes
//
// Returns:
//   - The Codec
//   - An error wrapping ErrKeySize or ErrUnknownKind on invalid input
func New(kind Kind, key []byte) (*Codec, error) {
	if !validKeyLength(len(key)) {
		return nil, fmt.Errorf("%w: key is %d bits", ErrKeySize, len(key)*8)
	}

	c := &Codec{kind: kind, key: append([]byte(nil), key...)}
	switch kind {
	case AesCbc, AesCtr, AesEcb:
		block, err := aes.NewCipher(c.key)
		if err != nil {
			return nil, fmt.Errorf("aes: %w", err)
		}
		c.block = block
	case Rc4:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(kind))
	}

	return c, nil
}

func validKeyLength(n int) bool {
	for _, s := range KeySizes {
		if s.Bytes() == n {
			return true
		}
	}
	return false
}

// Kind returns the cipher kind of the codec.
func (c *Codec) Kind() Kind {
	return c.kind
}

// KeySize returns the key length of the codec.
func (c *Codec) KeySize() KeySize {
	return KeySize(len(c.key) * 8)
}

// Encrypt returns the ciphertext for plaintext. The input is not modified.
//
// Parameters:
//   - plaintext: The message to encrypt
//
// Returns:
//   - The ciphertext, including any IV or nonce prefix
//   - An error if random IV generation fails
func (c *Codec) Encrypt(plaintext []byte) ([]byte, error) {
	switch c.kind {
	case AesCbc:
		padded := pad(plaintext, aes.BlockSize)
		out := make([]byte, aes.BlockSize+len(padded))
		iv := out[:aes.BlockSize]
		if _, err := io.ReadFull(rand.Reader, iv); err != nil {
			return nil, fmt.Errorf("generate iv: %w", err)
		}
		cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out[aes.BlockSize:], padded)
		return out, nil

	case AesCtr:
		out := make([]byte, aes.BlockSize+len(plaintext))
		iv := out[:aes.BlockSize]
		if _, err := io.ReadFull(rand.Reader, iv); err != nil {
			return nil, fmt.Errorf("generate iv: %w", err)
		}
		cipher.NewCTR(c.block, iv).XORKeyStream(out[aes.BlockSize:], plaintext)
		return out, nil

	case AesEcb:
		padded := pad(plaintext, aes.BlockSize)
		out := make([]byte, len(padded))
		for i := 0; i < len(padded); i += aes.BlockSize {
			c.block.Encrypt(out[i:i+aes.BlockSize], padded[i:i+aes.BlockSize])
		}
		return out, nil

	case Rc4:
		out := make([]byte, nonceSize+len(plaintext))
		nonce := out[:nonceSize]
		if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
			return nil, fmt.Errorf("generate nonce: %w", err)
		}
		stream, err := c.rc4Stream(nonce)
		if err != nil {
			return nil, err
		}
		stream.XORKeyStream(out[nonceSize:], plaintext)
		return out, nil
	}

	return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(c.kind))
}

// Decrypt reverses Encrypt.
//
// Parameters:
//   - ciphertext: A message produced by Encrypt with the same kind and key
//
// Returns:
//   - The plaintext
//   - An error wrapping ErrCiphertext if the input is truncated or badly padded
func (c *Codec) Decrypt(ciphertext []byte) ([]byte, error) {
	switch c.kind {
	case AesCbc:
		if len(ciphertext) < 2*aes.BlockSize || len(ciphertext)%aes.BlockSize != 0 {
			return nil, fmt.Errorf("%w: cbc length %d", ErrCiphertext, len(ciphertext))
		}
		iv, body := ciphertext[:aes.BlockSize], ciphertext[aes.BlockSize:]
		out := make([]byte, len(body))
		cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(out, body)
		return unpad(out, aes.BlockSize)

	case AesCtr:
		if len(ciphertext) < aes.BlockSize {
			return nil, fmt.Errorf("%w: ctr length %d", ErrCiphertext, len(ciphertext))
		}
		iv, body := ciphertext[:aes.BlockSize], ciphertext[aes.BlockSize:]
		out := make([]byte, len(body))
		cipher.NewCTR(c.block, iv).XORKeyStream(out, body)
		return out, nil

	case AesEcb:
		if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
			return nil, fmt.Errorf("%w: ecb length %d", ErrCiphertext, len(ciphertext))
		}
		out := make([]byte, len(ciphertext))
		for i := 0; i < len(ciphertext); i += aes.BlockSize {
			c.block.Decrypt(out[i:i+aes.BlockSize], ciphertext[i:i+aes.BlockSize])
		}
		return unpad(out, aes.BlockSize)

	case Rc4:
		if len(ciphertext) < nonceSize {
			return nil, fmt.Errorf("%w: rc4 length %d", ErrCiphertext, len(ciphertext))
		}
		stream, err := c.rc4Stream(ciphertext[:nonceSize])
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(ciphertext)-nonceSize)
		stream.XORKeyStream(out, ciphertext[nonceSize:])
		return out, nil
	}

	return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(c.kind))
}

func (c *Codec) rc4Stream(nonce []byte) (*rc4.Cipher, error) {
	key := make([]byte, 0, len(c.key)+len(nonce))
	key = append(key, c.key...)
	key = append(key, nonce...)
	stream, err := rc4.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("rc4: %w", err)
	}
	return stream, nil
}

// pad applies PKCS#7 padding; a full block is added when the input is aligned.
func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty block", ErrCiphertext)
	}

	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, fmt.Errorf("%w: bad padding", ErrCiphertext)
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrCiphertext)
		}
	}

	return b[:len(b)-n], nil
}
