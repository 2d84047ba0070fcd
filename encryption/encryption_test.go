package encryption

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	t.Run("known names", func(t *testing.T) {
		for _, k := range Kinds {
			got, err := ParseKind(k.String())
			require.NoError(t, err)
			assert.Equal(t, k, got)
		}
	})

	t.Run("names are case sensitive", func(t *testing.T) {
		_, err := ParseKind("aescbc")
		assert.ErrorIs(t, err, ErrUnknownKind)
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := ParseKind("Blowfish")
		assert.ErrorIs(t, err, ErrUnknownKind)
	})
}

func TestKind_Weak(t *testing.T) {
	assert.False(t, AesCbc.Weak())
	assert.False(t, AesCtr.Weak())
	assert.True(t, AesEcb.Weak())
	assert.True(t, Rc4.Weak())
	assert.Equal(t, "Unknown", Kind(42).String())
}

func TestParseKeySize(t *testing.T) {
	t.Run("supported sizes", func(t *testing.T) {
		for _, s := range KeySizes {
			got, err := ParseKeySize(s.String())
			require.NoError(t, err)
			assert.Equal(t, s, got)
		}
	})

	t.Run("unsupported size", func(t *testing.T) {
		_, err := ParseKeySize("512")
		assert.ErrorIs(t, err, ErrKeySize)
	})

	t.Run("not a number", func(t *testing.T) {
		_, err := ParseKeySize("big")
		assert.ErrorIs(t, err, ErrKeySize)
	})
}

func TestNew(t *testing.T) {
	t.Run("16 byte key is 128 bits", func(t *testing.T) {
		c, err := New(AesCbc, []byte("0123456789abcdef"))
		require.NoError(t, err)
		assert.Equal(t, Size128, c.KeySize())
		assert.Equal(t, AesCbc, c.Kind())
	})

	t.Run("20 byte key is refused", func(t *testing.T) {
		_, err := New(AesCbc, []byte("0123456789abcdefghij"))
		assert.ErrorIs(t, err, ErrKeySize)
	})

	t.Run("rc4 shares the key size contract", func(t *testing.T) {
		_, err := New(Rc4, []byte("short"))
		assert.ErrorIs(t, err, ErrKeySize)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := New(Kind(9), []byte("0123456789abcdef"))
		assert.ErrorIs(t, err, ErrUnknownKind)
	})

	t.Run("codec keeps its own copy of the key", func(t *testing.T) {
		key := []byte("0123456789abcdef")
		c, err := New(Rc4, key)
		require.NoError(t, err)
		ct, err := c.Encrypt([]byte("hello"))
		require.NoError(t, err)

		key[0] = 'X'
		pt, err := c.Decrypt(ct)
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), pt)
	})
}

func TestCodec_RoundTrip(t *testing.T) {
	messages := [][]byte{
		{},
		[]byte("hello"),
		[]byte("exactly16bytes!!"),
		bytes.Repeat([]byte("relay "), 200),
	}

	for _, kind := range Kinds {
		for _, size := range KeySizes {
			t.Run(kind.String()+"/"+size.String(), func(t *testing.T) {
				key, err := GenerateKey(size)
				require.NoError(t, err)
				c, err := New(kind, []byte(key))
				require.NoError(t, err)

				for _, msg := range messages {
					ct, err := c.Encrypt(msg)
					require.NoError(t, err)
					pt, err := c.Decrypt(ct)
					require.NoError(t, err)
					assert.Equal(t, len(msg), len(pt))
					assert.True(t, bytes.Equal(msg, pt))
				}
			})
		}
	}
}

func TestCodec_Randomised(t *testing.T) {
	msg := []byte("same message twice")

	for _, kind := range []Kind{AesCbc, AesCtr, Rc4} {
		t.Run(kind.String()+" ciphertexts differ", func(t *testing.T) {
			c, err := New(kind, []byte("0123456789abcdef"))
			require.NoError(t, err)
			a, err := c.Encrypt(msg)
			require.NoError(t, err)
			b, err := c.Encrypt(msg)
			require.NoError(t, err)
			assert.NotEqual(t, a, b)
		})
	}

	t.Run("AesEcb is deterministic", func(t *testing.T) {
		c, err := New(AesEcb, []byte("0123456789abcdef"))
		require.NoError(t, err)
		a, err := c.Encrypt(msg)
		require.NoError(t, err)
		b, err := c.Encrypt(msg)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}

func TestCodec_DecryptRejectsMalformed(t *testing.T) {
	key := []byte("0123456789abcdef")

	t.Run("truncated cbc", func(t *testing.T) {
		c, err := New(AesCbc, key)
		require.NoError(t, err)
		_, err = c.Decrypt(make([]byte, 10))
		assert.ErrorIs(t, err, ErrCiphertext)
	})

	t.Run("corrupt ecb padding", func(t *testing.T) {
		c, err := New(AesEcb, key)
		require.NoError(t, err)
		block := make([]byte, 16)
		c.block.Encrypt(block, bytes.Repeat([]byte{0x00}, 16))
		_, err = c.Decrypt(block)
		assert.ErrorIs(t, err, ErrCiphertext)
	})

	t.Run("short ctr", func(t *testing.T) {
		c, err := New(AesCtr, key)
		require.NoError(t, err)
		_, err = c.Decrypt([]byte{1, 2, 3})
		assert.ErrorIs(t, err, ErrCiphertext)
	})

	t.Run("short rc4", func(t *testing.T) {
		c, err := New(Rc4, key)
		require.NoError(t, err)
		_, err = c.Decrypt([]byte{1, 2, 3})
		assert.ErrorIs(t, err, ErrCiphertext)
	})
}

func TestGenerateKey(t *testing.T) {
	for _, size := range KeySizes {
		key, err := GenerateKey(size)
		require.NoError(t, err)
		assert.Len(t, key, size.Bytes())
		assert.Empty(t, strings.Trim(key, string(keyCharset)))
	}

	a, err := GenerateKey(Size256)
	require.NoError(t, err)
	b, err := GenerateKey(Size256)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
