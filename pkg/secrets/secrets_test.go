package secrets

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), ".encryption_key")
	ring := keyring.NewArrayKeyring(nil)
	store := New(keyFile, WithKeyring(ring))

	plaintext := []byte(`{"provider":"local","temperature":0.7}`)

	blob, err := store.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEmpty(t, blob)

	got, err := store.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestDecryptRejectsTamperedBlob(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), ".encryption_key")
	ring := keyring.NewArrayKeyring(nil)
	store := New(keyFile, WithKeyring(ring))

	blob, err := store.Encrypt([]byte("secret"))
	require.NoError(t, err)

	tampered := []byte(blob)
	tampered[len(tampered)-1] ^= 0x01

	_, err = store.Decrypt(string(tampered))
	require.Error(t, err)
}

func TestDecryptRejectsMalformedBlob(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), ".encryption_key")
	store := New(keyFile, WithKeyring(keyring.NewArrayKeyring(nil)))

	_, err := store.Decrypt("not-base64!!")
	require.Error(t, err)
}

func TestKeyPersistsAcrossInstances(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), ".encryption_key")

	first := New(keyFile, WithKeyring(keyring.NewArrayKeyring(nil)))
	blob, err := first.Encrypt([]byte("hello"))
	require.NoError(t, err)

	second := New(keyFile, WithKeyring(keyring.NewArrayKeyring(nil)))
	got, err := second.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestKeyFileIsBase64Framed(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), ".encryption_key")
	key := make([]byte, keySize)
	for i := range key {
		key[i] = byte(i)
	}

	store := New(keyFile)
	require.NoError(t, store.writeKeyFile(key))

	raw, err := os.ReadFile(keyFile)
	require.NoError(t, err)

	decoded, err := base64.StdEncoding.DecodeString(string(raw))
	require.NoError(t, err)
	assert.Equal(t, key, decoded)

	fromDisk, err := store.readKeyFile()
	require.NoError(t, err)
	assert.Equal(t, key, fromDisk)
}
