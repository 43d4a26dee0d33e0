package crypt4gh

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArmoredKeyFile(t *testing.T, dir, name, header string, body []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	encoded := base64.StdEncoding.EncodeToString(body)
	content := fmt.Sprintf("-----BEGIN %s-----\n%s\n-----END %s-----\n", header, encoded, header)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadPublicKeyFileRoundTrip(t *testing.T) {
	kp := mustKeyPair(t)
	dir := t.TempDir()
	path := writeArmoredKeyFile(t, dir, "recipient.pub", publicKeyHeader, kp.PublicKey[:])

	got, err := ReadPublicKeyFile(path)
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey, got)
}

func TestReadPublicKeyFileWrongLength(t *testing.T) {
	dir := t.TempDir()
	path := writeArmoredKeyFile(t, dir, "bad.pub", publicKeyHeader, []byte("too short"))
	_, err := ReadPublicKeyFile(path)
	assert.Error(t, err)
}

func TestReadPrivateKeyFileUnencrypted(t *testing.T) {
	kp := mustKeyPair(t)
	dir := t.TempDir()

	body := []byte("c4gh-v1")
	body = append(body, lengthPrefixed("none")...)
	body = append(body, lengthPrefixed("none")...)
	body = append(body, kp.PrivateKey[:]...)

	path := writeArmoredKeyFile(t, dir, "sender.sec", privateKeyHeader, body)
	got, err := ReadPrivateKeyFile(path, nil)
	require.NoError(t, err)
	assert.Equal(t, kp.PrivateKey, got)
}

func lengthPrefixed(s string) []byte {
	out := make([]byte, 2+len(s))
	out[0] = byte(len(s) >> 8)
	out[1] = byte(len(s))
	copy(out[2:], s)
	return out
}

func TestReadPrivateKeyFileMissingPassphrase(t *testing.T) {
	dir := t.TempDir()
	body := []byte("c4gh-v1")
	body = append(body, lengthPrefixed("scrypt")...)
	rounds := []byte{0, 0, 0x40, 0}
	body = append(body, rounds...)
	body = append(body, make([]byte, 16)...) // salt
	body = append(body, lengthPrefixed("chacha20_poly1305")...)
	body = append(body, make([]byte, nonceSize+keySize+tagSize)...)

	path := writeArmoredKeyFile(t, dir, "locked.sec", privateKeyHeader, body)
	_, err := ReadPrivateKeyFile(path, nil)
	assert.Error(t, err)
}
