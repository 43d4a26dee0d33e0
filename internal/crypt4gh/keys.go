package crypt4gh

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	publicKeyHeader  = "CRYPT4GH PUBLIC KEY"
	privateKeyHeader = "CRYPT4GH PRIVATE KEY"
)

// ReadPublicKeyFile parses a Crypt4GH public key file (PEM-like armor
// wrapping a raw 32-byte X25519 public key), the published key format
// referenced by spec.md §4.1.
func ReadPublicKeyFile(path string) ([32]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return [32]byte{}, fmt.Errorf("crypt4gh: read public key %s: %w", path, err)
	}
	body, err := unarmor(raw, publicKeyHeader)
	if err != nil {
		return [32]byte{}, err
	}
	if len(body) != keySize {
		return [32]byte{}, fmt.Errorf("crypt4gh: public key %s: expected %d bytes, got %d", path, keySize, len(body))
	}
	var pub [32]byte
	copy(pub[:], body)
	return pub, nil
}

// PassphraseFunc supplies the passphrase for an encrypted private key. It is
// called lazily only when the key file is actually passphrase-protected.
type PassphraseFunc func() (string, error)

// ReadPrivateKeyFile parses a Crypt4GH private key file. If the key is
// passphrase-protected, passphrase is invoked to obtain it; callers
// typically check C4GH_PASSPHRASE first and fall back to an interactive
// prompt (spec.md §4.1/§6).
func ReadPrivateKeyFile(path string, passphrase PassphraseFunc) ([32]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return [32]byte{}, fmt.Errorf("crypt4gh: read private key %s: %w", path, err)
	}
	body, err := unarmor(raw, privateKeyHeader)
	if err != nil {
		return [32]byte{}, err
	}
	return decodePrivateKeyBody(body, passphrase)
}

// unarmor strips the "-----BEGIN <header>-----"/"-----END <header>-----"
// wrapper and base64-decodes the interior, matching the published Crypt4GH
// key-file armor.
func unarmor(raw []byte, header string) ([]byte, error) {
	text := strings.TrimSpace(string(raw))
	beginMarker := fmt.Sprintf("-----BEGIN %s-----", header)
	endMarker := fmt.Sprintf("-----END %s-----", header)
	start := strings.Index(text, beginMarker)
	end := strings.Index(text, endMarker)
	if start < 0 || end < 0 || end < start {
		return nil, fmt.Errorf("crypt4gh: malformed key armor, expected %q", header)
	}
	inner := text[start+len(beginMarker) : end]
	inner = strings.Join(strings.Fields(inner), "")
	decoded, err := base64.StdEncoding.DecodeString(inner)
	if err != nil {
		return nil, fmt.Errorf("crypt4gh: base64 decode key body: %w", err)
	}
	return decoded, nil
}

// decodePrivateKeyBody parses the binary body of a private key file:
// magic "c4gh-v1" | kdf name (length-prefixed) | kdf rounds/salt (if any) |
// cipher name (length-prefixed) | ciphertext. A cipher name of "none" means
// the key is stored unencrypted.
func decodePrivateKeyBody(body []byte, passphrase PassphraseFunc) ([32]byte, error) {
	const privMagic = "c4gh-v1"
	if !bytes.HasPrefix(body, []byte(privMagic)) {
		return [32]byte{}, fmt.Errorf("crypt4gh: bad private key magic")
	}
	r := bytes.NewReader(body[len(privMagic):])

	kdfName, err := readLengthPrefixedString(r)
	if err != nil {
		return [32]byte{}, err
	}

	var salt []byte
	var rounds uint32
	if kdfName != "none" {
		var roundsBuf [4]byte
		if _, err := r.Read(roundsBuf[:]); err != nil {
			return [32]byte{}, fmt.Errorf("crypt4gh: read kdf rounds: %w", err)
		}
		rounds = binary.BigEndian.Uint32(roundsBuf[:])
		saltLen := 16
		salt = make([]byte, saltLen)
		if _, err := r.Read(salt); err != nil {
			return [32]byte{}, fmt.Errorf("crypt4gh: read kdf salt: %w", err)
		}
	}

	cipherName, err := readLengthPrefixedString(r)
	if err != nil {
		return [32]byte{}, err
	}

	ciphertext := make([]byte, r.Len())
	if _, err := r.Read(ciphertext); err != nil {
		return [32]byte{}, fmt.Errorf("crypt4gh: read ciphertext: %w", err)
	}

	if cipherName == "none" {
		if len(ciphertext) != keySize {
			return [32]byte{}, fmt.Errorf("crypt4gh: unexpected unencrypted key length %d", len(ciphertext))
		}
		var sk [32]byte
		copy(sk[:], ciphertext)
		return sk, nil
	}

	if passphrase == nil {
		return [32]byte{}, fmt.Errorf("crypt4gh: private key is passphrase-protected and no passphrase was supplied")
	}
	pass, err := passphrase()
	if err != nil {
		return [32]byte{}, fmt.Errorf("crypt4gh: obtain passphrase: %w", err)
	}

	derivedKey, err := scrypt.Key([]byte(pass), salt, int(scryptCostFor(rounds)), 8, 1, keySize)
	if err != nil {
		return [32]byte{}, fmt.Errorf("crypt4gh: derive key from passphrase: %w", err)
	}
	if len(ciphertext) < nonceSize {
		return [32]byte{}, fmt.Errorf("crypt4gh: private key ciphertext too short")
	}
	nonce := ciphertext[:nonceSize]
	sealed := ciphertext[nonceSize:]
	aead, err := chacha20poly1305.New(derivedKey)
	if err != nil {
		return [32]byte{}, fmt.Errorf("crypt4gh: passphrase aead: %w", err)
	}
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return [32]byte{}, fmt.Errorf("crypt4gh: bad passphrase: %w", err)
	}
	if len(plain) != keySize {
		return [32]byte{}, fmt.Errorf("crypt4gh: decrypted private key has wrong length %d", len(plain))
	}
	var sk [32]byte
	copy(sk[:], plain)
	return sk, nil
}

// scryptCostFor maps the stored round count to an scrypt N parameter (a
// power of two); 0 rounds falls back to a conservative default.
func scryptCostFor(rounds uint32) uint32 {
	if rounds == 0 {
		return 1 << 14
	}
	return rounds
}

func readLengthPrefixedString(r *bytes.Reader) (string, error) {
	var lenBuf [2]byte
	if _, err := r.Read(lenBuf[:]); err != nil {
		return "", fmt.Errorf("crypt4gh: read length prefix: %w", err)
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	buf := make([]byte, n)
	if _, err := r.Read(buf); err != nil {
		return "", fmt.Errorf("crypt4gh: read length-prefixed body: %w", err)
	}
	return string(buf), nil
}
