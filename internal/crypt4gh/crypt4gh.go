// Package crypt4gh implements a streaming, chunked encoder/decoder for the
// Crypt4GH v1 container format: a self-describing header carrying one
// X25519-wrapped session key per recipient, followed by a sequence of
// ChaCha20-Poly1305 segments of at most 64 KiB of plaintext each.
//
// This conforms to the published Crypt4GH container layout (spec.md §6); it
// does not invent or vary the on-disk format.
package crypt4gh

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
)

const (
	magic          = "crypt4gh"
	formatVersion  = 1
	segmentSize    = 65536 // plaintext bytes per segment
	nonceSize      = 12
	tagSize        = 16
	keySize        = 32
	methodX25519   = 0 // encryption method: X25519-ChaCha20
	dataEncMethod  = 0 // data-encryption-method inside a decrypted packet body
)

// Error values, matching the taxonomy of spec.md §7.
var (
	ErrBadHeader      = errors.New("crypt4gh: bad header")
	ErrKeyMismatch    = errors.New("crypt4gh: key mismatch")
	ErrCorruptSegment = errors.New("crypt4gh: corrupt segment")
	ErrTruncated      = errors.New("crypt4gh: truncated input")
)

// KeyPair is an X25519 key pair in the raw 32-byte Crypt4GH wire format.
type KeyPair struct {
	PublicKey  [32]byte
	PrivateKey [32]byte
}

// GenerateKeyPair creates a fresh ephemeral X25519 key pair, used for the
// sender key when the caller does not supply one (spec.md §4.1).
func GenerateKeyPair() (*KeyPair, error) {
	var kp KeyPair
	if _, err := rand.Read(kp.PrivateKey[:]); err != nil {
		return nil, fmt.Errorf("crypt4gh: generate private key: %w", err)
	}
	// Clamp per RFC 7748.
	kp.PrivateKey[0] &= 248
	kp.PrivateKey[31] &= 127
	kp.PrivateKey[31] |= 64
	pub, err := curve25519.X25519(kp.PrivateKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("crypt4gh: derive public key: %w", err)
	}
	copy(kp.PublicKey[:], pub)
	return &kp, nil
}

func sharedKey(privateKey, peerPublicKey [32]byte) ([]byte, error) {
	shared, err := curve25519.X25519(privateKey[:], peerPublicKey[:])
	if err != nil {
		return nil, fmt.Errorf("crypt4gh: derive shared secret: %w", err)
	}
	return shared, nil
}

// Encrypt reads plaintext from in and writes a Crypt4GH container to out,
// with one recipient packet per entry in recipientPubKeys. senderPrivKey may
// be nil, in which case an ephemeral key pair is generated and its private
// key discarded after use (never logged, per spec.md §9).
func Encrypt(in io.Reader, out io.Writer, recipientPubKeys [][32]byte, senderPrivKey *[32]byte) error {
	if len(recipientPubKeys) == 0 {
		return fmt.Errorf("crypt4gh: encrypt: at least one recipient required")
	}

	var sender KeyPair
	if senderPrivKey != nil {
		sender.PrivateKey = *senderPrivKey
		pub, err := curve25519.X25519(sender.PrivateKey[:], curve25519.Basepoint)
		if err != nil {
			return fmt.Errorf("crypt4gh: derive sender public key: %w", err)
		}
		copy(sender.PublicKey[:], pub)
	} else {
		kp, err := GenerateKeyPair()
		if err != nil {
			return err
		}
		sender = *kp
	}

	sessionKey := make([]byte, keySize)
	if _, err := rand.Read(sessionKey); err != nil {
		return fmt.Errorf("crypt4gh: generate session key: %w", err)
	}

	packets := make([][]byte, 0, len(recipientPubKeys))
	for _, recipientPub := range recipientPubKeys {
		packet, err := buildRecipientPacket(sender, recipientPub, sessionKey)
		if err != nil {
			return err
		}
		packets = append(packets, packet)
	}

	if err := writeHeader(out, packets); err != nil {
		return err
	}

	return encryptSegments(in, out, sessionKey)
}

func buildRecipientPacket(sender KeyPair, recipientPub [32]byte, sessionKey []byte) ([]byte, error) {
	shared, err := sharedKey(sender.PrivateKey, recipientPub)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(shared)
	if err != nil {
		return nil, fmt.Errorf("crypt4gh: packet aead: %w", err)
	}

	body := make([]byte, 4+keySize)
	binary.LittleEndian.PutUint32(body[0:4], dataEncMethod)
	copy(body[4:], sessionKey)

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypt4gh: packet nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, body, nil)

	// length(4) | method(4) | writer-ephemeral-pubkey(32) | nonce(12) | ciphertext+tag
	packetLen := 4 + 4 + 32 + nonceSize + len(sealed)
	packet := make([]byte, packetLen)
	binary.LittleEndian.PutUint32(packet[0:4], uint32(packetLen))
	binary.LittleEndian.PutUint32(packet[4:8], methodX25519)
	copy(packet[8:40], sender.PublicKey[:])
	copy(packet[40:40+nonceSize], nonce)
	copy(packet[40+nonceSize:], sealed)
	return packet, nil
}

func writeHeader(out io.Writer, packets [][]byte) error {
	if _, err := io.WriteString(out, magic); err != nil {
		return fmt.Errorf("crypt4gh: write magic: %w", err)
	}
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], formatVersion)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(packets)))
	if _, err := out.Write(hdr[:]); err != nil {
		return fmt.Errorf("crypt4gh: write header: %w", err)
	}
	for _, packet := range packets {
		if _, err := out.Write(packet); err != nil {
			return fmt.Errorf("crypt4gh: write packet: %w", err)
		}
	}
	return nil
}

func encryptSegments(in io.Reader, out io.Writer, sessionKey []byte) error {
	aead, err := chacha20poly1305.New(sessionKey)
	if err != nil {
		return fmt.Errorf("crypt4gh: segment aead: %w", err)
	}
	buf := make([]byte, segmentSize)
	for {
		n, readErr := io.ReadFull(in, buf)
		if n > 0 {
			nonce := make([]byte, nonceSize)
			if _, err := rand.Read(nonce); err != nil {
				return fmt.Errorf("crypt4gh: segment nonce: %w", err)
			}
			ciphertext := aead.Seal(nil, nonce, buf[:n], nil)
			if _, err := out.Write(nonce); err != nil {
				return fmt.Errorf("crypt4gh: write segment nonce: %w", err)
			}
			if _, err := out.Write(ciphertext); err != nil {
				return fmt.Errorf("crypt4gh: write segment: %w", err)
			}
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("crypt4gh: read plaintext: %w", readErr)
		}
	}
	return nil
}

// Decrypt parses the header of in, finds the first recipient packet
// decryptable with recipientPrivKey, and streams decrypted plaintext to out.
func Decrypt(in io.Reader, out io.Writer, recipientPrivKey [32]byte) error {
	sessionKey, err := parseHeader(in, recipientPrivKey)
	if err != nil {
		return err
	}
	return decryptSegments(in, out, sessionKey)
}

func parseHeader(in io.Reader, recipientPrivKey [32]byte) ([]byte, error) {
	magicBuf := make([]byte, len(magic))
	if _, err := io.ReadFull(in, magicBuf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	if string(magicBuf) != magic {
		return nil, fmt.Errorf("%w: bad magic", ErrBadHeader)
	}

	var hdr [8]byte
	if _, err := io.ReadFull(in, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	version := binary.LittleEndian.Uint32(hdr[0:4])
	if version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadHeader, version)
	}
	packetCount := binary.LittleEndian.Uint32(hdr[4:8])

	var sessionKey []byte
	for i := uint32(0); i < packetCount; i++ {
		var lenBuf [4]byte
		if _, err := io.ReadFull(in, lenBuf[:]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
		packetLen := binary.LittleEndian.Uint32(lenBuf[:])
		if packetLen < 4+4+32+nonceSize+tagSize {
			return nil, fmt.Errorf("%w: packet too short", ErrBadHeader)
		}
		rest := make([]byte, packetLen-4)
		if _, err := io.ReadFull(in, rest); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
		}

		method := binary.LittleEndian.Uint32(rest[0:4])
		if method != methodX25519 {
			continue // unsupported method for this packet; try the next
		}
		var senderPub [32]byte
		copy(senderPub[:], rest[4:36])
		nonce := rest[36 : 36+nonceSize]
		ciphertext := rest[36+nonceSize:]

		shared, err := sharedKey(recipientPrivKey, senderPub)
		if err != nil {
			return nil, err
		}
		aead, err := chacha20poly1305.New(shared)
		if err != nil {
			return nil, fmt.Errorf("crypt4gh: packet aead: %w", err)
		}
		body, err := aead.Open(nil, nonce, ciphertext, nil)
		if err != nil {
			continue // not decryptable with this key; try the next recipient packet
		}
		if len(body) != 4+keySize {
			return nil, fmt.Errorf("%w: bad packet body length", ErrBadHeader)
		}
		sessionKey = append([]byte(nil), body[4:]...)
		break
	}
	if sessionKey == nil {
		return nil, ErrKeyMismatch
	}
	return sessionKey, nil
}

func decryptSegments(in io.Reader, out io.Writer, sessionKey []byte) error {
	aead, err := chacha20poly1305.New(sessionKey)
	if err != nil {
		return fmt.Errorf("crypt4gh: segment aead: %w", err)
	}
	segBuf := make([]byte, nonceSize+segmentSize+tagSize)
	for {
		n, readErr := io.ReadFull(in, segBuf)
		if readErr == io.EOF {
			break
		}
		if readErr != nil && readErr != io.ErrUnexpectedEOF {
			return fmt.Errorf("%w: %v", ErrTruncated, readErr)
		}
		if n < nonceSize+tagSize {
			return fmt.Errorf("%w: segment too short", ErrTruncated)
		}
		nonce := segBuf[:nonceSize]
		ciphertext := segBuf[nonceSize:n]
		plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptSegment, err)
		}
		if _, err := out.Write(plaintext); err != nil {
			return fmt.Errorf("crypt4gh: write plaintext: %w", err)
		}
		if readErr == io.ErrUnexpectedEOF {
			break
		}
	}
	return nil
}
