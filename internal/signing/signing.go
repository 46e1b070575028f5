// Package signing implements the Ed25519 layer over canonical strings: per-
// device signature verification, and the server's own signing key used for
// outgoing commands and firmware release records.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strings"
)

const pemBlockType = "ED25519 PUBLIC KEY"
const pemPrivateBlockType = "ED25519 PRIVATE KEY"

// ErrSignatureInvalid is returned whenever a supplied signature does not
// verify against the canonical string and public key presented.
var ErrSignatureInvalid = fmt.Errorf("signature_invalid")

// PublicKeyFromPEM decodes a PEM block holding a raw 32-byte Ed25519 public
// key into an ed25519.PublicKey.
func PublicKeyFromPEM(pemBytes []byte) (ed25519.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("not a valid PEM block")
	}
	if len(block.Bytes) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("unexpected public key length %d", len(block.Bytes))
	}
	return ed25519.PublicKey(block.Bytes), nil
}

// PublicKeyToPEM encodes a raw Ed25519 public key as a PEM block.
func PublicKeyToPEM(pub ed25519.PublicKey) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: pemBlockType, Bytes: pub})
}

// PublicKeyFromBase64 decodes a raw, unpadded-or-padded base64 32-byte
// public key — the format devices are provisioned with before PEM wrapping.
func PublicKeyFromBase64(raw string) (ed25519.PublicKey, error) {
	b, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(raw, "="))
	if err != nil {
		return nil, fmt.Errorf("decoding base64 public key: %w", err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("unexpected public key length %d", len(b))
	}
	return ed25519.PublicKey(b), nil
}

// PublicKeyToBase64 is the inverse of PublicKeyFromBase64.
func PublicKeyToBase64(pub ed25519.PublicKey) string {
	return base64.StdEncoding.EncodeToString(pub)
}

// PrivateKeyFromPEM decodes the server's long-lived signing key.
func PrivateKeyFromPEM(pemBytes []byte) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("not a valid PEM block")
	}
	if len(block.Bytes) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("unexpected private key length %d", len(block.Bytes))
	}
	return ed25519.PrivateKey(block.Bytes), nil
}

// PrivateKeyToPEM encodes the server's signing key as a PEM block.
func PrivateKeyToPEM(priv ed25519.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: pemPrivateBlockType, Bytes: priv})
}

// PrivateKeyFromBase64 decodes a raw base64-encoded 64-byte Ed25519 private
// key, the compact form the server's signing key may be provisioned in
// instead of a PEM block.
func PrivateKeyFromBase64(raw string) (ed25519.PrivateKey, error) {
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 private key: %w", err)
	}
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("unexpected private key length %d", len(b))
	}
	return ed25519.PrivateKey(b), nil
}

// LoadPrivateKey decodes the server's signing key from a PEM block, a
// base64-encoded PEM block, or raw base64, detected by whether raw (or its
// base64 decoding) looks like PEM.
func LoadPrivateKey(raw string) (ed25519.PrivateKey, error) {
	if strings.Contains(raw, "-----BEGIN") {
		return PrivateKeyFromPEM([]byte(raw))
	}
	if decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw)); err == nil && strings.Contains(string(decoded), "-----BEGIN") {
		return PrivateKeyFromPEM(decoded)
	}
	return PrivateKeyFromBase64(raw)
}

// GenerateKeyPair creates a fresh Ed25519 key pair, for device provisioning
// and operator tooling.
func GenerateKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// Sign signs canonical over the server's (or a test device's) private key,
// returning the base64-encoded signature as stored on the wire (SIG1 /
// SIG_SERV).
func Sign(priv ed25519.PrivateKey, canonical string) string {
	sig := ed25519.Sign(priv, []byte(canonical))
	return base64.StdEncoding.EncodeToString(sig)
}

// Verify checks a base64-encoded signature against canonical and the
// device's (or server's) public key. Returns ErrSignatureInvalid — never a
// generic decode error — so callers can map it directly onto the
// SIG_INVALID wire error without inspecting the cause.
func Verify(pub ed25519.PublicKey, canonical string, signatureB64 string) error {
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return ErrSignatureInvalid
	}
	if !ed25519.Verify(pub, []byte(canonical), sig) {
		return ErrSignatureInvalid
	}
	return nil
}
