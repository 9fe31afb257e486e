package commitment

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedDigest marks digests that are not 64 hex characters.
var ErrMalformedDigest = errors.New("malformed commitment digest")

// Digest is the hex form of a move commitment. It binds the secret move, the
// blinding nonce and the committer identity so a digest cannot be replayed by
// another participant or brute-forced over the small move space.
type Digest string

// Commit hashes the ordered tuple (move, nonce, identity) with SHA-256.
// Encoding is 8-byte big-endian move, 8-byte big-endian nonce, raw identity bytes.
func Commit(move, nonce uint64, identity string) Digest {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], move)
	binary.BigEndian.PutUint64(buf[8:16], nonce)
	h := sha256.New()
	h.Write(buf[:])
	h.Write([]byte(strings.TrimSpace(identity)))
	return Digest(hex.EncodeToString(h.Sum(nil)))
}

// Verify recomputes the digest from a reveal and compares it against the stored one.
func Verify(d Digest, move, nonce uint64, identity string) bool {
	want := Commit(move, nonce, identity)
	return subtle.ConstantTimeCompare([]byte(want), []byte(normalize(d))) == 1
}

// NewNonce returns a 64-bit blinding value from crypto/rand.
func NewNonce() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("nonce entropy: %w", err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// Parse validates an externally supplied digest string (64 hex chars).
func Parse(s string) (Digest, error) {
	v := normalize(Digest(s))
	if len(v) != sha256.Size*2 {
		return "", fmt.Errorf("%w: want %d hex chars, got %d", ErrMalformedDigest, sha256.Size*2, len(v))
	}
	if _, err := hex.DecodeString(string(v)); err != nil {
		return "", fmt.Errorf("%w: not hex", ErrMalformedDigest)
	}
	return v, nil
}

func normalize(d Digest) Digest {
	return Digest(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(string(d)), "0x")))
}
