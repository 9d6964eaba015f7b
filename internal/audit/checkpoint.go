package audit

import (
	"crypto/ed25519"
	"errors"

	"github.com/davidahmann/gatelog/internal/crypto"
)

var (
	ErrCheckpointDigest    = errors.New("checkpoint digest mismatch")
	ErrCheckpointSignature = errors.New("checkpoint signature invalid")
)

type Signer interface {
	KeyID() string
	SignEd25519(digest []byte) ([]byte, error)
}

// KeySigner signs with an in-memory Ed25519 private key.
type KeySigner struct {
	keyID string
	priv  ed25519.PrivateKey
}

func NewKeySigner(keyID string, priv ed25519.PrivateKey) *KeySigner {
	return &KeySigner{keyID: keyID, priv: priv}
}

func (s *KeySigner) KeyID() string { return s.keyID }

func (s *KeySigner) SignEd25519(digest []byte) ([]byte, error) {
	return crypto.SignEd25519(s.priv, digest)
}

// Checkpoint is a signed attestation of the chain head, exportable to
// operators without shipping the whole log.
type Checkpoint struct {
	Sequence  int64  `json:"sequence"`
	TailHash  string `json:"tail_hash"`
	CreatedAt string `json:"created_at"`
	KeyID     string `json:"key_id"`
	Digest    string `json:"digest"`
	Sig       []byte `json:"sig"`
}

func checkpointBody(sequence int64, tailHash, createdAt, keyID string) map[string]any {
	return map[string]any{
		"sequence":   sequence,
		"tail_hash":  tailHash,
		"created_at": createdAt,
		"key_id":     keyID,
	}
}

// Checkpoint canonicalizes and signs the current chain head.
func (l *Logger) Checkpoint(signer Signer, createdAt string) (Checkpoint, error) {
	l.mu.Lock()
	sequence := l.seq
	tailHash := l.tail
	l.mu.Unlock()

	canonical, err := crypto.Canonicalize(checkpointBody(sequence, tailHash, createdAt, signer.KeyID()))
	if err != nil {
		return Checkpoint{}, err
	}

	digestBytes := crypto.DigestBytes(canonical)
	sig, err := signer.SignEd25519(digestBytes)
	if err != nil {
		return Checkpoint{}, err
	}

	return Checkpoint{
		Sequence:  sequence,
		TailHash:  tailHash,
		CreatedAt: createdAt,
		KeyID:     signer.KeyID(),
		Digest:    crypto.DigestWithPrefix(canonical),
		Sig:       sig,
	}, nil
}

// VerifyCheckpoint validates digest consistency and signature.
func VerifyCheckpoint(cp Checkpoint, publicKey ed25519.PublicKey) error {
	canonical, err := crypto.Canonicalize(checkpointBody(cp.Sequence, cp.TailHash, cp.CreatedAt, cp.KeyID))
	if err != nil {
		return err
	}
	if crypto.DigestWithPrefix(canonical) != cp.Digest {
		return ErrCheckpointDigest
	}

	ok, err := crypto.VerifyEd25519(publicKey, crypto.DigestBytes(canonical), cp.Sig)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCheckpointSignature
	}
	return nil
}
