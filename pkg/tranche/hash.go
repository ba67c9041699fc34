package tranche

import (
	"encoding/hex"
	"strings"

	"github.com/Mindburn-Labs/covenant/pkg/faults"
	"golang.org/x/crypto/sha3"
	"golang.org/x/text/unicode/norm"
)

// Hash is a 32-byte milestone commitment.
type Hash [32]byte

// Commit derives the commitment for a milestone description: keccak-256 over
// the NFC form of the text, so visually identical inputs commit identically.
func Commit(milestone string) Hash {
	var h Hash
	d := sha3.NewLegacyKeccak256()
	d.Write([]byte(norm.NFC.String(milestone)))
	copy(h[:], d.Sum(nil))
	return h
}

// ParseHash parses 64 hex digits with an optional 0x prefix.
func ParseHash(s string) (Hash, error) {
	var h Hash
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(raw) != 64 {
		return h, faults.New(faults.CodeInvalidCommitment, "want 64 hex digits, got %d", len(raw))
	}
	if _, err := hex.Decode(h[:], []byte(raw)); err != nil {
		return Hash{}, faults.New(faults.CodeInvalidCommitment, "%v", err)
	}
	return h, nil
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(b []byte) error {
	parsed, err := ParseHash(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
