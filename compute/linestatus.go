package compute

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/metroinfo/metrobot/types"
	msgpack "gopkg.in/vmihailenco/msgpack.v2"
)

// Fingerprint returns the hex-encoded SHA-256 digest of the canonical
// encoding of a line status. Structurally equal statuses always produce the
// same fingerprint.
func Fingerprint(status *types.LineStatus) (string, error) {
	encoded, err := msgpack.Marshal(status)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// FingerprintsEqual returns whether the current status of a line still matches
// a previously stored fingerprint
func FingerprintsEqual(status *types.LineStatus, stored string) (bool, string, error) {
	current, err := Fingerprint(status)
	if err != nil {
		return false, "", err
	}
	return current == stored, current, nil
}
