// Package cryptoutil seals manifest files and config files at rest.
package cryptoutil

import (
	"encoding/base64"
	"encoding/hex"
	"os"
	"strings"

	"github.com/juju/errors"
)

// KeySize is the length of every key accepted by this package.
const KeySize = 32

// ParseKey decodes a 32-byte key. The literal may be prefixed with
// "base64:", "hex:" or "file:", the latter naming a file (typically a
// mounted secret) that holds the encoded key. Unprefixed literals are tried
// as base64 first, then as hex.
func ParseKey(literal string) ([]byte, error) {
	literal = strings.TrimSpace(literal)
	if literal == "" {
		return nil, errors.NotValidf("empty encryption key")
	}

	if path, ok := strings.CutPrefix(literal, "file:"); ok {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Annotatef(err, "read encryption key file %s", path)
		}
		if strings.HasPrefix(strings.TrimSpace(string(raw)), "file:") {
			return nil, errors.NotValidf("nested key file reference in %s", path)
		}
		return ParseKey(string(raw))
	}

	var (
		key []byte
		err error
	)
	if encoded, ok := strings.CutPrefix(literal, "base64:"); ok {
		key, err = base64.StdEncoding.DecodeString(encoded)
	} else if encoded, ok := strings.CutPrefix(literal, "hex:"); ok {
		key, err = hex.DecodeString(encoded)
	} else if key, err = base64.StdEncoding.DecodeString(literal); err != nil {
		key, err = hex.DecodeString(literal)
	}
	if err != nil {
		return nil, errors.NewNotValid(err, "encryption key is neither base64 nor hex")
	}
	if len(key) != KeySize {
		return nil, errors.NotValidf("encryption key of %d bytes (expected %d)", len(key), KeySize)
	}
	return key, nil
}
