package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"

	"github.com/juju/errors"
)

// An encrypted config file is a fixed header followed by the AES-GCM
// ciphertext. The header is authenticated as additional data.
const (
	configMagic   = "SBU1"
	configVersion = uint16(1)
	nonceSize     = 12
	headerSize    = len(configMagic) + 2 + nonceSize
)

func configAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.NewNotValid(err, "config key")
	}
	return cipher.NewGCMWithNonceSize(block, nonceSize)
}

// EncryptConfig seals a config file.
func EncryptConfig(plain, key []byte) ([]byte, error) {
	aead, err := configAEAD(key)
	if err != nil {
		return nil, err
	}
	header := make([]byte, headerSize)
	copy(header, configMagic)
	binary.BigEndian.PutUint16(header[len(configMagic):], configVersion)
	nonce := header[len(configMagic)+2:]
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Annotate(err, "generate nonce")
	}
	return aead.Seal(header, nonce, plain, header), nil
}

// DecryptConfig opens a file produced by EncryptConfig.
func DecryptConfig(sealed, key []byte) ([]byte, error) {
	if len(sealed) < headerSize {
		return nil, errors.NotValidf("encrypted config of %d bytes", len(sealed))
	}
	header := sealed[:headerSize]
	if string(header[:len(configMagic)]) != configMagic {
		return nil, errors.NotValidf("encrypted config header")
	}
	if v := binary.BigEndian.Uint16(header[len(configMagic):]); v != configVersion {
		return nil, errors.NotSupportedf("encrypted config version %d", v)
	}
	aead, err := configAEAD(key)
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, header[len(configMagic)+2:], sealed[headerSize:], header)
	if err != nil {
		return nil, errors.Annotate(err, "open encrypted config")
	}
	return plain, nil
}
