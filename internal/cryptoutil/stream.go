package cryptoutil

import (
	"io"

	"github.com/minio/sio"
)

// EncryptWriter seals everything written to it with DARE. Close must be
// called to flush the final package.
func EncryptWriter(w io.Writer, key []byte) (io.WriteCloser, error) {
	return sio.EncryptWriter(w, sio.Config{Key: key, MinVersion: sio.Version20})
}

// DecryptReader opens a stream written by EncryptWriter.
func DecryptReader(r io.Reader, key []byte) (io.Reader, error) {
	return sio.DecryptReader(r, sio.Config{Key: key, MinVersion: sio.Version20})
}
