// Package keyfile manages the shared signing secret. The daemon generates a
// fresh key at every start and writes it where co-located verifiers can
// load it.
package keyfile

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Unidata/tds-sub001/errors"
)

// KeySize is the number of random bytes in a generated key.
const KeySize = 32

// Generate returns a new random key.
func Generate() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSecretKey, "failed to generate secret key")
	}
	return key, nil
}

// Write stores the key hex-encoded at path, replacing any previous file.
// The file is readable by the owner only.
func Write(path string, key []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.Wrap(err, errors.ErrCodeSecretKey, "failed to create key directory").
			WithDetail("path", dir)
	}

	tmp, err := os.CreateTemp(dir, ".tdm-key-*")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSecretKey, "failed to create temporary key file").
			WithDetail("path", dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.ErrCodeSecretKey, "failed to restrict key file permissions")
	}
	if _, err := tmp.WriteString(hex.EncodeToString(key) + "\n"); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.ErrCodeSecretKey, "failed to write key file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeSecretKey, "failed to close key file")
	}

	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrap(err, errors.ErrCodeSecretKey, "failed to install key file").
			WithDetail("path", path)
	}
	return nil
}

// Read loads a key previously stored with Write.
func Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSecretKey, "failed to read key file").
			WithDetail("path", path)
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSecretKey, "key file is not hex encoded").
			WithDetail("path", path)
	}
	if len(key) == 0 {
		return nil, errors.New(errors.ErrCodeSecretKey, fmt.Sprintf("key file %s is empty", path))
	}
	return key, nil
}

// Rotate generates a key and writes it to path.
func Rotate(path string) ([]byte, error) {
	key, err := Generate()
	if err != nil {
		return nil, err
	}
	if err := Write(path, key); err != nil {
		return nil, err
	}
	return key, nil
}
