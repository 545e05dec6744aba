package crypt

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/gobeaver/nocloud"
)

// EncryptFile writes name+".crypt" with mode 0600 and removes name unless
// keep is set. It returns the path written.
func (c *Cipher) EncryptFile(fsys afero.Fs, name string, password []byte, keep bool) (string, error) {
	if nocloud.IsEncrypted(name) {
		return "", &nocloud.PathError{Op: "encrypt", Path: name, Err: fmt.Errorf("already encrypted")}
	}

	data, err := afero.ReadFile(fsys, name)
	if err != nil {
		return "", &nocloud.PathError{Op: "encrypt", Path: name, Err: fmt.Errorf("%w: %w", nocloud.ErrIO, err)}
	}

	token, err := c.Encrypt(data, password)
	if err != nil {
		return "", &nocloud.PathError{Op: "encrypt", Path: name, Err: err}
	}

	target := name + nocloud.EncryptedSuffix
	if err := nocloud.WriteFileAtomic(fsys, target, bytes.NewReader(token), nocloud.SecureMode); err != nil {
		return "", err
	}
	if !keep {
		if err := fsys.Remove(name); err != nil {
			return target, &nocloud.PathError{Op: "remove", Path: name, Err: fmt.Errorf("%w: %w", nocloud.ErrIO, err)}
		}
	}
	return target, nil
}

// DecryptFile writes the plaintext of a ".crypt" file next to it and removes
// the ciphertext unless keep is set. On a wrong password nothing is
// written or removed.
func (c *Cipher) DecryptFile(fsys afero.Fs, name string, password []byte, keep bool) (string, error) {
	if !nocloud.IsEncrypted(name) {
		return "", &nocloud.PathError{Op: "decrypt", Path: name, Err: fmt.Errorf("missing %s suffix", nocloud.EncryptedSuffix)}
	}

	token, err := afero.ReadFile(fsys, name)
	if err != nil {
		return "", &nocloud.PathError{Op: "decrypt", Path: name, Err: fmt.Errorf("%w: %w", nocloud.ErrIO, err)}
	}

	data, err := c.Decrypt(token, password)
	if err != nil {
		return "", &nocloud.PathError{Op: "decrypt", Path: name, Err: err}
	}

	target := strings.TrimSuffix(name, nocloud.EncryptedSuffix)
	if err := nocloud.WriteFileAtomic(fsys, target, bytes.NewReader(data), nocloud.SecureMode); err != nil {
		return "", err
	}
	if !keep {
		if err := fsys.Remove(name); err != nil {
			return target, &nocloud.PathError{Op: "remove", Path: name, Err: fmt.Errorf("%w: %w", nocloud.ErrIO, err)}
		}
	}
	return target, nil
}

// ReadFile decrypts a file in memory without writing anything.
func (c *Cipher) ReadFile(fsys afero.Fs, name string, password []byte) ([]byte, error) {
	token, err := afero.ReadFile(fsys, name)
	if err != nil {
		return nil, &nocloud.PathError{Op: "decrypt", Path: name, Err: fmt.Errorf("%w: %w", nocloud.ErrIO, err)}
	}
	data, err := c.Decrypt(token, password)
	if err != nil {
		return nil, &nocloud.PathError{Op: "decrypt", Path: name, Err: err}
	}
	return data, nil
}
