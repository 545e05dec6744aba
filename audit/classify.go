package audit

import (
	"fmt"

	"github.com/spf13/afero"

	"github.com/gobeaver/nocloud"
)

// SecurityState is the classification of one file.
type SecurityState struct {
	Encrypted     bool
	ModeCompliant bool
}

// Compliant reports whether there is nothing to report for the file.
func (s SecurityState) Compliant() bool {
	return s.Encrypted && s.ModeCompliant
}

// Code renders the state as two status characters: 'c' for cleartext and
// 'm' for a wrong mode, blanks otherwise.
func (s SecurityState) Code() string {
	code := []byte("  ")
	if !s.Encrypted {
		code[0] = 'c'
	}
	if !s.ModeCompliant {
		code[1] = 'm'
	}
	return string(code)
}

// Classify derives the state from the entry's name and permission bits.
func Classify(entry nocloud.FileEntry) SecurityState {
	return SecurityState{
		Encrypted:     nocloud.IsEncrypted(entry.Path),
		ModeCompliant: entry.Mode.Perm() == nocloud.SecureMode,
	}
}

// Fix sets the secure mode on the entry's file. It does nothing when the
// mode already complies.
func Fix(fsys afero.Fs, entry nocloud.FileEntry) error {
	if entry.Mode.Perm() == nocloud.SecureMode {
		return nil
	}
	if err := fsys.Chmod(entry.Path, nocloud.SecureMode); err != nil {
		return &nocloud.PathError{Op: "chmod", Path: entry.Path, Err: fmt.Errorf("%w: %w", nocloud.ErrIO, err)}
	}
	return nil
}
