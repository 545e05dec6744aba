package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/gobeaver/nocloud/resolver"
)

const (
	encryptPrompt = "Encryption password"
	confirmPrompt = "Confirm password"
)

var errPasswordMismatch = errors.New("passwords do not match")

// Overridden in tests
var readPassword = term.ReadPassword

// terminalPasswords reads passwords from the terminal without echo
type terminalPasswords struct {
	out io.Writer
}

func (p terminalPasswords) Password(prompt string) ([]byte, error) {
	fmt.Fprintf(p.out, "%s: ", prompt)
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(p.out)
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	if len(pw) == 0 {
		return nil, errors.New("empty password")
	}
	return pw, nil
}

// confirmedPassword asks for a new password twice
func confirmedPassword(p resolver.Passwords) ([]byte, error) {
	pw, err := p.Password(encryptPrompt)
	if err != nil {
		return nil, err
	}
	again, err := p.Password(confirmPrompt)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(pw, again) {
		return nil, errPasswordMismatch
	}
	return pw, nil
}
