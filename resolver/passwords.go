package resolver

import (
	"sync"
)

// Passwords supplies the password needed to decrypt a configuration
// document.
type Passwords interface {
	Password(prompt string) ([]byte, error)
}

// PasswordFunc adapts a function to Passwords.
type PasswordFunc func(prompt string) ([]byte, error)

// Password calls f.
func (f PasswordFunc) Password(prompt string) ([]byte, error) {
	return f(prompt)
}

// StaticPassword always returns the same password.
type StaticPassword []byte

// Password returns p.
func (p StaticPassword) Password(string) ([]byte, error) {
	return p, nil
}

// Once asks p a single time per prompt and replays the answer. Failures are
// not cached.
func Once(p Passwords) Passwords {
	return &oncePasswords{next: p, cache: make(map[string][]byte)}
}

type oncePasswords struct {
	mu    sync.Mutex
	next  Passwords
	cache map[string][]byte
}

func (o *oncePasswords) Password(prompt string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if pw, ok := o.cache[prompt]; ok {
		return pw, nil
	}
	pw, err := o.next.Password(prompt)
	if err != nil {
		return nil, err
	}
	o.cache[prompt] = pw
	return pw, nil
}
