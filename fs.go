package nocloud

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// EncryptedSuffix marks a file as the ciphertext of the same name without it.
	EncryptedSuffix = ".crypt"

	// SecureMode is the only compliant permission mask: owner read/write.
	SecureMode fs.FileMode = 0o600

	// ConfigName is the name of a cleartext configuration document.
	ConfigName = ".no-cloud.yml"
)

// ConfigNames lists configuration document names in lookup priority order.
var ConfigNames = []string{ConfigName + EncryptedSuffix, ConfigName}

// Known driver names.
const (
	DriverS3     = "s3"
	DriverMinio  = "minio"
	DriverSFTP   = "sftp"
	DriverLocal  = "local"
	DriverMemory = "memory"
)

// FileEntry is a regular file found by a traversal. It is built fresh on
// every walk and never cached.
type FileEntry struct {
	Path string
	Size int64
	Mode fs.FileMode
	Dir  string
}

// Name returns the final path segment
func (e FileEntry) Name() string {
	return filepath.Base(e.Path)
}

// IsEncrypted reports whether name carries the encrypted suffix
func IsEncrypted(name string) bool {
	return strings.HasSuffix(filepath.Base(name), EncryptedSuffix)
}

// IsConfigDocument reports whether name is a configuration document
func IsConfigDocument(name string) bool {
	base := filepath.Base(name)
	for _, n := range ConfigNames {
		if base == n {
			return true
		}
	}
	return false
}

// Backend is the capability set every remote driver provides.
type Backend interface {
	// Put uploads the local file, replacing any object stored at key.
	Put(ctx context.Context, localPath, key string) error

	// Get downloads key and replaces localPath. The local file is never
	// left partially written.
	Get(ctx context.Context, key, localPath string) error

	// List returns every key starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Close releases the handle.
	Close() error
}

// RemoteConfig is one parsed configuration document and the directory
// subtree it governs.
type RemoteConfig struct {
	Driver      string
	Credentials map[string]string
	Prefix      string

	// Scope is the directory containing the document.
	Scope string

	// Source is the path of the document.
	Source string
}

// Get returns a credential value or "".
func (c *RemoteConfig) Get(key string) string {
	return c.Credentials[key]
}

// GetDefault returns a credential value or def when unset.
func (c *RemoteConfig) GetDefault(key, def string) string {
	if v := c.Credentials[key]; v != "" {
		return v
	}
	return def
}

// Require fails with ErrConfigParse naming every missing key.
func (c *RemoteConfig) Require(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if c.Credentials[k] == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &PathError{
		Op:   "load",
		Path: c.Source,
		Err:  fmt.Errorf("%w: driver %s requires %s", ErrConfigParse, c.Driver, strings.Join(missing, ", ")),
	}
}

// Key derives the remote key of a local file: its slash path relative to
// the scope, behind the configured prefix.
func (c *RemoteConfig) Key(localPath string) (string, error) {
	rel, err := filepath.Rel(c.Scope, localPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &PathError{Op: "key", Path: localPath, Err: fmt.Errorf("outside scope %s", c.Scope)}
	}
	return c.withPrefix(filepath.ToSlash(rel)), nil
}

// ListPrefix returns the key prefix covering every file under dir.
func (c *RemoteConfig) ListPrefix(dir string) (string, error) {
	rel, err := filepath.Rel(c.Scope, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &PathError{Op: "key", Path: dir, Err: fmt.Errorf("outside scope %s", c.Scope)}
	}
	if rel == "." {
		if c.Prefix == "" {
			return "", nil
		}
		return c.Prefix + "/", nil
	}
	return c.withPrefix(filepath.ToSlash(rel)) + "/", nil
}

// LocalPath maps a remote key back to a path under the scope. Keys outside
// the prefix or escaping the scope are rejected.
func (c *RemoteConfig) LocalPath(key string) (string, bool) {
	if c.Prefix != "" {
		if !strings.HasPrefix(key, c.Prefix+"/") {
			return "", false
		}
		key = strings.TrimPrefix(key, c.Prefix+"/")
	}
	key = strings.TrimPrefix(key, "/")
	if key == "" || strings.HasSuffix(key, "/") {
		return "", false
	}
	clean := path.Clean(key)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false
	}
	return filepath.Join(c.Scope, filepath.FromSlash(clean)), true
}

func (c *RemoteConfig) withPrefix(key string) string {
	if c.Prefix == "" {
		return key
	}
	return c.Prefix + "/" + key
}

// String identifies the config in logs.
func (c *RemoteConfig) String() string {
	return fmt.Sprintf("%s:%s", c.Driver, c.Scope)
}
