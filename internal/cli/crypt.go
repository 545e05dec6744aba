package cli

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/gobeaver/nocloud"
	"github.com/gobeaver/nocloud/crypt"
	"github.com/gobeaver/nocloud/resolver"
	"github.com/gobeaver/nocloud/walker"
)

// newCipher is overridden in tests to use cheaper key derivation
var newCipher = func() *crypt.Cipher { return crypt.New() }

type cryptFlags struct {
	dryRun bool
	keep   bool
}

func (f *cryptFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "List the files that would change")
	cmd.Flags().BoolVar(&f.keep, "keep", false, "Keep the source files")
}

func newEncryptCmd(a *app) *cobra.Command {
	var flags cryptFlags
	cmd := &cobra.Command{
		Use:   "encrypt [path...]",
		Short: "Encrypt cleartext files.",
		Long: "Replace every cleartext file under each path with an encrypted\n" +
			"copy named after it with a .crypt suffix.",
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := a.collect(args, func(name string) bool { return !nocloud.IsEncrypted(name) })
			if err != nil {
				return err
			}
			return a.transform("encrypt", files, flags, confirmedPassword, newCipher().EncryptFile)
		},
	}
	flags.register(cmd)
	return cmd
}

func newDecryptCmd(a *app) *cobra.Command {
	var flags cryptFlags
	cmd := &cobra.Command{
		Use:   "decrypt [path...]",
		Short: "Decrypt .crypt files.",
		Long: "Replace every .crypt file under each path with its plaintext.\n" +
			"Files that fail to decrypt are left untouched.",
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := a.collect(args, nocloud.IsEncrypted)
			if err != nil {
				return err
			}
			return a.transform("decrypt", files, flags, func(p resolver.Passwords) ([]byte, error) {
				return p.Password(resolver.DecryptPrompt)
			}, newCipher().DecryptFile)
		},
	}
	flags.register(cmd)
	return cmd
}

// collect lists the files under args accepted by match
func (a *app) collect(args []string, match func(string) bool) ([]string, error) {
	paths, err := targets(args)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, p := range paths {
		found, err := walker.Files(walker.Walk(a.fs, p, a.walkOptions()...))
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			if match(f) {
				files = append(files, f)
			}
		}
	}
	return files, nil
}

type fileFunc func(fsys afero.Fs, name string, password []byte, keep bool) (string, error)

func (a *app) transform(op string, files []string, flags cryptFlags, password func(resolver.Passwords) ([]byte, error), fn fileFunc) error {
	if len(files) == 0 {
		a.log.Infof("Nothing to %s", op)
		return nil
	}
	if flags.dryRun {
		for _, f := range files {
			fmt.Fprintf(a.stdout, "would %s %s\n", op, f)
		}
		return nil
	}

	pw, err := password(a.passwords)
	if err != nil {
		return err
	}

	var failures []failure
	for _, f := range files {
		out, err := fn(a.fs, f, pw, flags.keep)
		if err != nil {
			a.log.WithError(err).WithField("path", f).Warnf("Failed to %s", op)
			failures = append(failures, failure{path: f, err: err})
			continue
		}
		fmt.Fprintf(a.stdout, "%s -> %s\n", f, out)
	}

	writeFailures(a.stderr, failures)
	return failedError(op, len(failures))
}
