// Package nocloud keeps a tree of private files encrypted at rest, with
// owner-only permissions, and mirrors it to remote storage.
//
// A directory tree is governed by configuration documents named
// .no-cloud.yml (or .no-cloud.yml.crypt when the document itself is
// encrypted). The nearest document above a file selects the remote driver
// and credentials used for that file:
//
//	~/Documents/.no-cloud.yml          driver: s3, bucket: docs
//	~/Documents/invoices/.no-cloud.yml driver: minio, bucket: invoices
//
// # Packages
//
//   - walker: lazy depth-first traversal of regular files
//   - audit: classifies files and repairs permissions
//   - crypt: password based authenticated encryption of files
//   - resolver: finds and loads the configuration governing a path
//   - syncer: push and pull with per-file failure isolation
//
// # Drivers
//
// Drivers register themselves with [RegisterDriver] from an init function,
// so a blank import is enough to make them available:
//
//	import _ "github.com/gobeaver/nocloud/driver/s3"
//
// Available drivers are s3, minio, local and memory. The sftp driver is part
// of the configuration schema but always fails with [ErrUnsupportedDriver].
//
// # Errors
//
// Every failure wraps one of the sentinel errors below, and [Kind] reduces
// an error to the name shown in reports:
//
//	report, err := engine.Push(ctx, root)
//	for _, o := range report.Failed() {
//	    fmt.Println(o.Path, nocloud.Kind(o.Err))
//	}
package nocloud
