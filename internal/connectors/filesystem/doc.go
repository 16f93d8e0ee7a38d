// Package filesystem loads documents from local files and manifests and
// watches directories for changes.
package filesystem
