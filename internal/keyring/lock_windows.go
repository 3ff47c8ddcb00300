//go:build windows

package keyring

import "os"

// lockFile is a no-op on Windows. Windows Credential Manager is the primary
// backend there, so concurrent first-run races on the file fallback are rare.
func lockFile(f *os.File) (unlock func(), err error) {
	return func() {}, nil
}
