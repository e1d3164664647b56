//go:build !unix

package device

import "os"

func pread(f *os.File, p []byte, off int64) error {
	_, err := f.ReadAt(p, off)
	return err
}

func pwrite(f *os.File, p []byte, off int64) error {
	_, err := f.WriteAt(p, off)
	return err
}

func fsync(f *os.File) error {
	return f.Sync()
}
