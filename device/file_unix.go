//go:build unix

package device

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

func pread(f *os.File, p []byte, off int64) error {
	fd := int(f.Fd())
	for len(p) > 0 {
		n, err := unix.Pread(fd, p, off)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return &os.PathError{Op: "pread", Path: f.Name(), Err: err}
		}
		if n == 0 {
			return io.ErrUnexpectedEOF
		}
		p = p[n:]
		off += int64(n)
	}
	return nil
}

func pwrite(f *os.File, p []byte, off int64) error {
	fd := int(f.Fd())
	for len(p) > 0 {
		n, err := unix.Pwrite(fd, p, off)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return &os.PathError{Op: "pwrite", Path: f.Name(), Err: err}
		}
		p = p[n:]
		off += int64(n)
	}
	return nil
}

func fsync(f *os.File) error {
	if err := unix.Fsync(int(f.Fd())); err != nil {
		return &os.PathError{Op: "fsync", Path: f.Name(), Err: err}
	}
	return nil
}
