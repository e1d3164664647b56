//go:build !unix

package mmap

import "os"

func osMap(*os.File, int, bool) ([]byte, error) { return nil, ErrUnsupported }

func osUnmap([]byte) error { return nil }

func osSync([]byte) error { return ErrUnsupported }

func osAdvise([]byte, AccessPattern) error { return nil }
