// bcachectl is an interactive shell over a block buffer cache.
//
// Usage:
//
//	bcachectl [options] --dev <id>=<kind>:<target> ...
//
// Device specs:
//
//	1=mem                              ramdisk
//	2=file:disk.img                    disk image, pread/pwrite
//	3=mmap:disk.img                    disk image, memory mapped
//	4=blob:/var/lib/blobs/disk0        one object per block, local directory
//	5=blob:s3://bucket/prefix/disk0    ... in S3 (AWS default credentials)
//	6=blob:minio://host:9000/bucket/disk0
//	                                   ... in MinIO (MINIO_ACCESS_KEY, MINIO_SECRET_KEY)
//
// Commands (in REPL):
//
//	read <dev> <block> [n]        Dump the first n bytes of a block
//	write <dev> <block> <data>    Write data (hex or text) at the start of a block
//	pin <dev> <block>             Keep a block cached
//	unpin <dev> <block>           Undo one pin
//	invalidate <dev>              Drop the cached blocks of a device
//	sync <dev>                    Flush a device
//	stats                         Show cache counters
//	devices                       List mounted devices
//	help                          Show this help
//	exit / quit / q               Exit
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hupe1980/bcache"
	flag "github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type cliOptions struct {
	configPath string
	devices    []string
	blocks     uint32
	syncWrites bool
	buffers    int
	buckets    int
	blockSize  int
	verbose    bool
}

func parseFlags(args []string, errOut io.Writer) (cliOptions, error) {
	var o cliOptions

	fs := flag.NewFlagSet("bcachectl", flag.ContinueOnError)
	fs.SetOutput(errOut)

	fs.StringVarP(&o.configPath, "config", "c", "", "cache config file (JSON with comments)")
	fs.StringArrayVarP(&o.devices, "dev", "d", nil, "device spec <id>=<kind>[:<target>] (repeatable)")
	fs.Uint32VarP(&o.blocks, "blocks", "n", 1024, "blocks per fixed-size device")
	fs.BoolVar(&o.syncWrites, "sync", false, "fsync file devices after every write")
	fs.IntVar(&o.buffers, "buffers", 0, "number of buffers (overrides config)")
	fs.IntVar(&o.buckets, "buckets", 0, "number of hash buckets (overrides config)")
	fs.IntVar(&o.blockSize, "block-size", 0, "block size in bytes (overrides config)")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "log at debug level")

	fs.Usage = func() {
		fmt.Fprintf(errOut, "Usage: bcachectl [options] --dev <id>=<kind>[:<target>] ...\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}
	if len(o.devices) == 0 {
		fs.Usage()
		return cliOptions{}, errors.New("no devices given")
	}
	return o, nil
}

// cacheOptions merges the config file with flag overrides.
func (o cliOptions) cacheOptions() ([]bcache.Option, error) {
	var cfg bcache.Config
	if o.configPath != "" {
		var err error
		if cfg, err = bcache.LoadConfig(o.configPath); err != nil {
			return nil, err
		}
	}

	if o.buffers != 0 {
		cfg.Buffers = o.buffers
	}
	if o.buckets != 0 {
		cfg.Buckets = o.buckets
	}
	if o.blockSize != 0 {
		cfg.BlockSize = o.blockSize
	}

	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	if o.verbose {
		opts = append(opts, bcache.WithLogLevel(slog.LevelDebug))
	}
	return opts, nil
}

func run(args []string) error {
	o, err := parseFlags(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	opts, err := o.cacheOptions()
	if err != nil {
		return err
	}

	c, err := bcache.New(opts...)
	if err != nil {
		return fmt.Errorf("creating cache: %w", err)
	}
	defer c.Close()

	ctx := context.Background()
	for _, spec := range o.devices {
		ds, err := parseDeviceSpec(spec)
		if err != nil {
			return err
		}
		d, err := ds.open(ctx, c.BlockSize(), o.blocks, o.syncWrites)
		if err != nil {
			return fmt.Errorf("opening device %d: %w", ds.id, err)
		}
		if err := c.Mount(ds.id, d); err != nil {
			_ = d.Close()
			return err
		}
	}

	r := newREPL(c, os.Stdout)
	return r.Run()
}
