package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hupe1980/bcache/blobstore"
	minioblob "github.com/hupe1980/bcache/blobstore/minio"
	s3blob "github.com/hupe1980/bcache/blobstore/s3"
	"github.com/hupe1980/bcache/device"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// deviceSpec is a parsed --dev argument.
type deviceSpec struct {
	id     uint32
	kind   string
	target string
}

func parseDeviceSpec(s string) (deviceSpec, error) {
	idStr, rest, ok := strings.Cut(s, "=")
	if !ok {
		return deviceSpec{}, fmt.Errorf("device spec %q: want <id>=<kind>[:<target>]", s)
	}

	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return deviceSpec{}, fmt.Errorf("device spec %q: bad id: %w", s, err)
	}

	kind, target, _ := strings.Cut(rest, ":")
	ds := deviceSpec{id: uint32(id), kind: kind, target: target}

	switch kind {
	case "mem":
	case "file", "mmap", "blob":
		if target == "" {
			return deviceSpec{}, fmt.Errorf("device spec %q: %s needs a target", s, kind)
		}
	default:
		return deviceSpec{}, fmt.Errorf("device spec %q: unknown kind %q", s, kind)
	}
	return ds, nil
}

func (ds deviceSpec) open(ctx context.Context, blockSize int, blocks uint32, syncWrites bool) (device.Device, error) {
	switch ds.kind {
	case "mem":
		return device.NewMemory(blockSize, blocks)
	case "file":
		return device.OpenFile(ds.target, blockSize, blocks, syncWrites)
	case "mmap":
		return device.OpenMmap(ds.target, blockSize, blocks)
	default:
		store, name, err := openStore(ctx, ds.target)
		if err != nil {
			return nil, err
		}
		return device.OpenBlob(ctx, store, name, blockSize, device.WithBlocks(blocks))
	}
}

// openStore resolves a blob target to a store and the device name in it.
// The device name is the last path element.
func openStore(ctx context.Context, target string) (blobstore.BlobStore, string, error) {
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" {
		dir, name := filepath.Split(filepath.Clean(target))
		return blobstore.NewLocalStore(dir), name, nil
	}

	switch u.Scheme {
	case "s3":
		prefix, name := path.Split(strings.Trim(u.Path, "/"))
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("loading AWS config: %w", err)
		}
		return s3blob.NewStore(awss3.NewFromConfig(cfg), u.Host, prefix), name, nil

	case "minio":
		bucket, rest, _ := strings.Cut(strings.Trim(u.Path, "/"), "/")
		prefix, name := path.Split(rest)
		if bucket == "" || name == "" {
			return nil, "", fmt.Errorf("minio target %q: want minio://host/bucket/[prefix/]name", target)
		}
		client, err := minio.New(u.Host, &minio.Options{
			Creds:  credentials.NewEnvMinio(),
			Secure: os.Getenv("MINIO_SECURE") == "true",
		})
		if err != nil {
			return nil, "", err
		}
		return minioblob.NewStore(client, bucket, prefix), name, nil

	default:
		return nil, "", fmt.Errorf("blob target %q: unknown scheme %q", target, u.Scheme)
	}
}
