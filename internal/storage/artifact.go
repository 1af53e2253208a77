package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/timmy/emosense/internal/vector"
)

const (
	indexContentType = "application/octet-stream"
	metaContentType  = "application/json"
)

// PublishIndex uploads the index payload at localPath to key and its metadata
// sidecar to key+".meta". If the sidecar upload fails the payload is removed
// again, so a key never resolves to a payload without metadata.
func PublishIndex(ctx context.Context, store ObjectStorage, localPath, key string) error {
	if err := uploadFile(ctx, store, localPath, key, indexContentType); err != nil {
		return err
	}
	if err := uploadFile(ctx, store, vector.MetaPath(localPath), vector.MetaPath(key), metaContentType); err != nil {
		if derr := store.Delete(ctx, key); derr != nil {
			return errors.Join(err, fmt.Errorf("rollback %s: %w", key, derr))
		}
		return err
	}
	return nil
}

// FetchIndex downloads the artifacts published under key to localPath (and its
// sidecar). Both objects must exist; a missing one yields an error wrapping
// fs.ErrNotExist. Files are staged and renamed only after both downloads succeed.
func FetchIndex(ctx context.Context, store ObjectStorage, key, localPath string) error {
	for _, k := range []string{key, vector.MetaPath(key)} {
		ok, err := store.Exists(ctx, k)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", k, err)
		}
		if !ok {
			return fmt.Errorf("fetch %s: %w", k, ErrObjectNotFound)
		}
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	payloadTmp, err := downloadTemp(ctx, store, key, localPath)
	if err != nil {
		return err
	}
	defer os.Remove(payloadTmp)

	metaPath := vector.MetaPath(localPath)
	metaTmp, err := downloadTemp(ctx, store, vector.MetaPath(key), metaPath)
	if err != nil {
		return err
	}
	defer os.Remove(metaTmp)

	if err := os.Rename(metaTmp, metaPath); err != nil {
		return fmt.Errorf("failed to install index metadata: %w", err)
	}
	if err := os.Rename(payloadTmp, localPath); err != nil {
		return fmt.Errorf("failed to install index payload: %w", err)
	}
	return nil
}

func uploadFile(ctx context.Context, store ObjectStorage, path, key, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := store.Upload(ctx, key, f, info.Size(), contentType); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

// downloadTemp writes object key into a temp file next to target and returns its path.
func downloadTemp(ctx context.Context, store ObjectStorage, key, target string) (string, error) {
	body, err := store.Download(ctx, key)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", key, err)
	}
	defer body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".download-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("fetch %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("fetch %s: %w", key, err)
	}
	return tmp.Name(), nil
}
