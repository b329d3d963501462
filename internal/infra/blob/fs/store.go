// Package fs implements core.Store on a local directory. Each blob is a file
// under the root with a JSON sidecar (filename + ".meta") holding metadata.
// All file access goes through an os.Root so keys cannot leave the directory.
package fs

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path"
	"slices"
	"strings"
	"time"

	"deckcore/internal/blob/core"
)

const (
	defaultRoot = "./definitions"
	metaSuffix  = ".meta"
)

// Store implements core.Store using the local filesystem. Writers to the
// same key are not serialised.
type Store struct {
	dir  string
	root *os.Root
}

// New opens (creating if needed) the directory at dir.
func New(dir string) (*Store, error) {
	if dir == "" {
		dir = defaultRoot
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("open blob root: %w", err)
	}
	return &Store{dir: dir, root: root}, nil
}

// Driver returns the blob driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

// Root returns the directory blobs are stored under.
func (s *Store) Root() string { return s.dir }

// Close releases the directory handle.
func (s *Store) Close() error { return s.root.Close() }

// checkKey returns the slash-cleaned key or an error for keys that are empty,
// absolute, traverse upwards or collide with sidecar names.
func checkKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("empty key")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid absolute key %q", key)
	}
	if slices.Contains(strings.Split(key, "/"), "..") {
		return "", fmt.Errorf("invalid key traversal %q", key)
	}
	clean := path.Clean(key)
	if strings.HasSuffix(clean, metaSuffix) {
		return "", fmt.Errorf("key %q uses reserved suffix %s", key, metaSuffix)
	}
	return clean, nil
}

type sidecar struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ETag        string            `json:"etag"`
	Size        int64             `json:"size"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func (m sidecar) info(key string) core.Info {
	return core.Info{
		Key:          key,
		Size:         m.Size,
		ContentType:  m.ContentType,
		ETag:         m.ETag,
		Metadata:     core.CloneMetadata(m.Metadata),
		LastModified: m.UpdatedAt,
	}
}

func (s *Store) readSidecar(key string) (sidecar, error) {
	raw, err := s.root.ReadFile(key + metaSuffix)
	if err != nil {
		return sidecar{}, err
	}
	var m sidecar
	if err := json.Unmarshal(raw, &m); err != nil {
		return sidecar{}, fmt.Errorf("decode sidecar for %s: %w", key, err)
	}
	return m, nil
}

func notFound(key string, err error) error {
	if errors.Is(err, iofs.ErrNotExist) {
		return fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	return err
}

// Put buffers r, writes it beside the target and renames it into place.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	k, err := checkKey(key)
	if err != nil {
		return core.Info{}, err
	}
	if _, err := s.root.Stat(k); err == nil && !opts.Overwrite {
		return core.Info{}, fmt.Errorf("blob %s: %w", key, core.ErrExists)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, fmt.Errorf("read blob %s: %w", key, err)
	}
	if dir := path.Dir(k); dir != "." {
		if err := s.root.MkdirAll(dir, 0o755); err != nil {
			return core.Info{}, err
		}
	}
	tmp := fmt.Sprintf("%s.tmp-%d", k, time.Now().UnixNano())
	if err := s.root.WriteFile(tmp, body, 0o644); err != nil {
		return core.Info{}, fmt.Errorf("write blob %s: %w", key, err)
	}
	if err := s.root.Rename(tmp, k); err != nil {
		_ = s.root.Remove(tmp)
		return core.Info{}, err
	}
	sum := sha256.Sum256(body)
	meta := sidecar{
		ContentType: opts.ContentType,
		Metadata:    core.CloneMetadata(opts.Metadata),
		ETag:        hex.EncodeToString(sum[:]),
		Size:        int64(len(body)),
		UpdatedAt:   time.Now().UTC(),
	}
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return core.Info{}, err
	}
	if err := s.root.WriteFile(k+metaSuffix, raw, 0o644); err != nil {
		return core.Info{}, err
	}
	return meta.info(k), nil
}

// Get returns the blob contents. Definitions are small, so the body is read
// eagerly and the file closed before returning.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	k, err := checkKey(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	body, err := s.root.ReadFile(k)
	if err != nil {
		return core.Info{}, nil, notFound(key, err)
	}
	meta, err := s.readSidecar(k)
	if err != nil {
		return core.Info{}, nil, notFound(key, err)
	}
	return meta.info(k), io.NopCloser(bytes.NewReader(body)), nil
}

// Head returns metadata only.
func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	k, err := checkKey(key)
	if err != nil {
		return core.Info{}, err
	}
	meta, err := s.readSidecar(k)
	if err != nil {
		return core.Info{}, notFound(key, err)
	}
	return meta.info(k), nil
}

// Delete removes the blob and its sidecar.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	k, err := checkKey(key)
	if err != nil {
		return false, err
	}
	if err := s.root.Remove(k); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	_ = s.root.Remove(k + metaSuffix)
	return true, nil
}

// List walks the root collecting sidecars whose key matches prefix.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	var infos []core.Info
	err := iofs.WalkDir(s.root.FS(), ".", func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, metaSuffix) {
			return nil
		}
		key := strings.TrimSuffix(p, metaSuffix)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		meta, err := s.readSidecar(key)
		if err != nil {
			return err
		}
		infos = append(infos, meta.info(key))
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(infos, func(a, b core.Info) int { return strings.Compare(a.Key, b.Key) })
	return infos, nil
}
