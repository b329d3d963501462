package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"deckcore/internal/blob/core"
)

func TestFilesystemStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "defs")
	s, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.Driver() != core.DriverFilesystem || s.Root() != root {
		t.Fatalf("unexpected store %+v", s)
	}

	keys := []string{"labware/opentrons/plate/1.json", "labware/opentrons/plate/2.json", "pipettes/p20_single_gen2.json"}
	for _, k := range keys {
		if _, err := s.Put(ctx, k, bytes.NewBufferString(`{"k":"`+k+`"}`), core.PutOptions{ContentType: "application/json"}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "labware", "opentrons", "plate", "1.json.meta")); err != nil {
		t.Fatalf("expected sidecar: %v", err)
	}
	if _, err := s.Put(ctx, keys[0], bytes.NewBufferString("x"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	list, err := s.List(ctx, "labware/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var got []string
	for _, info := range list {
		got = append(got, info.Key)
	}
	if diff := cmp.Diff(keys[:2], got); diff != "" {
		t.Fatalf("list mismatch (-want +got):\n%s", diff)
	}

	info, rc, err := s.Get(ctx, keys[2])
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if info.Size != int64(len(body)) || info.ContentType != "application/json" || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}

	if ok, err := s.Delete(ctx, keys[2]); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := s.Delete(ctx, keys[2]); err != nil || ok {
		t.Fatalf("second delete: %v %v", ok, err)
	}
	if _, _, err := s.Get(ctx, keys[2]); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Head(ctx, keys[2]); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from head, got %v", err)
	}
}

func TestFilesystemStoreRejectsUnsafeKeys(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, key := range []string{"", "/etc/passwd", "../escape", "a/../../b", "x.json.meta"} {
		if _, err := s.Put(context.Background(), key, bytes.NewBufferString("x"), core.PutOptions{}); err == nil {
			t.Fatalf("expected key %q to be rejected", key)
		}
	}
}

func TestFilesystemStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	first, err := s.Put(ctx, "pipettes/a.json", bytes.NewBufferString("one"), core.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	second, err := s.Put(ctx, "pipettes/a.json", bytes.NewBufferString("two!"), core.PutOptions{Overwrite: true})
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if first.ETag == second.ETag || second.Size != 4 {
		t.Fatalf("expected new content, got %+v", second)
	}
}
