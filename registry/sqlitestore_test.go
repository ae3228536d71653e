package registry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T, retention int) *SnapshotStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "snapshots.db")
	store, err := NewSnapshotStore(SnapshotStoreConfig{DSN: dsn, RetentionCount: retention})
	if err != nil {
		t.Fatalf("NewSnapshotStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSnapshotStore_SaveAndGet(t *testing.T) {
	store := newTestStore(t, 0)
	ctx := context.Background()

	id, err := store.Save(ctx, []byte("snapshot-bytes"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if id == "" {
		t.Fatal("Save should return a snapshot id")
	}

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "snapshot-bytes" {
		t.Errorf("Get = %q, want %q", got, "snapshot-bytes")
	}
}

func TestSnapshotStore_GetNotFound(t *testing.T) {
	store := newTestStore(t, 0)
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSnapshotStore_Latest(t *testing.T) {
	store := newTestStore(t, 0)
	ctx := context.Background()

	if _, err := store.Latest(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty store Latest err = %v, want ErrNotFound", err)
	}

	if _, err := store.Save(ctx, []byte("first")); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Save(ctx, []byte("second")); err != nil {
		t.Fatal(err)
	}

	got, err := store.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if string(got) != "second" {
		t.Errorf("Latest = %q, want %q", got, "second")
	}
}

func TestSnapshotStore_List(t *testing.T) {
	store := newTestStore(t, 0)
	ctx := context.Background()

	for _, payload := range []string{"a", "bb", "ccc"} {
		if _, err := store.Save(ctx, []byte(payload)); err != nil {
			t.Fatal(err)
		}
	}

	infos, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("List returned %d entries, want 3", len(infos))
	}
	if infos[0].Size != 3 {
		t.Errorf("newest snapshot size = %d, want 3", infos[0].Size)
	}
	for _, info := range infos {
		if info.ID == "" || info.CreatedAt.IsZero() {
			t.Errorf("incomplete snapshot info: %+v", info)
		}
	}
}

func TestSnapshotStore_Retention(t *testing.T) {
	store := newTestStore(t, 2)
	ctx := context.Background()

	for _, payload := range []string{"one", "two", "three"} {
		if _, err := store.Save(ctx, []byte(payload)); err != nil {
			t.Fatal(err)
		}
	}

	infos, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 2 {
		t.Errorf("retention kept %d snapshots, want 2", len(infos))
	}
	latest, err := store.Latest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(latest) != "three" {
		t.Errorf("Latest = %q, want %q", latest, "three")
	}
}

func TestSnapshotStore_RegistryRoundTrip(t *testing.T) {
	store := newTestStore(t, 0)
	ctx := context.Background()

	src := encryptedRegistry(nil)
	src.Register(testFlow(t, "etl"))
	data, err := src.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Save(ctx, data); err != nil {
		t.Fatal(err)
	}

	stored, err := store.Latest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	dst := encryptedRegistry(nil)
	if err := dst.LoadSerialized(stored); err != nil {
		t.Fatalf("LoadSerialized: %v", err)
	}
	if dst.Len() != 1 {
		t.Errorf("restored registry has %d flows, want 1", dst.Len())
	}
}
