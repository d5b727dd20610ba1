package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"barcode-server/internal/logger"
	"barcode-server/internal/models"

	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := OpenFileStore(filepath.Join(t.TempDir(), "database.json"), logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func createTestBarcode(t *testing.T, store Store, uploadedBy int64) int64 {
	t.Helper()
	id, err := store.CreateBarcode(context.Background(), CreateBarcodeParams{
		Filename:     fmt.Sprintf("barcode-%d.png", time.Now().UnixNano()),
		OriginalName: "receipt.png",
		FilePath:     "uploads/receipt.png",
		UploadedBy:   uploadedBy,
	})
	require.NoError(t, err)
	return id
}

func TestFileStore_OpenMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "database.json")
	store, err := OpenFileStore(path, logger.Nop())
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(path)
	require.NoError(t, err, "initial empty document should be written")

	barcodes, err := store.GetAllBarcodes(context.Background())
	require.NoError(t, err)
	require.Empty(t, barcodes)
	require.Equal(t, int64(1), store.doc.nextUserID)
	require.Equal(t, int64(1), store.doc.nextBarcodeID)
}

func TestFileStore_CreateUserIDsIncrease(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		id, err := store.CreateUser(ctx, fmt.Sprintf("user%d", i), "hash")
		require.NoError(t, err)
		require.Greater(t, id, last)
		last = id
	}

	user, err := store.GetUserByUsername(ctx, "user3")
	require.NoError(t, err)
	require.NotNil(t, user)
	require.Equal(t, "hash", user.PasswordHash)
	require.False(t, user.CreatedAt.IsZero())

	byID, err := store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, user, byID)

	missing, err := store.GetUserByID(ctx, 999)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestFileStore_CreateUserDuplicate(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	_, err := store.CreateUser(ctx, "alice", "hash")
	require.NoError(t, err)

	_, err = store.CreateUser(ctx, "alice", "other")
	require.ErrorIs(t, err, ErrUsernameTaken)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, int64(2), store.doc.nextUserID, "rejected user must not consume an id")

	// Username equality is case-sensitive.
	_, err = store.CreateUser(ctx, "Alice", "hash")
	require.NoError(t, err)
}

func TestFileStore_CreateUserConcurrentDuplicate(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.CreateUser(ctx, "racer", "hash")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, taken int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrUsernameTaken):
			taken++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, workers-1, taken)
}

func TestFileStore_IDsNotReusedAfterDelete(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	first := createTestBarcode(t, store, 1)
	deleted, err := store.DeleteBarcode(ctx, first)
	require.NoError(t, err)
	require.True(t, deleted)

	second := createTestBarcode(t, store, 1)
	require.Greater(t, second, first)

	userID, err := store.CreateUser(ctx, "bob", "hash")
	require.NoError(t, err)
	ok, err := store.DeleteUser(ctx, userID)
	require.NoError(t, err)
	require.True(t, ok)

	nextUserID, err := store.CreateUser(ctx, "bob", "hash")
	require.NoError(t, err)
	require.Greater(t, nextUserID, userID)
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	store, err := OpenFileStore(path, logger.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	aliceID, err := store.CreateUser(ctx, "alice", "hash-a")
	require.NoError(t, err)
	_, err = store.CreateUser(ctx, "bob", "hash-b")
	require.NoError(t, err)
	barcodeID := createTestBarcode(t, store, aliceID)
	createTestBarcode(t, store, 42)
	_, err = store.UpdateBarcode(ctx, barcodeID, true, 19.99)
	require.NoError(t, err)

	before := store.doc.clone()
	require.NoError(t, store.Close())

	reopened, err := OpenFileStore(path, logger.Nop())
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, before.users, reopened.doc.users)
	require.Equal(t, before.barcodes, reopened.doc.barcodes)
	require.Equal(t, before.nextUserID, reopened.doc.nextUserID)
	require.Equal(t, before.nextBarcodeID, reopened.doc.nextBarcodeID)
}

func TestFileStore_UpdateBarcode(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	id := createTestBarcode(t, store, 1)
	original, err := store.GetBarcodeByID(ctx, id)
	require.NoError(t, err)

	ok, err := store.UpdateBarcode(ctx, 999, true, 1)
	require.NoError(t, err)
	require.False(t, ok)
	unchanged, err := store.GetBarcodeByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, original, unchanged)

	ok, err = store.UpdateBarcode(ctx, id, true, 12.5)
	require.NoError(t, err)
	require.True(t, ok)

	updated, err := store.GetBarcodeByID(ctx, id)
	require.NoError(t, err)
	require.True(t, updated.IsUsed)
	require.Equal(t, 12.5, updated.Amount)
	require.True(t, updated.UpdatedAt.After(original.UpdatedAt))

	// Everything except is_used, amount and updated_at is untouched.
	expected := *original
	expected.IsUsed = true
	expected.Amount = 12.5
	expected.UpdatedAt = updated.UpdatedAt
	require.Equal(t, expected, *updated)
}

func TestFileStore_UpdatedAtStrictlyIncreasesWithFrozenClock(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()
	frozen := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return frozen }

	id := createTestBarcode(t, store, 1)
	_, err := store.UpdateBarcode(ctx, id, true, 1)
	require.NoError(t, err)

	b, err := store.GetBarcodeByID(ctx, id)
	require.NoError(t, err)
	require.True(t, b.UpdatedAt.After(b.CreatedAt))
}

func TestFileStore_PatchBarcode(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()
	id := createTestBarcode(t, store, 1)

	amount := 7.25
	ok, err := store.PatchBarcode(ctx, id, PatchBarcodeParams{Amount: &amount})
	require.NoError(t, err)
	require.True(t, ok)

	used := true
	ok, err = store.PatchBarcode(ctx, id, PatchBarcodeParams{IsUsed: &used})
	require.NoError(t, err)
	require.True(t, ok)

	b, err := store.GetBarcodeByID(ctx, id)
	require.NoError(t, err)
	require.True(t, b.IsUsed)
	require.Equal(t, 7.25, b.Amount)

	ok, err = store.PatchBarcode(ctx, 999, PatchBarcodeParams{IsUsed: &used})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileStore_PatchBarcodeConcurrentNoLostUpdate(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()
	id := createTestBarcode(t, store, 1)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			used := true
			_, err := store.PatchBarcode(ctx, id, PatchBarcodeParams{IsUsed: &used})
			require.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			amount := 3.0
			_, err := store.PatchBarcode(ctx, id, PatchBarcodeParams{Amount: &amount})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	b, err := store.GetBarcodeByID(ctx, id)
	require.NoError(t, err)
	require.True(t, b.IsUsed)
	require.Equal(t, 3.0, b.Amount)
}

func TestFileStore_DeleteBarcode(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	keep := createTestBarcode(t, store, 1)
	drop := createTestBarcode(t, store, 1)

	ok, err := store.DeleteBarcode(ctx, drop)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.DeleteBarcode(ctx, drop)
	require.NoError(t, err)
	require.False(t, ok)

	all, err := store.GetAllBarcodes(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, keep, all[0].ID)
}

func TestFileStore_GetAllBarcodesNewestFirst(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	offsets := []int{3, 1, 4, 1, 5, 9, 2, 6}
	for _, minutes := range offsets {
		at := base.Add(time.Duration(minutes) * time.Minute)
		store.now = func() time.Time { return at }
		createTestBarcode(t, store, 1)
	}

	all, err := store.GetAllBarcodes(ctx)
	require.NoError(t, err)
	require.Len(t, all, len(offsets))
	for i := 1; i < len(all); i++ {
		require.False(t, all[i].CreatedAt.After(all[i-1].CreatedAt), "index %d is newer than %d", i, i-1)
	}

	// The two records created at +1m tie; the later insertion comes first.
	var tied []int64
	for _, b := range all {
		if b.CreatedAt.Equal(base.Add(time.Minute)) {
			tied = append(tied, b.ID)
		}
	}
	require.Len(t, tied, 2)
	require.Greater(t, tied[0], tied[1])
}

func TestFileStore_PersistFailureLeavesStateUnchanged(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	id := createTestBarcode(t, store, 1)
	before := store.doc.clone()

	diskErr := errors.New("disk full")
	store.write = func([]byte) error { return diskErr }

	_, err := store.CreateUser(ctx, "alice", "hash")
	require.ErrorIs(t, err, ErrPersistence)
	require.ErrorIs(t, err, diskErr)

	_, err = store.UpdateBarcode(ctx, id, true, 5)
	require.ErrorIs(t, err, ErrPersistence)

	_, err = store.DeleteBarcode(ctx, id)
	require.ErrorIs(t, err, ErrPersistence)

	require.Equal(t, before, store.doc)

	user, err := store.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Nil(t, user)
}

func TestFileStore_CorruptFileFallsBackToEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "database.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store, err := OpenFileStore(path, logger.Nop())
	require.NoError(t, err)
	defer store.Close()

	all, err := store.GetAllBarcodes(context.Background())
	require.NoError(t, err)
	require.Empty(t, all)

	matches, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	require.Len(t, matches, 1, "corrupt file should be kept aside")

	kept, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	require.Equal(t, "{not json", string(kept))
}

func TestFileStore_CorruptFileCopiedWhenRenameFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store := newFileStore(path, logger.Nop())
	store.rename = func(string, string) error { return errors.New("rename refused") }
	store.load()
	defer store.Close()

	matches, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	kept, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	require.Equal(t, "{not json", string(kept))

	users, err := store.ListUsers(context.Background())
	require.NoError(t, err)
	require.Empty(t, users)
}

func TestFileStore_UnreadableFileLeftInPlaceWhenRenameFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	require.NoError(t, os.Mkdir(path, 0o755))
	marker := filepath.Join(path, "keep")
	require.NoError(t, os.WriteFile(marker, []byte("x"), 0o600))

	var writes int
	store := newFileStore(path, logger.Nop())
	store.rename = func(string, string) error { return errors.New("rename refused") }
	store.write = func([]byte) error { writes++; return nil }
	store.load()

	require.Zero(t, writes, "empty store must not replace a file that was not preserved")
	_, err := os.Stat(marker)
	require.NoError(t, err)

	matches, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestFileStore_LoadsLegacyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	legacy := `{
  "users": [
    {"id": 1, "username": "alice", "password": "$2a$10$abc", "created_at": "2024-03-01T10:00:00.000Z"}
  ],
  "barcodes": [
    {"id": 4, "filename": "barcode-1.png", "original_name": "a.png", "file_path": "/srv/uploads/barcode-1.png",
     "is_used": 1, "amount": 10.5, "uploaded_by": 1,
     "created_at": "2024-03-01T11:00:00.000Z", "updated_at": "2024-03-01T11:30:00.000Z"},
    {"id": 5, "filename": "barcode-2.png", "original_name": "b.png", "file_path": "/srv/uploads/barcode-2.png",
     "is_used": 0, "amount": 0, "uploaded_by": 7,
     "created_at": "2024-03-02T11:00:00.000Z", "updated_at": "2024-03-02T11:00:00.000Z"}
  ],
  "nextUserId": 2,
  "nextBarcodeId": 3
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	store, err := OpenFileStore(path, logger.Nop())
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	b, err := store.GetBarcodeByID(ctx, 4)
	require.NoError(t, err)
	require.NotNil(t, b)
	require.True(t, b.IsUsed)
	require.Equal(t, 10.5, b.Amount)

	user, err := store.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "$2a$10$abc", user.PasswordHash)

	// nextBarcodeId in the file is behind the stored ids and gets raised.
	id := createTestBarcode(t, store, 1)
	require.Equal(t, int64(6), id)
}

func TestFileStore_ClosedStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	store, err := OpenFileStore(path, logger.Nop())
	require.NoError(t, err)

	_, err = store.CreateUser(context.Background(), "alice", "hash")
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err = store.GetAllBarcodes(context.Background())
	require.ErrorIs(t, err, ErrStoreClosed)
	_, err = store.CreateUser(context.Background(), "bob", "hash")
	require.ErrorIs(t, err, ErrStoreClosed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"username": "alice"`)
}

func TestFileStore_EndToEnd(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	aliceID, err := store.CreateUser(ctx, "alice", "hash")
	require.NoError(t, err)
	barcodeID := createTestBarcode(t, store, aliceID)

	views, err := store.ListBarcodeViews(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, "alice", views[0].UploadedByUsername)
	require.False(t, views[0].IsUsed)
	require.Zero(t, views[0].Amount)

	ok, err := store.UpdateBarcode(ctx, barcodeID, true, 12.5)
	require.NoError(t, err)
	require.True(t, ok)

	view, err := store.GetBarcodeView(ctx, barcodeID)
	require.NoError(t, err)
	require.NotNil(t, view)
	require.True(t, view.IsUsed)
	require.Equal(t, 12.5, view.Amount)
	require.True(t, view.UpdatedAt.After(view.CreatedAt))

	ok, err = store.DeleteBarcode(ctx, barcodeID)
	require.NoError(t, err)
	require.True(t, ok)

	gone, err := store.GetBarcodeView(ctx, barcodeID)
	require.NoError(t, err)
	require.Nil(t, gone)

	views, err = store.ListBarcodeViews(ctx)
	require.NoError(t, err)
	require.Empty(t, views)

	ok, err = store.DeleteBarcode(ctx, barcodeID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileStore_DeletedUploaderResolvesUnknown(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	userID, err := store.CreateUser(ctx, "carol", "hash")
	require.NoError(t, err)
	barcodeID := createTestBarcode(t, store, userID)

	ok, err := store.DeleteUser(ctx, userID)
	require.NoError(t, err)
	require.True(t, ok)

	view, err := store.GetBarcodeView(ctx, barcodeID)
	require.NoError(t, err)
	require.Equal(t, models.UnknownUsername, view.UploadedByUsername)
	require.Equal(t, userID, view.UploadedBy)
}

func TestFileStore_UpdateUserPassword(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	id, err := store.CreateUser(ctx, "dave", "old")
	require.NoError(t, err)

	ok, err := store.UpdateUserPassword(ctx, id, "new")
	require.NoError(t, err)
	require.True(t, ok)

	user, err := store.GetUserByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "new", user.PasswordHash)

	ok, err = store.UpdateUserPassword(ctx, 999, "new")
	require.NoError(t, err)
	require.False(t, ok)
}
