package database

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"barcode-server/internal/models"

	"go.uber.org/zap"
)

var errNoChange = errors.New("no change")

// FileStore keeps users and barcodes in a single JSON document.
//
// Every mutation rewrites the whole document, so the cost of a write grows
// with the number of records. A mutation is applied to a copy of the state
// and becomes visible only after that copy has been written to disk; a failed
// write leaves both the file and the in-memory state untouched.
type FileStore struct {
	path   string
	log    *zap.SugaredLogger
	now    func() time.Time
	write  func(data []byte) error
	rename func(oldpath, newpath string) error

	mu     sync.RWMutex
	doc    document
	closed bool
}

var _ Store = (*FileStore)(nil)

// OpenFileStore loads the document at path. A missing file starts an empty
// store. An unreadable or malformed file is moved aside to
// "<path>.corrupt-<unix>" and the store starts empty; this is logged, not
// returned as an error. When the file cannot be moved aside it is left in
// place and the empty store is not written until the first mutation.
func OpenFileStore(path string, log *zap.SugaredLogger) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	s := newFileStore(path, log)
	s.load()

	return s, nil
}

func newFileStore(path string, log *zap.SugaredLogger) *FileStore {
	s := &FileStore{
		path:   path,
		log:    log.With("store_path", path),
		now:    func() time.Time { return time.Now().UTC() },
		rename: os.Rename,
	}
	s.write = s.writeAtomic
	return s
}

func (s *FileStore) load() {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.log.Infow("store file not found, starting empty")
		s.doc = newDocument()
		s.flushInitial()
		return
	}

	var doc document
	if err == nil {
		doc, err = decodeDocument(data)
	}
	if err != nil {
		s.log.Errorw("failed to load store file, starting empty", "error", err)
		s.doc = newDocument()
		if s.quarantine(data) {
			s.flushInitial()
		}
		return
	}

	s.doc = doc
	s.log.Infow("store loaded", "users", len(doc.users), "barcodes", len(doc.barcodes))
}

// quarantine preserves the unusable store file under a ".corrupt-<unix>"
// name, falling back to writing a copy of data when the rename fails. It
// reports whether the original path may now be overwritten.
func (s *FileStore) quarantine(data []byte) bool {
	target := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
	err := s.rename(s.path, target)
	if err == nil {
		s.log.Warnw("corrupt store file moved aside", "target", target)
		return true
	}
	s.log.Errorw("failed to move corrupt store file aside", "error", err)

	if data == nil {
		s.log.Errorw("corrupt store file left in place, not writing an empty store")
		return false
	}
	if err := os.WriteFile(target, data, 0o600); err != nil {
		s.log.Errorw("failed to copy corrupt store file aside, not writing an empty store", "error", err)
		return false
	}
	s.log.Warnw("corrupt store file copied aside", "target", target)
	return true
}

func (s *FileStore) flushInitial() {
	if err := s.persist(&s.doc); err != nil {
		s.log.Errorw("failed to write initial store file", "error", err)
	}
}

func (s *FileStore) persist(d *document) error {
	data, err := encodeDocument(d)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := s.write(data); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// writeAtomic replaces the store file via a synced temp file and rename.
func (s *FileStore) writeAtomic(data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// commit runs mutate against a copy of the state and swaps it in once the
// copy is on disk. mutate returns errNoChange to abandon the mutation
// without writing. The caller must hold s.mu for writing.
func (s *FileStore) commit(mutate func(d *document) error) error {
	next := s.doc.clone()
	if err := mutate(&next); err != nil {
		return err
	}
	if err := s.persist(&next); err != nil {
		s.log.Errorw("failed to persist store", "error", err)
		return err
	}
	s.doc = next
	return nil
}

// touch returns a timestamp strictly after prev.
func (s *FileStore) touch(prev time.Time) time.Time {
	now := s.now()
	if !now.After(prev) {
		now = prev.Add(time.Nanosecond)
	}
	return now
}

func (s *FileStore) CreateUser(ctx context.Context, username, passwordHash string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStoreClosed
	}

	var id int64
	err := s.commit(func(d *document) error {
		if d.userByUsername(username) >= 0 {
			return ErrUsernameTaken
		}
		id = d.nextUserID
		d.nextUserID++
		d.users = append(d.users, models.User{
			ID:           id,
			Username:     username,
			PasswordHash: passwordHash,
			CreatedAt:    s.now(),
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *FileStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	i := s.doc.userByUsername(username)
	if i < 0 {
		return nil, nil
	}
	user := s.doc.users[i]
	return &user, nil
}

func (s *FileStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	i := s.doc.userIndex(id)
	if i < 0 {
		return nil, nil
	}
	user := s.doc.users[i]
	return &user, nil
}

func (s *FileStore) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	users := append([]models.User{}, s.doc.users...)
	slices.SortStableFunc(users, func(a, b models.User) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return users, nil
}

func (s *FileStore) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrStoreClosed
	}

	err := s.commit(func(d *document) error {
		i := d.userIndex(id)
		if i < 0 {
			return errNoChange
		}
		d.users[i].PasswordHash = passwordHash
		return nil
	})
	return changed(err)
}

// DeleteUser removes the user record only. Barcodes uploaded by the user keep
// their uploaded_by value and resolve to models.UnknownUsername.
func (s *FileStore) DeleteUser(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrStoreClosed
	}

	err := s.commit(func(d *document) error {
		i := d.userIndex(id)
		if i < 0 {
			return errNoChange
		}
		d.users = slices.Delete(d.users, i, i+1)
		return nil
	})
	return changed(err)
}

func (s *FileStore) CreateBarcode(ctx context.Context, arg CreateBarcodeParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStoreClosed
	}

	var id int64
	err := s.commit(func(d *document) error {
		id = d.nextBarcodeID
		d.nextBarcodeID++
		now := s.now()
		d.barcodes = append(d.barcodes, models.Barcode{
			ID:           id,
			Filename:     arg.Filename,
			OriginalName: arg.OriginalName,
			FilePath:     arg.FilePath,
			IsUsed:       false,
			Amount:       0,
			UploadedBy:   arg.UploadedBy,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetAllBarcodes returns barcodes newest first. Equal timestamps are ordered
// by insertion, later records first.
func (s *FileStore) GetAllBarcodes(ctx context.Context) ([]models.Barcode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	return newestFirst(s.doc.barcodes), nil
}

func newestFirst(barcodes []models.Barcode) []models.Barcode {
	sorted := make([]models.Barcode, 0, len(barcodes))
	for i := len(barcodes) - 1; i >= 0; i-- {
		sorted = append(sorted, barcodes[i])
	}
	slices.SortStableFunc(sorted, func(a, b models.Barcode) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return sorted
}

func (s *FileStore) GetBarcodeByID(ctx context.Context, id int64) (*models.Barcode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	i := s.doc.barcodeIndex(id)
	if i < 0 {
		return nil, nil
	}
	barcode := s.doc.barcodes[i]
	return &barcode, nil
}

func (s *FileStore) UpdateBarcode(ctx context.Context, id int64, isUsed bool, amount float64) (bool, error) {
	return s.PatchBarcode(ctx, id, PatchBarcodeParams{IsUsed: &isUsed, Amount: &amount})
}

func (s *FileStore) PatchBarcode(ctx context.Context, id int64, arg PatchBarcodeParams) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrStoreClosed
	}

	err := s.commit(func(d *document) error {
		i := d.barcodeIndex(id)
		if i < 0 {
			return errNoChange
		}
		b := &d.barcodes[i]
		if arg.IsUsed != nil {
			b.IsUsed = *arg.IsUsed
		}
		if arg.Amount != nil {
			b.Amount = *arg.Amount
		}
		b.UpdatedAt = s.touch(b.UpdatedAt)
		return nil
	})
	return changed(err)
}

func (s *FileStore) DeleteBarcode(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrStoreClosed
	}

	err := s.commit(func(d *document) error {
		i := d.barcodeIndex(id)
		if i < 0 {
			return errNoChange
		}
		d.barcodes = slices.Delete(d.barcodes, i, i+1)
		return nil
	})
	return changed(err)
}

func (s *FileStore) ListBarcodeViews(ctx context.Context) ([]models.BarcodeView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	return joinAll(newestFirst(s.doc.barcodes), s.doc.users), nil
}

func (s *FileStore) GetBarcodeView(ctx context.Context, id int64) (*models.BarcodeView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	i := s.doc.barcodeIndex(id)
	if i < 0 {
		return nil, nil
	}
	b := s.doc.barcodes[i]

	var uploader *models.User
	if j := s.doc.userIndex(b.UploadedBy); j >= 0 {
		u := s.doc.users[j]
		uploader = &u
	}
	view := JoinBarcode(b, uploader)
	return &view, nil
}

// Close writes the current state one final time. Later calls on the store
// return ErrStoreClosed.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	s.closed = true
	if err := s.persist(&s.doc); err != nil {
		s.log.Errorw("failed to persist store on close", "error", err)
		return err
	}
	return nil
}

func changed(err error) (bool, error) {
	if errors.Is(err, errNoChange) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
