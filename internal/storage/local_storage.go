package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jaevor/go-nanoid"
)

var (
	ErrNotImage      = errors.New("only image files are allowed")
	ErrAssetNotFound = errors.New("asset not found")
)

var imageTypes = []string{"jpeg", "jpg", "png", "gif", "webp"}

// Asset is an uploaded file as written to disk.
type Asset struct {
	Filename string
	Path     string
}

// LocalStorage keeps uploaded barcode images in a single directory.
type LocalStorage struct {
	basePath string
	now      func() time.Time
	suffix   func() string
}

func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, os.ModePerm); err != nil {
		return nil, err
	}
	suffix, err := nanoid.CustomASCII("0123456789", 9)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize nanoid generator: %w", err)
	}
	return &LocalStorage{basePath: basePath, now: time.Now, suffix: suffix}, nil
}

func (ls *LocalStorage) BasePath() string {
	return ls.basePath
}

// ValidateImage accepts a file only when both its extension and its declared
// content type name one of the supported image formats.
func ValidateImage(originalName, contentType string) error {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(originalName)), ".")
	extOK := false
	mimeOK := false
	for _, t := range imageTypes {
		if ext == t {
			extOK = true
		}
		if strings.Contains(strings.ToLower(contentType), t) {
			mimeOK = true
		}
	}
	if !extOK || !mimeOK {
		return ErrNotImage
	}
	return nil
}

// generateName returns "barcode-<unix ms>-<random digits><ext>".
func (ls *LocalStorage) generateName(originalName string) string {
	return fmt.Sprintf("barcode-%d-%s%s", ls.now().UnixMilli(), ls.suffix(), strings.ToLower(filepath.Ext(originalName)))
}

// Save writes data under a freshly generated name. A partial file is removed
// when the copy fails.
func (ls *LocalStorage) Save(originalName string, data io.Reader) (Asset, error) {
	name := ls.generateName(originalName)
	filePath := filepath.Join(ls.basePath, name)

	file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Asset{}, err
	}

	if _, err := io.Copy(file, data); err != nil {
		file.Close()
		os.Remove(filePath)
		return Asset{}, err
	}
	if err := file.Close(); err != nil {
		os.Remove(filePath)
		return Asset{}, err
	}

	return Asset{Filename: name, Path: filePath}, nil
}

// Get opens the asset stored under filename, a name returned by Save. Paths,
// directories and missing files all report ErrAssetNotFound.
func (ls *LocalStorage) Get(filename string) (*os.File, os.FileInfo, error) {
	if filename == "" || filename == "." || filename == ".." || filename != filepath.Base(filename) {
		return nil, nil, fmt.Errorf("file %q: %w", filename, ErrAssetNotFound)
	}

	file, err := os.Open(filepath.Join(ls.basePath, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("file %q: %w", filename, ErrAssetNotFound)
		}
		return nil, nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, nil, fmt.Errorf("file %q: %w", filename, ErrAssetNotFound)
	}
	return file, info, nil
}

// Delete removes the asset stored under the base name of filePath. Records
// written by older deployments carry absolute paths, so only the base name is
// trusted. A missing file is not an error.
func (ls *LocalStorage) Delete(filePath string) error {
	err := os.Remove(ls.resolve(filePath))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (ls *LocalStorage) resolve(name string) string {
	return filepath.Join(ls.basePath, filepath.Base(name))
}
