package database

import (
	"context"
	"errors"
	"fmt"

	"barcode-server/internal/config"
	"barcode-server/internal/models"

	"go.uber.org/zap"
)

var (
	ErrUsernameTaken = errors.New("username already exists")
	ErrPersistence   = errors.New("failed to persist store")
	ErrStoreClosed   = errors.New("store is closed")
)

type CreateBarcodeParams struct {
	Filename     string
	OriginalName string
	FilePath     string
	UploadedBy   int64
}

// PatchBarcodeParams carries optional new values; nil fields keep the current value.
type PatchBarcodeParams struct {
	IsUsed *bool
	Amount *float64
}

// Store is the record store for users and barcodes.
//
// Lookups return (nil, nil) when the record does not exist, and mutations on
// a missing id return (false, nil). Errors are reserved for infrastructure
// failures.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string) (int64, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUserPassword(ctx context.Context, id int64, passwordHash string) (bool, error)
	DeleteUser(ctx context.Context, id int64) (bool, error)

	CreateBarcode(ctx context.Context, arg CreateBarcodeParams) (int64, error)
	GetAllBarcodes(ctx context.Context) ([]models.Barcode, error)
	GetBarcodeByID(ctx context.Context, id int64) (*models.Barcode, error)
	UpdateBarcode(ctx context.Context, id int64, isUsed bool, amount float64) (bool, error)
	PatchBarcode(ctx context.Context, id int64, arg PatchBarcodeParams) (bool, error)
	DeleteBarcode(ctx context.Context, id int64) (bool, error)

	ListBarcodeViews(ctx context.Context) ([]models.BarcodeView, error)
	GetBarcodeView(ctx context.Context, id int64) (*models.BarcodeView, error)

	// Close flushes any pending state and releases the backend.
	Close() error
}

// Open constructs the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DBConfig, log *zap.SugaredLogger) (Store, error) {
	switch cfg.Driver {
	case "", "file":
		return OpenFileStore(cfg.Path, log)
	case "postgres":
		store, err := NewPostgresStore(ctx, cfg.Source)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.Driver)
	}
}
