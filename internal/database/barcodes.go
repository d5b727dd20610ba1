package database

import (
	"context"
	"errors"

	"barcode-server/internal/models"

	"github.com/jackc/pgx/v5"
)

const barcodeColumns = `b.id, b.filename, b.original_name, b.file_path, b.is_used, b.amount, b.uploaded_by, b.created_at, b.updated_at`

func (s *PostgresStore) CreateBarcode(ctx context.Context, arg CreateBarcodeParams) (int64, error) {
	query := `
		INSERT INTO barcodes (filename, original_name, file_path, uploaded_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	var id int64
	err := s.pool.QueryRow(ctx, query, arg.Filename, arg.OriginalName, arg.FilePath, arg.UploadedBy).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *PostgresStore) GetAllBarcodes(ctx context.Context) ([]models.Barcode, error) {
	query := `SELECT ` + barcodeColumns + ` FROM barcodes b ORDER BY b.created_at DESC, b.id DESC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var barcodes []models.Barcode
	for rows.Next() {
		var b models.Barcode
		if err := rows.Scan(barcodeDest(&b)...); err != nil {
			return nil, err
		}
		barcodes = append(barcodes, b)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	if barcodes == nil {
		return []models.Barcode{}, nil
	}

	return barcodes, nil
}

func (s *PostgresStore) GetBarcodeByID(ctx context.Context, id int64) (*models.Barcode, error) {
	query := `SELECT ` + barcodeColumns + ` FROM barcodes b WHERE b.id = $1`

	var b models.Barcode
	err := s.pool.QueryRow(ctx, query, id).Scan(barcodeDest(&b)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

func (s *PostgresStore) UpdateBarcode(ctx context.Context, id int64, isUsed bool, amount float64) (bool, error) {
	return s.PatchBarcode(ctx, id, PatchBarcodeParams{IsUsed: &isUsed, Amount: &amount})
}

// PatchBarcode resolves omitted fields inside the UPDATE itself, so
// concurrent patches of different fields do not overwrite each other.
func (s *PostgresStore) PatchBarcode(ctx context.Context, id int64, arg PatchBarcodeParams) (bool, error) {
	query := `
		UPDATE barcodes
		SET
			is_used = COALESCE($1, is_used),
			amount = COALESCE($2, amount),
			updated_at = GREATEST(NOW(), updated_at + INTERVAL '1 microsecond')
		WHERE id = $3
	`
	res, err := s.pool.Exec(ctx, query, arg.IsUsed, arg.Amount, id)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (s *PostgresStore) DeleteBarcode(ctx context.Context, id int64) (bool, error) {
	query := `DELETE FROM barcodes WHERE id = $1`
	res, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListBarcodeViews(ctx context.Context) ([]models.BarcodeView, error) {
	query := `
		SELECT ` + barcodeColumns + `, u.username
		FROM barcodes b
		LEFT JOIN users u ON u.id = b.uploaded_by
		ORDER BY b.created_at DESC, b.id DESC
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	views := []models.BarcodeView{}
	for rows.Next() {
		view, err := scanBarcodeView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return views, nil
}

func (s *PostgresStore) GetBarcodeView(ctx context.Context, id int64) (*models.BarcodeView, error) {
	query := `
		SELECT ` + barcodeColumns + `, u.username
		FROM barcodes b
		LEFT JOIN users u ON u.id = b.uploaded_by
		WHERE b.id = $1
	`
	view, err := scanBarcodeView(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &view, nil
}

func barcodeDest(b *models.Barcode) []any {
	return []any{
		&b.ID,
		&b.Filename,
		&b.OriginalName,
		&b.FilePath,
		&b.IsUsed,
		&b.Amount,
		&b.UploadedBy,
		&b.CreatedAt,
		&b.UpdatedAt,
	}
}

func scanBarcodeView(row pgx.Row) (models.BarcodeView, error) {
	var b models.Barcode
	var username *string
	if err := row.Scan(append(barcodeDest(&b), &username)...); err != nil {
		return models.BarcodeView{}, err
	}

	var uploader *models.User
	if username != nil {
		uploader = &models.User{ID: b.UploadedBy, Username: *username}
	}
	return JoinBarcode(b, uploader), nil
}
