package models

import "time"

// UnknownUsername is shown for a barcode whose uploader no longer exists.
const UnknownUsername = "Unknown"

type Barcode struct {
	ID           int64     `json:"id" db:"id"`
	Filename     string    `json:"filename" db:"filename"`
	OriginalName string    `json:"original_name" db:"original_name"`
	FilePath     string    `json:"file_path" db:"file_path"`
	IsUsed       bool      `json:"is_used" db:"is_used"`
	Amount       float64   `json:"amount" db:"amount"`
	UploadedBy   int64     `json:"uploaded_by" db:"uploaded_by"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// BarcodeView is a Barcode joined with its uploader's username.
type BarcodeView struct {
	Barcode
	UploadedByUsername string `json:"uploaded_by_username"`
}
