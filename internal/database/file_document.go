package database

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"barcode-server/internal/models"
)

// document is the in-memory state of a FileStore.
type document struct {
	users         []models.User
	barcodes      []models.Barcode
	nextUserID    int64
	nextBarcodeID int64
}

func newDocument() document {
	return document{
		users:         []models.User{},
		barcodes:      []models.Barcode{},
		nextUserID:    1,
		nextBarcodeID: 1,
	}
}

func (d *document) clone() document {
	return document{
		users:         append([]models.User(nil), d.users...),
		barcodes:      append([]models.Barcode(nil), d.barcodes...),
		nextUserID:    d.nextUserID,
		nextBarcodeID: d.nextBarcodeID,
	}
}

func (d *document) userIndex(id int64) int {
	for i := range d.users {
		if d.users[i].ID == id {
			return i
		}
	}
	return -1
}

func (d *document) userByUsername(username string) int {
	for i := range d.users {
		if d.users[i].Username == username {
			return i
		}
	}
	return -1
}

func (d *document) barcodeIndex(id int64) int {
	for i := range d.barcodes {
		if d.barcodes[i].ID == id {
			return i
		}
	}
	return -1
}

// The record types below fix the on-disk field names. They match the
// database.json written by earlier versions of the service.

type fileDocument struct {
	Users         []fileUser    `json:"users"`
	Barcodes      []fileBarcode `json:"barcodes"`
	NextUserID    int64         `json:"nextUserId"`
	NextBarcodeID int64         `json:"nextBarcodeId"`
}

type fileUser struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	CreatedAt time.Time `json:"created_at"`
}

type fileBarcode struct {
	ID           int64     `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	FilePath     string    `json:"file_path"`
	IsUsed       flexBool  `json:"is_used"`
	Amount       float64   `json:"amount"`
	UploadedBy   int64     `json:"uploaded_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// flexBool is written as a JSON boolean and also accepts the 0/1 integers
// that older files used for is_used.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true", "1":
		*b = true
	case "false", "0", "null":
		*b = false
	default:
		return fmt.Errorf("invalid boolean value %s", data)
	}
	return nil
}

func encodeDocument(d *document) ([]byte, error) {
	fd := fileDocument{
		Users:         make([]fileUser, 0, len(d.users)),
		Barcodes:      make([]fileBarcode, 0, len(d.barcodes)),
		NextUserID:    d.nextUserID,
		NextBarcodeID: d.nextBarcodeID,
	}
	for _, u := range d.users {
		fd.Users = append(fd.Users, fileUser{
			ID:        u.ID,
			Username:  u.Username,
			Password:  u.PasswordHash,
			CreatedAt: u.CreatedAt,
		})
	}
	for _, b := range d.barcodes {
		fd.Barcodes = append(fd.Barcodes, fileBarcode{
			ID:           b.ID,
			Filename:     b.Filename,
			OriginalName: b.OriginalName,
			FilePath:     b.FilePath,
			IsUsed:       flexBool(b.IsUsed),
			Amount:       b.Amount,
			UploadedBy:   b.UploadedBy,
			CreatedAt:    b.CreatedAt,
			UpdatedAt:    b.UpdatedAt,
		})
	}
	return json.MarshalIndent(fd, "", "  ")
}

// decodeDocument parses a persisted document and raises the id counters
// above every stored id, so a hand-edited file cannot cause id reuse.
func decodeDocument(data []byte) (document, error) {
	var fd fileDocument
	if err := json.Unmarshal(data, &fd); err != nil {
		return document{}, fmt.Errorf("malformed store file: %w", err)
	}

	d := newDocument()
	d.nextUserID = max(fd.NextUserID, 1)
	d.nextBarcodeID = max(fd.NextBarcodeID, 1)

	for _, u := range fd.Users {
		d.users = append(d.users, models.User{
			ID:           u.ID,
			Username:     u.Username,
			PasswordHash: u.Password,
			CreatedAt:    u.CreatedAt,
		})
		if u.ID >= d.nextUserID {
			d.nextUserID = u.ID + 1
		}
	}
	for _, b := range fd.Barcodes {
		d.barcodes = append(d.barcodes, models.Barcode{
			ID:           b.ID,
			Filename:     b.Filename,
			OriginalName: b.OriginalName,
			FilePath:     b.FilePath,
			IsUsed:       bool(b.IsUsed),
			Amount:       b.Amount,
			UploadedBy:   b.UploadedBy,
			CreatedAt:    b.CreatedAt,
			UpdatedAt:    b.UpdatedAt,
		})
		if b.ID >= d.nextBarcodeID {
			d.nextBarcodeID = b.ID + 1
		}
	}

	return d, nil
}
