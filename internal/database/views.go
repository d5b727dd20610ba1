package database

import "barcode-server/internal/models"

// JoinBarcode attaches the uploader's username to b. A nil uploader means the
// reference dangles and resolves to models.UnknownUsername.
func JoinBarcode(b models.Barcode, uploader *models.User) models.BarcodeView {
	view := models.BarcodeView{Barcode: b, UploadedByUsername: models.UnknownUsername}
	if uploader != nil {
		view.UploadedByUsername = uploader.Username
	}
	return view
}

func joinAll(barcodes []models.Barcode, users []models.User) []models.BarcodeView {
	byID := make(map[int64]*models.User, len(users))
	for i := range users {
		if _, ok := byID[users[i].ID]; !ok {
			byID[users[i].ID] = &users[i]
		}
	}

	views := make([]models.BarcodeView, 0, len(barcodes))
	for _, b := range barcodes {
		views = append(views, JoinBarcode(b, byID[b.UploadedBy]))
	}
	return views
}
