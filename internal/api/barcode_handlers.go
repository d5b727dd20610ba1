package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"barcode-server/internal/database"
	"barcode-server/internal/models"
	"barcode-server/internal/storage"

	"github.com/go-chi/chi/v5"
)

// multipartOverhead is the room left above the file size limit for the
// multipart boundaries and part headers.
const multipartOverhead = 64 << 10

type BarcodeResponse struct {
	Message string              `json:"message" example:"Barcode updated successfully"`
	Barcode *models.BarcodeView `json:"barcode"`
}

type UpdateBarcodeRequest struct {
	IsUsed *boolParam   `json:"isUsed,omitempty" swaggertype:"boolean" example:"true"`
	Amount *numberParam `json:"amount,omitempty" swaggertype:"number" example:"12.5"`
}

type DeletedPayload struct {
	ID int64 `json:"id"`
}

func parseBarcodeID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "barcodeId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// @Summary      Lists barcodes
// @Description  Returns every barcode, newest first, with the uploader's username.
// @Tags         barcodes
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   models.BarcodeView
// @Failure      401  {object}  MessageResponse
// @Failure      500  {object}  MessageResponse
// @Router       /barcodes [get]
func (s *Server) ListBarcodesHandler(w http.ResponseWriter, r *http.Request) {
	views, err := s.store.ListBarcodeViews(r.Context())
	if err != nil {
		s.log.Errorw("failed to list barcodes", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch barcodes")
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// @Summary      Gets a barcode
// @Tags         barcodes
// @Produce      json
// @Security     BearerAuth
// @Param        barcodeId  path      int  true  "Barcode ID"
// @Success      200        {object}  models.BarcodeView
// @Failure      400        {object}  MessageResponse
// @Failure      404        {object}  MessageResponse
// @Failure      500        {object}  MessageResponse
// @Router       /barcodes/{barcodeId} [get]
func (s *Server) GetBarcodeHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseBarcodeID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid barcode ID")
		return
	}

	view, err := s.store.GetBarcodeView(r.Context(), id)
	if err != nil {
		s.log.Errorw("failed to fetch barcode", "barcode_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch barcode")
		return
	}
	if view == nil {
		writeError(w, http.StatusNotFound, "Barcode not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// @Summary      Uploads a barcode image
// @Description  Stores the image and creates a barcode record. Broadcasts barcode:created.
// @Tags         barcodes
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        barcode  formData  file  true  "Image file (jpeg, jpg, png, gif, webp; at most 5MB)"
// @Success      201      {object}  BarcodeResponse
// @Failure      400      {object}  MessageResponse
// @Failure      500      {object}  MessageResponse
// @Router       /barcodes [post]
func (s *Server) UploadBarcodeHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	limit := s.config.Storage.MaxUploadBytes
	tooLarge := "File too large. Maximum size is " + strconv.FormatInt(limit>>20, 10) + "MB."

	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusBadRequest, tooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("barcode")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	if header.Size > limit {
		writeError(w, http.StatusBadRequest, tooLarge)
		return
	}
	if err := storage.ValidateImage(header.Filename, header.Header.Get("Content-Type")); err != nil {
		writeError(w, http.StatusBadRequest, "Only image files are allowed!")
		return
	}

	asset, err := s.storage.Save(header.Filename, file)
	if err != nil {
		s.log.Errorw("failed to save upload", "original_name", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to upload barcode")
		return
	}

	id, view, err := s.createAndPublish(r.Context(), database.CreateBarcodeParams{
		Filename:     asset.Filename,
		OriginalName: header.Filename,
		FilePath:     asset.Path,
		UploadedBy:   claims.UserID,
	})
	if err != nil {
		s.log.Errorw("failed to create barcode record", "filename", asset.Filename, "barcode_id", id, "error", err)
		if id == 0 {
			if rmErr := s.storage.Delete(asset.Path); rmErr != nil {
				s.log.Errorw("failed to remove orphaned upload", "path", asset.Path, "error", rmErr)
			}
		}
		writeError(w, http.StatusInternalServerError, "Failed to upload barcode")
		return
	}

	s.log.Infow("barcode uploaded", "barcode_id", id, "user_id", claims.UserID)
	writeJSON(w, http.StatusCreated, BarcodeResponse{Message: "Barcode uploaded successfully", Barcode: view})
}

// @Summary      Updates a barcode
// @Description  Sets isUsed and/or amount. Omitted fields keep their value. Broadcasts barcode:updated.
// @Tags         barcodes
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        barcodeId      path      int                   true  "Barcode ID"
// @Param        updateRequest  body      UpdateBarcodeRequest  true  "Fields to change"
// @Success      200            {object}  BarcodeResponse
// @Failure      400            {object}  MessageResponse
// @Failure      404            {object}  MessageResponse
// @Failure      500            {object}  MessageResponse
// @Router       /barcodes/{barcodeId} [put]
func (s *Server) UpdateBarcodeHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseBarcodeID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid barcode ID")
		return
	}

	var req UpdateBarcodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "isUsed must be a boolean and amount must be numeric")
		return
	}

	var patch database.PatchBarcodeParams
	if req.IsUsed != nil {
		v := bool(*req.IsUsed)
		patch.IsUsed = &v
	}
	if req.Amount != nil {
		v := float64(*req.Amount)
		patch.Amount = &v
	}

	view, err := s.patchAndPublish(r.Context(), id, patch)
	if err != nil {
		s.log.Errorw("failed to update barcode", "barcode_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update barcode")
		return
	}
	if view == nil {
		writeError(w, http.StatusNotFound, "Barcode not found")
		return
	}

	writeJSON(w, http.StatusOK, BarcodeResponse{Message: "Barcode updated successfully", Barcode: view})
}

// @Summary      Deletes a barcode
// @Description  Removes the record, then its image file. Broadcasts barcode:deleted with the id.
// @Tags         barcodes
// @Produce      json
// @Security     BearerAuth
// @Param        barcodeId  path      int  true  "Barcode ID"
// @Success      200        {object}  MessageResponse
// @Failure      400        {object}  MessageResponse
// @Failure      404        {object}  MessageResponse
// @Failure      500        {object}  MessageResponse
// @Router       /barcodes/{barcodeId} [delete]
func (s *Server) DeleteBarcodeHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseBarcodeID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid barcode ID")
		return
	}

	barcode, err := s.deleteAndPublish(r.Context(), id)
	if err != nil {
		s.log.Errorw("failed to delete barcode", "barcode_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete barcode")
		return
	}
	if barcode == nil {
		writeError(w, http.StatusNotFound, "Barcode not found")
		return
	}

	if err := s.storage.Delete(barcode.FilePath); err != nil {
		s.log.Warnw("failed to remove barcode file", "barcode_id", id, "path", barcode.FilePath, "error", err)
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Barcode deleted successfully"})
}
