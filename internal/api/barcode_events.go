package api

import (
	"context"
	"errors"

	"barcode-server/internal/database"
	"barcode-server/internal/models"
	"barcode-server/internal/websocket"
)

// The helpers below run a barcode mutation, read its view and hand the event
// to the hub while holding s.mutations, so subscribers receive events in the
// order the mutations committed.

var errViewMissing = errors.New("committed barcode has no view")

// createAndPublish returns the new id even when reading the view fails, so
// the caller can tell a failed create from a failed read.
func (s *Server) createAndPublish(ctx context.Context, arg database.CreateBarcodeParams) (int64, *models.BarcodeView, error) {
	s.mutations.Lock()
	defer s.mutations.Unlock()

	id, err := s.store.CreateBarcode(ctx, arg)
	if err != nil {
		return 0, nil, err
	}
	view, err := s.store.GetBarcodeView(ctx, id)
	if err != nil {
		return id, nil, err
	}
	if view == nil {
		return id, nil, errViewMissing
	}

	s.wsHub.Publish(websocket.BarcodeCreated, view)
	return id, view, nil
}

// patchAndPublish returns (nil, nil) when the barcode does not exist.
func (s *Server) patchAndPublish(ctx context.Context, id int64, patch database.PatchBarcodeParams) (*models.BarcodeView, error) {
	s.mutations.Lock()
	defer s.mutations.Unlock()

	updated, err := s.store.PatchBarcode(ctx, id, patch)
	if err != nil || !updated {
		return nil, err
	}
	view, err := s.store.GetBarcodeView(ctx, id)
	if err != nil {
		return nil, err
	}
	if view == nil {
		return nil, errViewMissing
	}

	s.wsHub.Publish(websocket.BarcodeUpdated, view)
	return view, nil
}

// deleteAndPublish returns the removed record, or (nil, nil) when it did not
// exist. Releasing the stored file is left to the caller.
func (s *Server) deleteAndPublish(ctx context.Context, id int64) (*models.Barcode, error) {
	s.mutations.Lock()
	defer s.mutations.Unlock()

	barcode, err := s.store.GetBarcodeByID(ctx, id)
	if err != nil || barcode == nil {
		return nil, err
	}
	deleted, err := s.store.DeleteBarcode(ctx, id)
	if err != nil || !deleted {
		return nil, err
	}

	s.wsHub.Publish(websocket.BarcodeDeleted, DeletedPayload{ID: id})
	return barcode, nil
}
