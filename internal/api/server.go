package api

import (
	"sync"

	"barcode-server/internal/config"
	"barcode-server/internal/database"
	"barcode-server/internal/storage"
	"barcode-server/internal/websocket"

	"go.uber.org/zap"
)

type Server struct {
	config  *config.Config
	store   database.Store
	storage *storage.LocalStorage
	wsHub   *websocket.Hub
	log     *zap.SugaredLogger

	// mutations orders barcode writes together with their broadcasts.
	mutations sync.Mutex
}

func NewServer(cfg *config.Config, store database.Store, storage *storage.LocalStorage, wsHub *websocket.Hub, log *zap.SugaredLogger) *Server {
	return &Server{
		config:  cfg,
		store:   store,
		storage: storage,
		wsHub:   wsHub,
		log:     log,
	}
}
