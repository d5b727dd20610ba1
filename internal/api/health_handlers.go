package api

import "net/http"

type HealthResponse struct {
	Status  string `json:"status" example:"OK"`
	Message string `json:"message" example:"Server is running"`
}

// @Summary      Health check
// @Tags         health
// @Produce      json
// @Success      200  {object}  HealthResponse
// @Router       /health [get]
func (s *Server) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "OK", Message: "Server is running"})
}
