package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"unicode/utf8"

	"barcode-server/internal/auth"
	"barcode-server/internal/database"
	"barcode-server/internal/models"
)

const (
	minUsernameLength = 3
	minPasswordLength = 6
)

type CredentialsRequest struct {
	Username string `json:"username" example:"alice"`
	Password string `json:"password" example:"password123"`
}

type UserResponse struct {
	ID       int64  `json:"id" example:"1"`
	Username string `json:"username" example:"alice"`
}

type AuthResponse struct {
	Message string       `json:"message" example:"Login successful"`
	Token   string       `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	User    UserResponse `json:"user"`
}

type VerifyResponse struct {
	Message string       `json:"message" example:"Token is valid"`
	User    UserResponse `json:"user"`
}

// @Summary      Registers a new user
// @Description  Creates an account and returns an access token for it.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        registerRequest  body      CredentialsRequest  true  "New account credentials"
// @Success      201              {object}  AuthResponse
// @Failure      400              {object}  MessageResponse "Validation error or username already exists"
// @Failure      500              {object}  MessageResponse
// @Router       /auth/register [post]
func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if utf8.RuneCountInString(req.Username) < minUsernameLength {
		writeError(w, http.StatusBadRequest, "Username must be at least 3 characters")
		return
	}
	if utf8.RuneCountInString(req.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "Password must be at least 6 characters")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.log.Errorw("failed to hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	userID, err := s.store.CreateUser(r.Context(), req.Username, hash)
	if err != nil {
		if errors.Is(err, database.ErrUsernameTaken) {
			writeError(w, http.StatusBadRequest, "Username already exists")
			return
		}
		s.log.Errorw("failed to create user", "username", req.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	user := &models.User{ID: userID, Username: req.Username}
	token, err := auth.GenerateJWT(user, s.config.JWT.Secret, s.config.JWT.TTL)
	if err != nil {
		s.log.Errorw("failed to generate token", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.log.Infow("user registered", "user_id", userID, "username", req.Username)
	writeJSON(w, http.StatusCreated, AuthResponse{
		Message: "User created successfully",
		Token:   token,
		User:    UserResponse{ID: userID, Username: req.Username},
	})
}

// @Summary      Logs a user in
// @Description  Authenticates a user and returns an access token.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        loginRequest  body      CredentialsRequest  true  "Login credentials"
// @Success      200           {object}  AuthResponse
// @Failure      400           {object}  MessageResponse
// @Failure      401           {object}  MessageResponse "Invalid credentials"
// @Failure      500           {object}  MessageResponse
// @Router       /auth/login [post]
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, err := s.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		s.log.Errorw("failed to look up user", "username", req.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := auth.GenerateJWT(user, s.config.JWT.Secret, s.config.JWT.TTL)
	if err != nil {
		s.log.Errorw("failed to generate token", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{
		Message: "Login successful",
		Token:   token,
		User:    UserResponse{ID: user.ID, Username: user.Username},
	})
}

// @Summary      Verifies the access token
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  VerifyResponse
// @Failure      401  {object}  MessageResponse
// @Router       /auth/verify [get]
func (s *Server) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	writeJSON(w, http.StatusOK, VerifyResponse{
		Message: "Token is valid",
		User:    UserResponse{ID: claims.UserID, Username: claims.Username},
	})
}
