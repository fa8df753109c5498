package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"insurego-auth/internal/hashing"
	"insurego-auth/internal/service"
	"insurego-auth/internal/token"
	"insurego-auth/internal/util"
)

// errAuthenticationFailed is the single error shown for every login or token
// failure. An unknown identifier, a wrong password, a forged token and an
// expired token all produce this exact response, so callers cannot probe
// which part was wrong.
var errAuthenticationFailed = errors.New("authentication failed")

// AuthHandler handles HTTP requests for credential and session operations
type AuthHandler struct {
	authService *service.AuthService
	logger      *zap.Logger
}

func NewAuthHandler(authService *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

// RegisterRoutes registers credential and session routes
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Get("/validate", h.Validate)
	})
}

type registerResponse struct {
	Identifier string    `json:"identifier"`
	Role       string    `json:"role"`
	CreatedAt  time.Time `json:"created_at"`
}

// Register creates a credential for a new identifier.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req service.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	cred, err := h.authService.Register(ctx, &req)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to register")
		return
	}

	h.respondWithJSON(w, http.StatusCreated, successResponse(registerResponse{
		Identifier: cred.Identifier,
		Role:       string(cred.Role),
		CreatedAt:  cred.CreatedAt,
	}, "Registered successfully"))
}

type loginResponse struct {
	Token     string `json:"token"`
	Role      string `json:"role"`
	ExpiresIn int64  `json:"expires_in"`
}

// Login verifies a password and returns a session token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req service.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	signed, cred, err := h.authService.Login(ctx, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCredentialNotFound), errors.Is(err, service.ErrInvalidCredential):
			// Collapse both failure modes into one indistinguishable answer.
			h.respondWithError(w, http.StatusUnauthorized, errAuthenticationFailed, "Authentication failed")
		default:
			h.respondWithError(w, h.getStatusCode(err), err, "Failed to login")
		}
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(loginResponse{
		Token:     signed,
		Role:      string(cred.Role),
		ExpiresIn: int64(h.authService.TokenTTL().Seconds()),
	}, "Login successful"))
}

type validateResponse struct {
	Subject string `json:"subject"`
	Role    string `json:"role"`
}

// Validate checks the bearer token and returns its subject and role.
func (h *AuthHandler) Validate(w http.ResponseWriter, r *http.Request) {
	tokenString := bearerToken(r)
	if tokenString == "" {
		h.respondWithError(w, http.StatusUnauthorized, errAuthenticationFailed, "Authentication failed")
		return
	}

	claims, err := h.authService.ValidateToken(tokenString)
	if err != nil {
		// token.ErrInvalidToken is the only failure the issuer reports;
		// answer with the same generic 401 either way.
		h.respondWithError(w, http.StatusUnauthorized, errAuthenticationFailed, "Authentication failed")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(validateResponse{
		Subject: claims.Subject,
		Role:    claims.Role,
	}, "Token is valid"))
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}

func (h *AuthHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func (h *AuthHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}

// getStatusCode determines the appropriate HTTP status code for an error
func (h *AuthHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrDuplicateIdentifier):
		return http.StatusConflict
	case errors.Is(err, service.ErrTooManyRequests):
		return http.StatusTooManyRequests
	case errors.Is(err, token.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, hashing.ErrMalformedHash):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
