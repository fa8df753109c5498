package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"insurego-auth/internal/model"
	"insurego-auth/internal/service"
)

// OTPHandler handles HTTP requests for one-time passcode challenges. The
// issued code travels only over the delivery channel: no response from this
// handler ever contains it.
type OTPHandler struct {
	otpService *service.OTPService
	logger     *zap.Logger
}

func NewOTPHandler(otpService *service.OTPService, logger *zap.Logger) *OTPHandler {
	return &OTPHandler{
		otpService: otpService,
		logger:     logger,
	}
}

// RegisterRoutes registers challenge routes
func (h *OTPHandler) RegisterRoutes(router chi.Router) {
	router.Route("/otp", func(r chi.Router) {
		r.Post("/request", h.RequestChallenge)
		r.Post("/verify", h.VerifyChallenge)
	})
}

type otpRequestBody struct {
	Identifier string `json:"identifier"`
	Channel    string `json:"channel"`
}

type otpRequestResponse struct {
	Channel   string `json:"channel"`
	ExpiresAt string `json:"expires_at"`
}

// RequestChallenge issues a fresh challenge and queues its delivery. The
// response is 202: delivery happens in the background and its outcome is
// not reported.
func (h *OTPHandler) RequestChallenge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req otpRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.Channel == "" {
		req.Channel = string(model.ChannelPhone)
	}

	challenge, err := h.otpService.RequestChallenge(ctx, req.Identifier, model.Channel(req.Channel))
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to issue verification code")
		return
	}

	h.respondWithJSON(w, http.StatusAccepted, successResponse(otpRequestResponse{
		Channel:   string(challenge.Channel),
		ExpiresAt: challenge.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
	}, "Verification code sent"))
}

type otpVerifyBody struct {
	Identifier string `json:"identifier"`
	Channel    string `json:"channel"`
	Code       string `json:"code"`
}

type otpVerifyResponse struct {
	Verified bool `json:"verified"`
}

// VerifyChallenge checks a submitted code. Wrong, expired, superseded and
// replayed codes all produce {"verified": false} with a 200; the reason is
// never disclosed.
func (h *OTPHandler) VerifyChallenge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req otpVerifyBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.Channel == "" {
		req.Channel = string(model.ChannelPhone)
	}

	verified, err := h.otpService.VerifyChallenge(ctx, req.Identifier, model.Channel(req.Channel), req.Code)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to verify code")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(otpVerifyResponse{
		Verified: verified,
	}, "Verification processed"))
}

func (h *OTPHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

func (h *OTPHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		zap.Error(err),
		zap.Int("status_code", statusCode),
		zap.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}

func (h *OTPHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrTooManyRequests):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
