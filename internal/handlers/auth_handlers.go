package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"taskSync/internal/handlers/dto"
	"taskSync/internal/logger"
	"taskSync/internal/service"

	"go.uber.org/zap"
)

type AuthHandler struct {
	Auth Auth
}

func NewAuthHandler(auth Auth) AuthHandler {
	return AuthHandler{
		Auth: auth,
	}
}

func (h *AuthHandler) LogIn(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	if !checkContentType(r, "application/json") {
		logger.Warn("HTTP: Неверный тип контента",
			zap.String("expected", "application/json"),
			zap.String("received", r.Header.Get("Content-Type")),
			zap.String("client_ip", r.RemoteAddr))

		responseWithError(w, http.StatusUnsupportedMediaType, "Content-Type должен быть application/json")
		return
	}

	var request dto.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		logger.Warn("HTTP: ошибка чтения JSON",
			zap.Error(err),
			zap.String("client_ip", r.RemoteAddr))

		responseWithError(w, http.StatusBadRequest, "неверное тело запроса: "+err.Error())
		return
	}

	if request.Email == "" {
		handleBusinessError(w, service.NewValidationError("email", "пустое значение"))
		return
	}
	if request.Password == "" {
		handleBusinessError(w, service.NewValidationError("password", "пустое значение"))
		return
	}

	if err := h.Auth.LogIn(r.Context(), request.Email, request.Password); err != nil {
		respondServiceError(w, r, "log_in", err)
		return
	}

	identity := h.Auth.User()
	if identity == nil {
		responseWithError(w, http.StatusUnauthorized, "сессия завершена")
		return
	}

	logger.Info("HTTP_OUT: Вход выполнен",
		zap.String("identity", identity.ID),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))

	writeJSON(w, http.StatusOK, dto.FromIdentity(identity))
}

func (h *AuthHandler) LogOut(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	if err := h.Auth.LogOut(r.Context()); err != nil {
		respondServiceError(w, r, "log_out", err)
		return
	}

	logger.Info("HTTP_OUT: Выход выполнен",
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusNoContent))

	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	identity := h.Auth.User()
	if identity == nil {
		responseWithError(w, http.StatusUnauthorized, "вход не выполнен")
		return
	}

	writeJSON(w, http.StatusOK, dto.FromIdentity(identity))
}
