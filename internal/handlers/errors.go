package handlers

import (
	"net/http"

	"taskSync/internal/logger"
	"taskSync/internal/service"

	"go.uber.org/zap"
)

func handleBusinessError(w http.ResponseWriter, err error) bool {
	businessErr, ok := service.AsBusinessError(err)
	if !ok {
		return false
	}

	statusCode := mapBusinessErrorToHTTP(businessErr.Code)

	logger.Warn("HTTP: Бизнес-ошибка",
		zap.String("error_code", businessErr.Code),
		zap.Int("http_status", statusCode))

	responseWithJSON(w, statusCode,
		toPayload("error", businessErr.Code),
		toPayload("message", businessErr.Message),
		toPayload("details", businessErr.Details),
	)
	return true
}

func mapBusinessErrorToHTTP(code string) int {
	switch code {
	case service.CodeNotFound:
		return http.StatusNotFound
	case service.CodeValidationError, service.CodeInvalidStatus:
		return http.StatusBadRequest
	case service.CodeAuthFailed:
		return http.StatusUnauthorized
	case service.CodeNotOpen:
		return http.StatusConflict
	case service.CodeSyncOpenFailed:
		return http.StatusServiceUnavailable
	case service.CodeScopeMisuse:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// respondServiceError: бизнес-ошибку отдаём по коду, остальное как 500
func respondServiceError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	if handleBusinessError(w, err) {
		return
	}

	logger.Error("HTTP: Ошибка Service", err,
		zap.String("operation", operation),
		zap.String("client_ip", r.RemoteAddr))

	responseWithError(w, http.StatusInternalServerError, err.Error())
}
