package handlers

import (
	"net/http"

	"treasure-chest/internal/apperror"
	"treasure-chest/internal/logger"
)

// writeServiceError переводит ошибку сервиса в HTTP ответ. Отказ в погашении
// (истёк, исчерпан, отозван) отдаётся как 410 Gone.
func writeServiceError(w http.ResponseWriter, log *logger.Logger, err error, internalMessage string) {
	kind := apperror.KindOf(err)
	switch kind {
	case apperror.KindNotFound:
		writeKindErrorResponse(w, http.StatusNotFound, err.Error(), string(kind))
	case apperror.KindValidation:
		writeKindErrorResponse(w, http.StatusBadRequest, err.Error(), string(kind))
	case apperror.KindConflict:
		writeKindErrorResponse(w, http.StatusConflict, err.Error(), string(kind))
	case apperror.KindExpired, apperror.KindExhausted, apperror.KindRevoked:
		writeKindErrorResponse(w, http.StatusGone, err.Error(), string(kind))
	default:
		if log != nil {
			log.WithError(err).Error(internalMessage)
		}
		writeErrorResponse(w, http.StatusInternalServerError, internalMessage)
	}
}
