package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/me/corun/internal/assistant"
	"github.com/me/corun/pkg/model"
)

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	if s.assistant == nil {
		respondError(w, reqID, http.StatusServiceUnavailable, &model.APIError{
			Code:    model.ErrInternal,
			Message: "assistant is not configured",
		})
		return
	}

	var req model.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, validationError(err))
		return
	}

	reply, err := s.assistant.Ask(r.Context(), req.Question)
	if err != nil {
		status, apiErr := askError(err)
		s.logger.Warn("ask failed", "request_id", reqID, "status", status, "error", err)
		respondError(w, reqID, status, apiErr)
		return
	}

	respondOK(w, reqID, model.AskResponse{
		Answer:  reply.Answer,
		TaskID:  reply.TaskID,
		Elapsed: reply.Elapsed.String(),
	})
}

func validationError(err error) *model.APIError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return model.NewValidationError(err.Error())
	}
	details := make([]model.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, model.FieldError{
			Field:   fe.Field(),
			Message: "failed on '" + fe.Tag() + "' validation",
		})
	}
	return model.NewValidationError("Invalid request body", details...)
}

func askError(err error) (int, *model.APIError) {
	switch {
	case errors.Is(err, assistant.ErrEmptyQuestion):
		return http.StatusBadRequest, model.NewValidationError(err.Error(),
			model.FieldError{Field: "question", Message: "must not be blank"})
	case errors.Is(err, assistant.ErrContentBlocked), errors.Is(err, assistant.ErrInvalidResponse):
		return http.StatusBadGateway, &model.APIError{Code: model.ErrUpstream, Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, &model.APIError{Code: model.ErrUpstream, Message: err.Error()}
	default:
		return http.StatusInternalServerError, &model.APIError{Code: model.ErrInternal, Message: "failed to answer question"}
	}
}
