package api

import (
	"context"
	stderrors "errors"
	"net/http"

	"caseflow/internal/errors"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Status  int          `json:"status"`
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
}

// FieldError names one rejected request field.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// Render implements render.Renderer.
func (e *ErrorResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.Status)
	return nil
}

// newErrorResponse maps err onto a status and code.
func newErrorResponse(err error) *ErrorResponse {
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) {
		resp := &ErrorResponse{
			Status:  http.StatusBadRequest,
			Code:    errors.CodeValidationError,
			Message: "request validation failed",
		}
		for _, fe := range verrs {
			resp.Fields = append(resp.Fields, FieldError{Field: fe.Field(), Rule: fe.Tag()})
		}
		return resp
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return &ErrorResponse{Status: http.StatusGatewayTimeout, Code: "TIMEOUT", Message: err.Error()}
	}

	code := errors.GetCode(err)
	return &ErrorResponse{Status: errors.HTTPStatus(code), Code: code, Message: err.Error()}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	resp := newErrorResponse(err)
	if resp.Status >= http.StatusInternalServerError {
		s.logger.Error("%s %s: %v", r.Method, r.URL.Path, err)
	} else {
		s.logger.Debug("%s %s: %v", r.Method, r.URL.Path, err)
	}
	render.Render(w, r, resp)
}
