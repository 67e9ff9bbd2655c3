package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/convolab-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Stage   string `json:"stage,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
			Kind:    string(apierr.KindValidation),
		},
	})
}

// RespondAPIError maps err through the apierr taxonomy. Internal errors are
// logged by the request logger and never echoed to the client.
func RespondAPIError(c *gin.Context, err error) {
	kind := apierr.KindOf(err)
	status := apierr.StatusOf(err)
	body := APIError{
		Code:  apierr.CodeOf(err),
		Kind:  string(kind),
		Stage: apierr.StageOf(err),
	}
	var ae *apierr.Error
	switch {
	case kind == apierr.KindInternal:
		body.Message = "internal server error"
	case errors.As(err, &ae) && ae.Err != nil:
		body.Message = ae.Err.Error()
	default:
		body.Message = err.Error()
	}
	_ = c.Error(err)
	c.JSON(status, ErrorEnvelope{Error: body})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}

func RespondAccepted(c *gin.Context, payload any) {
	c.JSON(http.StatusAccepted, payload)
}
