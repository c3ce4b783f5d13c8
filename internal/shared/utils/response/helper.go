package response

import (
	"net/http"

	"busline/internal/shared/apperrors"

	"github.com/gin-gonic/gin"
)

func RespondJSON(c *gin.Context, status string, code int, message string, data interface{}, errors interface{}) {
	c.JSON(code, StandardApiResponse{
		Status:     status,
		StatusCode: code,
		Message:    message,
		Data:       data,
		Errors:     errors,
	})
}

// RespondError maps an application error to the standard envelope using
// its kind; internal causes are never included in the body.
func RespondError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	RespondJSON(c, "error", httpStatusFor(kind), apperrors.MessageOf(err), nil, gin.H{"kind": kind})
}

func httpStatusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
