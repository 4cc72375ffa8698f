package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mgpai22/burnsub/internal/errs"
)

// body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

const badRequest = "BadRequest"

var statusByKind = map[errs.Kind]int{
	errs.KindUploadRejected:       http.StatusBadRequest,
	errs.KindInvalidTiming:        http.StatusUnprocessableEntity,
	errs.KindInvalidStyle:         http.StatusUnprocessableEntity,
	errs.KindNotFound:             http.StatusNotFound,
	errs.KindTranscriptionFailed:  http.StatusBadGateway,
	errs.KindFontResolutionFailed: http.StatusBadGateway,
	errs.KindEncodeFailed:         http.StatusInternalServerError,
	errs.KindVerificationFailed:   http.StatusInternalServerError,
	errs.KindTimeout:              http.StatusGatewayTimeout,
	errs.KindCanceled:             http.StatusConflict,
	errs.KindUnknown:              http.StatusInternalServerError,
}

func statusFor(kind errs.Kind) int {
	if s, ok := statusByKind[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// writes err as an ErrorResponse with the status of its kind
func abortWithError(c *gin.Context, err error) {
	kind := errs.KindOf(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(kind), ErrorResponse{
		Error:   string(kind),
		Message: errs.Message(kind),
		Detail:  err.Error(),
	})
}

func abortBadRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Error:   badRequest,
		Message: "The request is malformed.",
		Detail:  err.Error(),
	})
}

// recovers from panics in handlers with an Unknown error body
func recoveryMiddleware() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		abortWithError(c, errs.Errorf(errs.KindUnknown, c.FullPath(), "panic: %v", recovered))
	})
}

// answers errors a handler recorded without writing a response
func errorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		abortWithError(c, c.Errors.Last().Err)
	}
}
