// Package response centralizes the HTTP response shapes of the judge's
// external interface, the way the judge's own pkg/utils/response wraps gin.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"judgecore/pkg/errs"
)

// errorBody is the error response shape: the body must name the error kind
// directly (spec.md's end-to-end scenarios assert on this), not a numeric
// code.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CORS sets the permissive CORS header every response carries, success or
// error, mirroring the reference judge setting it unconditionally.
func CORS(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
}

// JSON sends data as the full response body with no envelope, matching
// spec.md §6's literal success schema.
func JSON(c *gin.Context, data interface{}) {
	CORS(c)
	c.JSON(http.StatusOK, data)
}

// Error sends a client or internal error response. The HTTP status and the
// reported error name both come from err's code. Internal (500) errors carry
// only the code's default message, so backend error text never reaches the
// client.
func Error(c *gin.Context, err error) {
	CORS(c)
	e := errs.As(err)
	status := e.Code.HTTPStatus()
	msg := e.Message
	if status >= 500 {
		msg = e.Code.Message()
	}
	c.JSON(status, errorBody{Error: string(e.Code), Message: msg})
}
