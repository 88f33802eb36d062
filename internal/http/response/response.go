package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/roadmap-backend/internal/platform/apierr"
	"github.com/yungbote/roadmap-backend/internal/platform/ctxutil"
	"github.com/yungbote/roadmap-backend/internal/platform/httpx"
)

// ErrorBody is what clients see for any non-2xx reply.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

type Envelope struct {
	Error ErrorBody `json:"error"`
}

// RespondError writes the error envelope. 5xx messages are replaced by the status text; the
// underlying error is attached to the gin context so the request log still carries it.
func RespondError(c *gin.Context, status int, code string, err error) {
	if err != nil {
		_ = c.Error(err)
	}
	if code == "" {
		code = "error"
	}
	body := ErrorBody{
		Code:      code,
		Message:   publicMessage(status, err),
		Retryable: httpx.RetryableStatus(status),
	}
	if corr, ok := ctxutil.CorrelationFrom(c.Request.Context()); ok {
		body.RequestID = corr.RequestID
	}
	c.AbortWithStatusJSON(status, Envelope{Error: body})
}

// RespondErr picks status and code from the error's kind.
func RespondErr(c *gin.Context, err error) {
	ae := apierr.From(err)
	if ae == nil {
		ae = apierr.New(http.StatusInternalServerError, "internal_error", err)
	}
	RespondError(c, ae.Status, ae.Code, err)
}

func publicMessage(status int, err error) string {
	if status >= 500 || err == nil {
		if txt := http.StatusText(status); txt != "" {
			return txt
		}
		return "request failed"
	}
	return err.Error()
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondAccepted(c *gin.Context, payload any) {
	c.JSON(http.StatusAccepted, payload)
}
