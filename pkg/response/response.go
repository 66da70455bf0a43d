package response

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the standard API error envelope.
type ErrorBody struct {
	Error   string          `json:"error"`
	Details json.RawMessage `json:"details,omitempty"`
}

// OK sends a 200 JSON response with data as the top-level body.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Error sends status with an error code.
func Error(c *gin.Context, status int, code string) {
	c.JSON(status, ErrorBody{Error: code})
}

// ErrorWithDetails sends status with an error code and the upstream body attached.
// A details body that is not valid JSON is sent as a JSON string.
func ErrorWithDetails(c *gin.Context, status int, code string, details []byte) {
	c.JSON(status, ErrorBody{Error: code, Details: rawJSON(details)})
}

// Passthrough relays an upstream status and body. Non-JSON bodies are wrapped as {"error": "<text>"}.
func Passthrough(c *gin.Context, status int, body []byte) {
	if len(body) > 0 && json.Valid(body) {
		c.Data(status, "application/json; charset=utf-8", body)
		return
	}
	c.JSON(status, ErrorBody{Error: string(body)})
}

// BadRequest sends 400 with error code.
func BadRequest(c *gin.Context, code string) {
	Error(c, http.StatusBadRequest, code)
}

// Internal sends 500.
func Internal(c *gin.Context, code string) {
	Error(c, http.StatusInternalServerError, code)
}

func rawJSON(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	quoted, err := json.Marshal(string(b))
	if err != nil {
		return nil
	}
	return quoted
}
