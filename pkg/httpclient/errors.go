package httpclient

import (
	"encoding/json"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// errorBody covers both shapes the API uses for failures: a flat
// {"message": "..."} object and the {"error": {"code", "message"}} envelope.
type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ErrorFromBody builds the AppError for a non-2xx response with the given
// raw body. The top-level message wins, then the envelope message, then the
// status text. Data is the decoded JSON body, or the raw text when the body
// is not JSON, or nil when it is empty.
func ErrorFromBody(status int, body []byte) *apperrors.AppError {
	var data any
	var parsed errorBody
	if len(body) > 0 {
		if err := json.Unmarshal(body, &data); err != nil {
			data = string(body)
		} else {
			_ = json.Unmarshal(body, &parsed)
		}
	}

	code, message := parsed.Code, parsed.Message
	if parsed.Error != nil {
		if code == "" {
			code = parsed.Error.Code
		}
		if message == "" {
			message = parsed.Error.Message
		}
	}

	return apperrors.FromStatus(status, code, message, data)
}
