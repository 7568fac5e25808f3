// Package response renders the API3 JSON envelope
package response

import (
	"encoding/json"
	"net/http"
)

// APIVersion is reported in every success envelope
const APIVersion = 3

// Envelope is the API3 result document. Success sets Version, Count and
// Values; failure sets ErrorCode and ErrorMessage.
type Envelope struct {
	IsError      int         `json:"is_error"`
	Version      int         `json:"version,omitempty"`
	Count        int         `json:"count"`
	Values       interface{} `json:"values,omitempty"`
	ErrorCode    interface{} `json:"error_code,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

// MarshalJSON omits count on errors
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.IsError != 0 {
		return json.Marshal(struct {
			IsError      int         `json:"is_error"`
			ErrorCode    interface{} `json:"error_code,omitempty"`
			ErrorMessage string      `json:"error_message"`
		}{e.IsError, e.ErrorCode, e.ErrorMessage})
	}
	type plain Envelope
	return json.Marshal(plain(e))
}

// Success builds a success envelope. Maps and slices are counted by
// length; any other non-nil value counts as one.
func Success(values interface{}) Envelope {
	return Envelope{
		Version: APIVersion,
		Count:   count(values),
		Values:  values,
	}
}

// Error builds an error envelope. code may be nil.
func Error(code interface{}, message string) Envelope {
	return Envelope{
		IsError:      1,
		ErrorCode:    code,
		ErrorMessage: message,
	}
}

// Render writes env as JSON with the given status
func Render(w http.ResponseWriter, status int, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, err = w.Write(data)
	return err
}

// RenderSuccess writes a 200 success envelope
func RenderSuccess(w http.ResponseWriter, values interface{}) error {
	return Render(w, http.StatusOK, Success(values))
}

// RenderError writes an error envelope
func RenderError(w http.ResponseWriter, status int, code interface{}, message string) error {
	return Render(w, status, Error(code, message))
}

func count(values interface{}) int {
	switch v := values.(type) {
	case nil:
		return 0
	case map[string]interface{}:
		return len(v)
	case map[string]string:
		return len(v)
	case []interface{}:
		return len(v)
	case []string:
		return len(v)
	}
	return 1
}
