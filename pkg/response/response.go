// Package response is the JSON envelope shared by the history server and its
// clients: {success, data, error, message}.
package response

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// Envelope wraps every body the server writes. Data is omitted on errors.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Raw is an envelope whose payload is decoded later.
type Raw = Envelope[json.RawMessage]

var ErrEmptyData = errors.New("envelope carries no data")

func write(w http.ResponseWriter, statusCode int, env Envelope[interface{}]) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(env)
}

func JSON(w http.ResponseWriter, statusCode int, data interface{}) {
	write(w, statusCode, Envelope[interface{}]{Success: statusCode < 400, Data: data})
}

func Success(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, data)
}

func Created(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusCreated, data)
}

func Error(w http.ResponseWriter, statusCode int, err string) {
	write(w, statusCode, Envelope[interface{}]{Error: err})
}

func BadRequest(w http.ResponseWriter, err string) {
	Error(w, http.StatusBadRequest, err)
}

func Unauthorized(w http.ResponseWriter, err string) {
	Error(w, http.StatusUnauthorized, err)
}

func NotFound(w http.ResponseWriter, err string) {
	Error(w, http.StatusNotFound, err)
}

func InternalError(w http.ResponseWriter, err string) {
	Error(w, http.StatusInternalServerError, err)
}

// Conflict reports a write that lost to stored state. current, when not nil,
// is the stored version the client should compare against.
func Conflict(w http.ResponseWriter, err string, current interface{}) {
	write(w, http.StatusConflict, Envelope[interface{}]{Error: err, Data: current})
}

// ServiceUnavailable tells the client to retry the same request later.
func ServiceUnavailable(w http.ResponseWriter, err string) {
	w.Header().Set("Retry-After", "1")
	Error(w, http.StatusServiceUnavailable, err)
}

// Decode reads one envelope from r.
func Decode(r io.Reader) (*Raw, error) {
	var env Raw
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Unwrap unmarshals the payload of env into out. A missing or null payload
// leaves out untouched and returns ErrEmptyData.
func Unwrap(env *Raw, out interface{}) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return ErrEmptyData
	}
	return json.Unmarshal(env.Data, out)
}
