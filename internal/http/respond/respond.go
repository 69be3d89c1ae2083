// Package respond writes the JSON envelope shared by every API endpoint.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/wolfman30/clinic-frontdesk/internal/appointments"
	"github.com/wolfman30/clinic-frontdesk/internal/capacity"
	"github.com/wolfman30/clinic-frontdesk/internal/tokens"
	"github.com/wolfman30/clinic-frontdesk/pkg/logging"
)

const (
	MessageNotFound     = "Not found"
	MessageForbidden    = "Forbidden"
	MessageUnauthorized = "Unauthorized"
	MessageInternal     = "Internal server error"
	MessageConflict     = "Appointment was changed by someone else, reload and try again"
	MessageDuplicate    = "Patient already has a pending appointment"
)

// clientSentinels are the errors whose text is safe to show. Anything wrapped
// in front of them is internal context and gets cut.
var clientSentinels = []error{
	appointments.ErrInvalidRequest,
	appointments.ErrInvalidTimeFormat,
	appointments.ErrInvalidTransition,
	appointments.ErrCapacityExceeded,
	capacity.ErrInvalidKey,
	capacity.ErrInvalidCapacity,
}

// Envelope is the body of every JSON response.
type Envelope struct {
	OK    bool       `json:"ok"`
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
}

type ErrorBody struct {
	Message string `json:"message"`
}

// JSON writes a success envelope.
func JSON(w http.ResponseWriter, status int, data any) {
	write(w, status, Envelope{OK: true, Data: data})
}

// Message writes a failure envelope with a client-safe message.
func Message(w http.ResponseWriter, status int, msg string) {
	write(w, status, Envelope{OK: false, Error: &ErrorBody{Message: msg}})
}

// Error maps err to a status and writes it. Unmapped errors are logged and
// reported as a generic 500 so store details never reach the client.
func Error(w http.ResponseWriter, logger *logging.Logger, err error) {
	status := StatusFor(err)
	switch status {
	case http.StatusInternalServerError:
		if logger == nil {
			logger = logging.Default()
		}
		logger.Error("request failed", "error", err)
		Message(w, status, MessageInternal)
	case http.StatusNotFound:
		Message(w, status, MessageNotFound)
	case http.StatusUnauthorized:
		Message(w, status, MessageUnauthorized)
	default:
		Message(w, status, clientMessage(err))
	}
}

func clientMessage(err error) string {
	switch {
	case errors.Is(err, appointments.ErrConflict):
		return MessageConflict
	case errors.Is(err, appointments.ErrDuplicatePending):
		return MessageDuplicate
	}
	msg := err.Error()
	for _, sentinel := range clientSentinels {
		if !errors.Is(err, sentinel) {
			continue
		}
		if i := strings.Index(msg, sentinel.Error()); i > 0 {
			return msg[i:]
		}
		break
	}
	return msg
}

// StatusFor is the HTTP status for a domain error.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, appointments.ErrNotFound), errors.Is(err, capacity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, appointments.ErrInvalidRequest),
		errors.Is(err, appointments.ErrInvalidTimeFormat),
		errors.Is(err, appointments.ErrInvalidTransition),
		errors.Is(err, capacity.ErrInvalidKey),
		errors.Is(err, capacity.ErrInvalidCapacity):
		return http.StatusBadRequest
	case errors.Is(err, appointments.ErrCapacityExceeded),
		errors.Is(err, appointments.ErrDuplicatePending),
		errors.Is(err, appointments.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, tokens.ErrInvalidToken):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Write sends body as is, for responses that carry data alongside a failure.
func Write(w http.ResponseWriter, status int, body Envelope) {
	write(w, status, body)
}

func write(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
