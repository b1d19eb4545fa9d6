package httpapi

import (
	"encoding/json"
	"net/http"

	"comfyd/internal/job"
	"comfyd/pkg/types"
)

// writeJSONError writes a consistent JSON error payload for transport-level
// failures (malformed body, unknown route). Job failures are not routed here;
// they keep the full result envelope and only borrow the mapped status code.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// statusForError maps a job failure to the HTTP status served alongside the
// FAILED envelope. Anything unclassified is an internal error.
func statusForError(err error) int {
	return statusForKind(job.Classify(err))
}

func statusForKind(k job.Kind) int {
	switch k {
	case job.KindConfig:
		return http.StatusBadRequest
	case job.KindBusy:
		return http.StatusTooManyRequests
	case job.KindTransport:
		return http.StatusBadGateway
	case job.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
