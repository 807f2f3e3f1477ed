package http

import (
	"encoding/json"
	"html/template"
	"net/http"
)

// Events sent to the page through HX-Trigger.
const (
	eventLedgerSaved  = "ledger:saved"
	eventNotification = "show-notification"
)

type notificationKind string

const (
	notifySuccess notificationKind = "success"
	notifyError   notificationKind = "error"
)

var notificationDuration = map[notificationKind]int{
	notifySuccess: 3000,
	notifyError:   5000,
}

// htmxResponse collects the status, headers, HX-Trigger events and body of
// one response. Plain form posts ignore the HX-* headers.
type htmxResponse struct {
	status  int
	events  map[string]any
	headers http.Header
	body    []byte
}

func newResponse(status int) *htmxResponse {
	return &htmxResponse{
		status:  status,
		events:  make(map[string]any),
		headers: make(http.Header),
	}
}

func (r *htmxResponse) trigger(event string, detail any) *htmxResponse {
	r.events[event] = detail
	return r
}

// ledgerChanged tells the KPI panel to reload.
func (r *htmxResponse) ledgerChanged(action string, rows int) *htmxResponse {
	return r.trigger(eventLedgerSaved, map[string]any{"action": action, "rows": rows})
}

func (r *htmxResponse) notify(kind notificationKind, message string) *htmxResponse {
	return r.trigger(eventNotification, map[string]any{
		"type":     string(kind),
		"message":  message,
		"duration": notificationDuration[kind],
	})
}

// redirect makes htmx load url as a full page.
func (r *htmxResponse) redirect(url string) *htmxResponse {
	r.headers.Set("HX-Redirect", url)
	return r
}

func (r *htmxResponse) html(fragment string) *htmxResponse {
	r.headers.Set("Content-Type", "text/html; charset=utf-8")
	r.body = []byte(fragment)
	return r
}

func (r *htmxResponse) write(w http.ResponseWriter) {
	for name, values := range r.headers {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	if len(r.events) > 0 {
		if b, err := json.Marshal(r.events); err == nil {
			w.Header().Set("HX-Trigger", string(b))
		}
	}
	w.WriteHeader(r.status)
	if len(r.body) > 0 {
		_, _ = w.Write(r.body)
	}
}

// errorResponse renders message, escaped, in an alert box.
func errorResponse(status int, message string) *htmxResponse {
	return newResponse(status).
		html(`<div class="error" role="alert">` + template.HTMLEscapeString(message) + `</div>`)
}

func badForm(message string) *htmxResponse {
	return errorResponse(http.StatusBadRequest, message)
}

func invalidRecord(message string) *htmxResponse {
	return errorResponse(http.StatusUnprocessableEntity, message)
}

// storeFailure reports a failed read or write of the ledger. The cause is
// shown so users can tell a quota error from a permission error.
func storeFailure(message string, err error) *htmxResponse {
	return errorResponse(http.StatusInternalServerError, message+": "+err.Error()).
		notify(notifyError, message)
}
