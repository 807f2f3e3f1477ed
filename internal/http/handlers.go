package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"pagos/internal/amqp"
	"pagos/internal/core"
	"pagos/internal/log"
)

const maxFormBytes = 10 << 20

// Banner messages selected by the msg query parameter after a redirect.
var flashMessages = map[string]string{
	"saved": "¡Cambios guardados en Google Sheets!",
	"added": "Registro agregado.",
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	})
}

// handleReady checks the templates and that the ledger can be read.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if err := s.ledger.Ping(ctx); err != nil {
		checks["ledger_store"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["ledger_store"] = "ok"
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.GetMetrics().ClientCount,
		"status":         "ok",
	}

	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics writes counters in Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.tracer.GetMetrics()
	limitMetrics := s.limiter.GetMetrics()

	w.WriteHeader(http.StatusOK)
	metric := func(name, help, kind string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
		fmt.Fprintf(w, "%s %v\n\n", name, value)
	}
	metric("http_requests_total", "Total number of HTTP requests", "counter", traceMetrics.TotalRequests)
	metric("http_server_errors_total", "Responses with a 5xx status", "counter", traceMetrics.ServerErrors)
	metric("http_client_errors_total", "Responses with a 4xx status", "counter", traceMetrics.ClientErrors)
	metric("http_request_duration_ms_avg", "Mean request latency in milliseconds", "gauge",
		fmt.Sprintf("%.2f", traceMetrics.AverageLatencyMs()))
	metric("ledger_saves_total", "Successful table saves", "counter", s.appMetrics.saves.Load())
	metric("ledger_save_failures_total", "Failed table saves", "counter", s.appMetrics.saveFailures.Load())
	metric("ledger_records_added_total", "Records added through the form", "counter", s.appMetrics.adds.Load())
	metric("rate_limit_hits_total", "Requests rejected by the rate limiter", "counter", limitMetrics.Rejected)
	metric("active_rate_limit_clients", "Currently tracked rate limit clients", "gauge", limitMetrics.ClientCount)
	metric("suspicious_requests_total", "Total suspicious requests detected", "counter", s.detector.SuspiciousRequests())
	metric("uptime_seconds", "Application uptime in seconds", "gauge",
		fmt.Sprintf("%.0f", time.Since(s.appMetrics.uptime).Seconds()))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data, err := s.loadPage(r.Context(), ParseFilters(q), q.Get(paramRefresh) == "1")
	if err != nil {
		s.renderStoreError(w, r, err)
		return
	}
	data.Message = flashMessages[q.Get(paramMessage)]
	s.render(w, r, "index.html", data)
}

// handleKPIs renders only the KPI panel, used by htmx after a change.
func (s *Server) handleKPIs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data, err := s.loadPage(r.Context(), ParseFilters(q), q.Get(paramRefresh) == "1")
	if err != nil {
		s.renderStoreError(w, r, err)
		return
	}
	s.render(w, r, "kpis", data)
}

// handleSave merges the submitted editor rows into the ledger and
// overwrites the store.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		logger.WarnContext(r.Context(), "Parse form error", log.FieldError, err, log.FieldPath, r.URL.Path)
		badForm("Formato de solicitud no válido").write(w)
		return
	}

	filters := ParseFilters(r.PostForm)
	edited, err := ParseEditedRows(r.PostForm)
	if err != nil {
		logger.WarnContext(r.Context(), "Invalid editor form", log.FieldError, err)
		badForm("Tabla enviada no válida").write(w)
		return
	}

	merged, err := s.ledger.Save(r.Context(), filters, edited)
	if err != nil {
		s.appMetrics.saveFailures.Add(1)
		logger.LogError(r.Context(), "Save failed", err, log.ErrorTypeStore, log.OpSave,
			log.NewFields().WithFilters(filters.Priority, filters.Status))
		storeFailure("No se pudieron guardar los cambios", err).write(w)
		return
	}
	s.appMetrics.saves.Add(1)

	s.redirectAfterWrite(w, r, filters, "saved", amqp.ActionSaved, merged.Len())
}

// handleAdd appends one record from the add form.
func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		logger.WarnContext(r.Context(), "Parse form error", log.FieldError, err, log.FieldPath, r.URL.Path)
		badForm("Formato de solicitud no válido").write(w)
		return
	}

	filters := ParseFilters(r.PostForm)
	rec := ParseRecordForm(r.PostForm, s.ledger.Today())
	merged, err := s.ledger.AddRecord(r.Context(), rec)
	switch {
	case errors.Is(err, core.ErrEmptyProvider):
		invalidRecord("El proveedor es obligatorio").write(w)
		return
	case errors.Is(err, core.ErrInvalidAmount):
		invalidRecord("Monto no válido").write(w)
		return
	case errors.Is(err, core.ErrInvalidDate):
		invalidRecord("Fecha de vencimiento no válida").write(w)
		return
	case err != nil:
		logger.LogError(r.Context(), "Add record failed", err, log.ErrorTypeStore, log.OpAppend,
			log.NewFields().WithComponent(log.ComponentLedger))
		storeFailure("No se pudo agregar el registro", err).write(w)
		return
	}
	s.appMetrics.adds.Add(1)

	s.redirectAfterWrite(w, r, filters, "added", amqp.ActionAdded, merged.Len())
}

// redirectAfterWrite sends the browser back to the dashboard with the
// filters it had. htmx requests get HX-Redirect instead of a 303.
func (s *Server) redirectAfterWrite(w http.ResponseWriter, r *http.Request, f core.Filters, msg, action string, rows int) {
	q := FilterQuery(f)
	q.Set(paramMessage, msg)
	target := "/?" + q.Encode()

	if r.Header.Get("HX-Request") == "true" {
		newResponse(http.StatusOK).
			redirect(target).
			ledgerChanged(action, rows).
			notify(notifySuccess, flashMessages[msg]).
			write(w)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	f := ParseFilters(r.URL.Query())
	var buf bytes.Buffer
	if err := s.ledger.ExportCSV(r.Context(), f, &buf); err != nil {
		log.FromContext(r.Context()).LogError(r.Context(), "CSV export failed", err, log.ErrorTypeStore, log.OpExport, nil)
		storeFailure("No se pudo exportar", err).write(w)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+exportFileName(s.ledger.Today())+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func exportFileName(today core.Date) string {
	return "pagos-" + today.String() + ".csv"
}

func (s *Server) loadPage(ctx context.Context, f core.Filters, refresh bool) (pageData, error) {
	d, err := s.ledger.Dashboard(ctx, f, refresh)
	if err != nil {
		return pageData{}, err
	}
	return buildPage(d), nil
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	if s.templates == nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded",
			log.FieldPath, r.URL.Path,
			log.FieldErrorType, log.ErrorTypeConfiguration)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		log.FromContext(r.Context()).LogError(r.Context(), "Template execution failed", err,
			log.ErrorTypeInternal, log.OpRender, log.NewFields().WithComponent(log.ComponentTemplate))
		http.Error(w, "render error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) renderStoreError(w http.ResponseWriter, r *http.Request, err error) {
	log.FromContext(r.Context()).LogError(r.Context(), "Ledger load failed", err, log.ErrorTypeStore, log.OpLoad, nil)
	storeFailure("No se pudo leer la hoja de pagos", err).write(w)
}
