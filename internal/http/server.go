package http

import (
	"context"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"pagos/internal/core"
	"pagos/internal/log"
	"pagos/internal/middleware/ratelimit"
	"pagos/internal/middleware/security"
	"pagos/internal/middleware/trace"
	"pagos/internal/services"
	appweb "pagos/web"
)

// Ledger is the part of services.LedgerService the handlers use.
type Ledger interface {
	Today() core.Date
	Dashboard(ctx context.Context, f core.Filters, refresh bool) (*services.Dashboard, error)
	Save(ctx context.Context, f core.Filters, edited []core.Record) (core.Table, error)
	AddRecord(ctx context.Context, r core.Record) (core.Table, error)
	ExportCSV(ctx context.Context, f core.Filters, w io.Writer) error
	Ping(ctx context.Context) error
}

type Options struct {
	Logger             *log.Logger
	RateLimitPerMinute int
	// TrustedProxies are CIDRs whose X-Forwarded-For is honoured.
	TrustedProxies []string
}

type appMetrics struct {
	saves        atomic.Int64
	saveFailures atomic.Int64
	adds         atomic.Int64
	uptime       time.Time
}

type Server struct {
	http.Server
	templates *template.Template
	ledger    Ledger
	logger    *log.Logger

	detector *security.Detector
	headers  *security.HeadersMiddleware
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware

	appMetrics   appMetrics
	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run http.Server.
func NewServer(addr string, ledger Ledger, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		ledger:   ledger,
		logger:   logger,
		detector: security.NewDetector(),
		headers:  security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		tracer:   trace.NewMiddleware(),
	}
	s.appMetrics.uptime = time.Now()

	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring invalid trusted proxy", "cidr", cidr, log.FieldError, err)
		}
	}

	// Parse embedded templates at startup.
	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Error("Failed parsing templates", log.FieldError, err, log.FieldComponent, log.ComponentTemplate)
	} else {
		s.templates = t
	}

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /ui/kpis", s.handleKPIs)
	mux.HandleFunc("POST /pagos/save", s.handleSave)
	mux.HandleFunc("POST /pagos", s.handleAdd)
	mux.HandleFunc("GET /pagos.csv", s.handleExportCSV)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	s.Handler = s.chain(mux)
	return s
}

// chain wraps h so that the tracer runs first and the rate limiter last.
func (s *Server) chain(h http.Handler) http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		s.tracer.Middleware,
		log.Middleware(s.logger),
		log.RequestIDMiddleware(trace.RequestIDFromRequest),
		log.AccessLog(s.detector.ExtractClientIP),
		s.headers.Middleware,
		s.detector.Middleware,
		s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit),
	}
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	errorResponse(http.StatusTooManyRequests, "Demasiadas solicitudes. Intenta de nuevo en unos segundos.").
		notify(notifyError, "Demasiadas solicitudes").
		write(w)
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
