// Package server exposes the transform pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Skryldev/rasterpipe"
	"github.com/Skryldev/rasterpipe/config"
	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// Handler serves the HTTP API for one Processor.
type Handler struct {
	proc    *rasterpipe.Processor
	logger  *slog.Logger
	maxBody int64
}

// New returns a Handler. maxBody caps request bodies; 0 means no cap.
func New(proc *rasterpipe.Processor, logger *slog.Logger, maxBody int64) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{proc: proc, logger: logger, maxBody: maxBody}
}

// Routes returns the router with every endpoint mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts the endpoints on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/transform", h.Transform)
		r.Get("/engine", h.GetEngine)
		r.Put("/engine", h.PutEngine)
		r.Get("/stats", h.Stats)
	})
}

// Serve runs an http.Server on cfg.Addr until ctx is cancelled, then shuts
// it down within cfg.ShutdownTimeout.
func Serve(ctx context.Context, cfg config.ServerConfig, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server.listen", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	logger.Info("server.shutdown")
	return srv.Shutdown(shutdownCtx)
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Timestamp: time.Now().UTC()})
}

// Transform handles POST /v1/transform. The body is the source image; the
// query string carries the request.
func (h *Handler) Transform(w http.ResponseWriter, r *http.Request) {
	req, out, err := parseTransform(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	body := r.Body
	if h.maxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	src := rasterpipe.FromReaderWithMeta(body, r.ContentLength, r.Header.Get("Content-Type"), "")
	res, err := h.proc.Process(r.Context(), src, req, out)
	if err != nil {
		h.writeError(w, err)
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", res.Format.ContentType())
	hdr.Set("Content-Length", strconv.Itoa(len(res.Data)))
	hdr.Set("X-Image-Width", strconv.Itoa(res.Width))
	hdr.Set("X-Image-Height", strconv.Itoa(res.Height))
	hdr.Set("X-Image-Format", string(res.Format))
	if res.HasOrientation {
		hdr.Set("X-Image-Orientation", res.Orientation.String())
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Data); err != nil {
		h.logger.Warn("server.write", "error", err)
	}
}

// parseTransform reads the transform request and output options from the
// query string.
func parseTransform(r *http.Request) (core.TransformRequest, core.OutputOptions, error) {
	q := r.URL.Query()
	var (
		opts []core.RequestOption
		out  core.OutputOptions
	)

	if v := q.Get("rotate"); v != "" {
		mode, err := core.ParseRotation(v)
		if err != nil {
			return core.TransformRequest{}, out, err
		}
		opts = append(opts, core.WithRotation(mode))
	}
	for _, b := range []struct {
		name string
		opt  func(bool) core.RequestOption
	}{
		{"flip", core.WithFlip},
		{"flop", core.WithFlop},
		{"keep_metadata", core.WithKeepMetadata},
	} {
		if v := q.Get(b.name); v != "" {
			on, err := strconv.ParseBool(v)
			if err != nil {
				return core.TransformRequest{}, out, apperrors.InvalidArgument(b.name, v, err)
			}
			opts = append(opts, b.opt(on))
		}
	}

	width, err := queryInt(q.Get("width"), "width")
	if err != nil {
		return core.TransformRequest{}, out, err
	}
	height, err := queryInt(q.Get("height"), "height")
	if err != nil {
		return core.TransformRequest{}, out, err
	}
	if width != 0 || height != 0 || q.Get("fit") != "" {
		fit, err := core.ParseFit(q.Get("fit"))
		if err != nil {
			return core.TransformRequest{}, out, err
		}
		opts = append(opts, core.WithResize(width, height, fit))
	}

	if v := q.Get("orientation"); v != "" {
		o, ok := core.ParseOrientation(v)
		if !ok {
			return core.TransformRequest{}, out, apperrors.InvalidArgument("orientation", v, apperrors.ErrInvalidOrientation)
		}
		opts = append(opts, core.WithMetadataOverride(o))
	}

	if v := q.Get("format"); v != "" {
		out.Format = core.ParseFormat(v)
		if out.Format == core.FormatUnknown {
			return core.TransformRequest{}, out, apperrors.InvalidArgument("format", v, apperrors.ErrUnsupportedFormat)
		}
	}
	if out.Quality, err = queryInt(q.Get("quality"), "quality"); err != nil {
		return core.TransformRequest{}, out, err
	}
	if out.Quality > 100 {
		return core.TransformRequest{}, out, apperrors.InvalidArgument("quality", out.Quality, errors.New("quality must be at most 100"))
	}

	req, err := core.NewTransformRequest(opts...)
	return req, out, err
}

func queryInt(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperrors.InvalidArgument(name, v, err)
	}
	if n < 0 {
		return 0, apperrors.InvalidArgument(name, n, apperrors.ErrNegativeDimension)
	}
	return n, nil
}

// engineResponse is the JSON form of config.EngineSettings.
type engineResponse struct {
	Cache        bool `json:"cache"`
	CacheEntries int  `json:"cache_entries"`
	SIMD         bool `json:"simd"`
	Concurrency  *int `json:"concurrency"`
	Effective    int  `json:"effective_concurrency"`
}

// engineUpdate is the PUT /v1/engine body. Absent fields are unchanged; a
// concurrency of 0 clears the cap.
type engineUpdate struct {
	Cache       *bool `json:"cache"`
	SIMD        *bool `json:"simd"`
	Concurrency *int  `json:"concurrency"`
}

// GetEngine reports the effective engine settings.
func (h *Handler) GetEngine(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toEngineResponse(h.proc.Engine().Snapshot()))
}

// PutEngine updates engine settings through the setters.
func (h *Handler) PutEngine(w http.ResponseWriter, r *http.Request) {
	var upd engineUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		h.writeError(w, apperrors.InvalidArgument("engine", "body", err))
		return
	}
	if upd.Concurrency != nil && *upd.Concurrency < 0 {
		h.writeError(w, apperrors.InvalidArgument("engine.concurrency", *upd.Concurrency, errors.New("concurrency must not be negative")))
		return
	}

	engine := h.proc.Engine()
	if upd.Cache != nil {
		engine.SetCache(*upd.Cache)
	}
	if upd.SIMD != nil {
		engine.SetSIMD(*upd.SIMD)
	}
	if upd.Concurrency != nil {
		if *upd.Concurrency == 0 {
			engine.SetConcurrency(nil)
		} else {
			n := *upd.Concurrency
			engine.SetConcurrency(&n)
		}
	}
	s := engine.Snapshot()
	h.logger.Info("engine.updated", "cache", s.Cache, "simd", s.SIMD, "concurrency", s.EffectiveConcurrency())
	writeJSON(w, http.StatusOK, toEngineResponse(s))
}

func toEngineResponse(s config.EngineSettings) engineResponse {
	return engineResponse{
		Cache:        s.Cache,
		CacheEntries: s.CacheEntries,
		SIMD:         s.SIMD,
		Concurrency:  s.Concurrency,
		Effective:    s.EffectiveConcurrency(),
	}
}

// Stats reports processor counters and stage metrics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.proc.Stats())
}

type errorResponse struct {
	Error    string `json:"error"`
	Category string `json:"category"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	cat := apperrors.CategoryOf(err)
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("server.request.failed", "category", cat, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Category: string(cat)})
}

func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	switch apperrors.CategoryOf(err) {
	case apperrors.CategoryInvalidArgument, apperrors.CategoryGeometry:
		return http.StatusBadRequest
	case apperrors.CategoryInput:
		if errors.Is(err, apperrors.ErrEmptyInput) {
			return http.StatusBadRequest
		}
		return http.StatusRequestEntityTooLarge
	case apperrors.CategoryDecode:
		return http.StatusUnprocessableEntity
	case apperrors.CategoryEncode:
		if errors.Is(err, apperrors.ErrUnsupportedFormat) {
			return http.StatusUnprocessableEntity
		}
	case apperrors.CategoryTransient, apperrors.CategoryStorage:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
