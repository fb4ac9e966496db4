package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/cue/internal/engine"
	"github.com/MeKo-Tech/cue/internal/gallery"
	"github.com/MeKo-Tech/cue/internal/generr"
	"github.com/MeKo-Tech/cue/internal/metrics"
	"github.com/MeKo-Tech/cue/internal/params"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodyBytes bounds a generate request body.
const maxBodyBytes = 1 << 20

// Saver stores generated images; *gallery.Store satisfies it.
// Flush makes queued entries durable before a save is acknowledged.
type Saver interface {
	Save(e gallery.Entry) (string, error)
	Flush() error
}

// Config configures the API server.
type Config struct {
	DefaultSize   engine.Size
	MaxDimension  int
	MaxConcurrent int
	Timeout       time.Duration
	// Gallery is optional; when set, requests with "save": true are stored under Session.
	Gallery       Saver
	Session       string
}

// Server exposes the engine over HTTP.
type Server struct {
	eng    *engine.Engine
	cfg    Config
	logger *slog.Logger
	sem    chan struct{}

	active    atomic.Int32
	total     atomic.Int64
	failed    atomic.Int64
	startTime time.Time
}

// New applies defaults to cfg and returns a server.
func New(eng *engine.Engine, cfg Config, logger *slog.Logger) *Server {
	if cfg.DefaultSize.Width <= 0 || cfg.DefaultSize.Height <= 0 {
		cfg.DefaultSize = engine.Size{Width: 512, Height: 512}
	}
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = 2048
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if cfg.Session == "" {
		cfg.Session = "api"
	}

	return &Server{
		eng:       eng,
		cfg:       cfg,
		logger:    logger,
		sem:       make(chan struct{}, cfg.MaxConcurrent),
		startTime: time.Now(),
	}
}

// GenerateRequest is the body of POST /api/generate. Scores may be given as
// an object or as raw oracle text containing one.
type GenerateRequest struct {
	Scores    json.RawMessage `json:"scores,omitempty"`
	Raw       string          `json:"raw,omitempty"`
	Algorithm string          `json:"algorithm,omitempty"`
	Seed      *int64          `json:"seed,omitempty"`
	Width     int             `json:"width,omitempty"`
	Height    int             `json:"height,omitempty"`
	Save      bool            `json:"save,omitempty"`
}

// GenerateResponse carries the image as a PNG data URL.
type GenerateResponse struct {
	ID              string             `json:"id,omitempty"`
	ImageURL        string             `json:"image_url"`
	SentimentScores map[string]float64 `json:"sentiment_scores"`
	Params          params.Visual      `json:"params"`
	Description     string             `json:"description"`
	Algorithm       params.Algorithm   `json:"algorithm"`
	Seed            int64              `json:"seed"`
	ElapsedMS       int64              `json:"elapsed_ms"`
}

// Status reports server counters.
type Status struct {
	Active        int     `json:"active"`
	MaxConcurrent int     `json:"max_concurrent"`
	Total         int64   `json:"total"`
	Failed        int64   `json:"failed"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Handler returns the routed API with request ids, CORS and request metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /api/generate", instrument("generate", http.HandlerFunc(s.handleGenerate)))
	mux.Handle("GET /api/algorithms", instrument("algorithms", http.HandlerFunc(s.handleAlgorithms)))
	mux.Handle("GET /api/status", instrument("status", http.HandlerFunc(s.handleStatus)))
	mux.Handle("GET /healthz", instrument("healthz", http.HandlerFunc(handleHealth)))
	mux.Handle("GET /metrics", promhttp.Handler())
	return withRequestID(withCORS(mux))
}

// Status returns a snapshot of the counters.
func (s *Server) Status() Status {
	return Status{
		Active:        int(s.active.Load()),
		MaxConcurrent: s.cfg.MaxConcurrent,
		Total:         s.total.Load(),
		Failed:        s.failed.Load(),
		UptimeSeconds: time.Since(s.startTime).Seconds(),
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "Cue API"})
}

func (s *Server) handleAlgorithms(w http.ResponseWriter, r *http.Request) {
	algs := params.Algorithms()
	names := make([]string, len(algs))
	for i, a := range algs {
		names[i] = a.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"algorithms": names,
		"default":    s.eng.DefaultAlgorithm().String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, s.Status())
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	log := s.log().With("request_id", requestID(r.Context()))

	var req GenerateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, log, generr.ValidationError("invalid request body: "+err.Error()))
		return
	}

	scores, alg, size, err := s.parse(req)
	if err != nil {
		writeError(w, log, err)
		return
	}
	seed := time.Now().UnixNano()
	if req.Seed != nil {
		seed = *req.Seed
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		metrics.HTTPRejectedTotal.Inc()
		http.Error(w, "server busy", http.StatusServiceUnavailable)
		return
	}

	s.active.Add(1)
	metrics.HTTPInFlight.Inc()
	defer func() {
		s.active.Add(-1)
		metrics.HTTPInFlight.Dec()
	}()

	start := time.Now()
	res, err := s.eng.GenerateSingle(ctx, scores, size, seed, alg)
	s.total.Add(1)
	if err != nil {
		s.failed.Add(1)
		writeError(w, log, err)
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, res.Image); err != nil {
		s.failed.Add(1)
		writeError(w, log, fmt.Errorf("failed to encode png: %w", err))
		return
	}

	resp := GenerateResponse{
		ImageURL:        "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		SentimentScores: res.Metadata.Scores.Map(),
		Params:          res.Params,
		Description:     res.Metadata.Description,
		Algorithm:       res.Metadata.Algorithm,
		Seed:            seed,
		ElapsedMS:       time.Since(start).Milliseconds(),
	}

	if req.Save && s.cfg.Gallery != nil {
		id, err := s.save(res, seed)
		if err != nil {
			metrics.GallerySavesTotal.WithLabelValues("error").Inc()
			log.Error("Failed to save to gallery", "error", err)
		} else {
			metrics.GallerySavesTotal.WithLabelValues("success").Inc()
			resp.ID = id
		}
	}

	log.Info("Generated image", "algorithm", resp.Algorithm.String(), "seed", seed,
		"size", size.String(), "elapsed", time.Since(start))
	writeJSON(w, http.StatusOK, resp)
}

// save stores res and flushes it, so the returned id is only set once the
// row is on disk.
func (s *Server) save(res *engine.Result, seed int64) (string, error) {
	entry, err := gallery.FromResult(s.cfg.Session, fmt.Sprintf("api_%d", seed), res)
	if err != nil {
		return "", err
	}
	id, err := s.cfg.Gallery.Save(entry)
	if err != nil {
		return "", err
	}
	if err := s.cfg.Gallery.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush gallery: %w", err)
	}
	return id, nil
}

// parse resolves the request into engine inputs.
func (s *Server) parse(req GenerateRequest) (params.Scores, params.Algorithm, engine.Size, error) {
	var (
		scores params.Scores
		err    error
	)
	switch {
	case len(req.Scores) > 0:
		scores, err = params.ParseScores(req.Scores)
	case req.Raw != "":
		scores, err = params.ParseScores([]byte(req.Raw))
	default:
		err = generr.ValidationError("request needs scores or raw")
	}
	if err != nil {
		return params.Scores{}, 0, engine.Size{}, err
	}

	var alg params.Algorithm
	if req.Algorithm != "" {
		if alg, err = params.ParseAlgorithm(req.Algorithm); err != nil {
			return params.Scores{}, 0, engine.Size{}, err
		}
	}

	size := s.cfg.DefaultSize
	if req.Width != 0 || req.Height != 0 {
		size = engine.Size{Width: req.Width, Height: req.Height}
	}
	if size.Width > s.cfg.MaxDimension || size.Height > s.cfg.MaxDimension {
		return params.Scores{}, 0, engine.Size{}, generr.ConfigurationError(
			fmt.Sprintf("dimensions %s exceed the limit of %d", size, s.cfg.MaxDimension)).
			WithContext("max_dimension", s.cfg.MaxDimension)
	}
	return scores, alg, size, nil
}

func (s *Server) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps generation errors to their HTTP status; anything else is a 500.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	if ge, ok := generr.As(err); ok {
		if ge.HTTPStatus() >= 500 {
			log.Error("Generation failed", "error", err)
		} else {
			log.Warn("Rejected request", "error", err)
		}
		writeJSON(w, ge.HTTPStatus(), ge.ToResponse())
		return
	}

	status := http.StatusInternalServerError
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	} else if errors.Is(err, context.Canceled) {
		status = http.StatusRequestTimeout
	}
	log.Error("Request failed", "error", err, "status", status)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
