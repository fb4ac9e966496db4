package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MeKo-Tech/cue/internal/config"
	"github.com/MeKo-Tech/cue/internal/engine"
	"github.com/MeKo-Tech/cue/internal/gallery"
	"github.com/MeKo-Tech/cue/internal/generr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleScores = `{"positiveness":0.75,"energy":0.45,"complexity":0.6,"conflictness":0.25}`

type memorySaver struct {
	mu       sync.Mutex
	entries  []gallery.Entry
	flushes  int
	flushErr error
}

func (m *memorySaver) Save(e gallery.Entry) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return "saved-1", nil
}

func (m *memorySaver) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	return m.flushErr
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	e, err := engine.New(config.Default(), engine.Options{})
	require.NoError(t, err)
	if cfg.DefaultSize.Width == 0 {
		cfg.DefaultSize = engine.Size{Width: 32, Height: 32}
	}
	return New(e, cfg, nil)
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGenerateReturnsDataURL(t *testing.T) {
	s := newTestServer(t, Config{})
	rec := post(t, s.Handler(), `{"scores":`+sampleScores+`,"algorithm":"gradient","seed":7}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(7), resp.Seed)
	assert.Equal(t, "gradient", resp.Algorithm.String())
	assert.InDelta(t, 0.75, resp.SentimentScores["positiveness"], 1e-9)
	assert.NotEmpty(t, resp.Description)
	assert.Empty(t, resp.ID)

	const prefix = "data:image/png;base64,"
	require.True(t, strings.HasPrefix(resp.ImageURL, prefix))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(resp.ImageURL, prefix))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
	assert.Equal(t, 32, img.Bounds().Dy())

	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestGenerateIsDeterministicForSeed(t *testing.T) {
	s := newTestServer(t, Config{})
	body := `{"scores":` + sampleScores + `,"algorithm":"worley","seed":99}`

	var first, second GenerateResponse
	require.NoError(t, json.Unmarshal(post(t, s.Handler(), body).Body.Bytes(), &first))
	require.NoError(t, json.Unmarshal(post(t, s.Handler(), body).Body.Bytes(), &second))
	assert.Equal(t, first.ImageURL, second.ImageURL)
}

func TestGenerateAcceptsRawOracleText(t *testing.T) {
	s := newTestServer(t, Config{})
	raw, err := json.Marshal("Here are the scores:\n" + sampleScores + "\nHope this helps.")
	require.NoError(t, err)

	rec := post(t, s.Handler(), `{"raw":`+string(raw)+`,"seed":1,"width":16,"height":24}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "terrain", resp.Algorithm.String())
}

func TestGenerateErrors(t *testing.T) {
	s := newTestServer(t, Config{MaxDimension: 64})
	h := s.Handler()

	tests := []struct {
		name   string
		body   string
		status int
		typ    generr.ErrorType
	}{
		{"out of range score", `{"scores":{"positiveness":1.5,"energy":0.5,"complexity":0.5,"conflictness":0.5}}`, http.StatusBadRequest, generr.TypeValidation},
		{"missing dimension", `{"scores":{"positiveness":0.5,"energy":0.5,"complexity":0.5}}`, http.StatusBadRequest, generr.TypeValidation},
		{"no scores", `{"seed":1}`, http.StatusBadRequest, generr.TypeValidation},
		{"null dimension", `{"scores":{"positiveness":null,"energy":0.5,"complexity":0.5,"conflictness":0.5}}`, http.StatusBadRequest, generr.TypeValidation},
		{"malformed body", `{"scores":`, http.StatusBadRequest, generr.TypeValidation},
		{"unknown field", `{"scores":` + sampleScores + `,"colour":"red"}`, http.StatusBadRequest, generr.TypeValidation},
		{"unknown algorithm", `{"scores":` + sampleScores + `,"algorithm":"plasma"}`, http.StatusBadRequest, generr.TypeConfiguration},
		{"too large", `{"scores":` + sampleScores + `,"width":128,"height":16}`, http.StatusBadRequest, generr.TypeConfiguration},
		{"negative size", `{"scores":` + sampleScores + `,"width":-4,"height":16}`, http.StatusBadRequest, generr.TypeConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, h, tt.body)
			assert.Equal(t, tt.status, rec.Code)

			var resp generr.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.typ, resp.Type)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestGenerateSavesToGallery(t *testing.T) {
	saver := &memorySaver{}
	s := newTestServer(t, Config{Gallery: saver, Session: "web"})

	rec := post(t, s.Handler(), `{"scores":`+sampleScores+`,"seed":3,"algorithm":"value","save":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "saved-1", resp.ID)

	require.Len(t, saver.entries, 1)
	assert.Equal(t, "web", saver.entries[0].Session)
	assert.Equal(t, "value", saver.entries[0].Algorithm)
	assert.NotEmpty(t, saver.entries[0].PNG)
	assert.Equal(t, 1, saver.flushes)
}

func TestGenerateSaveFlushFailureOmitsID(t *testing.T) {
	saver := &memorySaver{flushErr: errors.New("disk full")}
	s := newTestServer(t, Config{Gallery: saver, Session: "web"})

	rec := post(t, s.Handler(), `{"scores":`+sampleScores+`,"seed":3,"save":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.ID)
}

func TestGenerateSaveIsDurable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gallery.db")
	store, err := gallery.Open(path)
	require.NoError(t, err)
	s := newTestServer(t, Config{Gallery: store, Session: "web"})

	rec := post(t, s.Handler(), `{"scores":`+sampleScores+`,"seed":11,"algorithm":"fbm","save":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)

	// a second handle sees the row while the first one is still open
	reader, err := gallery.Open(path)
	require.NoError(t, err)
	defer reader.Close()
	entries, err := reader.List("web")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, resp.ID, entries[0].ID)

	require.NoError(t, store.Close())
}

func TestGenerateRejectsWhenBusy(t *testing.T) {
	s := newTestServer(t, Config{MaxConcurrent: 1, Timeout: 20 * time.Millisecond})
	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	rec := post(t, s.Handler(), `{"scores":`+sampleScores+`,"seed":1}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, int64(0), s.Status().Total)
}

func TestAlgorithmsAndStatus(t *testing.T) {
	s := newTestServer(t, Config{MaxConcurrent: 3})
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/algorithms", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var algs struct {
		Algorithms []string `json:"algorithms"`
		Default    string   `json:"default"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &algs))
	assert.Contains(t, algs.Algorithms, "reaction_diffusion")
	assert.Len(t, algs.Algorithms, 6)
	assert.Equal(t, "terrain", algs.Default)

	post(t, h, `{"scores":`+sampleScores+`,"seed":1,"algorithm":"gradient"}`)
	post(t, h, `{"scores":{"positiveness":2,"energy":0,"complexity":0,"conflictness":0}}`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	var st Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 3, st.MaxConcurrent)
	// The invalid request is rejected before reaching the engine.
	assert.Equal(t, int64(1), st.Total)
	assert.Equal(t, int64(0), st.Failed)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(t, Config{}).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cue_http_requests_total")
}

func TestPreflightAndRequestID(t *testing.T) {
	h := newTestServer(t, Config{}).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/generate", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "abc", rec.Header().Get(RequestIDHeader))
}
