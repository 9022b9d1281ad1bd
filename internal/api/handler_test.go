package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gwlsn/strikelab/internal/analysis"
	"github.com/gwlsn/strikelab/internal/backend"
	"github.com/gwlsn/strikelab/internal/browse"
	"github.com/gwlsn/strikelab/internal/compare"
	"github.com/gwlsn/strikelab/internal/config"
	"github.com/gwlsn/strikelab/internal/ffmpeg"
	"github.com/gwlsn/strikelab/internal/handoff"
	"github.com/gwlsn/strikelab/internal/jobs"
	"github.com/gwlsn/strikelab/internal/pose"
	"github.com/gwlsn/strikelab/internal/sampler"
)

type fakeProber struct{}

func (fakeProber) Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error) {
	return &ffmpeg.ProbeResult{Path: path, Duration: 2 * time.Second, Width: 640, Height: 480}, nil
}

type testEnv struct {
	handler *Handler
	router  *http.ServeMux
	queue   *jobs.Queue
	libDir  string
	backend *httptest.Server
}

func setupTestHandler(t *testing.T, backendHandler http.HandlerFunc) *testEnv {
	t.Helper()
	tmpDir := t.TempDir()

	libDir := filepath.Join(tmpDir, "library", "Jab")
	if err := os.MkdirAll(libDir, 0755); err != nil {
		t.Fatalf("failed to create library dirs: %v", err)
	}
	if err := os.WriteFile(filepath.Join(libDir, "pro_jab.mp4"), []byte("fake video"), 0644); err != nil {
		t.Fatalf("failed to create library file: %v", err)
	}

	if backendHandler == nil {
		backendHandler = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"healthy"}`))
		}
	}
	srv := httptest.NewServer(backendHandler)
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.TempPath = filepath.Join(tmpDir, "temp")
	cfg.ReferencePath = filepath.Join(tmpDir, "library")
	cfg.BackendURL = srv.URL

	store, err := handoff.NewSQLiteStore(handoff.MemoryDSN, time.Minute)
	if err != nil {
		t.Fatalf("failed to open handoff store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	queue := jobs.NewQueue()
	pool := jobs.NewWorkerPool(queue, nil, 1) // never started: jobs stay pending
	t.Cleanup(pool.Stop)
	library := browse.NewBrowser(fakeProber{}, cfg.ReferencePath)
	client := backend.NewClient(cfg.BackendURL, 5*time.Second)

	handler := NewHandler(queue, pool, store, library, client, cfg, "")

	return &testEnv{
		handler: handler,
		router:  NewRouter(handler),
		queue:   queue,
		libDir:  libDir,
		backend: srv,
	}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) doJSON(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	return e.do(t, httptest.NewRequest(method, path, r))
}

// multipartRequest builds a POST with the given files (field -> filename) and fields
func multipartRequest(t *testing.T, path string, files map[string]string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, name := range files {
		part, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		part.Write([]byte("fake video data for " + name))
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()

	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response %q: %v", w.Body.String(), err)
	}
}

func (e *testEnv) upload(t *testing.T) UploadResponse {
	t.Helper()
	w := e.do(t, multipartRequest(t, "/api/uploads",
		map[string]string{"user_video": "me.mp4", "reference_video": "pro.mp4"},
		map[string]string{"technique": "Jab", "experience_level": "beginner"},
	))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp UploadResponse
	decodeBody(t, w, &resp)
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	env := setupTestHandler(t, nil)

	w := env.doJSON(t, "GET", "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestHandler(t, nil)

	w := env.doJSON(t, "GET", "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "strikelab_") {
		t.Error("expected strikelab metrics in output")
	}
}

func TestTechniquesEndpoint(t *testing.T) {
	env := setupTestHandler(t, nil)

	w := env.doJSON(t, "GET", "/api/techniques", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var all struct {
		Techniques []map[string]interface{} `json:"techniques"`
	}
	decodeBody(t, w, &all)
	if len(all.Techniques) != 18 {
		t.Errorf("expected 18 techniques, got %d", len(all.Techniques))
	}

	w = env.doJSON(t, "GET", "/api/techniques?category=kicks", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	w = env.doJSON(t, "GET", "/api/techniques?category=headbutts", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestReferencesEndpoint(t *testing.T) {
	env := setupTestHandler(t, nil)

	w := env.doJSON(t, "GET", "/api/references?path=Jab", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var result browse.BrowseResult
	decodeBody(t, w, &result)
	if result.Path != "Jab" {
		t.Errorf("expected path Jab, got %s", result.Path)
	}
	if len(result.Entries) != 1 || result.Entries[0].Name != "pro_jab.mp4" {
		t.Errorf("expected one library video, got %+v", result.Entries)
	}
}

func TestUploadAndHandoff(t *testing.T) {
	env := setupTestHandler(t, nil)

	resp := env.upload(t)
	if resp.Token == "" {
		t.Fatal("expected a token")
	}
	if resp.Technique != "jab" {
		t.Errorf("expected canonical technique jab, got %s", resp.Technique)
	}
	if resp.UserVideo.Path != "" {
		t.Error("upload response should not expose file paths")
	}

	w := env.doJSON(t, "GET", "/api/handoff/"+resp.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var summary HandoffSummary
	decodeBody(t, w, &summary)
	if summary.UserVideo.Name != "me.mp4" || summary.ReferenceVideo.Name != "pro.mp4" {
		t.Errorf("unexpected handoff summary: %+v", summary)
	}
	if summary.ExperienceLevel != "beginner" {
		t.Errorf("expected beginner, got %s", summary.ExperienceLevel)
	}
}

func TestUploadWithLibraryReference(t *testing.T) {
	env := setupTestHandler(t, nil)

	w := env.do(t, multipartRequest(t, "/api/uploads",
		map[string]string{"user_video": "me.mov"},
		map[string]string{"reference": "Jab/pro_jab.mp4"},
	))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp UploadResponse
	decodeBody(t, w, &resp)
	if resp.ReferenceVideo.Name != "pro_jab.mp4" {
		t.Errorf("expected library reference, got %s", resp.ReferenceVideo.Name)
	}

	// Escaping the library is rejected
	w = env.do(t, multipartRequest(t, "/api/uploads",
		map[string]string{"user_video": "me.mov"},
		map[string]string{"reference": "../../etc/passwd"},
	))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestUploadValidation(t *testing.T) {
	env := setupTestHandler(t, nil)

	tests := []struct {
		name   string
		files  map[string]string
		fields map[string]string
	}{
		{"missing user video", map[string]string{"reference_video": "pro.mp4"}, nil},
		{"missing reference", map[string]string{"user_video": "me.mp4"}, nil},
		{"unknown technique", map[string]string{"user_video": "me.mp4", "reference_video": "pro.mp4"}, map[string]string{"technique": "flying squirrel"}},
		{"unknown level", map[string]string{"user_video": "me.mp4", "reference_video": "pro.mp4"}, map[string]string{"experience_level": "legend"}},
		{"not a video", map[string]string{"user_video": "notes.txt", "reference_video": "pro.mp4"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, multipartRequest(t, "/api/uploads", tt.files, tt.fields))
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestHandoffNotFound(t *testing.T) {
	env := setupTestHandler(t, nil)

	w := env.doJSON(t, "GET", "/api/handoff/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
	var body map[string]string
	decodeBody(t, w, &body)
	if body["error"] != "data-not-found" {
		t.Errorf("expected data-not-found, got %q", body["error"])
	}
}

func TestHandoffMissingFile(t *testing.T) {
	env := setupTestHandler(t, nil)
	resp := env.upload(t)

	// Remove the stored uploads behind the token
	entries, _ := os.ReadDir(env.handler.cfg.UploadDir())
	for _, e := range entries {
		os.Remove(filepath.Join(env.handler.cfg.UploadDir(), e.Name()))
	}

	w := env.doJSON(t, "POST", "/api/analyses", CreateAnalysisRequest{Token: resp.Token})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestCreateAnalysis(t *testing.T) {
	env := setupTestHandler(t, nil)
	resp := env.upload(t)

	w := env.doJSON(t, "POST", "/api/analyses", CreateAnalysisRequest{Token: resp.Token})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	var job jobs.Job
	decodeBody(t, w, &job)
	if job.FrameCount != 5 {
		t.Errorf("expected default frame count 5, got %d", job.FrameCount)
	}
	if job.Status != jobs.StatusPending {
		t.Errorf("expected pending, got %s", job.Status)
	}
	if job.Technique != "jab" {
		t.Errorf("expected technique jab, got %s", job.Technique)
	}

	w = env.doJSON(t, "GET", "/api/analyses/"+job.ID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	w = env.doJSON(t, "GET", "/api/analyses", nil)
	var list struct {
		Analyses []jobs.Job `json:"analyses"`
		Stats    jobs.Stats `json:"stats"`
	}
	decodeBody(t, w, &list)
	if len(list.Analyses) != 1 || list.Stats.Pending != 1 {
		t.Errorf("expected one pending analysis, got %+v", list.Stats)
	}
}

func TestCreateAnalysisValidation(t *testing.T) {
	env := setupTestHandler(t, nil)
	resp := env.upload(t)

	w := env.doJSON(t, "POST", "/api/analyses", CreateAnalysisRequest{Token: resp.Token, FrameCount: 61})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for frame count, got %d", w.Code)
	}

	w = env.doJSON(t, "POST", "/api/analyses", CreateAnalysisRequest{Token: "unknown"})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for unknown token, got %d", w.Code)
	}

	w = env.do(t, httptest.NewRequest("POST", "/api/analyses", strings.NewReader("{")))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for bad body, got %d", w.Code)
	}
}

func TestCancelAndRetryAnalysis(t *testing.T) {
	env := setupTestHandler(t, nil)
	job, err := env.queue.Add(jobs.NewJob{UserPath: "u.mp4", ReferencePath: "r.mp4", FrameCount: 5})
	if err != nil {
		t.Fatalf("failed to add job: %v", err)
	}

	w := env.doJSON(t, "DELETE", "/api/analyses/"+job.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	w = env.doJSON(t, "DELETE", "/api/analyses/"+job.ID, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("expected status 409 for terminal job, got %d", w.Code)
	}

	w = env.doJSON(t, "POST", "/api/analyses/"+job.ID+"/retry", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", w.Code)
	}
	if got := env.queue.Get(job.ID); got.Status != jobs.StatusPending {
		t.Errorf("expected pending after retry, got %s", got.Status)
	}

	w = env.doJSON(t, "POST", "/api/analyses/"+job.ID+"/retry", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("expected status 409 for pending job, got %d", w.Code)
	}

	w = env.doJSON(t, "DELETE", "/api/analyses/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestFrameOverlay(t *testing.T) {
	env := setupTestHandler(t, nil)
	job, _ := env.queue.Add(jobs.NewJob{UserPath: "u.mp4", ReferencePath: "r.mp4", FrameCount: 2})

	frames := make([]sampler.SampledFrame, 2)
	for i := range frames {
		frames[i] = sampler.SampledFrame{
			Index:     i,
			Image:     image.NewRGBA(image.Rect(0, 0, 64, 48)),
			Keypoints: pose.StaticLayout,
		}
	}
	env.queue.StartJob(job.ID)
	env.queue.CompleteJob(job.ID, analysis.Session{
		UserFrames:      frames,
		ReferenceFrames: frames,
		Report:          &compare.Report{FormScore: 100},
	})

	w := env.doJSON(t, "GET", "/api/analyses/"+job.ID+"/frames/user/1.png", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %s", ct)
	}
	img, err := png.Decode(w.Body)
	if err != nil {
		t.Fatalf("failed to decode png: %v", err)
	}
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 48 {
		t.Errorf("unexpected overlay size %v", img.Bounds())
	}

	tests := []struct {
		path string
		code int
	}{
		{"/frames/reference/0", http.StatusOK},
		{"/frames/side/0", http.StatusBadRequest},
		{"/frames/user/x", http.StatusBadRequest},
		{"/frames/user/2", http.StatusNotFound},
	}
	for _, tt := range tests {
		w := env.doJSON(t, "GET", "/api/analyses/"+job.ID+tt.path, nil)
		if w.Code != tt.code {
			t.Errorf("%s: expected status %d, got %d", tt.path, tt.code, w.Code)
		}
	}
}

func TestAnalyzeProxy(t *testing.T) {
	var gotFile string
	env := setupTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path != "/analyze" {
			w.Write([]byte(`{"status":"healthy"}`))
			return
		}
		_, header, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		gotFile = header.Filename
		if header.Filename == "bad.mp4" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"detail":"No person detected"}`))
			return
		}
		w.Write([]byte(`{"score":87}`))
	})

	w := env.do(t, multipartRequest(t, "/api/analyze", map[string]string{"video": "me.mp4"}, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if gotFile != "me.mp4" {
		t.Errorf("expected file forwarded as me.mp4, got %q", gotFile)
	}
	var body struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	decodeBody(t, w, &body)
	if !body.Success || string(body.Data) != `{"score":87}` {
		t.Errorf("unexpected proxy body: %s", w.Body.String())
	}

	w = env.do(t, multipartRequest(t, "/api/analyze", map[string]string{"video": "bad.mp4"}, nil))
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422, got %d", w.Code)
	}
	var errBody map[string]string
	decodeBody(t, w, &errBody)
	if errBody["error"] != "No person detected" {
		t.Errorf("expected service detail, got %q", errBody["error"])
	}

	w = env.do(t, multipartRequest(t, "/api/analyze", map[string]string{"other": "me.mp4"}, nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestAnalyzeHealth(t *testing.T) {
	env := setupTestHandler(t, nil)

	w := env.doJSON(t, "GET", "/api/analyze", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var body map[string]interface{}
	decodeBody(t, w, &body)
	if body["frontend_status"] != "healthy" {
		t.Errorf("expected frontend healthy, got %v", body["frontend_status"])
	}

	env.backend.Close()
	w = env.doJSON(t, "GET", "/api/analyze", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
}

func TestConfigEndpoints(t *testing.T) {
	env := setupTestHandler(t, nil)

	frames := 12
	w := env.doJSON(t, "PUT", "/api/config", UpdateConfigRequest{FrameCount: &frames})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	w = env.doJSON(t, "GET", "/api/config", nil)
	var cfg map[string]interface{}
	decodeBody(t, w, &cfg)
	if cfg["frame_count"] != float64(12) {
		t.Errorf("expected frame_count 12, got %v", cfg["frame_count"])
	}

	workers := 3
	env.doJSON(t, "PUT", "/api/config", UpdateConfigRequest{Workers: &workers})
	if env.handler.workerPool.WorkerCount() != 3 {
		t.Errorf("expected 3 workers, got %d", env.handler.workerPool.WorkerCount())
	}

	tooMany := 1000
	w = env.doJSON(t, "PUT", "/api/config", UpdateConfigRequest{FrameCount: &tooMany})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}

	level := "verbose"
	w = env.doJSON(t, "PUT", "/api/config", UpdateConfigRequest{LogLevel: &level})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestClearReferenceCache(t *testing.T) {
	env := setupTestHandler(t, nil)

	w := env.doJSON(t, "POST", "/api/references/cache/clear", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestClearReferenceCacheForPath(t *testing.T) {
	env := setupTestHandler(t, nil)

	w := env.doJSON(t, "POST", "/api/references/cache/clear?path=Jab/pro_jab.mp4", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]string
	decodeBody(t, w, &body)
	if body["path"] != "Jab/pro_jab.mp4" {
		t.Errorf("expected cleared path echoed, got %q", body["path"])
	}

	w = env.doJSON(t, "POST", "/api/references/cache/clear?path=../../etc/passwd", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for path outside library, got %d", w.Code)
	}
}

func TestReferenceVideos(t *testing.T) {
	env := setupTestHandler(t, nil)

	w := env.doJSON(t, "GET", "/api/references/videos", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Videos []struct {
			Name string `json:"name"`
		} `json:"videos"`
		Count int `json:"count"`
	}
	decodeBody(t, w, &body)
	if body.Count != 1 || len(body.Videos) != 1 {
		t.Fatalf("expected 1 reference video, got %d", body.Count)
	}
	if body.Videos[0].Name != "pro_jab.mp4" {
		t.Errorf("expected pro_jab.mp4, got %q", body.Videos[0].Name)
	}
}

func TestCancelAnalysisRemove(t *testing.T) {
	env := setupTestHandler(t, nil)
	job, err := env.queue.Add(jobs.NewJob{UserPath: "u.mp4", ReferencePath: "r.mp4", FrameCount: 5})
	if err != nil {
		t.Fatalf("failed to add job: %v", err)
	}

	w := env.doJSON(t, "DELETE", "/api/analyses/"+job.ID+"?remove=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if env.queue.Get(job.ID) != nil {
		t.Error("expected job to be removed from the queue")
	}

	w = env.doJSON(t, "DELETE", "/api/analyses/"+job.ID+"?remove=true", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for removed job, got %d", w.Code)
	}
}

func TestAnalyzeHealthPassesThroughUnhealthyBackend(t *testing.T) {
	env := setupTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"degraded","model_loaded":false}`))
	})

	w := env.doJSON(t, "GET", "/api/analyze", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		BackendStatus  map[string]interface{} `json:"backend_status"`
		FrontendStatus string                 `json:"frontend_status"`
	}
	decodeBody(t, w, &body)
	if body.BackendStatus["status"] != "degraded" {
		t.Errorf("expected backend document passed through, got %v", body.BackendStatus)
	}
	if body.FrontendStatus != "healthy" {
		t.Errorf("expected frontend healthy, got %q", body.FrontendStatus)
	}
}

type failingStore struct{ handoff.Store }

func (failingStore) Put(ctx context.Context, h handoff.Handoff) (string, error) {
	return "", errors.New("database is locked")
}

func TestUploadRemovesFilesWhenStoreFails(t *testing.T) {
	env := setupTestHandler(t, nil)
	env.handler.handoffs = failingStore{env.handler.handoffs}

	w := env.do(t, multipartRequest(t, "/api/uploads",
		map[string]string{"user_video": "me.mp4", "reference_video": "pro.mp4"},
		map[string]string{"technique": "Jab"},
	))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d: %s", w.Code, w.Body.String())
	}

	entries, err := os.ReadDir(env.handler.cfg.UploadDir())
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("failed to read upload dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no orphaned uploads, found %d", len(entries))
	}

	// Library references are never deleted
	w = env.do(t, multipartRequest(t, "/api/uploads",
		map[string]string{"user_video": "me.mp4"},
		map[string]string{"technique": "Jab", "reference": "Jab/pro_jab.mp4"},
	))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", w.Code)
	}
	if _, err := os.Stat(filepath.Join(env.libDir, "pro_jab.mp4")); err != nil {
		t.Errorf("expected library reference kept: %v", err)
	}
}
