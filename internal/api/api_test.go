package api

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tabserve/internal/data"
	"tabserve/internal/metrics"
	"tabserve/internal/models"
	"tabserve/internal/predict"
	"tabserve/internal/registry"
	"tabserve/internal/service"
	"tabserve/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	reg    *registry.Registry
}

func newTestServer(t *testing.T, reg *registry.Registry, maxUpload int64) testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	m := metrics.New()
	p := service.New(predict.New(reg), fs, service.Options{
		StagingDir:     t.TempDir(),
		MaxUploadBytes: maxUpload,
		Logger:         logger,
		Metrics:        m,
	})
	return testServer{
		router: NewRouter(Deps{Registry: reg, Pipeline: p, Store: fs, Metrics: m, Logger: logger, MaxUploadBytes: maxUpload}),
		reg:    reg,
	}
}

func modelRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	X, y := data.GenerateSynthetic(300, 8, 42)
	m := models.NewRandomForest()
	m.NEstimators = 10
	require.NoError(t, m.Fit(X, y))
	path := filepath.Join(t.TempDir(), "model.gob")
	require.NoError(t, models.SaveFile(path, m, data.FeatureNames))

	reg := registry.New(path, zaptest.NewLogger(t))
	require.NoError(t, reg.Load())
	return reg
}

func emptyRegistry(t *testing.T) *registry.Registry {
	reg := registry.New(filepath.Join(t.TempDir(), "missing.gob"), zaptest.NewLogger(t))
	require.Error(t, reg.Load())
	return reg
}

func sampleCSV(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, data.WriteSampleCSV(&buf))
	return buf.Bytes()
}

func upload(t *testing.T, path, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func (s testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

type predictBody struct {
	Status        string               `json:"status"`
	Predictions   []int                `json:"predictions"`
	Probabilities []float64            `json:"probabilities"`
	IDs           []any                `json:"ids"`
	Count         int                  `json:"count"`
	Distribution  predict.Distribution `json:"distribution"`
	Degraded      bool                 `json:"degraded"`
	Model         string               `json:"model"`
	Artifact      string               `json:"artifact"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	for name, reg := range map[string]*registry.Registry{
		"loaded":   modelRegistry(t),
		"no model": emptyRegistry(t),
	} {
		t.Run(name, func(t *testing.T) {
			s := newTestServer(t, reg, 0)
			rec := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, http.StatusOK, rec.Code)

			body := decode[map[string]any](t, rec)
			assert.Equal(t, "OK", body["status"])
			_, loaded := reg.Current()
			assert.Equal(t, loaded, body["model_loaded"])
		})
	}
}

func TestPredictCSV_SampleDataset(t *testing.T) {
	s := newTestServer(t, modelRegistry(t), 0)

	rec := s.do(upload(t, "/predict_csv", "sample.csv", sampleCSV(t)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	body := decode[predictBody](t, rec)
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, 5, body.Count)
	assert.Equal(t, []any{float64(1001), float64(1002), float64(1003), float64(1004), float64(1005)}, body.IDs)
	assert.Len(t, body.Predictions, 5)
	assert.Len(t, body.Probabilities, 5)
	assert.Equal(t, 5, body.Distribution.Class0+body.Distribution.Class1)
	assert.InDelta(t, 100, body.Distribution.Class0Percent+body.Distribution.Class1Percent, 0.1)
	assert.False(t, body.Degraded)
	assert.Equal(t, "RandomForest", body.Model)
	for _, p := range body.Probabilities {
		assert.True(t, p >= 0 && p <= 1)
	}

	dl := s.do(httptest.NewRequest(http.MethodGet, "/download/"+body.Artifact, nil))
	require.Equal(t, http.StatusOK, dl.Code)
	assert.Equal(t, "application/json", dl.Header().Get("Content-Type"))
	assert.Contains(t, dl.Header().Get("Content-Disposition"), "attachment")
	stored := decode[map[string]any](t, dl)
	assert.Equal(t, "sample.csv", stored["source_file"])
	assert.EqualValues(t, 5, stored["count"])

	chart := s.do(httptest.NewRequest(http.MethodGet, "/chart/"+body.Artifact, nil))
	require.Equal(t, http.StatusOK, chart.Code)
	assert.Equal(t, "image/png", chart.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(chart.Body.Bytes(), []byte("\x89PNG")))
}

func TestPredictCSV_NoModel(t *testing.T) {
	s := newTestServer(t, emptyRegistry(t), 0)

	info := s.do(httptest.NewRequest(http.MethodGet, "/model_info", nil))
	require.Equal(t, http.StatusOK, info.Code)
	assert.Equal(t, "no_model", decode[registry.Info](t, info).Status)

	csv := "a,b\nx,1\ny,2\nz,3\n"
	rec := s.do(upload(t, "/predict_csv", "noid.csv", []byte(csv)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[predictBody](t, rec)
	assert.True(t, body.Degraded)
	assert.Equal(t, 3, body.Count)
	assert.Equal(t, []any{float64(0), float64(1), float64(2)}, body.IDs)
	assert.Len(t, body.Predictions, 3)
	assert.Len(t, body.Probabilities, 3)
	assert.Equal(t, 3, body.Distribution.Class0+body.Distribution.Class1)
}

func TestPredictCSV_Resubmission(t *testing.T) {
	s := newTestServer(t, modelRegistry(t), 0)
	first := decode[predictBody](t, s.do(upload(t, "/predict_csv", "sample.csv", sampleCSV(t))))
	second := decode[predictBody](t, s.do(upload(t, "/predict_csv", "sample.csv", sampleCSV(t))))

	assert.Equal(t, first.Predictions, second.Predictions)
	assert.Equal(t, first.Probabilities, second.Probabilities)
	assert.NotEqual(t, first.Artifact, second.Artifact)
}

func TestPredictCSV_HTML(t *testing.T) {
	s := newTestServer(t, modelRegistry(t), 0)
	req := upload(t, "/predict_csv", "sample.csv", sampleCSV(t))
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")

	rec := s.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	html := rec.Body.String()
	assert.Contains(t, html, "Prediction results")
	assert.Contains(t, html, "1001")
	assert.Contains(t, html, "/download/result_sample_")
	assert.Regexp(t, `\d+\.\d%`, html)
}

func TestPredictCSV_HTMLPreviewsFirstRows(t *testing.T) {
	s := newTestServer(t, emptyRegistry(t), 0)
	var csv strings.Builder
	csv.WriteString("id,a\n")
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&csv, "row-%d,%d\n", i, i)
	}
	req := upload(t, "/predict_csv?format=html", "many.csv", []byte(csv.String()))

	rec := s.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	html := rec.Body.String()
	assert.Contains(t, html, "25 rows")
	assert.Contains(t, html, "Showing the first 10 of 25 rows")
	assert.Contains(t, html, "<td>row-9</td>")
	assert.NotContains(t, html, "<td>row-10</td>")
	assert.Equal(t, 10, strings.Count(html, "<td>row-"))
}

func TestNegotiation(t *testing.T) {
	tests := []struct {
		name   string
		accept string
		query  string
		json   bool
	}{
		{"no accept", "", "", true},
		{"curl", "*/*", "", true},
		{"json", "application/json", "", true},
		{"browser", "text/html,*/*", "", false},
		{"json first", "application/json, text/html", "", true},
		{"html first", "text/html, application/json", "", false},
		{"query overrides", "text/html", "?format=json", true},
		{"query html", "application/json", "?format=html", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/predict_csv"+tt.query, nil)
			if tt.accept != "" {
				c.Request.Header.Set("Accept", tt.accept)
			}
			assert.Equal(t, tt.json, wantsJSON(c))
		})
	}
}

func TestPredictCSV_Errors(t *testing.T) {
	s := newTestServer(t, modelRegistry(t), 64)

	tests := []struct {
		name   string
		req    func() *http.Request
		status int
		kind   string
	}{
		{"empty file", func() *http.Request { return upload(t, "/predict_csv", "a.csv", nil) }, http.StatusBadRequest, "ParseError"},
		{"header only", func() *http.Request { return upload(t, "/predict_csv", "a.csv", []byte("id,a\n")) }, http.StatusBadRequest, "ParseError"},
		{"missing field", func() *http.Request {
			req := httptest.NewRequest(http.MethodPost, "/predict_csv", strings.NewReader("id,a\n1,2\n"))
			req.Header.Set("Content-Type", "text/csv")
			return req
		}, http.StatusBadRequest, "ParseError"},
		{"too large", func() *http.Request {
			return upload(t, "/predict_csv", "a.csv", []byte("id,a\n"+strings.Repeat("1,2\n", 40)))
		}, http.StatusRequestEntityTooLarge, "PayloadTooLarge"},
		{"wrong width", func() *http.Request { return upload(t, "/predict_csv", "a.csv", []byte("id,a\n1,2\n")) }, http.StatusUnprocessableEntity, "PredictionError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.req())
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			body := decode[errorBody](t, rec)
			assert.Equal(t, "error", body.Status)
			assert.EqualValues(t, tt.kind, body.Error)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestPredictJSON(t *testing.T) {
	s := newTestServer(t, emptyRegistry(t), 0)
	records := `[{"id": 7, "a": 1}, {"id": 8, "a": 2}]`

	t.Run("raw body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/predict_json", strings.NewReader(records))
		req.Header.Set("Content-Type", "application/json")
		rec := s.do(req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decode[predictBody](t, rec)
		assert.Equal(t, []any{float64(7), float64(8)}, body.IDs)
		assert.Contains(t, body.Artifact, "result_records_")
	})

	t.Run("multipart", func(t *testing.T) {
		rec := s.do(upload(t, "/predict_json", "batch.txt", []byte(records)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, 2, decode[predictBody](t, rec).Count)
	})

	t.Run("mismatched records", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/predict_json", strings.NewReader(`[{"a":1},{"b":2}]`))
		req.Header.Set("Content-Type", "application/json")
		rec := s.do(req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDownload_NotFound(t *testing.T) {
	s := newTestServer(t, emptyRegistry(t), 0)
	for _, path := range []string{"/download/does-not-exist.json", "/download/model.gob", "/chart/does-not-exist.json"} {
		rec := s.do(httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.EqualValues(t, "NotFoundError", decode[errorBody](t, rec).Error, path)
	}
}

func TestModelInfo_Loaded(t *testing.T) {
	s := newTestServer(t, modelRegistry(t), 0)
	rec := s.do(httptest.NewRequest(http.MethodGet, "/model_info", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	info := decode[registry.Info](t, rec)
	assert.Equal(t, "loaded", info.Status)
	assert.Equal(t, "RandomForest", info.ModelType)
	assert.Equal(t, 8, info.NFeatures)
	assert.Equal(t, []int{0, 1}, info.Classes)
	assert.Equal(t, "ProbabilisticBinaryClassifier", info.Capability)
	assert.Equal(t, data.FeatureNames, info.FeatureNames)
}

func TestIndexAndMetrics(t *testing.T) {
	s := newTestServer(t, emptyRegistry(t), 0)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="file"`)
	assert.Contains(t, rec.Body.String(), "No model loaded")

	s.do(upload(t, "/predict_csv", "a.csv", []byte("a\n1\n")))
	rec = s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `tabserve_requests_total{endpoint="predict_csv",outcome="ok"} 1`)
}
