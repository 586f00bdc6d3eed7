// Package api exposes the prediction pipeline over HTTP with gin.
package api

import (
	"embed"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tabserve/internal/errors"
	"tabserve/internal/metrics"
	"tabserve/internal/registry"
	"tabserve/internal/service"
	"tabserve/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

// multipartOverhead is allowed on top of the upload limit for form framing.
const multipartOverhead = 1 << 20

type Deps struct {
	Registry       *registry.Registry
	Pipeline       *service.Pipeline
	Store          store.Store
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
	MaxUploadBytes int64
}

type Server struct {
	reg       *registry.Registry
	pipeline  *service.Pipeline
	store     store.Store
	metrics   *metrics.Metrics
	logger    *zap.Logger
	maxUpload int64
}

// NewRouter wires every route on a fresh gin engine.
func NewRouter(d Deps) *gin.Engine {
	s := &Server{
		reg:       d.Registry,
		pipeline:  d.Pipeline,
		store:     d.Store,
		metrics:   d.Metrics,
		logger:    d.Logger,
		maxUpload: d.MaxUploadBytes,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.maxUpload <= 0 {
		s.maxUpload = 32 << 20
	}

	r := gin.New()
	r.SetHTMLTemplate(template.Must(template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")))
	r.Use(requestID(), accessLog(s.logger), s.recovery())

	r.GET("/", s.index)
	r.GET("/health", s.health)
	r.GET("/model_info", s.modelInfo)
	r.POST("/predict_csv", s.predictCSV)
	r.POST("/predict_json", s.predictJSON)
	r.GET("/download/:filename", s.download)
	r.GET("/chart/:filename", s.chart)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	return r
}

var templateFuncs = template.FuncMap{
	"pct": func(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) + "%" },
	"prob": func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) },
}

// wantsJSON picks the response format: ?format wins, then JSON unless the
// Accept header asks for HTML ahead of JSON.
func wantsJSON(c *gin.Context) bool {
	switch strings.ToLower(c.Query("format")) {
	case "json":
		return true
	case "html":
		return false
	}
	if !strings.Contains(c.GetHeader("Accept"), gin.MIMEHTML) {
		return true
	}
	return c.NegotiateFormat(gin.MIMEJSON, gin.MIMEHTML) == gin.MIMEJSON
}

type errorBody struct {
	Status  string      `json:"status"`
	Error   errors.Kind `json:"error"`
	Message string      `json:"message"`
}

// renderError writes the client-safe view of err. Details stay in the logs.
func (s *Server) renderError(c *gin.Context, err error) {
	kind := errors.KindOf(err)
	status := errors.HTTPStatus(kind)
	body := errorBody{Status: "error", Error: kind, Message: errors.PublicMessage(err)}
	_ = c.Error(err)

	if wantsJSON(c) {
		c.AbortWithStatusJSON(status, body)
		return
	}
	c.HTML(status, "error.html", gin.H{"Status": status, "Error": body})
	c.Abort()
}

func (s *Server) index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{"Model": s.reg.Info()})
}

func (s *Server) health(c *gin.Context) {
	_, loaded := s.reg.Current()
	c.JSON(http.StatusOK, gin.H{"status": "OK", "model_loaded": loaded})
}

func (s *Server) modelInfo(c *gin.Context) {
	c.JSON(http.StatusOK, s.reg.Info())
}
