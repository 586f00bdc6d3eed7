package api

import (
	"bytes"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tabserve/internal/errors"
	"tabserve/internal/ingest"
	"tabserve/internal/report"
	"tabserve/internal/service"
	"tabserve/internal/store"
)

const uploadField = "file"

func (s *Server) predictCSV(c *gin.Context) {
	s.predictUpload(c, "predict_csv", 0)
}

// predictJSON accepts a multipart upload like predict_csv, or the record
// list as the raw request body.
func (s *Server) predictJSON(c *gin.Context) {
	mt, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))
	if mt != "application/json" {
		s.predictUpload(c, "predict_json", ingest.FormatJSON)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload+multipartOverhead)
	s.predict(c, "predict_json", service.Request{
		Filename:    "records.json",
		ContentType: mt,
		Body:        c.Request.Body,
		Format:      ingest.FormatJSON,
	})
}

func (s *Server) predictUpload(c *gin.Context, endpoint string, format ingest.Format) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload+multipartOverhead)
	fh, err := c.FormFile(uploadField)
	if err != nil {
		err = uploadError(err)
		s.metrics.RecordOutcome(endpoint, string(errors.KindOf(err)))
		s.renderError(c, err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		s.renderError(c, errors.Wrap(errors.Mark(err, errors.ErrStorage), "open multipart file"))
		return
	}
	defer f.Close()

	s.predict(c, endpoint, service.Request{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Body:        f,
		Format:      format,
	})
}

func (s *Server) predict(c *gin.Context, endpoint string, req service.Request) {
	req.ID = c.GetString(requestIDKey)
	resp, err := s.pipeline.Handle(c.Request.Context(), endpoint, req)
	if err != nil {
		s.renderError(c, err)
		return
	}
	if wantsJSON(c) {
		c.JSON(http.StatusOK, resp)
		return
	}
	c.HTML(http.StatusOK, "result.html", resultView(req.Filename, resp))
}

func uploadError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large") {
		return errors.Wrap(errors.Mark(err, errors.ErrTooLarge), "read multipart form")
	}
	if errors.Is(err, http.ErrMissingFile) {
		return errors.WithHint(errors.Wrap(errors.ErrParse, "no file field"),
			"upload the dataset in the \""+uploadField+"\" form field")
	}
	return errors.WithHint(errors.Wrapf(errors.ErrParse, "read multipart form: %v", err),
		"the request must be a multipart form with a \""+uploadField+"\" file")
}

func (s *Server) download(c *gin.Context) {
	name := c.Param("filename")
	b, err := s.store.Retrieve(c.Request.Context(), name)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	c.Data(http.StatusOK, "application/json", b)
}

// chart renders the stored distribution of an artifact as a PNG.
func (s *Server) chart(c *gin.Context) {
	name := c.Param("filename")
	b, err := s.store.Retrieve(c.Request.Context(), name)
	if err != nil {
		s.renderError(c, err)
		return
	}
	p, err := store.Decode(b)
	if err != nil {
		s.renderError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := report.DistributionChart(&buf, p.Distribution, p.SourceFile); err != nil {
		s.renderError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

type resultRow struct {
	ID          any
	Prediction  int
	Probability float64
}

// previewRows is how many rows the result page lists; the download has all.
const previewRows = 10

func resultView(filename string, resp service.Response) gin.H {
	rows := make([]resultRow, min(len(resp.Predictions), previewRows))
	for i := range rows {
		rows[i] = resultRow{ID: resp.IDs[i], Prediction: resp.Predictions[i], Probability: resp.Probabilities[i]}
	}
	return gin.H{
		"Filename":  filename,
		"Result":    resp,
		"Rows":      rows,
		"Truncated": len(rows) < resp.Count,
	}
}
