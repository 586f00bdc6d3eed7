// Package store persists prediction results as named JSON artifacts.
package store

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"tabserve/internal/errors"
	"tabserve/internal/predict"
)

//go:generate go run go.uber.org/mock/mockgen -destination=storemock/store.go -package=storemock . Store

// Store is implemented by FileStore and RedisStore.
type Store interface {
	// Persist writes p under a fresh unique name. It never overwrites an
	// existing artifact.
	Persist(ctx context.Context, p Payload) (Artifact, error)
	// Retrieve returns the artifact bytes, or an error wrapping ErrNotFound.
	Retrieve(ctx context.Context, name string) ([]byte, error)
}

// Payload is the stored response body.
type Payload struct {
	Status        string               `json:"status"`
	Predictions   []int                `json:"predictions"`
	Probabilities []float64            `json:"probabilities"`
	IDs           []any                `json:"ids"`
	Count         int                  `json:"count"`
	Distribution  predict.Distribution `json:"distribution"`
	Degraded      bool                 `json:"degraded"`
	Model         string               `json:"model,omitempty"`
	SourceFile    string               `json:"source_file"`
	CreatedAt     time.Time            `json:"created_at"`
}

type Artifact struct {
	Name      string
	Path      string
	CreatedAt time.Time
	Size      int64
}

// Decode parses stored artifact bytes.
func Decode(b []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return Payload{}, errors.Wrap(errors.Mark(err, errors.ErrStorage), "decode artifact")
	}
	return p, nil
}

func encode(p Payload) ([]byte, error) {
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, errors.Wrap(errors.Mark(err, errors.ErrStorage), "encode artifact")
	}
	return b, nil
}

const (
	namePrefix = "result_"
	nameSuffix = ".json"
	maxStemLen = 64
)

var (
	unsafeStem = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
	validName  = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

// seq is shared by every store in the process.
var seq atomic.Uint64

// newName returns result_<stem>_<YYYYMMDD_HHMMSS>_<seq>_<rand8>.json.
func newName(source string, at time.Time) string {
	return fmt.Sprintf("%s%s_%s_%d_%s%s",
		namePrefix, stem(source), at.Format("20060102_150405"), seq.Add(1),
		uuid.NewString()[:8], nameSuffix)
}

func stem(source string) string {
	base := filepath.Base(strings.ReplaceAll(source, `\`, "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	s := strings.Trim(unsafeStem.ReplaceAllString(base, "_"), "_")
	if len(s) > maxStemLen {
		s = s[:maxStemLen]
	}
	if s == "" {
		return "upload"
	}
	return s
}

// checkName rejects anything but a plain file name. A bad name can never
// exist, so it reports ErrNotFound.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.Contains(name, "..") || !validName.MatchString(name) {
		return errors.Wrapf(errors.ErrNotFound, "invalid artifact name %q", name)
	}
	return nil
}
