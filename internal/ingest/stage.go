package ingest

import (
	"io"
	"net/http"
	"os"

	"go.uber.org/multierr"

	"tabserve/internal/errors"
)

// Staged is an upload copied to a private temp file. Close removes the file;
// callers defer it right after Stage succeeds.
type Staged struct {
	f    *os.File
	name string
	size int64
}

// Stage copies at most limit bytes of r into a temp file under dir (the
// system temp dir when empty). Larger uploads fail with ErrTooLarge and leave
// nothing behind.
func Stage(dir string, r io.Reader, limit int64) (*Staged, error) {
	f, err := os.CreateTemp(dir, "upload-*")
	if err != nil {
		return nil, errors.Wrap(errors.Mark(err, errors.ErrStorage), "create staging file")
	}
	s := &Staged{f: f, name: f.Name()}
	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, err := io.Copy(f, src)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			err = errors.Mark(err, errors.ErrTooLarge)
		}
		return nil, multierr.Append(errors.Wrap(err, "stage upload"), s.Close())
	}
	if limit > 0 && n > limit {
		return nil, multierr.Append(errors.Wrapf(errors.ErrTooLarge, "upload exceeds %d bytes", limit), s.Close())
	}
	s.size = n
	return s, nil
}

func (s *Staged) Path() string { return s.name }

func (s *Staged) Size() int64 { return s.size }

// Bytes reads the staged upload back.
func (s *Staged) Bytes() ([]byte, error) {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(errors.Mark(err, errors.ErrStorage), "rewind staging file")
	}
	b, err := io.ReadAll(s.f)
	if err != nil {
		return nil, errors.Wrap(errors.Mark(err, errors.ErrStorage), "read staging file")
	}
	return b, nil
}

// Close releases the file and removes it. Safe to call more than once.
func (s *Staged) Close() error {
	if s.f == nil {
		return nil
	}
	err := multierr.Append(s.f.Close(), os.Remove(s.name))
	s.f = nil
	return err
}
