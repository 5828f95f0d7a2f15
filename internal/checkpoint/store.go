package checkpoint

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/luchador-ml/luchador/internal/tensor"
)

// Store keeps checkpoints by key. Keys are slash separated, like variable
// names. Get on a missing key returns an error matching os.ErrNotExist.
type Store interface {
	Put(ctx context.Context, key string, src io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// Save writes tensors to store under key.
func Save(ctx context.Context, store Store, key string, tensors map[string]*tensor.Array, opts WriteOptions) error {
	var buf bytes.Buffer
	if err := Write(&buf, tensors, opts); err != nil {
		return err
	}
	return store.Put(ctx, key, &buf)
}

// Load reads the checkpoint stored under key.
func Load(ctx context.Context, store Store, key string) (*Checkpoint, error) {
	rc, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	c, err := Read(rc)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			verr.Key = key
			return nil, err
		}
		return nil, errors.WithMessagef(err, "checkpoint %q", key)
	}
	return c, nil
}

// validateKey applies the tensor name rules to a store key.
func validateKey(key string) error {
	err := ValidateTensorName(key)
	var verr *ValidationError
	if errors.As(err, &verr) {
		verr.Key, verr.Tensors = key, nil
	}
	return err
}

// FileStore keeps checkpoints as files under Dir.
type FileStore struct {
	Dir string
}

var _ Store = (*FileStore)(nil)

func (s *FileStore) path(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.Dir, filepath.FromSlash(key)), nil
}

// Put writes src to a temporary file and renames it into place, so readers
// never observe a partial checkpoint.
func (s *FileStore) Put(ctx context.Context, key string, src io.Reader) error {
	log := klog.FromContext(ctx)

	dest, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errors.Wrap(err, "creating checkpoint directory")
	}

	startedAt := time.Now()
	n, err := writeToFile(ctx, src, dest)
	if err != nil {
		return errors.Wrapf(err, "writing checkpoint %q", key)
	}
	log.V(2).Info("wrote checkpoint", "path", dest, "bytes", n, "duration", time.Since(startedAt))
	return nil
}

// Get opens the checkpoint file for key.
func (s *FileStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p) //nolint:gosec // path is built from a validated key
	if err != nil {
		return nil, errors.Wrapf(err, "opening checkpoint %q", key)
	}
	return f, nil
}

func writeToFile(ctx context.Context, src io.Reader, destinationPath string) (int64, error) {
	log := klog.FromContext(ctx)

	tempFile, err := os.CreateTemp(filepath.Dir(destinationPath), ".checkpoint")
	if err != nil {
		return 0, errors.Wrap(err, "creating temp file")
	}

	shouldDeleteTempFile := true
	defer func() {
		if shouldDeleteTempFile {
			if err := os.Remove(tempFile.Name()); err != nil {
				log.Error(err, "removing temp file", "path", tempFile.Name())
			}
		}
	}()

	shouldCloseTempFile := true
	defer func() {
		if shouldCloseTempFile {
			if err := tempFile.Close(); err != nil {
				log.Error(err, "closing temp file", "path", tempFile.Name())
			}
		}
	}()

	n, err := io.Copy(tempFile, src)
	if err != nil {
		return n, errors.Wrap(err, "copying checkpoint data")
	}

	if err := tempFile.Close(); err != nil {
		return n, errors.Wrap(err, "closing temp file")
	}
	shouldCloseTempFile = false

	if err := os.Rename(tempFile.Name(), destinationPath); err != nil {
		return n, errors.Wrap(err, "renaming temp file")
	}
	shouldDeleteTempFile = false

	return n, nil
}
