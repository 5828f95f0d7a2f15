package checkpoint

import (
	"context"
	"io"
	"os"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// GCSStore keeps checkpoints as objects in a Cloud Storage bucket. Keys are
// placed under Prefix when it is set.
type GCSStore struct {
	Bucket string
	Prefix string
}

var _ Store = (*GCSStore)(nil)

func (s *GCSStore) objectKey(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	if s.Prefix == "" {
		return key, nil
	}
	return path.Join(s.Prefix, key), nil
}

// Put uploads src as the object for key.
func (s *GCSStore) Put(ctx context.Context, key string, src io.Reader) error {
	log := klog.FromContext(ctx)

	objectKey, err := s.objectKey(key)
	if err != nil {
		return err
	}
	gcsURL := "gs://" + s.Bucket + "/" + objectKey

	client, err := storage.NewClient(ctx)
	if err != nil {
		return errors.Wrap(err, "creating GCS storage client")
	}
	defer client.Close()

	log.Info("uploading checkpoint to GCS", "destination", gcsURL)

	startedAt := time.Now()
	w := client.Bucket(s.Bucket).Object(objectKey).NewWriter(ctx)
	n, err := io.Copy(w, src)
	if err != nil {
		_ = w.Close()
		return errors.Wrap(err, "uploading to GCS")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "closing GCS writer")
	}

	log.Info("uploaded checkpoint to GCS", "url", gcsURL, "bytes", n, "duration", time.Since(startedAt))
	return nil
}

// Get opens the object for key. The client is closed with the reader.
func (s *GCSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}
	gcsURL := "gs://" + s.Bucket + "/" + objectKey

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "creating GCS storage client")
	}

	klog.FromContext(ctx).Info("downloading checkpoint from GCS", "source", gcsURL)

	r, err := client.Bucket(s.Bucket).Object(objectKey).NewReader(ctx)
	if err != nil {
		client.Close()
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, errors.Wrapf(os.ErrNotExist, "checkpoint %q", gcsURL)
		}
		return nil, errors.Wrapf(err, "opening object from GCS %q", gcsURL)
	}
	return &gcsReader{Reader: r, client: client}, nil
}

type gcsReader struct {
	*storage.Reader
	client *storage.Client
}

func (r *gcsReader) Close() error {
	err := r.Reader.Close()
	if cerr := r.client.Close(); err == nil {
		err = cerr
	}
	return err
}
