package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/italolelis/asset_bootstrap/internal/asset"
	"google.golang.org/api/option"
)

// GCSSource reads gs://bucket/object URLs. The client is created on first use so a
// catalog without gs:// URLs never needs Google credentials.
type GCSSource struct {
	credentialsFile string

	once   sync.Once
	client *storage.Client
	err    error
}

func NewGCSSource(credentialsFile string) *GCSSource {
	return &GCSSource{credentialsFile: credentialsFile}
}

func (s *GCSSource) init(ctx context.Context) error {
	s.once.Do(func() {
		var opts []option.ClientOption
		if s.credentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(s.credentialsFile))
		}

		s.client, s.err = storage.NewClient(context.WithoutCancel(ctx), opts...)
		if s.err != nil {
			s.err = &asset.AuthenticationError{Operation: "gcs_client", Err: s.err}
		}
	})

	return s.err
}

func (s *GCSSource) Open(ctx context.Context, rawURL string, offset int64) (io.ReadCloser, Range, error) {
	bucket, object, err := parseGCSURL(rawURL)
	if err != nil {
		return nil, Range{}, err
	}

	if err := s.init(ctx); err != nil {
		return nil, Range{}, err
	}

	r, err := s.client.Bucket(bucket).Object(object).NewRangeReader(ctx, offset, -1)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, Range{}, &asset.NetworkError{Operation: "range_read", StatusCode: 404, APIMessage: err.Error(), Err: err}
		}

		return nil, Range{}, &asset.NetworkError{Operation: "range_read", APIMessage: err.Error(), Err: err}
	}

	return r, Range{Offset: r.Attrs.StartOffset, Total: r.Attrs.Size}, nil
}

// Close releases the client if one was created.
func (s *GCSSource) Close() error {
	if s.client == nil {
		return nil
	}

	return s.client.Close()
}

func parseGCSURL(rawURL string) (string, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "gs" {
		return "", "", &asset.SourceError{URL: rawURL, Reason: "not a gs:// URL"}
	}

	object := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || object == "" {
		return "", "", &asset.SourceError{URL: rawURL, Reason: fmt.Sprintf("want gs://bucket/object, got %q", rawURL)}
	}

	return u.Host, object, nil
}
