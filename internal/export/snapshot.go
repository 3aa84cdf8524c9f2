package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"weather-pipeline/internal/config"
	"weather-pipeline/internal/models"
)

// ObservationReader is the slice of the store the exporter reads from.
type ObservationReader interface {
	ListObservations(ctx context.Context) ([]models.WeatherObservation, error)
}

type uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
}

// Exporter writes a JSON snapshot of the observation table after
// successful syncs, to a local directory or an S3 bucket.
type Exporter struct {
	store ObservationReader
	dest  uploader
}

// snapshot is the serialized export document.
type snapshot struct {
	TakenAt      time.Time                   `json:"taken_at"`
	Observations []models.WeatherObservation `json:"observations"`
}

// NewExporter picks a destination from config. It returns nil (no
// exporter) when neither a directory nor a bucket is configured.
func NewExporter(ctx context.Context, cfg config.Config, store ObservationReader) (*Exporter, error) {
	if cfg.SnapshotS3Bucket != "" {
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &Exporter{store: store, dest: &s3Uploader{client: client, bucket: cfg.SnapshotS3Bucket}}, nil
	}
	if cfg.SnapshotDir != "" {
		return &Exporter{store: store, dest: &localUploader{baseDir: cfg.SnapshotDir}}, nil
	}
	return nil, nil
}

func newS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.SnapshotS3Region),
	}
	if cfg.SnapshotS3Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               cfg.SnapshotS3Endpoint,
					HostnameImmutable: cfg.SnapshotS3PathStyle,
					SigningRegion:     cfg.SnapshotS3Region,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.SnapshotS3PathStyle
	}), nil
}

// Export serializes the current observation rows and writes them under
// a timestamped key.
func (e *Exporter) Export(ctx context.Context) error {
	obs, err := e.store.ListObservations(ctx)
	if err != nil {
		return fmt.Errorf("list observations: %w", err)
	}
	doc := snapshot{TakenAt: time.Now().UTC(), Observations: obs}
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	key := fmt.Sprintf("snapshots/%s.json", doc.TakenAt.Format("20060102T150405Z"))
	if err := e.dest.Upload(ctx, key, body, "application/json"); err != nil {
		return fmt.Errorf("upload snapshot: %w", err)
	}
	return nil
}

type localUploader struct {
	baseDir string
}

func (l *localUploader) Upload(_ context.Context, key string, body []byte, _ string) error {
	path := filepath.Join(l.baseDir, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dirs: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

type s3Uploader struct {
	client *s3.Client
	bucket string
}

func (s *s3Uploader) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}
