package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"blossom/internal/logging"
	"blossom/internal/types"
)

const manifestName = "manifest.json"

type S3Config struct {
	Endpoint  string `mapstructure:"ARTIFACT_S3_ENDPOINT"`
	Region    string `mapstructure:"ARTIFACT_S3_REGION"`
	AccessKey string `mapstructure:"ARTIFACT_S3_ACCESS_KEY"`
	SecretKey string `mapstructure:"ARTIFACT_S3_SECRET_KEY"`
	Bucket    string `mapstructure:"ARTIFACT_S3_BUCKET"`
	UseSSL    bool   `mapstructure:"ARTIFACT_S3_USE_SSL"`
}

// Enabled reports whether an endpoint is configured at all.
func (c S3Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// S3Store writes each file as its own object under <project>/files/ and the path order
// to <project>/manifest.json.
type S3Store struct {
	client     *minio.Client
	bucketName string
	region     string
	logger     *zap.Logger
	initOnce   sync.Once
	initErr    error
}

type manifest struct {
	Paths []string `json:"paths"`
}

func NewS3Store(cfg S3Config, logger *zap.Logger) (*S3Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	logger = logging.OrNop(logger)

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Store{
		client:     client,
		bucketName: bucket,
		region:     region,
		logger:     logger,
	}, nil
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("store is nil")
	}
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucketName)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.logger.Info("creating artifact bucket", zap.String("bucket", s.bucketName))
		s.initErr = s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

func (s *S3Store) Put(ctx context.Context, projectID string, files []types.GeneratedFile) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	id, err := validate(projectID, files)
	if err != nil {
		return err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}

	// objects left over from a previous, larger set
	stale, err := s.listKeys(ctx, filesPrefix(id))
	if err != nil {
		return err
	}
	m := manifest{Paths: make([]string, 0, len(files))}
	for _, f := range files {
		key := fileKey(id, f.Path)
		delete(stale, key)
		if err := s.putObject(ctx, key, []byte(f.Content), "text/plain; charset=utf-8"); err != nil {
			return fmt.Errorf("put %s: %w", f.Path, err)
		}
		m.Paths = append(m.Paths, f.Path)
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := s.putObject(ctx, manifestKey(id), raw, "application/json"); err != nil {
		return fmt.Errorf("put manifest: %w", err)
	}
	for key := range stale {
		if err := s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
			s.logger.Warn("remove stale artifact", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, projectID string) ([]types.GeneratedFile, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	id := strings.TrimSpace(projectID)
	if id == "" {
		return nil, fmt.Errorf("project id is required")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	raw, err := s.getObject(ctx, manifestKey(id))
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	files := make([]types.GeneratedFile, 0, len(m.Paths))
	for _, p := range m.Paths {
		content, err := s.getObject(ctx, fileKey(id, p))
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", p, err)
		}
		files = append(files, types.GeneratedFile{Path: p, Content: string(content)})
	}
	return files, nil
}

func (s *S3Store) Delete(ctx context.Context, projectID string) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	id := strings.TrimSpace(projectID)
	if id == "" {
		return fmt.Errorf("project id is required")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	keys, err := s.listKeys(ctx, id+"/")
	if err != nil {
		return err
	}
	for key := range keys {
		if err := s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("remove %s: %w", key, err)
		}
	}
	return nil
}

func (s *S3Store) putObject(ctx context.Context, key string, content []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (s *S3Store) getObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NoSuchBucket" {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *S3Store) listKeys(ctx context.Context, prefix string) (map[string]struct{}, error) {
	keys := make(map[string]struct{})
	for obj := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if obj.Key != "" {
			keys[obj.Key] = struct{}{}
		}
	}
	return keys, nil
}

func filesPrefix(projectID string) string {
	return projectID + "/files/"
}

func fileKey(projectID, path string) string {
	return filesPrefix(projectID) + strings.TrimLeft(strings.TrimSpace(path), "/")
}

func manifestKey(projectID string) string {
	return projectID + "/" + manifestName
}
