// Package storage 스냅샷 이미지를 S3 호환 오브젝트 스토리지에 보관
package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Config MinIO 연결 설정
type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	UseSSL        bool
	PresignExpiry time.Duration
}

// ImageStore 스냅샷 이미지 저장소
type ImageStore struct {
	client        *minio.Client
	bucket        string
	region        string
	presignExpiry time.Duration
	log           *zap.Logger
}

// NewImageStore 클라이언트 생성 및 버킷 확인
func NewImageStore(ctx context.Context, cfg Config, log *zap.Logger) (*ImageStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	s := &ImageStore{
		client:        client,
		bucket:        cfg.Bucket,
		region:        cfg.Region,
		presignExpiry: expiry,
		log:           log.With(zap.String("component", "storage")),
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket: %w", err)
	}
	return s, nil
}

func (s *ImageStore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return err
	}
	s.log.Info("created bucket", zap.String("bucket", s.bucket))
	return nil
}

// ObjectKey rooms/<roomId>/<uuid>.<ext>
func ObjectKey(roomID, ext string) string {
	if ext == "" {
		ext = "png"
	}
	return fmt.Sprintf("rooms/%s/%s.%s", roomID, uuid.New().String(), ext)
}

// Put key에 이미지 업로드
func (s *ImageStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// PresignedURL 만료 시간이 있는 GET URL 발급
func (s *ImageStore) PresignedURL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.presignExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate download URL: %w", err)
	}
	return u.String(), nil
}

// Remove 오브젝트 삭제 (없어도 에러 아님)
func (s *ImageStore) Remove(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

// Health 버킷 접근 확인
func (s *ImageStore) Health(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}
