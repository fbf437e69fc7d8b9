package service

import (
	"bytes"
	"context"
	"encoding/json"
	"exam_coach_backend/internal/config"
	"exam_coach_backend/internal/model"
	"exam_coach_backend/internal/util"
	"exam_coach_backend/pkg/logger"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// ArchiveStore 归档对象存储
type ArchiveStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Location(key string) string
}

// LocalArchiveStore 本地目录
type LocalArchiveStore struct {
	Root string
}

func (p *LocalArchiveStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	dst := filepath.Join(p.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	// 先写临时文件再改名，避免分析端读到半个文件
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}

func (p *LocalArchiveStore) Location(key string) string {
	return filepath.Join(p.Root, filepath.FromSlash(key))
}

// MinioArchiveStore MinIO
type MinioArchiveStore struct {
	Bucket string
	Client *minio.Client
}

func NewMinioArchiveStore(cfg *config.StorageConfig) (*MinioArchiveStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &MinioArchiveStore{Bucket: cfg.MinioBucket, Client: client}, nil
}

func (p *MinioArchiveStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := p.Client.PutObject(ctx, p.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (p *MinioArchiveStore) Location(key string) string {
	return "/" + p.Bucket + "/" + key
}

// OSSArchiveStore 阿里云OSS
type OSSArchiveStore struct {
	Endpoint string
	Bucket   string
	Client   *oss.Client
}

func NewOSSArchiveStore(cfg *config.StorageConfig) (*OSSArchiveStore, error) {
	client, err := oss.New(cfg.OSSEndpoint, cfg.OSSAccessKey, cfg.OSSSecretKey)
	if err != nil {
		return nil, err
	}
	return &OSSArchiveStore{Endpoint: cfg.OSSEndpoint, Bucket: cfg.OSSBucket, Client: client}, nil
}

func (p *OSSArchiveStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	bucket, err := p.Client.Bucket(p.Bucket)
	if err != nil {
		return err
	}
	return bucket.PutObject(key, bytes.NewReader(data), oss.ContentType(contentType))
}

func (p *OSSArchiveStore) Location(key string) string {
	return fmt.Sprintf("https://%s.%s/%s", p.Bucket, p.Endpoint, key)
}

// NewArchiveStore 按配置选择存储，远端初始化失败时退回本地目录
func NewArchiveStore(cfg *config.StorageConfig) ArchiveStore {
	var (
		store ArchiveStore
		err   error
	)
	switch cfg.Type {
	case util.StorageMinio:
		store, err = NewMinioArchiveStore(cfg)
	case util.StorageOSS:
		store, err = NewOSSArchiveStore(cfg)
	}
	if err != nil {
		logger.Log.Warn("Archive storage init failed, falling back to local", zap.String("type", cfg.Type), zap.Error(err))
		store = nil
	}
	if store == nil {
		store = &LocalArchiveStore{Root: cfg.LocalPath}
	}
	return store
}

// ArchivedAttempt 归档文件内容，分析端按此结构读取
type ArchivedAttempt struct {
	Attempt    *model.ExamAttempt    `json:"attempt"`
	Answers    []model.AttemptAnswer `json:"answers"`
	ArchivedAt time.Time             `json:"archivedAt"`
}

// ArchiveService 终态作答写入对象存储
type ArchiveService struct {
	Store ArchiveStore
}

func NewArchiveService(store ArchiveStore) *ArchiveService {
	return &ArchiveService{Store: store}
}

// ArchiveKey attempts/<examId>/<attemptId>.json
func ArchiveKey(examID uint, attemptID string) string {
	return "attempts/" + strconv.FormatUint(uint64(examID), 10) + "/" + attemptID + ".json"
}

func (s *ArchiveService) ArchiveAttempt(ctx context.Context, attempt *model.ExamAttempt, answers []model.AttemptAnswer) error {
	if !attempt.Status.IsTerminal() {
		return util.ErrAttemptNotFinished
	}
	data, err := json.Marshal(ArchivedAttempt{Attempt: attempt, Answers: answers, ArchivedAt: time.Now()})
	if err != nil {
		return err
	}
	key := ArchiveKey(attempt.ExamID, attempt.ID)
	if err := s.Store.Put(ctx, key, data, "application/json"); err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}
	logger.Log.Debug("Attempt archived", zap.String("attempt_id", attempt.ID), zap.String("location", s.Store.Location(key)))
	return nil
}
