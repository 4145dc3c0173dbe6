package services

import (
	"fmt"
	"time"

	"blogsphere/internal/apperrors"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
)

// UploadService 为前端直传 S3 生成预签名 PUT 地址
type UploadService struct {
	s3     *s3.S3
	bucket string
	ttl    time.Duration
	now    func() time.Time
}

// NewUploadService bucket 为空时返回 nil，上传接口返回 500
func NewUploadService(sess *session.Session, bucket string, ttl time.Duration) *UploadService {
	if bucket == "" {
		return nil
	}
	return &UploadService{s3: s3.New(sess), bucket: bucket, ttl: ttl, now: time.Now}
}

// UploadURL 图片名为 <uuid>-<毫秒时间戳>.jpeg
func (s *UploadService) UploadURL() (string, error) {
	if s == nil {
		return "", apperrors.New(apperrors.KindInternal, "image uploads are not configured")
	}
	key := fmt.Sprintf("%s-%d.jpeg", uuid.NewString(), s.now().UnixMilli())
	req, _ := s.s3.PutObjectRequest(&s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String("image/jpeg"),
	})
	url, err := req.Presign(s.ttl)
	if err != nil {
		return "", fmt.Errorf("presign upload url: %w", err)
	}
	return url, nil
}
