package storage

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"fyts-validation/internal/config"
	"fyts-validation/pkg/errors"
	"fyts-validation/pkg/logger"
)

// PutObjectAPI 上传用到的 *s3.Client 方法
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader 将导出文件归档到 S3
type S3Uploader struct {
	client PutObjectAPI
	bucket string
	region string
	prefix string
}

// NewS3Uploader 使用默认凭证链（环境变量、共享配置、实例角色）创建客户端
func NewS3Uploader(ctx context.Context, cfg *config.ExportConfig) (*S3Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
	if err != nil {
		return nil, errors.New(errors.ErrExport, "加载AWS配置失败", err)
	}
	return NewS3UploaderWithClient(s3.NewFromConfig(awsCfg), cfg), nil
}

func NewS3UploaderWithClient(client PutObjectAPI, cfg *config.ExportConfig) *S3Uploader {
	return &S3Uploader{
		client: client,
		bucket: cfg.S3Bucket,
		region: cfg.S3Region,
		prefix: cfg.S3Prefix,
	}
}

// Upload 上传 body 到 <prefix>/<name>，返回对象 URL
func (u *S3Uploader) Upload(ctx context.Context, name string, body io.Reader) (string, error) {
	key := path.Join(u.prefix, name)

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return "", errors.New(errors.ErrExport, fmt.Sprintf("上传到S3失败: s3://%s/%s", u.bucket, key), err)
	}

	url := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.bucket, u.region, key)
	logger.WithFields(map[string]interface{}{
		"bucket": u.bucket,
		"key":    key,
	}).Info("导出文件已上传")
	return url, nil
}
