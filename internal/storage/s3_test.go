package storage

import (
	"context"
	stderrors "errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fyts-validation/internal/config"
	"fyts-validation/pkg/errors"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = params
	data, _ := io.ReadAll(params.Body)
	f.body = string(data)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Uploader_Upload(t *testing.T) {
	client := &fakeS3{}
	u := NewS3UploaderWithClient(client, &config.ExportConfig{
		S3Bucket: "fyts-exports",
		S3Region: "eu-west-1",
		S3Prefix: "exports/",
	})

	url, err := u.Upload(context.Background(), "approved-runs-2025-03-01.csv", strings.NewReader("wallet,tokens\n"))
	require.NoError(t, err)

	assert.Equal(t, "https://fyts-exports.s3.eu-west-1.amazonaws.com/exports/approved-runs-2025-03-01.csv", url)
	assert.Equal(t, "fyts-exports", aws.ToString(client.input.Bucket))
	assert.Equal(t, "exports/approved-runs-2025-03-01.csv", aws.ToString(client.input.Key))
	assert.Equal(t, "text/csv", aws.ToString(client.input.ContentType))
	assert.Equal(t, "wallet,tokens\n", client.body)
}

func TestS3Uploader_UploadError(t *testing.T) {
	u := NewS3UploaderWithClient(&fakeS3{err: stderrors.New("access denied")}, &config.ExportConfig{S3Bucket: "b"})

	_, err := u.Upload(context.Background(), "x.csv", strings.NewReader(""))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrExport))
}
