package scheduler

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"fyts-validation/internal/config"
	"fyts-validation/internal/models"
	"fyts-validation/internal/repository"
	"fyts-validation/internal/service"
)

type recordingUploader struct {
	name string
	body string
	err  error
}

func (r *recordingUploader) Upload(ctx context.Context, name string, body io.Reader) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	data, _ := io.ReadAll(body)
	r.name = name
	r.body = string(data)
	return "https://bucket.s3.us-east-1.amazonaws.com/exports/" + name, nil
}

func newRunService(t *testing.T) *service.RunService {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	repo := repository.NewRunRepository(db)
	require.NoError(t, repo.Migrate(context.Background()))
	return service.NewRunService(repo)
}

func seedApproved(t *testing.T, svc *service.RunService, wallet string, miles float64) string {
	t.Helper()
	ctx := context.Background()
	run, err := svc.Submit(ctx, service.RunSubmission{Wallet: wallet, Miles: miles})
	require.NoError(t, err)
	require.NoError(t, svc.SetStatus(ctx, run.ID, models.RunStatusApproved))
	return run.ID
}

func TestTriggerExport_WritesAndUploads(t *testing.T) {
	svc := newRunService(t)
	runID := seedApproved(t, svc, "0x1111111111111111111111111111111111111111", 3.2)

	uploader := &recordingUploader{}
	cfg := &config.ExportConfig{Cron: "0 0 0 * * *", OutputDir: filepath.Join(t.TempDir(), "exports")}
	s := NewExportScheduler(svc, cfg, uploader)
	s.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }

	result, err := s.TriggerExport(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Rows)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "approved-runs-2025-03-01.csv"), result.Path)
	assert.Contains(t, result.URL, "approved-runs-2025-03-01.csv")

	data, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	expected := "wallet,tokens,run_id\n0x1111111111111111111111111111111111111111,3," + runID + "\n"
	assert.Equal(t, expected, string(data))
	assert.Equal(t, expected, uploader.body)
	assert.Equal(t, "approved-runs-2025-03-01.csv", uploader.name)
}

func TestTriggerExport_LocalOnly(t *testing.T) {
	svc := newRunService(t)
	s := NewExportScheduler(svc, &config.ExportConfig{OutputDir: t.TempDir()}, nil)

	result, err := s.TriggerExport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Rows)
	assert.Empty(t, result.URL)
}

func TestTriggerExport_UploadFailure(t *testing.T) {
	svc := newRunService(t)
	s := NewExportScheduler(svc, &config.ExportConfig{OutputDir: t.TempDir()}, &recordingUploader{err: stderrors.New("boom")})

	_, err := s.TriggerExport(context.Background())
	assert.Error(t, err)
}

func TestExportScheduler_StartRejectsBadCron(t *testing.T) {
	s := NewExportScheduler(nil, &config.ExportConfig{Cron: "not a cron"}, nil)
	assert.Error(t, s.Start())

	ok := NewExportScheduler(nil, &config.ExportConfig{Cron: "0 0 0 * * *"}, nil)
	require.NoError(t, ok.Start())
	ok.Stop()
}
