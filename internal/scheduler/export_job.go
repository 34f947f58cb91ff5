package scheduler

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"fyts-validation/internal/config"
	"fyts-validation/internal/metrics"
	"fyts-validation/internal/service"
	"fyts-validation/pkg/errors"
	"fyts-validation/pkg/logger"
)

// Uploader 归档导出文件，由 *storage.S3Uploader 实现
type Uploader interface {
	Upload(ctx context.Context, name string, body io.Reader) (string, error)
}

type ExportResult struct {
	Path string `json:"path"`
	Rows int    `json:"rows"`
	URL  string `json:"url,omitempty"`
}

type ExportScheduler struct {
	cron     *cron.Cron
	runSvc   *service.RunService
	cfg      *config.ExportConfig
	uploader Uploader
	now      func() time.Time
}

// NewExportScheduler uploader 可以为 nil，此时只写本地文件
func NewExportScheduler(runSvc *service.RunService, cfg *config.ExportConfig, uploader Uploader) *ExportScheduler {
	return &ExportScheduler{
		cron:     cron.New(cron.WithSeconds()),
		runSvc:   runSvc,
		cfg:      cfg,
		uploader: uploader,
		now:      time.Now,
	}
}

func (s *ExportScheduler) Start() error {
	_, err := s.cron.AddFunc(s.cfg.Cron, s.runExport)
	if err != nil {
		return err
	}

	s.cron.Start()
	logger.WithField("cron", s.cfg.Cron).Info("Approved-runs export scheduler started")
	return nil
}

func (s *ExportScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Approved-runs export scheduler stopped")
}

func (s *ExportScheduler) runExport() {
	if _, err := s.TriggerExport(context.Background()); err != nil {
		logger.WithError(err).Error("Scheduled export failed")
	}
}

// TriggerExport 立即导出一次，供定时任务和命令行共用
func (s *ExportScheduler) TriggerExport(ctx context.Context) (*ExportResult, error) {
	result, err := s.export(ctx)
	if err != nil {
		metrics.ExportsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.ExportsTotal.WithLabelValues("ok").Inc()

	logger.WithFields(map[string]interface{}{
		"path": result.Path,
		"rows": result.Rows,
		"url":  result.URL,
	}).Info("Approved runs exported")
	return result, nil
}

func (s *ExportScheduler) export(ctx context.Context) (*ExportResult, error) {
	if err := os.MkdirAll(s.cfg.OutputDir, 0755); err != nil {
		return nil, errors.New(errors.ErrExport, fmt.Sprintf("无法创建导出目录 %s", s.cfg.OutputDir), err)
	}

	name := fmt.Sprintf("approved-runs-%s.csv", s.now().UTC().Format("2006-01-02"))
	path := filepath.Join(s.cfg.OutputDir, name)

	f, err := os.Create(path)
	if err != nil {
		return nil, errors.New(errors.ErrExport, fmt.Sprintf("无法创建导出文件 %s", path), err)
	}
	rows, err := s.runSvc.ExportApproved(ctx, f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = errors.New(errors.ErrExport, "关闭导出文件失败", closeErr)
	}
	if err != nil {
		return nil, err
	}

	result := &ExportResult{Path: path, Rows: rows}
	if s.uploader == nil {
		return result, nil
	}

	upload, err := os.Open(path)
	if err != nil {
		return nil, errors.New(errors.ErrExport, "无法读取导出文件", err)
	}
	defer upload.Close()

	url, err := s.uploader.Upload(ctx, name, upload)
	if err != nil {
		return nil, err
	}
	result.URL = url
	return result, nil
}
