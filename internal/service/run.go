package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fyts-validation/internal/metrics"
	"fyts-validation/internal/models"
	"fyts-validation/internal/repository"
	"fyts-validation/internal/tracking"
	"fyts-validation/pkg/errors"
	"fyts-validation/pkg/logger"
)

type RunService struct {
	runRepo *repository.RunRepository
}

func NewRunService(runRepo *repository.RunRepository) *RunService {
	return &RunService{runRepo: runRepo}
}

// RunSubmission 一次追踪会话结束时上报的数据
type RunSubmission struct {
	Wallet          string
	Miles           float64
	DurationSeconds int64
	GPSUpdates      int
	Movements       int
}

type HistoryStats struct {
	TotalRuns     int             `json:"totalRuns"`
	TotalDistance float64         `json:"totalDistance"`
	EarnedTokens  decimal.Decimal `json:"earnedTokens"`
	PendingTokens decimal.Decimal `json:"pendingTokens"`
	Pending       int             `json:"pending"`
	Approved      int             `json:"approved"`
	Rejected      int             `json:"rejected"`
}

type RunHistory struct {
	Runs  []models.Run `json:"runs"`
	Stats HistoryStats `json:"stats"`
}

type AdminRuns struct {
	Runs           []models.Run               `json:"runs"`
	PendingTokens  decimal.Decimal            `json:"pendingTokens"`
	ApprovedTokens decimal.Decimal            `json:"approvedTokens"`
	Counts         map[models.RunStatus]int64 `json:"counts"`
}

// NormalizeWallet 校验并统一为 EIP-55 校验和格式
func NormalizeWallet(wallet string) (string, error) {
	if !common.IsHexAddress(wallet) {
		return "", errors.New(errors.ErrInvalidAddress, fmt.Sprintf("invalid wallet address: %q", wallet), nil)
	}
	return common.HexToAddress(wallet).Hex(), nil
}

// Submit 保存一条待审核的运动记录，奖励按里程档位计算
func (s *RunService) Submit(ctx context.Context, sub RunSubmission) (*models.Run, error) {
	wallet, err := NormalizeWallet(sub.Wallet)
	if err != nil {
		return nil, err
	}

	miles := math.Round(sub.Miles*100) / 100
	run := &models.Run{
		ID:         uuid.NewString(),
		Wallet:     wallet,
		Distance:   miles,
		Duration:   sub.DurationSeconds,
		GPSUpdates: sub.GPSUpdates,
		Movements:  sub.Movements,
		Status:     models.RunStatusPending,
		Tokens:     tracking.RewardForMiles(sub.Miles),
	}

	if err := s.runRepo.Create(ctx, run); err != nil {
		return nil, errors.New(errors.ErrRunStore, "保存运动记录失败", err)
	}
	metrics.RunsSubmittedTotal.Inc()

	logger.WithFields(map[string]interface{}{
		"run_id":   run.ID,
		"wallet":   run.Wallet,
		"miles":    run.Distance,
		"duration": run.Duration,
		"tokens":   run.Tokens.String(),
	}).Info("运动记录已提交")

	return run, nil
}

// History 返回钱包的全部记录和汇总
func (s *RunService) History(ctx context.Context, wallet string) (*RunHistory, error) {
	normalized, err := NormalizeWallet(wallet)
	if err != nil {
		return nil, err
	}

	runs, err := s.runRepo.ListByWallet(ctx, normalized)
	if err != nil {
		return nil, errors.New(errors.ErrRunStore, "查询运动记录失败", err)
	}

	stats := HistoryStats{
		TotalRuns:     len(runs),
		EarnedTokens:  decimal.Zero,
		PendingTokens: decimal.Zero,
	}
	for _, r := range runs {
		stats.TotalDistance += r.Distance
		switch r.Status {
		case models.RunStatusApproved:
			stats.Approved++
			stats.EarnedTokens = stats.EarnedTokens.Add(r.Tokens)
		case models.RunStatusPending:
			stats.Pending++
			stats.PendingTokens = stats.PendingTokens.Add(r.Tokens)
		case models.RunStatusRejected:
			stats.Rejected++
		}
	}
	stats.TotalDistance = math.Round(stats.TotalDistance*100) / 100

	if runs == nil {
		runs = []models.Run{}
	}
	return &RunHistory{Runs: runs, Stats: stats}, nil
}

// AdminList 管理端列表，附带待发放与已批准的代币总额
func (s *RunService) AdminList(ctx context.Context, status models.RunStatus) (*AdminRuns, error) {
	if status != "" && !status.Valid() {
		return nil, errors.New(errors.ErrInvalidStatus, fmt.Sprintf("unknown status: %s", status), nil)
	}

	runs, err := s.runRepo.ListByStatus(ctx, status)
	if err != nil {
		return nil, errors.New(errors.ErrRunStore, "查询运动记录失败", err)
	}
	pending, err := s.runRepo.SumTokensByStatus(ctx, models.RunStatusPending)
	if err != nil {
		return nil, errors.New(errors.ErrRunStore, "汇总待审核代币失败", err)
	}
	approved, err := s.runRepo.SumTokensByStatus(ctx, models.RunStatusApproved)
	if err != nil {
		return nil, errors.New(errors.ErrRunStore, "汇总已批准代币失败", err)
	}

	counts := make(map[models.RunStatus]int64, 3)
	for _, st := range []models.RunStatus{models.RunStatusPending, models.RunStatusApproved, models.RunStatusRejected} {
		n, err := s.runRepo.CountByStatus(ctx, st)
		if err != nil {
			return nil, errors.New(errors.ErrRunStore, "统计记录数量失败", err)
		}
		counts[st] = n
	}

	if runs == nil {
		runs = []models.Run{}
	}
	return &AdminRuns{Runs: runs, PendingTokens: pending, ApprovedTokens: approved, Counts: counts}, nil
}

// Get 查询单条记录
func (s *RunService) Get(ctx context.Context, id string) (*models.Run, error) {
	run, err := s.runRepo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.New(errors.ErrRunStore, "查询记录失败", err)
	}
	if run == nil {
		return nil, errors.ErrRunNotFound
	}
	return run, nil
}

// SetStatus 管理员审核，只能改为 approved 或 rejected
func (s *RunService) SetStatus(ctx context.Context, id string, status models.RunStatus) error {
	if status != models.RunStatusApproved && status != models.RunStatusRejected {
		return errors.ErrStatusForbidden
	}

	found, err := s.runRepo.UpdateStatus(ctx, id, status)
	if err != nil {
		return errors.New(errors.ErrRunStore, "更新记录状态失败", err)
	}
	if !found {
		return errors.ErrRunNotFound
	}
	metrics.RunStatusChangesTotal.WithLabelValues(string(status)).Inc()

	logger.WithFields(map[string]interface{}{
		"run_id": id,
		"status": status,
	}).Info("运动记录状态已更新")
	return nil
}

func (s *RunService) Leaderboard(ctx context.Context, limit int) ([]models.Run, error) {
	runs, err := s.runRepo.TopByDistance(ctx, limit)
	if err != nil {
		return nil, errors.New(errors.ErrRunStore, "查询排行榜失败", err)
	}
	if runs == nil {
		runs = []models.Run{}
	}
	return runs, nil
}

// ExportApproved 以 wallet,tokens,run_id 格式写出所有已批准且有奖励的记录，返回行数。
// run_id 让分发端按记录去重，同一钱包的多条相同奖励都会发放
func (s *RunService) ExportApproved(ctx context.Context, w io.Writer) (int, error) {
	runs, err := s.runRepo.ListByStatus(ctx, models.RunStatusApproved)
	if err != nil {
		return 0, errors.New(errors.ErrExport, "查询已批准记录失败", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"wallet", "tokens", "run_id"}); err != nil {
		return 0, errors.New(errors.ErrExport, "写入表头失败", err)
	}

	rows := 0
	for _, r := range runs {
		if !r.Tokens.IsPositive() {
			continue
		}
		if err := cw.Write([]string{r.Wallet, r.Tokens.String(), r.ID}); err != nil {
			return rows, errors.New(errors.ErrExport, "写入导出行失败", err)
		}
		rows++
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return rows, errors.New(errors.ErrExport, "导出失败", err)
	}
	return rows, nil
}
