package distribution

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"fyts-validation/internal/blockchain"
	"fyts-validation/internal/metrics"
	"fyts-validation/internal/models"
	"fyts-validation/pkg/logger"
)

// Token 分发所需的 ERC-20 接口，由 *blockchain.Client 实现
type Token interface {
	Address() common.Address
	SignerAddress() common.Address
	Symbol(ctx context.Context) (string, error)
	Decimals(ctx context.Context) (uint8, error)
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	Transfer(ctx context.Context, to common.Address, amount *big.Int) (*types.Transaction, error)
	WaitConfirmed(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

type Options struct {
	// Delay 两次转账之间的间隔
	Delay time.Duration
	// DryRun 只校验并记录，不提交交易
	DryRun bool
	// IgnoreProcessed 已在已处理记录中的条目也照常发送
	IgnoreProcessed bool
}

type Summary struct {
	Symbol           string
	Success          int
	Failed           int
	Skipped          int
	Planned          int
	TotalDistributed decimal.Decimal
	StartBalance     decimal.Decimal
	RemainingBalance *decimal.Decimal
	LogFile          string
}

type Distributor struct {
	token  Token
	ledger *Ledger
	opts   Options
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewDistributor(token Token, ledger *Ledger, opts Options) *Distributor {
	return &Distributor{
		token:  token,
		ledger: ledger,
		opts:   opts,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Run 依次处理每条记录。单条失败只计数并写日志；
// 初始化失败、账本写入失败或 ctx 取消时返回错误，已统计的部分仍在 Summary 中
func (d *Distributor) Run(ctx context.Context, entries []Entry) (*Summary, error) {
	summary := &Summary{
		TotalDistributed: decimal.Zero,
		LogFile:          d.ledger.LogPath(),
	}

	symbol, err := d.token.Symbol(ctx)
	if err != nil {
		return summary, err
	}
	decimals, err := d.token.Decimals(ctx)
	if err != nil {
		return summary, err
	}
	balance, err := d.token.BalanceOf(ctx, d.token.SignerAddress())
	if err != nil {
		return summary, err
	}
	summary.Symbol = symbol
	summary.StartBalance = blockchain.FromBaseUnits(balance, decimals)

	logger.WithFields(map[string]interface{}{
		"token":    d.token.Address().Hex(),
		"signer":   d.token.SignerAddress().Hex(),
		"symbol":   symbol,
		"decimals": decimals,
		"balance":  summary.StartBalance.String(),
		"entries":  len(entries),
		"dry_run":  d.opts.DryRun,
	}).Info("开始分发代币")

	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		attempted, err := d.process(ctx, entry, symbol, decimals, summary)
		if err != nil {
			return summary, err
		}

		if attempted && d.opts.Delay > 0 && i < len(entries)-1 {
			if err := d.sleep(ctx, d.opts.Delay); err != nil {
				return summary, err
			}
		}
	}

	if remaining, err := d.token.BalanceOf(ctx, d.token.SignerAddress()); err != nil {
		logger.WithFields(map[string]interface{}{"error": err}).Warn("查询剩余余额失败")
	} else {
		r := blockchain.FromBaseUnits(remaining, decimals)
		summary.RemainingBalance = &r
	}

	fields := map[string]interface{}{
		"success":     summary.Success,
		"failed":      summary.Failed,
		"skipped":     summary.Skipped,
		"distributed": summary.TotalDistributed.String() + " " + symbol,
		"log_file":    summary.LogFile,
	}
	if summary.RemainingBalance != nil {
		fields["remaining"] = summary.RemainingBalance.String() + " " + symbol
	}
	if d.opts.DryRun {
		fields["planned"] = summary.Planned
	}
	logger.WithFields(fields).Info("分发完成")

	return summary, nil
}

// process 处理单条记录，attempted 表示是否真正提交过交易（用于决定是否限速等待）
func (d *Distributor) process(ctx context.Context, entry Entry, symbol string, decimals uint8, summary *Summary) (attempted bool, err error) {
	log := logger.WithFields(map[string]interface{}{
		"line":   entry.Line,
		"wallet": entry.Wallet,
		"amount": entry.Amount,
	})

	if !common.IsHexAddress(entry.Wallet) {
		log.Warn("钱包地址无效，跳过")
		return false, d.fail(entry, "invalid address", summary)
	}

	amount, err := decimal.NewFromString(entry.Amount)
	if err != nil {
		log.Warn("金额无法解析，跳过")
		return false, d.fail(entry, "invalid amount: "+entry.Amount, summary)
	}
	value, err := blockchain.ToBaseUnits(amount, decimals)
	if err != nil {
		log.WithField("error", err).Warn("金额无效，跳过")
		return false, d.fail(entry, err.Error(), summary)
	}

	if !d.opts.IgnoreProcessed && d.ledger.Claim(entry.RunID, entry.Wallet, amount) {
		log.Info("已分发过，跳过")
		summary.Skipped++
		metrics.DistributionsTotal.WithLabelValues(string(models.OutcomeSkipped)).Inc()
		return false, d.ledger.Record(models.DistributionLogEntry{
			Timestamp: d.now(),
			Wallet:    entry.Wallet,
			Amount:    entry.Amount,
			Message:   "already distributed",
			Outcome:   models.OutcomeSkipped,
		})
	}

	to := common.HexToAddress(entry.Wallet)

	if d.opts.DryRun {
		log.Infof("[dry-run] 将转账 %s %s", amount.String(), symbol)
		summary.Planned++
		return false, d.ledger.Record(models.DistributionLogEntry{
			Timestamp: d.now(),
			Wallet:    entry.Wallet,
			Amount:    entry.Amount,
			Message:   "dry run",
			Outcome:   models.OutcomeSkipped,
		})
	}

	log.Infof("发送 %s %s", amount.String(), symbol)
	started := d.now()

	tx, err := d.token.Transfer(ctx, to, value)
	if err != nil {
		log.WithField("error", err).Error("转账提交失败")
		return true, d.fail(entry, err.Error(), summary)
	}

	receipt, err := d.token.WaitConfirmed(ctx, tx)
	if err != nil {
		log.WithFields(map[string]interface{}{"tx": tx.Hash().Hex(), "error": err}).Error("转账未确认")
		return true, d.fail(entry, fmt.Sprintf("tx %s: %v", tx.Hash().Hex(), err), summary)
	}
	metrics.TransferConfirmDuration.Observe(d.now().Sub(started).Seconds())

	if !blockchain.ReceiptHasTransfer(receipt, d.token.Address(), to, value) {
		log.WithField("tx", tx.Hash().Hex()).Warn("回执中未找到匹配的 Transfer 事件")
	}

	now := d.now()
	summary.Success++
	summary.TotalDistributed = summary.TotalDistributed.Add(amount)
	metrics.DistributionsTotal.WithLabelValues(string(models.OutcomeSuccess)).Inc()
	log.WithField("tx", tx.Hash().Hex()).Info("转账成功")

	if err := d.ledger.Record(models.DistributionLogEntry{
		Timestamp: now,
		Wallet:    entry.Wallet,
		Amount:    entry.Amount,
		TxHash:    tx.Hash().Hex(),
		Outcome:   models.OutcomeSuccess,
	}); err != nil {
		return true, err
	}
	return true, d.ledger.MarkProcessed(models.ProcessedDistribution{
		Wallet:    entry.Wallet,
		Amount:    amount,
		TxHash:    tx.Hash().Hex(),
		Timestamp: now,
		RunID:     entry.RunID,
	})
}

func (d *Distributor) fail(entry Entry, msg string, summary *Summary) error {
	summary.Failed++
	metrics.DistributionsTotal.WithLabelValues(string(models.OutcomeError)).Inc()
	return d.ledger.Record(models.DistributionLogEntry{
		Timestamp: d.now(),
		Wallet:    entry.Wallet,
		Amount:    entry.Amount,
		Message:   msg,
		Outcome:   models.OutcomeError,
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// FormatSummary 渲染运行结束时打印到终端的摘要
func FormatSummary(s *Summary) string {
	var b strings.Builder
	b.WriteString("\nDistribution summary\n")
	b.WriteString(strings.Repeat("=", 50) + "\n")
	fmt.Fprintf(&b, "Successful: %d\n", s.Success)
	fmt.Fprintf(&b, "Failed:     %d\n", s.Failed)
	fmt.Fprintf(&b, "Skipped:    %d\n", s.Skipped)
	if s.Planned > 0 {
		fmt.Fprintf(&b, "Planned:    %d (dry run)\n", s.Planned)
	}
	fmt.Fprintf(&b, "Total distributed: %s %s\n", s.TotalDistributed.String(), s.Symbol)
	if s.RemainingBalance != nil {
		fmt.Fprintf(&b, "Remaining balance: %s %s\n", s.RemainingBalance.String(), s.Symbol)
	}
	fmt.Fprintf(&b, "Log file: %s\n", s.LogFile)
	return b.String()
}
