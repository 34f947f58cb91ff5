package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeError   Outcome = "ERROR"
	OutcomeSkipped Outcome = "SKIPPED"
)

// DistributionLogEntry 会话日志中的一行，每次分发尝试写一次，不再改写
type DistributionLogEntry struct {
	Timestamp time.Time
	Wallet    string
	Amount    string
	TxHash    string
	Message   string
	Outcome   Outcome
}

// Line 渲染为追加到会话日志中的格式
func (e DistributionLogEntry) Line() string {
	ts := e.Timestamp.UTC().Format(time.RFC3339)
	switch e.Outcome {
	case OutcomeSuccess:
		return fmt.Sprintf("%s,%s,%s,%s,%s\n", ts, e.Wallet, e.Amount, e.TxHash, OutcomeSuccess)
	default:
		return fmt.Sprintf("%s,%s,%s,%s,%s\n", ts, e.Wallet, e.Amount, e.Outcome, oneLine(e.Message))
	}
}

// ProcessedDistribution 一次已成功的分发；RunID 来自导出文件的 run_id 列，可为空
type ProcessedDistribution struct {
	Wallet    string
	Amount    decimal.Decimal
	TxHash    string
	Timestamp time.Time
	RunID     string
}

// Line 没有 RunID 时保持四列的旧格式
func (p ProcessedDistribution) Line() string {
	line := fmt.Sprintf("%s,%s,%s,%s", p.Wallet, p.Amount.String(), p.TxHash, p.Timestamp.UTC().Format(time.RFC3339))
	if p.RunID != "" {
		line += "," + p.RunID
	}
	return line + "\n"
}

func (p ProcessedDistribution) Key() string {
	return ProcessedKey(p.RunID, p.Wallet, p.Amount)
}

// ProcessedKey 有 run_id 时按记录去重，否则按 (小写地址, 规范化金额)
func ProcessedKey(runID, wallet string, amount decimal.Decimal) string {
	if runID = strings.TrimSpace(runID); runID != "" {
		return "run|" + runID
	}
	return strings.ToLower(strings.TrimSpace(wallet)) + "|" + amount.String()
}

// RPC 返回的错误信息可能带换行
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
