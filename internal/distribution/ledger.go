package distribution

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fyts-validation/internal/models"
	"fyts-validation/pkg/errors"
	"fyts-validation/pkg/logger"
)

// Ledger 管理一次分发会话的两个追加写文件：会话日志和已处理记录
type Ledger struct {
	mu            sync.Mutex
	logFile       *os.File
	logPath       string
	processedPath string
	processed     map[string]int
}

// SessionLogName 按日期命名会话日志，同一天的多次运行追加到同一文件
func SessionLogName(t time.Time) string {
	return fmt.Sprintf("distribution-log-%s.txt", t.UTC().Format("2006-01-02"))
}

// OpenLedger 打开（或创建）会话日志并写入会话头，同时加载已处理记录
func OpenLedger(logDir, processedPath string, startedAt time.Time) (*Ledger, error) {
	if logDir == "" {
		logDir = "."
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, errors.New(errors.ErrLedgerWrite, fmt.Sprintf("无法创建日志目录 %s", logDir), err)
	}

	processed, err := LoadProcessed(processedPath)
	if err != nil {
		return nil, err
	}

	logPath := filepath.Join(logDir, SessionLogName(startedAt))
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.New(errors.ErrLedgerWrite, fmt.Sprintf("无法打开会话日志 %s", logPath), err)
	}

	header := fmt.Sprintf("FYTS Distribution Log - %s\n%s\n",
		startedAt.UTC().Format(time.RFC3339), strings.Repeat("=", 50))
	if _, err := f.WriteString(header); err != nil {
		f.Close()
		return nil, errors.New(errors.ErrLedgerWrite, "写入会话日志头失败", err)
	}

	return &Ledger{
		logFile:       f,
		logPath:       logPath,
		processedPath: processedPath,
		processed:     processed,
	}, nil
}

func (l *Ledger) LogPath() string {
	return l.logPath
}

// Record 追加一行会话日志
func (l *Ledger) Record(entry models.DistributionLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.logFile.WriteString(entry.Line()); err != nil {
		return errors.New(errors.ErrLedgerWrite, "写入会话日志失败", err)
	}
	return nil
}

// IsProcessed 只查询，不消耗计数
func (l *Ledger) IsProcessed(runID, wallet string, amount decimal.Decimal) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.processed[models.ProcessedKey(runID, wallet, amount)] > 0
}

// Claim 判断一条记录是否已分发过。
// 带 run_id 的记录出现过即跳过；不带 run_id 的按 (wallet, amount) 计次，
// 之前成功过 N 次，则本次运行中前 N 条相同记录跳过，其余照常发送
func (l *Ledger) Claim(runID, wallet string, amount decimal.Decimal) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := models.ProcessedKey(runID, wallet, amount)
	n := l.processed[key]
	if n == 0 {
		return false
	}
	if strings.TrimSpace(runID) == "" {
		l.processed[key] = n - 1
	}
	return true
}

// MarkProcessed 追加已处理记录；每次单独打开文件，保证每条记录落盘后才继续
func (l *Ledger) MarkProcessed(p models.ProcessedDistribution) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.processedPath != "" {
		f, err := os.OpenFile(l.processedPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return errors.New(errors.ErrLedgerWrite, fmt.Sprintf("无法打开已处理记录 %s", l.processedPath), err)
		}
		if _, err := f.WriteString(p.Line()); err != nil {
			f.Close()
			return errors.New(errors.ErrLedgerWrite, "写入已处理记录失败", err)
		}
		if err := f.Close(); err != nil {
			return errors.New(errors.ErrLedgerWrite, "关闭已处理记录失败", err)
		}
	}

	// (wallet, amount) 的计次只来自启动时加载的文件，同一次运行中的重复行都要发送
	if p.RunID != "" {
		l.processed[p.Key()]++
	}
	return nil
}

func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.logFile.Close()
}

// LoadProcessed 读取已处理记录并按键计次，文件不存在视为空
func LoadProcessed(path string) (map[string]int, error) {
	set := make(map[string]int)
	if path == "" {
		return set, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return set, nil
		}
		return nil, errors.New(errors.ErrCSVLoad, fmt.Sprintf("无法读取已处理记录 %s", path), err)
	}
	defer f.Close()

	if err := readProcessed(f, set); err != nil {
		return nil, errors.New(errors.ErrCSVLoad, fmt.Sprintf("解析已处理记录失败 %s", path), err)
	}
	return set, nil
}

func readProcessed(r io.Reader, set map[string]int) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		line++

		if len(record) < 2 {
			continue
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(record[1]))
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"line":   line,
				"record": record,
			}).Warn("已处理记录中的金额无法解析，忽略该行")
			continue
		}
		runID := ""
		if len(record) >= 5 {
			runID = record[4]
		}
		set[models.ProcessedKey(runID, record[0], amount)]++
	}
}
