package distribution

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"fyts-validation/pkg/errors"
	"fyts-validation/pkg/logger"
)

// Entry 一条待分发记录，RunID 只在导出文件带 run_id 列时有值
type Entry struct {
	Line   int
	Wallet string
	Amount string
	RunID  string
}

// SkippedRow 加载时因缺少必填值而跳过的行
type SkippedRow struct {
	Line   int
	Record []string
}

type field struct {
	name     string
	aliases  []string
	optional bool
}

// recipientSchema 分发 CSV 的列定义，表头去空格后不区分大小写匹配
var recipientSchema = []field{
	{name: "wallet", aliases: []string{"wallet", "address"}},
	{name: "tokens", aliases: []string{"tokens", "amount"}},
	{name: "run_id", aliases: []string{"run_id", "runid", "run"}, optional: true},
}

// columnIndex 字段名 -> 列号
type columnIndex map[string]int

func normalizeHeader(header []string) columnIndex {
	idx := columnIndex{}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for _, f := range recipientSchema {
			if _, seen := idx[f.name]; seen {
				continue
			}
			for _, alias := range f.aliases {
				if name == alias {
					idx[f.name] = i
				}
			}
		}
	}
	return idx
}

func (c columnIndex) complete() bool {
	for _, f := range recipientSchema {
		if _, ok := c[f.name]; !ok && !f.optional {
			return false
		}
	}
	return true
}

func (c columnIndex) value(record []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// LoadEntries 读取分发记录。必须有包含 wallet 和 tokens 的表头，
// 唯一例外是首格即为地址的无表头导出文件
func LoadEntries(r io.Reader) ([]Entry, []SkippedRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, errors.New(errors.ErrCSVLoad, "failed to parse CSV header", err)
	}

	cols := normalizeHeader(header)

	var entries []Entry
	var skipped []SkippedRow
	accept := func(record []string, line int) {
		if isBlank(record) {
			return
		}
		wallet := cols.value(record, "wallet")
		amount := cols.value(record, "tokens")
		if wallet == "" || amount == "" {
			logger.WithFields(map[string]interface{}{
				"line":   line,
				"record": record,
			}).Warn("Skipping invalid record")
			skipped = append(skipped, SkippedRow{Line: line, Record: record})
			return
		}
		entries = append(entries, Entry{
			Line:   line,
			Wallet: wallet,
			Amount: amount,
			RunID:  cols.value(record, "run_id"),
		})
	}

	if !cols.complete() {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
		if !common.IsHexAddress(strings.TrimSpace(header[0])) {
			return nil, nil, errors.New(errors.ErrCSVLoad,
				fmt.Sprintf("CSV header must contain wallet/address and tokens/amount columns, got %v", header), nil)
		}
		// 后台导出的文件没有表头，按 wallet,tokens[,run_id] 的列顺序读取
		cols = columnIndex{"wallet": 0, "tokens": 1, "run_id": 2}
		accept(header, 1)
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errors.New(errors.ErrCSVLoad, "failed to parse CSV", err)
		}
		line, _ := reader.FieldPos(0)
		accept(record, line)
	}

	return entries, skipped, nil
}

func LoadEntriesFile(path string) ([]Entry, []SkippedRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.New(errors.ErrCSVLoad, fmt.Sprintf("cannot open %s", path), err)
	}
	defer f.Close()
	return LoadEntries(f)
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
