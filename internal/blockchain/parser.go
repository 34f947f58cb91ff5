package blockchain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// TransferEventSig ERC-20 Transfer 事件的 topic[0]
var TransferEventSig = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

type TransferEvent struct {
	Token    common.Address
	From     common.Address
	To       common.Address
	Value    *big.Int
	TxHash   string
	BlockNum int64
}

func ParseTransferLog(log types.Log) (*TransferEvent, error) {
	if len(log.Topics) < 3 || log.Topics[0] != TransferEventSig {
		return nil, ErrInvalidLogFormat
	}

	from := common.BytesToAddress(log.Topics[1].Bytes())
	to := common.BytesToAddress(log.Topics[2].Bytes())

	value := new(big.Int)
	if len(log.Data) > 0 {
		value.SetBytes(log.Data)
	}

	return &TransferEvent{
		Token:    log.Address,
		From:     from,
		To:       to,
		Value:    value,
		TxHash:   log.TxHash.Hex(),
		BlockNum: int64(log.BlockNumber),
	}, nil
}

// ReceiptHasTransfer 检查回执中是否包含指定代币向 to 转账 value 的事件
func ReceiptHasTransfer(receipt *types.Receipt, token, to common.Address, value *big.Int) bool {
	if receipt == nil {
		return false
	}
	for _, l := range receipt.Logs {
		if l == nil || l.Address != token {
			continue
		}
		event, err := ParseTransferLog(*l)
		if err != nil {
			continue
		}
		if event.To == to && event.Value.Cmp(value) == 0 {
			return true
		}
	}
	return false
}

// NewTransferLog 构造标准代币执行 transfer(to, value) 时产生的日志
func NewTransferLog(token, from, to common.Address, value *big.Int) *types.Log {
	return &types.Log{
		Address: token,
		Topics: []common.Hash{
			TransferEventSig,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: common.LeftPadBytes(value.Bytes(), 32),
	}
}

var ErrInvalidLogFormat = &InvalidLogFormatError{}

type InvalidLogFormatError struct{}

func (e *InvalidLogFormatError) Error() string {
	return "invalid log format: not an ERC-20 Transfer event"
}
