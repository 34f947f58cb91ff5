package blockchain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fyts-validation/pkg/errors"
)

var (
	tokenAddr = common.HexToAddress("0x4058b5E8f569806C14D30eF5C7563a47D2248fb4")
	fromAddr  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	toAddr    = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestToBaseUnits(t *testing.T) {
	tenE18, _ := new(big.Int).SetString("10000000000000000000", 10)

	tests := []struct {
		name     string
		amount   string
		decimals uint8
		expected *big.Int
		wantErr  bool
	}{
		{"whole tokens at 18 decimals", "10", 18, tenE18, false},
		{"half token at 18 decimals", "0.5", 18, big.NewInt(500000000000000000), false},
		{"six decimals", "2.25", 6, big.NewInt(2250000), false},
		{"zero decimals", "3", 0, big.NewInt(3), false},
		{"too many fractional digits", "0.5", 0, nil, true},
		{"zero", "0", 18, nil, true},
		{"negative", "-1", 18, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToBaseUnits(decimal.RequireFromString(tt.amount), tt.decimals)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, errors.ErrInvalidAmount))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 0, tt.expected.Cmp(got), "got %s", got)
		})
	}
}

func TestFromBaseUnits(t *testing.T) {
	v, _ := new(big.Int).SetString("1234500000000000000000", 10)
	assert.Equal(t, "1234.5", FromBaseUnits(v, 18).String())
	assert.Equal(t, "0", FromBaseUnits(nil, 18).String())
	assert.Equal(t, "1234.5", FormatUnits(v, 18))
}

func TestParseTransferLog(t *testing.T) {
	log := NewTransferLog(tokenAddr, fromAddr, toAddr, big.NewInt(42))
	log.BlockNumber = 100

	event, err := ParseTransferLog(*log)
	require.NoError(t, err)
	assert.Equal(t, tokenAddr, event.Token)
	assert.Equal(t, fromAddr, event.From)
	assert.Equal(t, toAddr, event.To)
	assert.Equal(t, int64(42), event.Value.Int64())
	assert.Equal(t, int64(100), event.BlockNum)
}

func TestParseTransferLog_Invalid(t *testing.T) {
	_, err := ParseTransferLog(types.Log{Topics: []common.Hash{TransferEventSig}})
	assert.ErrorIs(t, err, ErrInvalidLogFormat)

	other := NewTransferLog(tokenAddr, fromAddr, toAddr, big.NewInt(1))
	other.Topics[0] = common.HexToHash("0x01")
	_, err = ParseTransferLog(*other)
	assert.ErrorIs(t, err, ErrInvalidLogFormat)
}

func TestReceiptHasTransfer(t *testing.T) {
	receipt := &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		Logs:   []*types.Log{NewTransferLog(tokenAddr, fromAddr, toAddr, big.NewInt(7))},
	}

	assert.True(t, ReceiptHasTransfer(receipt, tokenAddr, toAddr, big.NewInt(7)))
	assert.False(t, ReceiptHasTransfer(receipt, tokenAddr, toAddr, big.NewInt(8)))
	assert.False(t, ReceiptHasTransfer(receipt, tokenAddr, fromAddr, big.NewInt(7)))
	assert.False(t, ReceiptHasTransfer(receipt, toAddr, toAddr, big.NewInt(7)))
	assert.False(t, ReceiptHasTransfer(nil, tokenAddr, toAddr, big.NewInt(7)))
}
