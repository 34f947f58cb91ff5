package blockchain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"fyts-validation/internal/config"
	"fyts-validation/pkg/errors"
	"fyts-validation/pkg/logger"
)

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function","stateMutability":"view"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function","stateMutability":"nonpayable"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function","stateMutability":"view"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function","stateMutability":"view"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Transfer","type":"event"}
]`

type Client struct {
	chainCfg  *config.ChainConfig
	client    *ethclient.Client
	token     *bind.BoundContract
	tokenAddr common.Address
	key       *ecdsa.PrivateKey
	signer    common.Address
	chainID   *big.Int
}

// NewClient 连接 RPC 并绑定代币合约，私钥为空时只能做只读调用
func NewClient(ctx context.Context, chainCfg *config.ChainConfig) (*Client, error) {
	if !common.IsHexAddress(chainCfg.TokenAddress) {
		return nil, errors.New(errors.ErrInvalidAddress,
			fmt.Sprintf("代币合约地址无效: %s", chainCfg.TokenAddress), nil)
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, errors.New(errors.ErrContractCall, "解析ERC20 ABI失败", err)
	}

	var key *ecdsa.PrivateKey
	if chainCfg.PrivateKey != "" {
		key, err = crypto.HexToECDSA(strings.TrimPrefix(chainCfg.PrivateKey, "0x"))
		if err != nil {
			return nil, errors.New(errors.ErrConfigLoad, "私钥格式无效", err)
		}
	}

	client, err := ethclient.DialContext(ctx, chainCfg.RPCURL)
	if err != nil {
		return nil, errors.New(errors.ErrRPConnect,
			fmt.Sprintf("连接RPC失败: %s", chainCfg.RPCURL), err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, errors.New(errors.ErrRPConnect, "获取链ID失败", err)
	}
	if chainCfg.ChainID != 0 && chainID.Uint64() != chainCfg.ChainID {
		client.Close()
		return nil, errors.New(errors.ErrRPConnect,
			fmt.Sprintf("链ID不匹配: 期望 %d, 实际 %s", chainCfg.ChainID, chainID), nil)
	}

	tokenAddr := common.HexToAddress(chainCfg.TokenAddress)
	c := &Client{
		chainCfg:  chainCfg,
		client:    client,
		token:     bind.NewBoundContract(tokenAddr, parsed, client, client, client),
		tokenAddr: tokenAddr,
		key:       key,
		chainID:   chainID,
	}
	if key != nil {
		c.signer = crypto.PubkeyToAddress(key.PublicKey)
	}

	logger.WithFields(map[string]interface{}{
		"chain":    chainCfg.Name,
		"chain_id": chainID.String(),
		"token":    tokenAddr.Hex(),
		"signer":   c.signer.Hex(),
	}).Info("已连接区块链节点")

	return c, nil
}

// Close 关闭区块链客户端连接
func (c *Client) Close() {
	c.client.Close()
}

func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

func (c *Client) Address() common.Address {
	return c.tokenAddr
}

func (c *Client) SignerAddress() common.Address {
	return c.signer
}

// NativeBalance 查询地址的原生币余额（用于支付 gas）
func (c *Client) NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	balance, err := c.client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, errors.New(errors.ErrContractCall, "查询原生币余额失败", err)
	}
	return balance, nil
}

func (c *Client) Symbol(ctx context.Context) (string, error) {
	out, err := c.call(ctx, "symbol")
	if err != nil {
		return "", err
	}
	symbol, ok := out[0].(string)
	if !ok {
		return "", errors.New(errors.ErrContractCall, "symbol 返回类型异常", nil)
	}
	return symbol, nil
}

func (c *Client) Decimals(ctx context.Context) (uint8, error) {
	out, err := c.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return 0, errors.New(errors.ErrContractCall, "decimals 返回类型异常", nil)
	}
	return decimals, nil
}

// BalanceOf 查询代币余额（最小单位）
func (c *Client) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	out, err := c.call(ctx, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.New(errors.ErrContractCall, "balanceOf 返回类型异常", nil)
	}
	return balance, nil
}

// Transfer 从签名账户向 to 发送 amount（最小单位），只负责提交交易
func (c *Client) Transfer(ctx context.Context, to common.Address, amount *big.Int) (*types.Transaction, error) {
	if c.key == nil {
		return nil, errors.New(errors.ErrTransfer, "未配置签名私钥", nil)
	}

	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, errors.New(errors.ErrTransfer, "创建交易签名器失败", err)
	}
	opts.Context = ctx

	tx, err := c.token.Transact(opts, "transfer", to, amount)
	if err != nil {
		return nil, errors.New(errors.ErrTransfer, "提交transfer交易失败", err)
	}
	return tx, nil
}

// WaitConfirmed 等待交易被打包（一个确认），超时或执行失败都返回错误
func (c *Client) WaitConfirmed(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	timeout := c.chainCfg.ConfirmTimeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, c.client, tx)
	if err != nil {
		return nil, errors.New(errors.ErrTransfer,
			fmt.Sprintf("等待交易确认失败: %s", tx.Hash().Hex()), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, errors.New(errors.ErrTransfer,
			fmt.Sprintf("交易执行失败(reverted): %s", tx.Hash().Hex()), nil)
	}
	return receipt, nil
}

func (c *Client) call(ctx context.Context, method string, params ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := c.token.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, errors.New(errors.ErrContractCall, fmt.Sprintf("调用合约方法 %s 失败", method), err)
	}
	if len(out) == 0 {
		return nil, errors.New(errors.ErrContractCall, fmt.Sprintf("合约方法 %s 无返回值", method), nil)
	}
	return out, nil
}
