package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"volumebot/internal/config"
)

const transferGasLimit = 21000

// Client 封装 EVM 节点、路由合约与 ERC-20 调用。
// 所有写操作都会等待交易回执后才返回。
type Client struct {
	eth            *ethclient.Client
	chainID        *big.Int
	routerAddr     common.Address
	routerABI      abi.ABI
	erc20ABI       abi.ABI
	router         *bind.BoundContract
	receiptTimeout time.Duration
	logger         *zap.Logger
}

// Dial 连接 RPC 节点并初始化合约绑定；chain_id 为 0 时向节点查询。
func Dial(ctx context.Context, cfg config.ChainConfig, router common.Address, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	routerABI, erc20ABI, err := parseABIs()
	if err != nil {
		return nil, err
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("连接 RPC 节点失败: %w", err)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		chainID, err = eth.ChainID(ctx)
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("查询 chain id 失败: %w", err)
		}
	}

	timeout := cfg.ReceiptTimeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}

	logger.Info("已连接链节点",
		zap.String("chain_id", chainID.String()),
		zap.String("router", router.Hex()),
	)

	return &Client{
		eth:            eth,
		chainID:        chainID,
		routerAddr:     router,
		routerABI:      routerABI,
		erc20ABI:       erc20ABI,
		router:         bind.NewBoundContract(router, routerABI, eth, eth, eth),
		receiptTimeout: timeout,
		logger:         logger,
	}, nil
}

// Close 关闭 RPC 连接。
func (c *Client) Close() {
	c.eth.Close()
}

// Router 返回路由合约地址。
func (c *Client) Router() common.Address {
	return c.routerAddr
}

// Balance 查询原生币余额（wei）。
func (c *Client) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	bal, err := c.eth.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("查询余额失败 %s: %w", addr.Hex(), err)
	}
	return bal, nil
}

// TokenBalance 查询 ERC-20 余额。
func (c *Client) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	v, err := c.callUint256(ctx, c.token(token), methodBalanceOf, owner)
	if err != nil {
		return nil, fmt.Errorf("balanceOf(%s): %w", owner.Hex(), err)
	}
	return v, nil
}

// Allowance 查询 ERC-20 授权额度。
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	v, err := c.callUint256(ctx, c.token(token), methodAllowance, owner, spender)
	if err != nil {
		return nil, fmt.Errorf("allowance(%s,%s): %w", owner.Hex(), spender.Hex(), err)
	}
	return v, nil
}

// Approve 授权 spender 使用 amount 数量的代币并等待确认。
func (c *Client) Approve(ctx context.Context, key *ecdsa.PrivateKey, token, spender common.Address, amount *big.Int) (*types.Receipt, error) {
	opts, err := c.transactor(ctx, key, nil)
	if err != nil {
		return nil, err
	}
	tx, err := c.token(token).Transact(opts, methodApprove, spender, amount)
	if err != nil {
		return nil, fmt.Errorf("提交 approve 失败: %w", err)
	}
	return c.wait(ctx, tx)
}

// AmountsOut 查询沿 path 兑换 amountIn 的预期输出序列。
func (c *Client) AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	var out []interface{}
	if err := c.router.Call(&bind.CallOpts{Context: ctx}, &out, methodGetAmountsOut, amountIn, path); err != nil {
		return nil, fmt.Errorf("getAmountsOut: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("getAmountsOut: %w", ErrEmptyResult)
	}
	amounts, ok := out[0].([]*big.Int)
	if !ok || len(amounts) == 0 {
		return nil, fmt.Errorf("getAmountsOut: unexpected result %T: %w", out[0], ErrEmptyResult)
	}
	return amounts, nil
}

// SwapExactETHForTokens 以 value 的原生币买入代币并等待确认。
func (c *Client) SwapExactETHForTokens(ctx context.Context, key *ecdsa.PrivateKey, value, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) (*types.Receipt, error) {
	opts, err := c.transactor(ctx, key, value)
	if err != nil {
		return nil, err
	}
	tx, err := c.router.Transact(opts, methodSwapExactETHForTokens, amountOutMin, path, to, deadline)
	if err != nil {
		return nil, fmt.Errorf("提交 swapExactETHForTokens 失败: %w", err)
	}
	return c.wait(ctx, tx)
}

// SwapExactTokensForETH 卖出 amountIn 数量的代币换回原生币并等待确认。
func (c *Client) SwapExactTokensForETH(ctx context.Context, key *ecdsa.PrivateKey, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) (*types.Receipt, error) {
	opts, err := c.transactor(ctx, key, nil)
	if err != nil {
		return nil, err
	}
	tx, err := c.router.Transact(opts, methodSwapExactTokensForETH, amountIn, amountOutMin, path, to, deadline)
	if err != nil {
		return nil, fmt.Errorf("提交 swapExactTokensForETH 失败: %w", err)
	}
	return c.wait(ctx, tx)
}

// Transfer 发送原生币转账并等待确认。
func (c *Client) Transfer(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, value *big.Int) (*types.Receipt, error) {
	from := crypto.PubkeyToAddress(key.PublicKey)

	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("查询 nonce 失败 %s: %w", from.Hex(), err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询 gas price 失败: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      transferGasLimit,
		GasPrice: gasPrice,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), key)
	if err != nil {
		return nil, fmt.Errorf("签名转账失败: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("发送转账失败: %w", err)
	}

	c.logger.Debug("转账已广播",
		zap.String("from", from.Hex()),
		zap.String("to", to.Hex()),
		zap.String("tx", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
	)
	return c.wait(ctx, signed)
}

func (c *Client) token(addr common.Address) *bind.BoundContract {
	return bind.NewBoundContract(addr, c.erc20ABI, c.eth, c.eth, c.eth)
}

func (c *Client) transactor(ctx context.Context, key *ecdsa.PrivateKey, value *big.Int) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("创建签名器失败: %w", err)
	}
	opts.Context = ctx
	opts.Value = value
	return opts, nil
}

func (c *Client) callUint256(ctx context.Context, contract *bind.BoundContract, method string, args ...interface{}) (*big.Int, error) {
	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrEmptyResult
	}
	v, ok := out[0].(*big.Int)
	if !ok || v == nil {
		return nil, fmt.Errorf("unexpected result %T: %w", out[0], ErrEmptyResult)
	}
	return v, nil
}

func (c *Client) wait(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, c.eth, tx)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, tx.Hash().Hex())
		}
		return nil, fmt.Errorf("等待回执失败 %s: %w", tx.Hash().Hex(), err)
	}
	if err := checkReceipt(receipt); err != nil {
		return receipt, err
	}
	return receipt, nil
}

func checkReceipt(receipt *types.Receipt) error {
	if receipt == nil {
		return fmt.Errorf("receipt missing: %w", ErrEmptyResult)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: %s", ErrReverted, receipt.TxHash.Hex())
	}
	return nil
}
