package funding

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volumebot/internal/config"
	"volumebot/internal/wallet"
)

const milliEther = 1_000_000_000_000_000

func ether(milli int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(milli), big.NewInt(milliEther))
}

func TestFund_SendsAmountToEveryWallet(t *testing.T) {
	client := newFakeTransfers()
	ctrl := newTestController(t, client, config.FundingFailFast)
	wallets := addresses(t, 3)

	report, err := ctrl.Fund(context.Background(), wallets, ether(10))
	require.NoError(t, err)

	require.Len(t, client.sent, 3)
	for i, tr := range client.sent {
		assert.Equal(t, wallets[i], tr.to, "transfers keep wallet order")
		assert.Equal(t, ether(10), tr.value)
		assert.Equal(t, ctrl.Treasury(), tr.from)
	}
	assert.Equal(t, ether(30), report.Total, "total equals n × amount")
	assert.Len(t, report.Transfers, 3)
	assert.Empty(t, report.Failed)
}

func TestFund_FailFastStopsAfterFirstFailure(t *testing.T) {
	client := newFakeTransfers()
	wallets := addresses(t, 4)
	client.failTo[wallets[1]] = errors.New("insufficient funds for gas * price + value")
	ctrl := newTestController(t, client, config.FundingFailFast)

	report, err := ctrl.Fund(context.Background(), wallets, ether(10))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFundingFailed)

	assert.Len(t, client.sent, 1, "wallets after the failure are untouched")
	assert.Equal(t, []common.Address{wallets[1]}, report.Failed)
	assert.Equal(t, ether(10), report.Total)
}

func TestFund_BestEffortAggregatesFailures(t *testing.T) {
	client := newFakeTransfers()
	wallets := addresses(t, 4)
	client.failTo[wallets[0]] = errors.New("nonce too low")
	client.failTo[wallets[2]] = errors.New("replacement transaction underpriced")
	ctrl := newTestController(t, client, config.FundingBestEffort)

	report, err := ctrl.Fund(context.Background(), wallets, ether(10))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFundingFailed)
	assert.Contains(t, err.Error(), "nonce too low")
	assert.Contains(t, err.Error(), "replacement transaction underpriced")

	assert.Len(t, client.sent, 2)
	assert.Equal(t, []common.Address{wallets[0], wallets[2]}, report.Failed)
	assert.Equal(t, ether(20), report.Total)
}

func TestFund_RejectsZeroAmount(t *testing.T) {
	client := newFakeTransfers()
	ctrl := newTestController(t, client, config.FundingFailFast)

	_, err := ctrl.Fund(context.Background(), addresses(t, 1), big.NewInt(0))
	assert.ErrorIs(t, err, ErrFundingFailed)
	assert.Empty(t, client.sent)
}

func TestCollect_AppliesThresholdAndFeeBuffer(t *testing.T) {
	client := newFakeTransfers()
	ws := wallets(t, 4)
	client.balances[ws[0].Address()] = ether(10)                                     // 0.01 -> 0.008
	client.balances[ws[1].Address()] = ether(1)                                      // 0.001 不回收
	client.balances[ws[2].Address()] = new(big.Int).Add(ether(1), big.NewInt(1))     // 高于阈值但不足手续费
	client.balances[ws[3].Address()] = new(big.Int).Add(ether(2), big.NewInt(5_000)) // 0.002 + 5000 wei
	ctrl := newTestController(t, client, config.FundingFailFast)

	report, err := ctrl.Collect(context.Background(), ws)
	require.NoError(t, err)

	require.Len(t, client.sent, 2)
	assert.Equal(t, ether(8), client.sent[0].value)
	assert.Equal(t, ctrl.Treasury(), client.sent[0].to)
	assert.Equal(t, ws[0].Address(), client.sent[0].from)
	assert.Equal(t, big.NewInt(5_000), client.sent[1].value)

	assert.Equal(t, []common.Address{ws[1].Address(), ws[2].Address()}, report.Skipped)
	assert.Equal(t, new(big.Int).Add(ether(8), big.NewInt(5_000)), report.Total)
}

func TestCollect_AbortsOnFirstFailure(t *testing.T) {
	client := newFakeTransfers()
	ws := wallets(t, 3)
	for _, w := range ws {
		client.balances[w.Address()] = ether(10)
	}
	client.failFrom[ws[1].Address()] = errors.New("connection refused")
	ctrl := newTestController(t, client, config.FundingFailFast)

	report, err := ctrl.Collect(context.Background(), ws)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCollectFailed)

	assert.Len(t, client.sent, 1)
	assert.Equal(t, []common.Address{ws[1].Address()}, report.Failed)
}

func TestCollect_BalanceReadErrorAborts(t *testing.T) {
	client := newFakeTransfers()
	ws := wallets(t, 2)
	client.balanceErr = errors.New("rpc down")
	ctrl := newTestController(t, client, config.FundingFailFast)

	_, err := ctrl.Collect(context.Background(), ws)
	assert.ErrorIs(t, err, ErrCollectFailed)
	assert.Empty(t, client.sent)
}

func newTestController(t *testing.T, client *fakeTransfers, policy config.FundingPolicy) *Controller {
	t.Helper()
	treasury, err := wallet.New()
	require.NoError(t, err)
	return NewController(client, treasury, Options{
		Policy:      policy,
		MinTransfer: ether(1),
		FeeBuffer:   ether(2),
	}, nil)
}

func wallets(t *testing.T, n int) []*wallet.Wallet {
	t.Helper()
	ws, err := wallet.Generate(n)
	require.NoError(t, err)
	return ws
}

func addresses(t *testing.T, n int) []common.Address {
	t.Helper()
	return wallet.Addresses(wallets(t, n))
}

type sentTransfer struct {
	from  common.Address
	to    common.Address
	value *big.Int
}

type fakeTransfers struct {
	balances   map[common.Address]*big.Int
	balanceErr error
	failTo     map[common.Address]error
	failFrom   map[common.Address]error
	sent       []sentTransfer
}

func newFakeTransfers() *fakeTransfers {
	return &fakeTransfers{
		balances: make(map[common.Address]*big.Int),
		failTo:   make(map[common.Address]error),
		failFrom: make(map[common.Address]error),
	}
}

func (f *fakeTransfers) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	if b, ok := f.balances[addr]; ok {
		return b, nil
	}
	return new(big.Int), nil
}

func (f *fakeTransfers) Transfer(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, value *big.Int) (*types.Receipt, error) {
	from := crypto.PubkeyToAddress(key.PublicKey)
	if err := f.failTo[to]; err != nil {
		return nil, err
	}
	if err := f.failFrom[from]; err != nil {
		return nil, err
	}
	f.sent = append(f.sent, sentTransfer{from: from, to: to, value: value})
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: common.BigToHash(big.NewInt(int64(len(f.sent))))}, nil
}
