package execution

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var testTokens = Tokens{
	Native:       common.HexToAddress("0x0000000000000000000000000000000000000001"),
	Intermediate: common.HexToAddress("0x0000000000000000000000000000000000000002"),
	Target:       common.HexToAddress("0x0000000000000000000000000000000000000003"),
}

func TestAmountOutMin_TruncatesSlippage(t *testing.T) {
	cases := []struct {
		expected int64
		bps      int64
		want     int64
	}{
		{expected: 1000, bps: 1000, want: 900},
		{expected: 1009, bps: 1000, want: 909}, // 1009 - 100
		{expected: 9, bps: 1000, want: 9},
		{expected: 12345, bps: 50, want: 12284}, // 12345 - 61
		{expected: 0, bps: 1000, want: 0},
	}

	for _, tc := range cases {
		got := AmountOutMin(big.NewInt(tc.expected), tc.bps)
		if got.Int64() != tc.want {
			t.Errorf("AmountOutMin(%d, %d) = %s, want %d", tc.expected, tc.bps, got, tc.want)
		}
		// 默认 1000 bps 与 expected - expected/10 一致。
		if tc.bps == 1000 {
			alt := tc.expected - tc.expected/10
			if got.Int64() != alt {
				t.Errorf("AmountOutMin(%d) = %s, want expected-expected/10 = %d", tc.expected, got, alt)
			}
		}
	}
}

func TestTokensPath(t *testing.T) {
	buy := testTokens.Path(DirectionBuy)
	sell := testTokens.Path(DirectionSell)
	if buy[0] != testTokens.Native || buy[1] != testTokens.Intermediate || buy[2] != testTokens.Target {
		t.Errorf("unexpected buy path %v", buy)
	}
	if sell[0] != testTokens.Target || sell[1] != testTokens.Intermediate || sell[2] != testTokens.Native {
		t.Errorf("unexpected sell path %v", sell)
	}
}

func TestExecute_BuySuccess(t *testing.T) {
	client := newFakeRouter()
	exec := newTestExecutor(client, 3)
	start := time.Unix(1_700_000_000, 0)
	exec.now = func() time.Time { return start }

	signer := newSigner(t)
	res, err := exec.Execute(context.Background(), DirectionBuy, signer, big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if res.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", res.Attempts)
	}
	if res.AmountOutMin.Int64() != 1800 {
		t.Errorf("expected amountOutMin 1800, got %s", res.AmountOutMin)
	}
	if res.Wallet != signer.Address() {
		t.Errorf("unexpected wallet %s", res.Wallet.Hex())
	}
	if res.TxURL != "https://explorer/tx/"+client.hash.Hex() {
		t.Errorf("unexpected tx url %s", res.TxURL)
	}
	if len(client.buys) != 1 {
		t.Fatalf("expected 1 buy call, got %d", len(client.buys))
	}
	call := client.buys[0]
	if call.value.Int64() != 1_000_000 {
		t.Errorf("expected value 1000000, got %s", call.value)
	}
	if call.to != signer.Address() {
		t.Errorf("expected recipient to be the wallet")
	}
	if call.deadline.Int64() != start.Add(480*time.Second).Unix() {
		t.Errorf("expected deadline now+480s, got %s", call.deadline)
	}
	if len(client.approvals) != 0 {
		t.Errorf("buy must not approve")
	}
}

func TestExecute_DeadlineComputedAtSubmission(t *testing.T) {
	client := newFakeRouter()
	exec := newTestExecutor(client, 3)

	now := time.Unix(1_700_000_000, 0)
	exec.now = func() time.Time { return now }
	// 报价耗时 30 秒。
	client.onQuote = func() { now = now.Add(30 * time.Second) }

	if _, err := exec.Execute(context.Background(), DirectionBuy, newSigner(t), big.NewInt(10)); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	want := time.Unix(1_700_000_030, 0).Add(480 * time.Second).Unix()
	if got := client.buys[0].deadline.Int64(); got != want {
		t.Errorf("expected deadline %d, got %d", want, got)
	}
}

func TestExecute_RetriesAtMostMaxAttempts(t *testing.T) {
	client := newFakeRouter()
	client.swapErr = []error{errors.New("nonce too low"), errors.New("nonce too low"), errors.New("nonce too low"), nil}
	exec := newTestExecutor(client, 3)

	_, err := exec.Execute(context.Background(), DirectionBuy, newSigner(t), big.NewInt(10))
	if err == nil {
		t.Fatalf("expected error after retries")
	}
	if !errors.Is(err, ErrSwapFailed) {
		t.Errorf("expected ErrSwapFailed, got %v", err)
	}
	if len(client.buys) != 3 {
		t.Errorf("expected exactly 3 swap submissions, got %d", len(client.buys))
	}
	if client.quotes != 3 {
		t.Errorf("expected a fresh quote per attempt, got %d", client.quotes)
	}
}

func TestExecute_SucceedsAfterRetry(t *testing.T) {
	client := newFakeRouter()
	client.swapErr = []error{errors.New("connection reset by peer")}
	exec := newTestExecutor(client, 3)

	res, err := exec.Execute(context.Background(), DirectionBuy, newSigner(t), big.NewInt(10))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if res.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", res.Attempts)
	}
}

func TestExecute_SellApprovesWhenAllowanceShort(t *testing.T) {
	client := newFakeRouter()
	client.allowance = big.NewInt(5)
	exec := newTestExecutor(client, 3)

	signer := newSigner(t)
	if _, err := exec.Execute(context.Background(), DirectionSell, signer, big.NewInt(500)); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if len(client.approvals) != 1 {
		t.Fatalf("expected 1 approval, got %d", len(client.approvals))
	}
	if client.approvals[0].Int64() != 500 {
		t.Errorf("expected approval of 500, got %s", client.approvals[0])
	}
	if len(client.sells) != 1 {
		t.Fatalf("expected 1 sell call, got %d", len(client.sells))
	}
	if client.sells[0].path[0] != testTokens.Target {
		t.Errorf("sell path must start at target token")
	}
}

func TestExecute_SellSkipsApprovalWhenSufficient(t *testing.T) {
	client := newFakeRouter()
	client.allowance = big.NewInt(500)
	exec := newTestExecutor(client, 3)

	if _, err := exec.Execute(context.Background(), DirectionSell, newSigner(t), big.NewInt(500)); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if len(client.approvals) != 0 {
		t.Errorf("expected no approval, got %d", len(client.approvals))
	}
}

func TestExecute_ApprovalFailureCountsAsAttempt(t *testing.T) {
	client := newFakeRouter()
	client.allowance = big.NewInt(0)
	client.approveErr = errors.New("execution reverted")
	exec := newTestExecutor(client, 3)

	_, err := exec.Execute(context.Background(), DirectionSell, newSigner(t), big.NewInt(500))
	if !errors.Is(err, ErrSwapFailed) {
		t.Fatalf("expected ErrSwapFailed, got %v", err)
	}
	if len(client.approvals) != 3 {
		t.Errorf("expected 3 approval attempts, got %d", len(client.approvals))
	}
	if len(client.sells) != 0 {
		t.Errorf("swap must not be submitted after failed approval")
	}
}

func TestExecute_ContextCancelledDuringBackoff(t *testing.T) {
	client := newFakeRouter()
	client.swapErr = []error{errors.New("timeout")}
	exec := NewExecutor(client, testTokens, Options{MaxAttempts: 3, RetryDelay: time.Hour, SlippageBps: 1000}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	client.onSwap = cancel

	_, err := exec.Execute(ctx, DirectionBuy, newSigner(t), big.NewInt(10))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(client.buys) != 1 {
		t.Errorf("expected no retry after cancel, got %d submissions", len(client.buys))
	}
}

func TestExecute_RejectsEmptyAmount(t *testing.T) {
	exec := newTestExecutor(newFakeRouter(), 3)
	if _, err := exec.Execute(context.Background(), DirectionBuy, newSigner(t), big.NewInt(0)); !errors.Is(err, ErrSwapFailed) {
		t.Fatalf("expected ErrSwapFailed for zero amount, got %v", err)
	}
}

func newTestExecutor(client *fakeRouter, attempts int) *Executor {
	return NewExecutor(client, testTokens, Options{
		MaxAttempts: attempts,
		SlippageBps: 1000,
		Deadline:    480 * time.Second,
		TxURL:       func(hash string) string { return "https://explorer/tx/" + hash },
	}, nil)
}

type testSigner struct {
	key *ecdsa.PrivateKey
}

func newSigner(t *testing.T) testSigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("生成私钥失败: %v", err)
	}
	return testSigner{key: key}
}

func (s testSigner) Address() common.Address       { return crypto.PubkeyToAddress(s.key.PublicKey) }
func (s testSigner) PrivateKey() *ecdsa.PrivateKey { return s.key }

type swapCall struct {
	value    *big.Int
	minOut   *big.Int
	path     []common.Address
	to       common.Address
	deadline *big.Int
}

type fakeRouter struct {
	router     common.Address
	hash       common.Hash
	allowance  *big.Int
	approveErr error
	swapErr    []error
	quotes     int
	approvals  []*big.Int
	buys       []swapCall
	sells      []swapCall
	onQuote    func()
	onSwap     func()
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{
		router:    common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		hash:      common.HexToHash("0xbeef"),
		allowance: big.NewInt(0),
	}
}

func (f *fakeRouter) Router() common.Address { return f.router }

func (f *fakeRouter) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return f.allowance, nil
}

func (f *fakeRouter) Approve(ctx context.Context, key *ecdsa.PrivateKey, token, spender common.Address, amount *big.Int) (*types.Receipt, error) {
	f.approvals = append(f.approvals, amount)
	if f.approveErr != nil {
		return nil, f.approveErr
	}
	f.allowance = amount
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func (f *fakeRouter) AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	f.quotes++
	if f.onQuote != nil {
		f.onQuote()
	}
	return []*big.Int{amountIn, big.NewInt(1), big.NewInt(2000)}, nil
}

func (f *fakeRouter) SwapExactETHForTokens(ctx context.Context, key *ecdsa.PrivateKey, value, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) (*types.Receipt, error) {
	f.buys = append(f.buys, swapCall{value: value, minOut: amountOutMin, path: path, to: to, deadline: deadline})
	return f.swapResult()
}

func (f *fakeRouter) SwapExactTokensForETH(ctx context.Context, key *ecdsa.PrivateKey, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) (*types.Receipt, error) {
	f.sells = append(f.sells, swapCall{value: amountIn, minOut: amountOutMin, path: path, to: to, deadline: deadline})
	return f.swapResult()
}

func (f *fakeRouter) swapResult() (*types.Receipt, error) {
	if f.onSwap != nil {
		f.onSwap()
	}
	if len(f.swapErr) > 0 {
		err := f.swapErr[0]
		f.swapErr = f.swapErr[1:]
		if err != nil {
			return nil, err
		}
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: f.hash}, nil
}
