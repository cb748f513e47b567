package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"volumebot/internal/config"
	"volumebot/internal/execution"
	"volumebot/internal/funding"
	"volumebot/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := store.NewSQLite(config.DatabaseConfig{InMemory: true, MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("打开内存数据库失败: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	svc, err := NewService(context.Background(), st, nil)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	return svc
}

func TestService_RecordAndListByType(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	wallet := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

	svc.RecordWallets(ctx, []common.Address{wallet}, true, "data/wallets.json")
	svc.RecordSwap(ctx, execution.SwapResult{
		Direction: execution.DirectionBuy,
		Wallet:    wallet,
		AmountIn:  big.NewInt(5_000_000_000_000_000),
		TxHash:    common.HexToHash("0x01"),
		Attempts:  1,
	})
	svc.RecordSwapFailure(ctx, execution.DirectionSell, wallet, big.NewInt(42), errors.New("execution reverted"))

	all, err := svc.ListEvents(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	if all[0].Type != EventSwapFailure {
		t.Errorf("expected newest event first, got %s", all[0].Type)
	}
	for _, ev := range all {
		if ev.RunID != svc.RunID() {
			t.Errorf("expected run id %s, got %s", svc.RunID(), ev.RunID)
		}
	}

	swaps, err := svc.ListEvents(ctx, EventSwap, 10)
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	if len(swaps) != 1 {
		t.Fatalf("expected 1 swap event, got %d", len(swaps))
	}

	var payload SwapPayload
	if err := json.Unmarshal(swaps[0].Payload.(json.RawMessage), &payload); err != nil {
		t.Fatalf("解析 payload 失败: %v", err)
	}
	if payload.Result.Wallet != wallet {
		t.Errorf("unexpected wallet %s", payload.Result.Wallet.Hex())
	}
	if payload.Result.AmountIn.String() != "5000000000000000" {
		t.Errorf("unexpected amount_in %s", payload.Result.AmountIn)
	}
}

func TestService_RecordFundingWithError(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	report := funding.Report{Kind: funding.KindFund, Total: big.NewInt(10)}
	svc.RecordFunding(ctx, report, errors.New("nonce too low"))

	events, err := svc.ListEvents(ctx, EventFunding, 0)
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 funding event, got %d", len(events))
	}

	var payload TransferPayload
	if err := json.Unmarshal(events[0].Payload.(json.RawMessage), &payload); err != nil {
		t.Fatalf("解析 payload 失败: %v", err)
	}
	if payload.Error != "nonce too low" {
		t.Errorf("unexpected error %q", payload.Error)
	}
	if payload.Report.Total.Int64() != 10 {
		t.Errorf("unexpected total %s", payload.Report.Total)
	}
}

func TestService_ListLimit(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		svc.RecordError(ctx, "tick", errors.New("boom"), map[string]interface{}{"i": i})
	}

	events, err := svc.ListEvents(ctx, EventError, 2)
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
}

func TestNewService_RequiresStore(t *testing.T) {
	if _, err := NewService(context.Background(), nil, nil); err == nil {
		t.Fatalf("expected error for nil store")
	}
}
