package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"volumebot/internal/execution"
	"volumebot/internal/funding"
	"volumebot/internal/store"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS monitor_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_monitor_events_type ON monitor_events(event_type)`,
	`CREATE INDEX IF NOT EXISTS idx_monitor_events_run ON monitor_events(run_id)`,
}

// Service 负责持久化监控事件。每个进程生成一个 run id 区分不同运行。
type Service struct {
	db     *sql.DB
	runID  string
	logger *zap.Logger
}

// NewService 初始化监控服务，创建所需表结构。
func NewService(ctx context.Context, st *store.Store, logger *zap.Logger) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("monitor: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := st.Migrate(ctx, schema...); err != nil {
		return nil, fmt.Errorf("monitor: 初始化表失败: %w", err)
	}

	return &Service{
		db:     st.DB(),
		runID:  uuid.NewString(),
		logger: logger,
	}, nil
}

// RunID 返回本次运行的标识。
func (s *Service) RunID() string {
	return s.runID
}

// Record 写入单个事件。
func (s *Service) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("monitor: 序列化事件失败: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO monitor_events (run_id, event_type, payload, created_at) VALUES (?, ?, ?, ?)`,
		s.runID, string(event.Type), string(payload), event.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("monitor: 写入事件失败: %w", err)
	}

	return nil
}

func (s *Service) record(ctx context.Context, typ EventType, payload interface{}) {
	if err := s.Record(ctx, Event{Type: typ, Payload: payload}); err != nil {
		s.logger.Warn("记录监控事件失败", zap.String("type", string(typ)), zap.Error(err))
	}
}

// RecordWallets 记录钱包集合的来源。
func (s *Service) RecordWallets(ctx context.Context, addresses []common.Address, created bool, storePath string) {
	s.record(ctx, EventWallets, WalletsPayload{
		Created:   created,
		StorePath: storePath,
		Addresses: addresses,
	})
}

// RecordFunding 记录注资结果。
func (s *Service) RecordFunding(ctx context.Context, report funding.Report, err error) {
	s.record(ctx, EventFunding, transferPayload(report, err))
}

// RecordCollection 记录回收结果。
func (s *Service) RecordCollection(ctx context.Context, report funding.Report, err error) {
	s.record(ctx, EventCollection, transferPayload(report, err))
}

// RecordSwap 记录成功兑换。
func (s *Service) RecordSwap(ctx context.Context, result execution.SwapResult) {
	s.record(ctx, EventSwap, SwapPayload{Result: result})
}

// RecordSwapFailure 记录失败兑换。
func (s *Service) RecordSwapFailure(ctx context.Context, dir execution.Direction, wallet common.Address, amountIn *big.Int, err error) {
	payload := SwapFailurePayload{
		Direction: dir,
		Wallet:    wallet,
		Error:     errString(err),
	}
	if amountIn != nil {
		payload.AmountIn = amountIn.String()
	}
	s.record(ctx, EventSwapFailure, payload)
}

// RecordError 记录异常。
func (s *Service) RecordError(ctx context.Context, msg string, err error, ctxMap map[string]interface{}) {
	s.record(ctx, EventError, ErrorPayload{
		Message: msg,
		Error:   errString(err),
		Context: ctxMap,
	})
}

// ListEvents 按类型检索最近事件，eventType 为空时返回全部类型。
func (s *Service) ListEvents(ctx context.Context, eventType EventType, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT run_id, event_type, payload, created_at FROM monitor_events`
	args := make([]interface{}, 0, 2)
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("monitor: 查询事件失败: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var (
			runID   string
			typ     string
			payload string
			created string
		)
		if scanErr := rows.Scan(&runID, &typ, &payload, &created); scanErr != nil {
			return nil, fmt.Errorf("monitor: 解析事件失败: %w", scanErr)
		}

		ts, parseErr := time.Parse(time.RFC3339Nano, created)
		if parseErr != nil {
			ts = time.Now().UTC()
		}

		events = append(events, Event{
			RunID:     runID,
			Type:      EventType(typ),
			Timestamp: ts,
			Payload:   json.RawMessage(payload),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("monitor: 读取事件失败: %w", err)
	}

	return events, nil
}

func transferPayload(report funding.Report, err error) TransferPayload {
	return TransferPayload{Report: report, Error: errString(err)}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
