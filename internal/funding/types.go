package funding

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Kind 区分注资与回收。
type Kind string

const (
	KindFund    Kind = "fund"
	KindCollect Kind = "collect"
)

// Transfer 为一笔已确认的转账。
type Transfer struct {
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount"`
	TxHash common.Hash    `json:"tx_hash"`
	TxURL  string         `json:"tx_url"`
}

// Report 汇总一次注资或回收。
type Report struct {
	Kind      Kind             `json:"kind"`
	Transfers []Transfer       `json:"transfers"`
	Total     *big.Int         `json:"total"`
	Skipped   []common.Address `json:"skipped,omitempty"`
	Failed    []common.Address `json:"failed,omitempty"`
}

func newReport(kind Kind) Report {
	return Report{Kind: kind, Total: new(big.Int)}
}

func (r *Report) add(t Transfer) {
	r.Transfers = append(r.Transfers, t)
	r.Total.Add(r.Total, t.Amount)
}
