package sampler

import (
	"math"
	"math/big"
	"math/rand/v2"
)

// Steps 为金额区间的量化档位数。
const Steps = 100

// MaxBuyTarget 为每轮卖出前最多买入的次数。
const MaxBuyTarget = 3

// Source 为随机数来源，*rand.Rand 满足该接口。
type Source interface {
	Float64() float64
	IntN(n int) int
}

type processSource struct{}

func (processSource) Float64() float64 { return rand.Float64() }
func (processSource) IntN(n int) int   { return rand.IntN(n) }

// Sampler 生成随机交易金额与买入目标次数。
type Sampler struct {
	src Source
}

// New 使用给定随机源创建采样器，src 为空时使用进程级随机源（不可复现）。
func New(src Source) *Sampler {
	if src == nil {
		src = processSource{}
	}
	return &Sampler{src: src}
}

// Sample 在 [min, max] 内按 (max-min)/100 的粒度返回随机金额。
// 档位向下取整，只有随机数落在最高档时才会等于 max。
func (s *Sampler) Sample(min, max *big.Int) *big.Int {
	span := new(big.Int).Sub(max, min)
	if span.Sign() <= 0 {
		return new(big.Int).Set(min)
	}

	bucket := quantize(s.src.Float64())
	out := new(big.Int).Mul(span, big.NewInt(bucket))
	out.Quo(out, big.NewInt(Steps))
	return out.Add(out, min)
}

// BuyTarget 在 {1,2,3} 中均匀抽取。
func (s *Sampler) BuyTarget() int {
	return s.src.IntN(MaxBuyTarget) + 1
}

func quantize(f float64) int64 {
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f >= 1 {
		return Steps
	}
	return int64(math.Floor(f * Steps))
}
