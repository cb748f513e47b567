package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Wallet 为一个临时交易钱包，地址由私钥推导，创建后不可变。
type Wallet struct {
	address common.Address
	key     *ecdsa.PrivateKey
}

// New 生成一个独立随机私钥的钱包（crypto/rand）。
func New() (*Wallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("生成私钥失败: %w", err)
	}
	return FromKey(key), nil
}

// FromKey 由私钥构造钱包。
func FromKey(key *ecdsa.PrivateKey) *Wallet {
	return &Wallet{
		address: crypto.PubkeyToAddress(key.PublicKey),
		key:     key,
	}
}

// FromHex 由十六进制私钥构造钱包，允许 0x 前缀。
func FromHex(hexKey string) (*Wallet, error) {
	s := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(s)
	if err != nil {
		return nil, fmt.Errorf("私钥格式无效: %w", err)
	}
	return FromKey(key), nil
}

// Generate 生成 n 个钱包，每个钱包的私钥独立采样。
func Generate(n int) ([]*Wallet, error) {
	if n <= 0 {
		return nil, fmt.Errorf("钱包数量必须大于0: %d", n)
	}
	out := make([]*Wallet, 0, n)
	for i := 0; i < n; i++ {
		w, err := New()
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func (w *Wallet) Address() common.Address { return w.address }

func (w *Wallet) PrivateKey() *ecdsa.PrivateKey { return w.key }

// PrivateKeyHex 返回 0x 前缀的私钥十六进制串。
func (w *Wallet) PrivateKeyHex() string {
	return hexutil.Encode(crypto.FromECDSA(w.key))
}

// Addresses 提取钱包地址列表。
func Addresses(wallets []*Wallet) []common.Address {
	out := make([]common.Address, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, w.address)
	}
	return out
}
