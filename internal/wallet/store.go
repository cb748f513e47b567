package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrMalformedStore 表示钱包文件存在但内容无法还原。
var ErrMalformedStore = errors.New("malformed wallet store")

type record struct {
	Address    string `json:"address"`
	PrivateKey string `json:"privateKey"`
}

// FileStore 以 JSON 数组持久化钱包 {address, privateKey}。
type FileStore struct {
	path string
}

// NewFileStore 创建文件存储。
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

// Exists 仅以文件是否存在判断走加载还是创建路径，不校验内容。
func (s *FileStore) Exists() (bool, error) {
	_, err := os.Stat(s.path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("检查钱包文件失败 %s: %w", s.path, err)
}

// Persist 整体覆盖写入钱包列表，先写临时文件再原子替换。
func (s *FileStore) Persist(wallets []*Wallet) error {
	records := make([]record, 0, len(wallets))
	for _, w := range wallets {
		records = append(records, record{
			Address:    w.Address().Hex(),
			PrivateKey: w.PrivateKeyHex(),
		})
	}

	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化钱包失败: %w", err)
	}
	b = append(b, '\n')

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("创建钱包目录失败: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("写入钱包文件失败: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("替换钱包文件失败: %w", err)
	}
	return nil
}

// Load 读取并还原钱包列表，保持文件中的顺序。
func (s *FileStore) Load() ([]*Wallet, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("读取钱包文件失败 %s: %w", s.path, err)
	}

	var records []record
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedStore, s.path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s: 钱包列表为空", ErrMalformedStore, s.path)
	}

	wallets := make([]*Wallet, 0, len(records))
	for i, rec := range records {
		w, err := FromHex(rec.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("%w: 第 %d 条记录: %v", ErrMalformedStore, i, err)
		}
		if addr := strings.TrimSpace(rec.Address); addr != "" {
			if !common.IsHexAddress(addr) || common.HexToAddress(addr) != w.Address() {
				return nil, fmt.Errorf("%w: 第 %d 条记录地址与私钥不匹配: %s", ErrMalformedStore, i, addr)
			}
		}
		wallets = append(wallets, w)
	}
	return wallets, nil
}
