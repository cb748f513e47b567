package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// routerABIJSON 仅包含 Uniswap V2 路由中用到的方法。
const routerABIJSON = `[
  {"name":"getAmountsOut","type":"function","stateMutability":"view",
   "inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],
   "outputs":[{"name":"amounts","type":"uint256[]"}]},
  {"name":"swapExactETHForTokens","type":"function","stateMutability":"payable",
   "inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],
   "outputs":[{"name":"amounts","type":"uint256[]"}]},
  {"name":"swapExactTokensForETH","type":"function","stateMutability":"nonpayable",
   "inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],
   "outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

const erc20ABIJSON = `[
  {"name":"balanceOf","type":"function","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"name":"allowance","type":"function","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"name":"approve","type":"function","stateMutability":"nonpayable",
   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]}
]`

const (
	methodGetAmountsOut         = "getAmountsOut"
	methodSwapExactETHForTokens = "swapExactETHForTokens"
	methodSwapExactTokensForETH = "swapExactTokensForETH"
	methodBalanceOf             = "balanceOf"
	methodAllowance             = "allowance"
	methodApprove               = "approve"
)

func parseABIs() (router abi.ABI, erc20 abi.ABI, err error) {
	router, err = abi.JSON(strings.NewReader(routerABIJSON))
	if err != nil {
		return abi.ABI{}, abi.ABI{}, fmt.Errorf("解析路由 ABI 失败: %w", err)
	}
	erc20, err = abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return abi.ABI{}, abi.ABI{}, fmt.Errorf("解析 ERC-20 ABI 失败: %w", err)
	}
	return router, erc20, nil
}
