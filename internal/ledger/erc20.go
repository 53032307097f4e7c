package ledger

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// 只需要 transfer 和 balanceOf
const erc20ABIJSON = `[
	{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"}
]`

var erc20ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

func packTransfer(to common.Address, value *big.Int) ([]byte, error) {
	return erc20ABI.Pack("transfer", to, value)
}

func packBalanceOf(owner common.Address) ([]byte, error) {
	return erc20ABI.Pack("balanceOf", owner)
}

func unpackBalance(data []byte) (*big.Int, error) {
	out, err := erc20ABI.Unpack("balanceOf", data)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unexpected balanceOf output: %v", out)
	}
	bal, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf type %T", out[0])
	}
	return bal, nil
}
