// Package amount 提供代币数量的定点整数表示。
//
// Amount 是以代币最小单位 (base unit) 计的无符号 256 位整数，和 ERC-20 的 uint256 一致。
// 浮点数只允许出现在 Parse 的输入边界上，之后所有手续费/分账运算都是精确的整数运算。
package amount

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// BpsDenominator 基点分母 (1% = 100 bps)
const BpsDenominator = 10000

var (
	ErrOverflow  = errors.New("amount overflow")
	ErrUnderflow = errors.New("amount underflow")
	ErrNegative  = errors.New("amount must not be negative")
	ErrPrecision = errors.New("amount has more fractional digits than the token precision")
	ErrFormat    = errors.New("invalid amount format")
	ErrBpsRange  = errors.New("basis points must not exceed 10000")
)

// Amount 代币数量 (最小单位)。零值即 0，可以直接按值传递。
type Amount struct {
	v uint256.Int
}

// Zero 返回 0
func Zero() Amount { return Amount{} }

// FromUint64 从 uint64 构造
func FromUint64(n uint64) Amount {
	var a Amount
	a.v.SetUint64(n)
	return a
}

// FromBig 从 *big.Int 构造，负数或超过 256 位时返回错误
func FromBig(b *big.Int) (Amount, error) {
	var a Amount
	if b == nil {
		return a, nil
	}
	if b.Sign() < 0 {
		return a, ErrNegative
	}
	if a.v.SetFromBig(b) {
		return Amount{}, ErrOverflow
	}
	return a, nil
}

// FromBaseUnits 解析最小单位的十进制整数字符串 (例如 "1000000000000000000")
func FromBaseUnits(s string) (Amount, error) {
	var a Amount
	if err := a.v.SetFromDecimal(s); err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrFormat, s)
	}
	return a, nil
}

// Parse 把用户输入的十进制字符串 (例如 "12.5") 按 decimals 精度转换为最小单位。
// 这是唯一允许出现小数的入口。
func Parse(s string, decimals int32) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrFormat, s)
	}
	if d.IsNegative() {
		return Amount{}, ErrNegative
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return Amount{}, ErrPrecision
	}
	return FromBig(scaled.BigInt())
}

// Add 精确加法
func (a Amount) Add(b Amount) (Amount, error) {
	var out Amount
	if _, overflow := out.v.AddOverflow(&a.v, &b.v); overflow {
		return Amount{}, ErrOverflow
	}
	return out, nil
}

// Sub 精确减法，结果为负时返回 ErrUnderflow
func (a Amount) Sub(b Amount) (Amount, error) {
	var out Amount
	if _, underflow := out.v.SubOverflow(&a.v, &b.v); underflow {
		return Amount{}, ErrUnderflow
	}
	return out, nil
}

// MulUint64 乘以一个整数
func (a Amount) MulUint64(n uint64) (Amount, error) {
	var out Amount
	if _, overflow := out.v.MulOverflow(&a.v, uint256.NewInt(n)); overflow {
		return Amount{}, ErrOverflow
	}
	return out, nil
}

// DivMod 向零截断的整数除法，返回商和余数。n 为 0 时 panic。
func (a Amount) DivMod(n uint64) (quo, rem Amount) {
	if n == 0 {
		panic("amount: division by zero")
	}
	quo.v.DivMod(&a.v, uint256.NewInt(n), &rem.v)
	return quo, rem
}

// MulBps 计算 round_half_up(a * bps / 10000)。
// 中间结果用 big.Int 计算，不会溢出。
// CheckBps 费率不能超过 100%
func CheckBps(bps uint64) error {
	if bps > BpsDenominator {
		return fmt.Errorf("%w: %d", ErrBpsRange, bps)
	}
	return nil
}

func (a Amount) MulBps(bps uint64) Amount {
	n := a.v.ToBig()
	n.Mul(n, new(big.Int).SetUint64(bps))
	n.Add(n, big.NewInt(BpsDenominator/2))
	n.Quo(n, big.NewInt(BpsDenominator))
	out, err := FromBig(n)
	if err != nil {
		// bps <= 10000 时结果不可能大于 a
		panic(fmt.Sprintf("amount: fee overflow: %v", err))
	}
	return out
}

// Cmp 比较大小: -1, 0, +1
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

func (a Amount) LessThan(b Amount) bool { return a.v.Lt(&b.v) }

func (a Amount) IsZero() bool { return a.v.IsZero() }

// Big 返回一个新的 *big.Int 副本
func (a Amount) Big() *big.Int { return a.v.ToBig() }

// String 返回最小单位的十进制表示
func (a Amount) String() string { return a.v.Dec() }

// Format 按 decimals 精度格式化为人类可读的字符串，去掉末尾多余的 0
func (a Amount) Format(decimals int32) string {
	return decimal.NewFromBigInt(a.v.ToBig(), -decimals).String()
}

// MarshalJSON 以最小单位的十进制字符串编码，避免 JSON number 精度丢失
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.v.Dec())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrFormat, data)
	}
	parsed, err := FromBaseUnits(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value 实现 driver.Valuer，数据库中存为 numeric(78,0)
func (a Amount) Value() (driver.Value, error) {
	return a.v.Dec(), nil
}

// Scan 实现 sql.Scanner
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Amount{}
		return nil
	case string:
		parsed, err := FromBaseUnits(v)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	case []byte:
		return a.Scan(string(v))
	case int64:
		if v < 0 {
			return ErrNegative
		}
		*a = FromUint64(uint64(v))
		return nil
	default:
		return fmt.Errorf("amount: cannot scan %T", src)
	}
}

// GormDBDataType 告诉 gorm 列类型: postgres 用 numeric(78,0)，
// sqlite 用 text，避免 NUMERIC 亲和性把大整数转成浮点数
func (Amount) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "numeric(78,0)"
	}
	return "text"
}
