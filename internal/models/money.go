package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrAmountPrecision 金额小数位超过两位，无法无损换算为最小货币单位
var ErrAmountPrecision = errors.New("amount has more than 2 decimal places")

var minorUnitFactor = decimal.NewFromInt(100)

// Money 统一金额类型（保留 2 位小数）
type Money struct {
	decimal.Decimal
}

// NewMoneyFromDecimal 从 decimal 创建金额
func NewMoneyFromDecimal(amount decimal.Decimal) Money {
	return Money{Decimal: amount.Round(2)}
}

// MarshalJSON 统一输出 2 位小数的字符串
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Decimal.Round(2).StringFixed(2))
}

// UnmarshalJSON 解析金额（字符串或数字），不经过浮点数
func (m *Money) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	m.Decimal = d.Round(2)
	return nil
}

// Value 用于数据库写入
func (m Money) Value() (driver.Value, error) {
	return m.Decimal.Round(2).Value()
}

// Scan 用于数据库读取
func (m *Money) Scan(value interface{}) error {
	if err := m.Decimal.Scan(value); err != nil {
		return err
	}
	m.Decimal = m.Decimal.Round(2)
	return nil
}

// String 返回 2 位小数格式
func (m Money) String() string {
	return m.Decimal.Round(2).StringFixed(2)
}

// HasMinorUnitPrecision 判断金额是否最多两位小数
func HasMinorUnitPrecision(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(2))
}

// ToMinorUnits 主单位金额换算为最小货币单位（分/派萨）
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	if !HasMinorUnitPrecision(amount) {
		return 0, fmt.Errorf("%w: %s", ErrAmountPrecision, amount.String())
	}
	return amount.Mul(minorUnitFactor).IntPart(), nil
}

// FromMinorUnits 最小货币单位换算为主单位金额
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
