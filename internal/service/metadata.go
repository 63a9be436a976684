package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"creditpay/internal/infrastructure/payment"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// CompletedCheckout 从 checkout.session.completed 事件中提取出的履约字段
type CompletedCheckout struct {
	ExternalID       string
	AmountTotalCents int64
	Plan             string
	Credits          int64
	BuyerID          string

	// Valid 为 false 表示至少有一个字段缺失或类型不对，已按默认值处理
	Valid     bool
	Defaulted []string
}

// Amount 实付金额（元）
func (c CompletedCheckout) Amount() decimal.Decimal {
	return decimal.New(c.AmountTotalCents, -2)
}

// checkoutObject 只声明用到的字段，类型一律放宽为 any 再做转换，
// 渠道侧字段类型变化不会让整个事件解析失败
type checkoutObject struct {
	ID          any            `json:"id"`
	AmountTotal any            `json:"amount_total"`
	Metadata    map[string]any `json:"metadata"`
}

// ParseCompletedCheckout 解析支付完成事件的数据对象
//
// 该函数是全函数：任何输入都返回结果，不返回错误。
//   - 缺少 id 时退回使用事件 id
//   - amount_total 缺失/非法/为负 -> 0
//   - metadata.plan / metadata.buyerId 缺失 -> ""
//   - metadata.credits 缺失/非法/为负 -> 0
func ParseCompletedCheckout(raw json.RawMessage, eventID string) CompletedCheckout {
	out := CompletedCheckout{Valid: true}
	markDefault := func(field string) {
		out.Valid = false
		out.Defaulted = append(out.Defaulted, field)
	}

	var obj checkoutObject
	if len(raw) == 0 || decodeObject(raw, &obj) != nil {
		obj = checkoutObject{}
		markDefault("object")
	}

	out.ExternalID = looseString(obj.ID)
	if out.ExternalID == "" {
		out.ExternalID = eventID
		markDefault("id")
	}

	amount, err := toNonNegativeInt(obj.AmountTotal)
	if err != nil {
		markDefault("amount_total")
	}
	out.AmountTotalCents = amount

	out.Plan = metadataString(obj.Metadata, payment.MetadataPlan)
	if out.Plan == "" {
		markDefault("metadata.plan")
	}

	credits, err := toNonNegativeInt(obj.Metadata[payment.MetadataCredits])
	if err != nil {
		markDefault("metadata.credits")
	}
	out.Credits = credits

	out.BuyerID = metadataString(obj.Metadata, payment.MetadataBuyerID)
	if out.BuyerID == "" {
		markDefault("metadata.buyerId")
	}

	return out
}

// decodeObject 数值保留为 json.Number，避免大整数经 float64 丢失精度
func decodeObject(raw []byte, obj *checkoutObject) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(obj)
}

func metadataString(md map[string]any, key string) string {
	return looseString(md[key])
}

func looseString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case json.Number:
		return strings.TrimSpace(x.String())
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

var errInvalidNumber = errors.New("invalid number")

// toNonNegativeInt 宽松数值转换：接受整数、整数形式的浮点与字符串，
// 超出 int64 范围的值视为非法，不能回绕
func toNonNegativeInt(v any) (int64, error) {
	switch x := v.(type) {
	case nil, bool:
		return 0, errInvalidNumber
	case string:
		return parseNonNegativeInt(x)
	case json.Number:
		return parseNonNegativeInt(x.String())
	case float64:
		if x < 0 || x >= 1<<63 || x != float64(int64(x)) {
			return 0, errInvalidNumber
		}
	}
	n, err := cast.ToInt64E(v)
	if err != nil || n < 0 {
		return 0, errInvalidNumber
	}
	return n, nil
}

func parseNonNegativeInt(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || !d.IsInteger() || d.IsNegative() || !d.BigInt().IsInt64() {
		return 0, errInvalidNumber
	}
	return d.IntPart(), nil
}
