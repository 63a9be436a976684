package service

import (
	"errors"

	"creditpay/internal/repository"
)

// 履约链路的错误分类，调用方统一用 errors.Is 判断，
// webhook 入口据此决定返回给渠道的 HTTP 状态。
// 重复事件不是错误，由 RecordResult.Duplicate 表示
var (
	// ErrVerification 签名无效或报文无法解析，事件不做任何处理
	ErrVerification = errors.New("回调签名校验失败")
	// ErrAccountNotFound 买家账户不存在，流水已落但积分未发放
	ErrAccountNotFound = repository.ErrAccountNotFound
	// ErrAccountDuplicate 开户时账户已存在
	ErrAccountDuplicate = repository.ErrAccountDuplicate
	// ErrPersistence 存储不可用
	ErrPersistence = errors.New("存储不可用")
	// ErrGateway 支付渠道调用失败
	ErrGateway = errors.New("支付渠道调用失败")
	// ErrInvalidCheckout 结账参数不合法
	ErrInvalidCheckout = errors.New("结账参数不合法")
	// ErrInvalidAccount 开户参数不合法
	ErrInvalidAccount = errors.New("账户参数不合法")
	// ErrInvalidGrant 入账参数不合法
	ErrInvalidGrant = errors.New("入账参数不合法")
)

// persistenceError 把底层存储错误归类为 ErrPersistence，同时保留原始错误链
type persistenceError struct {
	op  string
	err error
}

func (e *persistenceError) Error() string {
	return e.op + ": " + e.err.Error()
}

func (e *persistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.err}
}

func wrapPersistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &persistenceError{op: op, err: err}
}
