package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeNotFound      = 404
	CodeServerError   = 500
	CodeBusinessError = 1000
)

const (
	CodeAccountNotFound = 1001
	CodeAccountExists   = 1002
	CodeCheckoutInvalid = 1003
	CodeCheckoutFailed  = 1004
)

// Response 业务接口统一返回结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}

// WebhookAck webhook 的应答直接面向支付渠道，不套统一结构，HTTP 状态码本身即语义：
// 2xx 表示已接收，渠道不再重投；其他状态码会触发渠道重投
type WebhookAck struct {
	Message     string      `json:"message,omitempty"`
	Error       string      `json:"error,omitempty"`
	Transaction interface{} `json:"transaction,omitempty"`
}

func Webhook(c *gin.Context, status int, ack WebhookAck) {
	c.JSON(status, ack)
}
