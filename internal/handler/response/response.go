package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tipbot-core/pkg/errno"
)

// Response defines the standard JSON structure
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"msg"`
	Data    interface{} `json:"data"`
}

// Success returns a success response with data
func Success(c *gin.Context, data interface{}) {
	if data == nil {
		data = gin.H{} // Return empty object instead of null
	}
	c.JSON(http.StatusOK, Response{
		Code:    errno.OK.Code,
		Message: errno.OK.Message,
		Data:    data,
	})
}

// Error returns an error response。提示性错误 (重复领取、已结束) 带上 level=info，
// 分发层据此显示为普通提示而不是系统错误。
func Error(c *gin.Context, err error) {
	code, msg := errno.Decode(err)
	data := gin.H{}
	if errno.IsInformational(err) {
		data["level"] = "info"
	}
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: msg,
		Data:    data,
	})
}
