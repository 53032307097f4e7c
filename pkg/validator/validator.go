package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate *validator.Validate

// 运营方内部身份的前缀，平台用户 ID 不能使用
const reservedUserPrefix = "operator:"

// Init 在 gin 的 binding 引擎上注册自定义规则，重复调用是安全的
func Init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		validate = v
		_ = v.RegisterValidation("amount", validateAmount)
		_ = v.RegisterValidation("evmaddr", validateAddress)
		_ = v.RegisterValidation("userid", validateUserID)
	}
}

// amount: 大于 0 的十进制字符串，精度由 amount.Parse 在边界处再校验
func validateAmount(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}
	return d.IsPositive()
}

func validateAddress(fl validator.FieldLevel) bool {
	return common.IsHexAddress(fl.Field().String())
}

// userid: 平台分配的用户 ID
func validateUserID(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	return id != "" && len(id) <= 128 && !strings.HasPrefix(id, reservedUserPrefix)
}

// GetErrorMsg translates validation errors into user-friendly messages
func GetErrorMsg(err error) string {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var errMsgs []string
		for _, e := range validationErrors {
			field := e.Field()
			param := e.Param()

			switch e.Tag() {
			case "required":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 不能为空", field))
			case "amount":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 必须是大于 0 的数字", field))
			case "evmaddr":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 不是有效的地址", field))
			case "userid":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 不是有效的用户 ID", field))
			case "min":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 长度至少为 %s", field, param))
			case "max":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 长度不能超过 %s", field, param))
			case "oneof":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 必须是 [%s] 之一", field, param))
			case "nefield":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 不能与 %s 相同", field, param))
			default:
				errMsgs = append(errMsgs, fmt.Sprintf("%s 校验失败 (%s)", field, e.Tag()))
			}
		}
		return strings.Join(errMsgs, "; ")
	}
	return "请求参数错误"
}
