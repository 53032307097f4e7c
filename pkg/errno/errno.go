package errno

import "errors"

// Errno defines the error code logic
type Errno struct {
	Code    int
	Message string
}

func (e Errno) Error() string {
	return e.Message
}

// Is 按错误码比较，WithMessage 派生出的副本仍然匹配原始错误
func (e Errno) Is(target error) bool {
	var t Errno
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// WithMessage 返回带有自定义描述的副本
func (e Errno) WithMessage(msg string) Errno {
	e.Message = msg
	return e
}

// Informational 表示该错误只是提示性结果 (例如重复领取)，不是系统故障
func (e Errno) Informational() bool {
	return e.Code == ErrAlreadyClaimed.Code || e.Code == ErrDroptipClosed.Code
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	var typed Errno
	if errors.As(err, &typed) {
		return typed.Code, typed.Message
	}
	return InternalServerError.Code, err.Error()
}

// IsInformational 判断错误链中是否是提示性错误
func IsInformational(err error) bool {
	var typed Errno
	return errors.As(err, &typed) && typed.Informational()
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Message: "Success"}
	InternalServerError = Errno{Code: 10001, Message: "Internal server error"}
	ErrBind             = Errno{Code: 10002, Message: "Error occurred while binding the request body to the struct"}
	ErrDatabase         = Errno{Code: 10004, Message: "Database error"}
)

// Business Errors (30000+)
var (
	ErrIdentityUnavailable      = Errno{Code: 30101, Message: "Wallet identity is temporarily unavailable"}
	ErrInsufficientFunds        = Errno{Code: 30102, Message: "Insufficient token balance"}
	ErrInvalidAddress           = Errno{Code: 30103, Message: "Invalid destination address"}
	ErrInvalidAmount            = Errno{Code: 30104, Message: "Amount must be greater than zero"}
	ErrSelfTip                  = Errno{Code: 30105, Message: "You cannot tip yourself"}
	ErrSubsidyExhausted         = Errno{Code: 30201, Message: "Gas reserve cannot cover the transaction fee"}
	ErrEscrowFundingFailed      = Errno{Code: 30301, Message: "Droptip escrow funding failed"}
	ErrInvalidDuration          = Errno{Code: 30302, Message: "Droptip duration is not allowed"}
	ErrDroptipNotFound          = Errno{Code: 30303, Message: "Droptip not found"}
	ErrAlreadyClaimed           = Errno{Code: 30304, Message: "You have already collected this droptip"}
	ErrDroptipClosed            = Errno{Code: 30305, Message: "This droptip is no longer available"}
	ErrBotClaimRejected         = Errno{Code: 30306, Message: "Bots cannot collect droptips"}
	ErrSettlementPartialFailure = Errno{Code: 30307, Message: "One or more droptip payouts failed"}
	ErrTransferFailed           = Errno{Code: 30401, Message: "Token transfer failed"}
)
