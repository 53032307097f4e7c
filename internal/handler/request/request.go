// Package request 定义分发层发来的请求，在进入核心逻辑之前完成校验。
package request

import (
	"fmt"
	"strconv"
	"strings"
)

// CreateTipRequest 直接打赏
type CreateTipRequest struct {
	SenderID    string `json:"sender_id" binding:"required,userid"`
	RecipientID string `json:"recipient_id" binding:"required,userid,nefield=SenderID"`
	Amount      string `json:"amount" binding:"required,amount"` // 十进制，例如 "12.5"
}

// CreateDroptipRequest 创建红包
type CreateDroptipRequest struct {
	SenderID        string `json:"sender_id" binding:"required,userid"`
	ChannelID       string `json:"channel_id" binding:"max=128"`
	Amount          string `json:"amount" binding:"required,amount"`
	DurationMinutes int    `json:"duration_minutes" binding:"required,min=1"`
}

// ClaimDroptipRequest 领取红包
type ClaimDroptipRequest struct {
	ClaimantID string `json:"claimant_id" binding:"required,userid"`
	Bot        bool   `json:"bot"` // 平台标记的机器人账号
}

// ActionRequest 按钮交互，ActionID 形如 claim_droptip_<id>
type ActionRequest struct {
	ActionID string `json:"action_id" binding:"required,max=64"`
	UserID   string `json:"user_id" binding:"required,userid"`
	Bot      bool   `json:"bot"`
}

// WithdrawRequest 提现
type WithdrawRequest struct {
	UserID      string `json:"user_id" binding:"required,userid"`
	Destination string `json:"destination" binding:"required,evmaddr"`
	Amount      string `json:"amount" binding:"required,amount"`
}

// UserURI 路径参数 :user_id
type UserURI struct {
	UserID string `uri:"user_id" binding:"required,userid"`
}

// DroptipURI 路径参数 :id
type DroptipURI struct {
	ID uint64 `uri:"id" binding:"required,min=1"`
}

// ActionKind 按钮动作类型
type ActionKind int

const (
	ActionClaim ActionKind = iota + 1
)

func (k ActionKind) String() string {
	switch k {
	case ActionClaim:
		return "claim"
	default:
		return "unknown"
	}
}

const claimDroptipPrefix = "claim_droptip_"

// Action 解析后的按钮动作
type Action struct {
	Kind      ActionKind
	DroptipID uint64
}

// ParseAction 把按钮 ID 解析成类型化的动作
func ParseAction(id string) (Action, error) {
	if rest, ok := strings.CutPrefix(id, claimDroptipPrefix); ok {
		droptipID, err := strconv.ParseUint(rest, 10, 64)
		if err != nil || droptipID == 0 {
			return Action{}, fmt.Errorf("invalid droptip id in action %q", id)
		}
		return Action{Kind: ActionClaim, DroptipID: droptipID}, nil
	}
	return Action{}, fmt.Errorf("unknown action %q", id)
}

// ClaimActionID 生成领取按钮的 ID
func ClaimActionID(droptipID uint64) string {
	return claimDroptipPrefix + strconv.FormatUint(droptipID, 10)
}
