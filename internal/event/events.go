// Package event 定义发往消息队列的业务事件，分发层 (聊天机器人) 订阅后负责渲染消息。
package event

import (
	"context"
	"time"
)

// Topic
const (
	TopicDroptipCreated = "tipbot_events_droptip_created"
	TopicDroptipClaimed = "tipbot_events_droptip_claimed"
	TopicDroptipSettled = "tipbot_events_droptip_settled"
	TopicTipCreated     = "tipbot_events_tip_created"
)

// Publisher 事件发布。GormStore 写 outbox 表，DirectPublisher 直接写 MQ。
type Publisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

// Nop 丢弃所有事件
type Nop struct{}

func (Nop) Publish(context.Context, string, interface{}) error { return nil }

// DroptipCreatedEvent 红包创建
// Topic: tipbot_events_droptip_created
type DroptipCreatedEvent struct {
	DroptipID       uint64    `json:"droptip_id"`
	SenderID        string    `json:"sender_id"`
	ChannelID       string    `json:"channel_id,omitempty"`
	GrossAmount     string    `json:"gross_amount"` // 最小单位的十进制字符串
	FeeAmount       string    `json:"fee_amount"`
	DurationMinutes int       `json:"duration_minutes"`
	ExpiresAt       time.Time `json:"expires_at"`
	EscrowTxHash    string    `json:"escrow_tx_hash"`
}

// DroptipClaimedEvent 有人领取
// Topic: tipbot_events_droptip_claimed
type DroptipClaimedEvent struct {
	DroptipID  uint64 `json:"droptip_id"`
	ClaimantID string `json:"claimant_id"`
	Position   int    `json:"position"`
}

// Payout 结算中的一笔转账
type Payout struct {
	UserID string `json:"user_id"`
	Amount string `json:"amount"`
	Status string `json:"status"`
	TxHash string `json:"tx_hash,omitempty"`
}

// DroptipSettledEvent 结算完成
// Topic: tipbot_events_droptip_settled
type DroptipSettledEvent struct {
	DroptipID   uint64   `json:"droptip_id"`
	SenderID    string   `json:"sender_id"`
	ChannelID   string   `json:"channel_id,omitempty"`
	Outcome     string   `json:"outcome"` // refund | split
	Share       string   `json:"share"`
	Remainder   string   `json:"remainder"`
	Unpaid      string   `json:"unpaid"`
	Payouts     []Payout `json:"payouts"`
	FailedCount int      `json:"failed_count"`
}

// TipCreatedEvent 直接打赏
// Topic: tipbot_events_tip_created
type TipCreatedEvent struct {
	SenderID     string `json:"sender_id"`
	RecipientID  string `json:"recipient_id"`
	Amount       string `json:"amount"`
	FeeAmount    string `json:"fee_amount"`
	TxHash       string `json:"tx_hash"`
	FeeCollected bool   `json:"fee_collected"`
}
