package handler

import (
	"time"

	"tipbot-core/internal/handler/request"
	"tipbot-core/internal/model"
	"tipbot-core/pkg/amount"
)

// 返回给分发层的视图，金额同时给出最小单位和按精度格式化后的值

type AmountView struct {
	Raw       string `json:"raw"`
	Formatted string `json:"formatted"`
}

func amountView(a amount.Amount, decimals int32) AmountView {
	return AmountView{Raw: a.String(), Formatted: a.Format(decimals)}
}

type AttendeeView struct {
	ClaimantID   string     `json:"claimant_id"`
	Position     int        `json:"position"`
	ClaimedAt    time.Time  `json:"claimed_at"`
	PayoutAmount AmountView `json:"payout_amount"`
	PayoutStatus string     `json:"payout_status"`
	PayoutTxHash string     `json:"payout_tx_hash,omitempty"`
}

type DroptipView struct {
	ID              uint64         `json:"id"`
	SenderID        string         `json:"sender_id"`
	ChannelID       string         `json:"channel_id,omitempty"`
	Symbol          string         `json:"symbol"`
	Gross           AmountView     `json:"gross"`
	Fee             AmountView     `json:"fee"`
	DurationMinutes int            `json:"duration_minutes"`
	State           string         `json:"state"`
	ExpiresAt       time.Time      `json:"expires_at"`
	ActionID        string         `json:"action_id,omitempty"` // 领取按钮，结算后为空
	EscrowTxHash    string         `json:"escrow_tx_hash"`
	Outcome         string         `json:"outcome,omitempty"`
	Share           *AmountView    `json:"share,omitempty"`
	Unpaid          *AmountView    `json:"unpaid,omitempty"`
	RefundStatus    string         `json:"refund_status,omitempty"`
	RefundTxHash    string         `json:"refund_tx_hash,omitempty"`
	Claims          int            `json:"claims"`
	Attendees       []AttendeeView `json:"attendees"`
}

func droptipView(d *model.Droptip, decimals int32, symbol string) DroptipView {
	v := DroptipView{
		ID:              d.ID,
		SenderID:        d.SenderID,
		ChannelID:       d.ChannelID,
		Symbol:          symbol,
		Gross:           amountView(d.GrossAmount, decimals),
		Fee:             amountView(d.FeeAmount, decimals),
		DurationMinutes: d.DurationMinutes,
		State:           d.State,
		ExpiresAt:       d.ExpiresAt,
		EscrowTxHash:    d.EscrowTxHash,
		Outcome:         d.Outcome,
		RefundStatus:    d.RefundStatus,
		RefundTxHash:    d.RefundTxHash,
		Claims:          len(d.Attendees),
		Attendees:       make([]AttendeeView, 0, len(d.Attendees)),
	}
	if d.Open() {
		v.ActionID = request.ClaimActionID(d.ID)
	}
	if d.State == model.DroptipSettled {
		share := amountView(d.ShareAmount, decimals)
		unpaid := amountView(d.UnpaidAmount, decimals)
		v.Share, v.Unpaid = &share, &unpaid
	}
	for _, a := range d.Attendees {
		v.Attendees = append(v.Attendees, AttendeeView{
			ClaimantID:   a.ClaimantID,
			Position:     a.Position,
			ClaimedAt:    a.ClaimedAt,
			PayoutAmount: amountView(a.PayoutAmount, decimals),
			PayoutStatus: a.PayoutStatus,
			PayoutTxHash: a.PayoutTxHash,
		})
	}
	return v
}

// ClaimView Status: accepted 或 already_claimed
type ClaimView struct {
	DroptipID  uint64 `json:"droptip_id"`
	ClaimantID string `json:"claimant_id"`
	Position   *int   `json:"position,omitempty"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
}

type TipView struct {
	TxHash       string     `json:"tx_hash"`
	Symbol       string     `json:"symbol"`
	Amount       AmountView `json:"amount"`
	Fee          AmountView `json:"fee"`
	FeeTxHash    string     `json:"fee_tx_hash,omitempty"`
	FeeCollected bool       `json:"fee_collected"`
}

type BalanceView struct {
	UserID  string     `json:"user_id"`
	Address string     `json:"address"`
	Symbol  string     `json:"symbol"`
	Token   AmountView `json:"token"`
	Native  AmountView `json:"native"`
}
