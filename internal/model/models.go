package model

import (
	"time"

	"tipbot-core/pkg/amount"
)

// Droptip 状态，只有 Open -> Settled 一种转换
const (
	DroptipOpen    = "open"
	DroptipSettled = "settled"
)

// 结算结果
const (
	OutcomeRefund = "refund"
	OutcomeSplit  = "split"
)

// 每笔分账/退款的发送状态: pending -> sending -> paid | failed
const (
	PayoutPending = "pending"
	PayoutSending = "sending"
	PayoutPaid    = "paid"
	PayoutFailed  = "failed"
)

// Identity 托管身份，每个平台用户一条，创建后不可修改、不删除。
// 私钥密文不在这里，保存在 Vault 中。
type Identity struct {
	UserID    string    `gorm:"primaryKey;type:varchar(128)" json:"user_id"`
	Address   string    `gorm:"type:varchar(42);not null;uniqueIndex" json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

func (Identity) TableName() string {
	return "identities"
}

// Droptip 一次限时红包
type Droptip struct {
	ID              uint64        `gorm:"primaryKey;autoIncrement" json:"id"`
	SenderID        string        `gorm:"type:varchar(128);not null;index" json:"sender_id"`
	ChannelID       string        `gorm:"type:varchar(128)" json:"channel_id,omitempty"` // 发红包的频道，仅用于回传消息
	GrossAmount     amount.Amount `gorm:"not null" json:"gross_amount"`                  // 领取人可见的金额 (不含手续费)
	FeeAmount       amount.Amount `gorm:"not null" json:"fee_amount"`
	DurationMinutes int           `gorm:"not null" json:"duration_minutes"`
	EscrowTxHash    string        `gorm:"type:varchar(66)" json:"escrow_tx_hash"`
	State           string        `gorm:"type:varchar(16);not null;index" json:"state"`
	CreatedAt       time.Time     `json:"created_at"`
	ExpiresAt       time.Time     `gorm:"not null;index" json:"expires_at"`

	// 结算开始后不再接受领取
	SettlementStartedAt *time.Time    `json:"settlement_started_at,omitempty"`
	SettledAt           *time.Time    `json:"settled_at,omitempty"`
	Outcome             string        `gorm:"type:varchar(16)" json:"outcome,omitempty"`
	ShareAmount         amount.Amount `json:"share_amount"`
	RemainderAmount     amount.Amount `json:"remainder_amount"` // 整除余数，留在托管地址
	UnpaidAmount        amount.Amount `json:"unpaid_amount"`    // 发送失败的金额，等待人工对账

	// 退款 (无人领取时)
	RefundStatus string `gorm:"type:varchar(16)" json:"refund_status,omitempty"`
	RefundTxHash string `gorm:"type:varchar(66)" json:"refund_tx_hash,omitempty"`
	RefundError  string `gorm:"type:text" json:"refund_error,omitempty"`

	Attendees []Attendee `gorm:"foreignKey:DroptipID" json:"attendees"`
}

func (Droptip) TableName() string {
	return "droptips"
}

// Open 是否仍然处于可领取状态 (不检查时间)
func (d *Droptip) Open() bool {
	return d.State == DroptipOpen && d.SettlementStartedAt == nil
}

// Attendee 领取记录，同一个 droptip 内 claimant 唯一
type Attendee struct {
	ID           uint64        `gorm:"primaryKey;autoIncrement" json:"-"`
	DroptipID    uint64        `gorm:"not null;uniqueIndex:idx_droptip_claimant" json:"droptip_id"`
	ClaimantID   string        `gorm:"type:varchar(128);not null;uniqueIndex:idx_droptip_claimant" json:"claimant_id"`
	Address      string        `gorm:"type:varchar(42);not null" json:"address"`
	Position     int           `gorm:"not null" json:"position"` // 领取顺序，从 0 开始
	ClaimedAt    time.Time     `json:"claimed_at"`
	PayoutAmount amount.Amount `json:"payout_amount"`
	PayoutStatus string        `gorm:"type:varchar(16);not null;default:'pending'" json:"payout_status"`
	PayoutTxHash string        `gorm:"type:varchar(66)" json:"payout_tx_hash,omitempty"`
	PayoutError  string        `gorm:"type:text" json:"payout_error,omitempty"`
}

func (Attendee) TableName() string {
	return "droptip_attendees"
}

// 链上转账类型
const (
	TransferEscrowFunding = "escrow_funding"
	TransferPayout        = "payout"
	TransferRefund        = "refund"
	TransferTip           = "tip"
	TransferTipFee        = "tip_fee"
	TransferWithdrawal    = "withdrawal"
	TransferGasSubsidy    = "gas_subsidy"
)

// 转账流水状态
const (
	TransferSubmitted = "submitted"
	TransferConfirmed = "confirmed"
	TransferFailed    = "failed"
)

// Transfer 链上转账流水。先写 submitted，确认后更新，
// 用来对账 "链上已成功但业务记录没写进去" 的情况。
type Transfer struct {
	ID          uint64        `gorm:"primaryKey;autoIncrement" json:"id"`
	Kind        string        `gorm:"type:varchar(32);not null;index" json:"kind"`
	Reference   string        `gorm:"type:varchar(64);index" json:"reference"` // 例如 droptip:7
	FromAddress string        `gorm:"type:varchar(42);not null" json:"from_address"`
	ToAddress   string        `gorm:"type:varchar(42);not null" json:"to_address"`
	Amount      amount.Amount `gorm:"not null" json:"amount"`
	Native      bool          `gorm:"not null;default:false" json:"native"` // true 表示原生币 (gas)
	TxHash      string        `gorm:"type:varchar(66);index" json:"tx_hash"`
	Status      string        `gorm:"type:varchar(16);not null;index" json:"status"`
	Error       string        `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func (Transfer) TableName() string {
	return "transfers"
}

// AllModels 返回所有需要迁移的数据库模型对象
// 新增表时，只需要在这里添加即可
func AllModels() []interface{} {
	return []interface{}{
		&Identity{},
		&Droptip{},
		&Attendee{},
		&Transfer{},
		&OutboxMessage{},
	}
}
