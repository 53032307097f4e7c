// Package store 持久化托管身份、droptip、领取记录和转账流水。
package store

import (
	"context"
	"errors"
	"time"

	"tipbot-core/internal/model"
)

var (
	ErrNotFound = errors.New("store: record not found")
	// ErrDuplicate 同一个用户重复领取
	ErrDuplicate = errors.New("store: claimant already registered")
	// ErrClosed droptip 已过期、已开始结算或已结算
	ErrClosed = errors.New("store: droptip is closed")
	// ErrSettled droptip 已经结算完成
	ErrSettled = errors.New("store: droptip already settled")
)

// Store 业务数据存储。同一个 droptip 的 AddAttendee 与 BeginSettlement
// 互相串行: BeginSettlement 返回之后，AddAttendee 一定返回 ErrClosed。
type Store interface {
	GetIdentity(ctx context.Context, userID string) (*model.Identity, error)
	// CreateIdentity 不存在时创建；已存在时返回已有记录，不覆盖
	CreateIdentity(ctx context.Context, identity *model.Identity) (*model.Identity, error)

	// CreateDroptip 写入新的 droptip 并分配 ID
	CreateDroptip(ctx context.Context, d *model.Droptip) error
	// GetDroptip 返回 droptip 及按领取顺序排列的领取记录
	GetDroptip(ctx context.Context, id uint64) (*model.Droptip, error)
	// AddAttendee 在 droptip 打开且 now < ExpiresAt 时追加领取记录
	AddAttendee(ctx context.Context, a *model.Attendee, now time.Time) error
	// BeginSettlement 标记结算开始 (已开始则保持原时间) 并返回冻结的领取快照。
	// 已结算时返回记录和 ErrSettled。
	BeginSettlement(ctx context.Context, id uint64, now time.Time) (*model.Droptip, error)
	SaveAttendee(ctx context.Context, a *model.Attendee) error
	// SaveSettlement 保存结算字段 (状态、份额、余数、退款状态等)
	SaveSettlement(ctx context.Context, d *model.Droptip) error
	// ListOpenDroptips 所有未结算的 droptip，按 ExpiresAt 升序
	ListOpenDroptips(ctx context.Context) ([]model.Droptip, error)

	RecordTransfer(ctx context.Context, t *model.Transfer) error
	UpdateTransfer(ctx context.Context, t *model.Transfer) error
}

// CanClaim 判断 droptip 在 now 时刻是否还能领取
func CanClaim(d *model.Droptip, now time.Time) bool {
	return d.Open() && now.Before(d.ExpiresAt)
}
