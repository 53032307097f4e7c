package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tipbot-core/internal/model"
)

// GormStore 基于 gorm 的实现 (postgres / sqlite)
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB 暴露底层连接，供 RelayService 等共享
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) GetIdentity(ctx context.Context, userID string) (*model.Identity, error) {
	var identity model.Identity
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

func (s *GormStore) CreateIdentity(ctx context.Context, identity *model.Identity) (*model.Identity, error) {
	// INSERT ... ON CONFLICT (user_id) DO NOTHING，然后读回真正生效的记录
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(identity).Error
	if err != nil {
		return nil, err
	}
	return s.GetIdentity(ctx, identity.UserID)
}

func (s *GormStore) CreateDroptip(ctx context.Context, d *model.Droptip) error {
	// 新建时不带领取记录
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(d).Error
}

func (s *GormStore) GetDroptip(ctx context.Context, id uint64) (*model.Droptip, error) {
	return loadDroptip(s.db.WithContext(ctx), id)
}

func loadDroptip(tx *gorm.DB, id uint64) (*model.Droptip, error) {
	var d model.Droptip
	err := tx.Preload("Attendees", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).First(&d, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// lockDroptip SELECT ... FOR UPDATE (sqlite 方言会忽略 FOR UPDATE，由单写者保证串行)
func lockDroptip(tx *gorm.DB, id uint64) (*model.Droptip, error) {
	var d model.Droptip
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&d, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *GormStore) AddAttendee(ctx context.Context, a *model.Attendee, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := lockDroptip(tx, a.DroptipID)
		if err != nil {
			return err
		}
		if !CanClaim(d, now) {
			return ErrClosed
		}

		var count int64
		if err := tx.Model(&model.Attendee{}).
			Where("droptip_id = ? AND claimant_id = ?", a.DroptipID, a.ClaimantID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicate
		}

		if err := tx.Model(&model.Attendee{}).Where("droptip_id = ?", a.DroptipID).Count(&count).Error; err != nil {
			return err
		}
		a.Position = int(count)
		a.ClaimedAt = now
		if a.PayoutStatus == "" {
			a.PayoutStatus = model.PayoutPending
		}
		// 唯一索引兜底
		if err := tx.Create(a).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicate
			}
			return err
		}
		return nil
	})
}

func (s *GormStore) BeginSettlement(ctx context.Context, id uint64, now time.Time) (*model.Droptip, error) {
	var out *model.Droptip
	var settled bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := lockDroptip(tx, id)
		if err != nil {
			return err
		}
		if d.State == model.DroptipSettled {
			settled = true
		} else if d.SettlementStartedAt == nil {
			if err := tx.Model(&model.Droptip{}).Where("id = ?", id).
				Update("settlement_started_at", now).Error; err != nil {
				return err
			}
		}
		out, err = loadDroptip(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if settled {
		return out, ErrSettled
	}
	return out, nil
}

func (s *GormStore) SaveAttendee(ctx context.Context, a *model.Attendee) error {
	return s.db.WithContext(ctx).Model(&model.Attendee{}).Where("id = ?", a.ID).
		Updates(map[string]interface{}{
			"payout_amount":  a.PayoutAmount,
			"payout_status":  a.PayoutStatus,
			"payout_tx_hash": a.PayoutTxHash,
			"payout_error":   a.PayoutError,
		}).Error
}

func (s *GormStore) SaveSettlement(ctx context.Context, d *model.Droptip) error {
	return s.db.WithContext(ctx).Model(&model.Droptip{}).Where("id = ?", d.ID).
		Updates(map[string]interface{}{
			"state":            d.State,
			"settled_at":       d.SettledAt,
			"outcome":          d.Outcome,
			"share_amount":     d.ShareAmount,
			"remainder_amount": d.RemainderAmount,
			"unpaid_amount":    d.UnpaidAmount,
			"refund_status":    d.RefundStatus,
			"refund_tx_hash":   d.RefundTxHash,
			"refund_error":     d.RefundError,
		}).Error
}

func (s *GormStore) ListOpenDroptips(ctx context.Context) ([]model.Droptip, error) {
	var list []model.Droptip
	err := s.db.WithContext(ctx).
		Where("state = ?", model.DroptipOpen).
		Order("expires_at ASC").
		Find(&list).Error
	return list, err
}

func (s *GormStore) RecordTransfer(ctx context.Context, t *model.Transfer) error {
	return s.db.WithContext(ctx).Create(t).Error
}

func (s *GormStore) UpdateTransfer(ctx context.Context, t *model.Transfer) error {
	return s.db.WithContext(ctx).Model(&model.Transfer{}).Where("id = ?", t.ID).
		Updates(map[string]interface{}{
			"tx_hash": t.TxHash,
			"status":  t.Status,
			"error":   t.Error,
		}).Error
}

// Publish 写入 outbox，由 RelayService 投递到 MQ
func (s *GormStore) Publish(ctx context.Context, topic string, payload interface{}) error {
	return model.CreateOutboxMessage(s.db.WithContext(ctx), topic, payload)
}
