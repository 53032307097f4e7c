package droptip

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"tipbot-core/internal/event"
	"tipbot-core/internal/model"
	"tipbot-core/internal/store"
	"tipbot-core/pkg/errno"
	"tipbot-core/pkg/logger"
)

// Claimant 领取人
type Claimant struct {
	UserID string
	Bot    bool
}

// Claim 登记领取。只占一个份额，不发生任何转账。
// 重复领取返回 ErrAlreadyClaimed，结算开始后或到期后返回 ErrDroptipClosed。
func (e *Engine) Claim(ctx context.Context, droptipID uint64, claimant Claimant) (*model.Attendee, error) {
	if claimant.Bot {
		e.metrics.Claim("rejected")
		return nil, errno.ErrBotClaimRejected
	}

	d, err := e.Get(ctx, droptipID)
	if err != nil {
		return nil, err
	}
	if !store.CanClaim(d, e.now()) {
		e.metrics.Claim("closed")
		return nil, errno.ErrDroptipClosed
	}

	// 没打过赏的用户也要能领取，这里会按需创建托管身份
	identity, err := e.wallets.ResolveIdentity(ctx, claimant.UserID)
	if err != nil {
		return nil, err
	}

	unlock := e.droptips.Lock(droptipKey(droptipID))
	defer unlock()

	a := &model.Attendee{
		DroptipID:  droptipID,
		ClaimantID: claimant.UserID,
		Address:    identity.Address,
	}
	// 时间在锁内取，和结算的判断使用同一条时间线
	switch err := e.store.AddAttendee(ctx, a, e.now()); {
	case err == nil:
	case errors.Is(err, store.ErrDuplicate):
		e.metrics.Claim("already_claimed")
		return nil, errno.ErrAlreadyClaimed
	case errors.Is(err, store.ErrClosed):
		e.metrics.Claim("closed")
		return nil, errno.ErrDroptipClosed
	case errors.Is(err, store.ErrNotFound):
		return nil, errno.ErrDroptipNotFound
	default:
		return nil, err
	}

	e.metrics.Claim("accepted")
	e.publish(ctx, event.TopicDroptipClaimed, event.DroptipClaimedEvent{
		DroptipID:  droptipID,
		ClaimantID: claimant.UserID,
		Position:   a.Position,
	})
	logger.Info("[Droptip] 领取成功",
		zap.Uint64("droptip_id", droptipID),
		zap.String("claimant_id", claimant.UserID),
		zap.Int("position", a.Position))
	return a, nil
}
