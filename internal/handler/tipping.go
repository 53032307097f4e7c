package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tipbot-core/internal/handler/request"
	"tipbot-core/internal/handler/response"
	"tipbot-core/internal/model"
	"tipbot-core/internal/service/droptip"
	"tipbot-core/internal/service/tipping"
	"tipbot-core/pkg/amount"
	"tipbot-core/pkg/errno"
	"tipbot-core/pkg/logger"
	"tipbot-core/pkg/validator"
)

// nativeDecimals 原生币 (gas) 固定 18 位
const nativeDecimals = 18

// TippingService 分发层能调用的全部操作
type TippingService interface {
	CreateTip(ctx context.Context, senderID, recipientID string, amt amount.Amount) (*tipping.TipResult, error)
	CreateDroptip(ctx context.Context, req droptip.CreateRequest) (*model.Droptip, error)
	ClaimDroptip(ctx context.Context, droptipID uint64, claimant droptip.Claimant) (*model.Attendee, error)
	GetDroptip(ctx context.Context, droptipID uint64) (*model.Droptip, error)
	GetBalance(ctx context.Context, userID string) (*tipping.Balance, error)
	GetDepositAddress(ctx context.Context, userID string) (string, error)
	Withdraw(ctx context.Context, userID, destination string, amt amount.Amount) (string, error)
	Decimals() int32
	Symbol() string
}

type TippingHandler struct {
	svc TippingService
}

func NewTippingHandler(svc TippingService) *TippingHandler {
	return &TippingHandler{svc: svc}
}

// bindError 把校验错误翻译成可读的提示
func bindError(err error) error {
	return errno.ErrBind.WithMessage(validator.GetErrorMsg(err))
}

func (h *TippingHandler) parseAmount(s string) (amount.Amount, error) {
	a, err := amount.Parse(s, h.svc.Decimals())
	if err != nil {
		return amount.Amount{}, errno.ErrInvalidAmount.WithMessage(fmt.Sprintf("invalid amount %q: %v", s, err))
	}
	if a.IsZero() {
		return amount.Amount{}, errno.ErrInvalidAmount
	}
	return a, nil
}

// CreateTip 直接打赏
// @Summary 打赏
// @Description 从发送者的托管钱包直接转账给接收者，另收 1% 手续费
// @Tags Tipping
// @Accept json
// @Produce json
// @Param request body request.CreateTipRequest true "Tip Request"
// @Success 200 {object} response.Response{data=TipView}
// @Router /api/v1/tips [post]
func (h *TippingHandler) CreateTip(c *gin.Context) {
	var req request.CreateTipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	amt, err := h.parseAmount(req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	res, err := h.svc.CreateTip(c.Request.Context(), req.SenderID, req.RecipientID, amt)
	if err != nil {
		response.Error(c, err)
		return
	}
	d := h.svc.Decimals()
	response.Success(c, TipView{
		TxHash:       res.TxHash,
		Symbol:       h.svc.Symbol(),
		Amount:       amountView(res.Amount, d),
		Fee:          amountView(res.Fee, d),
		FeeTxHash:    res.FeeTxHash,
		FeeCollected: res.FeeCollected,
	})
}

// CreateDroptip 创建红包
// @Summary 创建红包
// @Description 金额加手续费转入托管地址，到期后平分给领取者或退回
// @Tags Droptip
// @Accept json
// @Produce json
// @Param request body request.CreateDroptipRequest true "Droptip Request"
// @Success 200 {object} response.Response{data=DroptipView}
// @Router /api/v1/droptips [post]
func (h *TippingHandler) CreateDroptip(c *gin.Context) {
	var req request.CreateDroptipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	gross, err := h.parseAmount(req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	d, err := h.svc.CreateDroptip(c.Request.Context(), droptip.CreateRequest{
		SenderID:        req.SenderID,
		ChannelID:       req.ChannelID,
		Gross:           gross,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, droptipView(d, h.svc.Decimals(), h.svc.Symbol()))
}

// GetDroptip 查询红包
// @Summary 查询红包
// @Tags Droptip
// @Produce json
// @Param id path int true "Droptip ID"
// @Success 200 {object} response.Response{data=DroptipView}
// @Router /api/v1/droptips/{id} [get]
func (h *TippingHandler) GetDroptip(c *gin.Context) {
	var uri request.DroptipURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.Error(c, bindError(err))
		return
	}
	d, err := h.svc.GetDroptip(c.Request.Context(), uri.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, droptipView(d, h.svc.Decimals(), h.svc.Symbol()))
}

// ClaimDroptip 领取红包
// @Summary 领取红包
// @Description 重复领取返回成功 (status=already_claimed)，已结束返回 level=info 的提示
// @Tags Droptip
// @Accept json
// @Produce json
// @Param id path int true "Droptip ID"
// @Param request body request.ClaimDroptipRequest true "Claim Request"
// @Success 200 {object} response.Response{data=ClaimView}
// @Router /api/v1/droptips/{id}/claims [post]
func (h *TippingHandler) ClaimDroptip(c *gin.Context) {
	var uri request.DroptipURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.Error(c, bindError(err))
		return
	}
	var req request.ClaimDroptipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	h.claim(c, uri.ID, droptip.Claimant{UserID: req.ClaimantID, Bot: req.Bot})
}

// HandleAction 按钮点击
// @Summary 按钮交互
// @Description action_id 形如 claim_droptip_<id>
// @Tags Droptip
// @Accept json
// @Produce json
// @Param request body request.ActionRequest true "Action Request"
// @Success 200 {object} response.Response{data=ClaimView}
// @Router /api/v1/actions [post]
func (h *TippingHandler) HandleAction(c *gin.Context) {
	var req request.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	action, err := request.ParseAction(req.ActionID)
	if err != nil {
		response.Error(c, errno.ErrBind.WithMessage(err.Error()))
		return
	}

	switch action.Kind {
	case request.ActionClaim:
		h.claim(c, action.DroptipID, droptip.Claimant{UserID: req.UserID, Bot: req.Bot})
	default:
		response.Error(c, errno.ErrBind.WithMessage("unsupported action"))
	}
}

func (h *TippingHandler) claim(c *gin.Context, droptipID uint64, claimant droptip.Claimant) {
	a, err := h.svc.ClaimDroptip(c.Request.Context(), droptipID, claimant)
	if errors.Is(err, errno.ErrAlreadyClaimed) {
		// 重复点击按钮不算失败
		response.Success(c, ClaimView{
			DroptipID:  droptipID,
			ClaimantID: claimant.UserID,
			Status:     "already_claimed",
			Message:    errno.ErrAlreadyClaimed.Message,
		})
		return
	}
	if err != nil {
		if !errno.IsInformational(err) && !errors.Is(err, errno.ErrBotClaimRejected) {
			logger.Warn("[Handler] 领取失败",
				zap.Uint64("droptip_id", droptipID),
				zap.String("claimant_id", claimant.UserID),
				zap.Error(err))
		}
		response.Error(c, err)
		return
	}
	response.Success(c, ClaimView{
		DroptipID:  a.DroptipID,
		ClaimantID: a.ClaimantID,
		Position:   &a.Position,
		Status:     "accepted",
	})
}

// GetBalance 查询余额
// @Summary 查询余额
// @Tags Wallet
// @Produce json
// @Param user_id path string true "User ID"
// @Success 200 {object} response.Response{data=BalanceView}
// @Router /api/v1/wallets/{user_id}/balance [get]
func (h *TippingHandler) GetBalance(c *gin.Context) {
	var uri request.UserURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.Error(c, bindError(err))
		return
	}
	b, err := h.svc.GetBalance(c.Request.Context(), uri.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, BalanceView{
		UserID:  b.UserID,
		Address: b.Address,
		Symbol:  h.svc.Symbol(),
		Token:   amountView(b.Token, h.svc.Decimals()),
		Native:  amountView(b.Native, nativeDecimals),
	})
}

// GetDepositAddress 充值地址
// @Summary 获取充值地址
// @Tags Wallet
// @Produce json
// @Param user_id path string true "User ID"
// @Success 200 {object} response.Response
// @Router /api/v1/wallets/{user_id}/deposit-address [get]
func (h *TippingHandler) GetDepositAddress(c *gin.Context) {
	var uri request.UserURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.Error(c, bindError(err))
		return
	}
	addr, err := h.svc.GetDepositAddress(c.Request.Context(), uri.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"user_id": uri.UserID, "address": addr, "symbol": h.svc.Symbol()})
}

// Withdraw 提现
// @Summary 提现
// @Description 从托管钱包转出到外部地址
// @Tags Wallet
// @Accept json
// @Produce json
// @Param request body request.WithdrawRequest true "Withdraw Request"
// @Success 200 {object} response.Response
// @Router /api/v1/withdrawals [post]
func (h *TippingHandler) Withdraw(c *gin.Context) {
	var req request.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	amt, err := h.parseAmount(req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	txHash, err := h.svc.Withdraw(c.Request.Context(), req.UserID, req.Destination, amt)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"tx_hash": txHash, "amount": amountView(amt, h.svc.Decimals())})
}
