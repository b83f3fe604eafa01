package payment

import (
	"context"

	"github.com/shopspring/decimal"

	"opns/internal/domain"
	"opns/internal/wallet"
	"opns/pkg/errors"
	"opns/pkg/logger"
)

// Total is what a buyer pays for a listing of price satoshis including the
// marketplace fee, rounded down to the satoshi.
func Total(price int64, feeRate decimal.Decimal) int64 {
	return decimal.NewFromInt(price).Mul(decimal.NewFromInt(1).Add(feeRate)).Floor().IntPart()
}

// MarketRail buys an existing listing in one wallet-signed trade.
type MarketRail struct {
	session    Session
	logger     logger.Logger
	feeRate    decimal.Decimal
	feeAddress string
}

func NewMarketRail(cfg Config, session Session, log logger.Logger) *MarketRail {
	return &MarketRail{
		session:    session,
		logger:     log,
		feeRate:    cfg.FeeRate,
		feeAddress: cfg.FeeAddress,
	}
}

func (r *MarketRail) Kind() domain.Rail { return domain.RailMarketplace }

func (r *MarketRail) Execute(ctx context.Context, intent *domain.PurchaseIntent, req Request) (Result, error) {
	const op = "payment.marketplace"

	if req.Outpoint == "" {
		return Result{}, errors.NewPayment(op, "listing has no outpoint", errors.ErrInvalidOutpoint)
	}

	txid, err := r.session.PurchaseListing(ctx, wallet.PurchaseListingRequest{
		Outpoint:           req.Outpoint,
		MarketplaceRate:    r.feeRate,
		MarketplaceAddress: r.feeAddress,
	})
	if err != nil {
		return Result{}, errors.NewPayment(op, "listing purchase failed", err)
	}
	if txid == "" {
		return Result{}, errors.NewPayment(op, "wallet returned no transaction id", errors.ErrPaymentRejected)
	}

	r.logger.Info("Listing purchased", map[string]interface{}{
		"intent_id": intent.ID.String(),
		"handle":    req.Handle,
		"outpoint":  req.Outpoint,
		"total":     Total(req.Price, r.feeRate),
		"txid":      txid,
	})
	return Result{Ref: txid}, nil
}
