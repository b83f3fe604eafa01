package payment

import (
	"context"

	"github.com/shopspring/decimal"

	"opns/internal/domain"
	"opns/internal/wallet"
	"opns/pkg/errors"
	"opns/pkg/logger"
)

var satoshisPerBSV = decimal.New(1, 8)

// Satoshis converts a USD price at rate (USD per BSV) to whole satoshis,
// rounding down. A non-positive rate yields zero.
func Satoshis(priceUSD, rate decimal.Decimal) int64 {
	if !rate.IsPositive() || !priceUSD.IsPositive() {
		return 0
	}
	q, _ := priceUSD.Mul(satoshisPerBSV).QuoRem(rate, 0)
	return q.IntPart()
}

// DirectRail pays the collector from the connected wallet and then asks the
// registry to issue the name.
type DirectRail struct {
	session   Session
	registry  Registry
	rates     RateSource
	logger    logger.Logger
	priceUSD  decimal.Decimal
	collector string
}

func NewDirectRail(cfg Config, session Session, registry Registry, rates RateSource, log logger.Logger) *DirectRail {
	return &DirectRail{
		session:   session,
		registry:  registry,
		rates:     rates,
		logger:    log,
		priceUSD:  cfg.PriceUSD,
		collector: cfg.CollectorAddress,
	}
}

func (r *DirectRail) Kind() domain.Rail { return domain.RailDirectWallet }

// Execute sends the payment, then registers. Once the payment is broadcast
// every failure is a reconciliation error carrying the txid.
func (r *DirectRail) Execute(ctx context.Context, intent *domain.PurchaseIntent, req Request) (Result, error) {
	const op = "payment.direct"

	if r.collector == "" {
		return Result{}, errors.NewPayment(op, "no collector address configured", nil)
	}

	rate, err := r.rates.Rate(ctx)
	if err != nil {
		if errors.KindOf(err) == errors.KindPayment {
			return Result{}, err
		}
		return Result{}, errors.NewPayment(op, "exchange rate unavailable", err)
	}

	sats := Satoshis(r.priceUSD, rate.Rate)
	if sats <= 0 {
		return Result{}, errors.NewPayment(op, "computed payment amount is zero", errors.ErrPaymentRejected).
			With("rate", rate.Rate.String())
	}

	txid, err := r.session.SendPayment(ctx, []wallet.PaymentOutput{{Address: r.collector, Satoshis: sats}})
	if err != nil {
		return Result{}, errors.NewPayment(op, "wallet payment failed", err)
	}
	if txid == "" {
		return Result{}, errors.NewPayment(op, "wallet returned no transaction id", errors.ErrPaymentRejected)
	}

	r.logger.Info("Direct payment sent", map[string]interface{}{
		"intent_id": intent.ID.String(),
		"handle":    req.Handle,
		"satoshis":  sats,
		"rate":      rate.Rate.String(),
		"txid":      txid,
	})

	reconcile := func(cause error) error {
		return errors.NewReconciliation(op, "payment sent, registration pending", cause).
			With("txid", txid).
			With("handle", req.Handle)
	}

	done, err := r.registry.PaymentComplete(ctx, req.Handle, txid, req.Addresses.Reconciliation())
	if err != nil {
		return Result{}, reconcile(err)
	}
	if done.Success && done.Registered {
		return Result{Ref: txid}, nil
	}

	reg, err := r.registry.Register(ctx, req.Handle, req.Addresses.Registration())
	if err != nil {
		return Result{}, reconcile(err)
	}
	if !reg.Success {
		return Result{}, reconcile(errors.ErrRegistrationFailed)
	}
	return Result{Ref: txid}, nil
}
