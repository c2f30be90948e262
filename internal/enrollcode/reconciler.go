// Package enrollcode keeps a contract's discount-code population in
// line with its seat cap, price, and integration type. The reconciler
// is idempotent and safe to run after any contract mutation.
package enrollcode

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/learnway/internal/clock"
	"github.com/smallbiznis/learnway/internal/config"
	contractdomain "github.com/smallbiznis/learnway/internal/contract/domain"
	coursewaredomain "github.com/smallbiznis/learnway/internal/courseware/domain"
	discountdomain "github.com/smallbiznis/learnway/internal/discount/domain"
	obsmetrics "github.com/smallbiznis/learnway/internal/observability/metrics"
	productdomain "github.com/smallbiznis/learnway/internal/product/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrContractNotFound = errors.New("contract_not_found")

// Result is the outcome of one reconcile pass. Surplus warnings count
// as errors so monitoring picks them up without failing the pass.
type Result struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Errors  int `json:"errors"`
}

type Reconciler struct {
	log        *zap.Logger
	db         *gorm.DB
	genID      *snowflake.Node
	clock      clock.Clock
	cfg        *config.B2BConfigHolder
	metrics    *obsmetrics.Metrics
	contracts  contractdomain.Repository
	courseware coursewaredomain.Repository
	products   productdomain.Repository
	discounts  discountdomain.Repository
}

type ReconcilerParam struct {
	fx.In

	Log        *zap.Logger
	DB         *gorm.DB
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        *config.B2BConfigHolder
	Metrics    *obsmetrics.Metrics `optional:"true"`
	Contracts  contractdomain.Repository
	Courseware coursewaredomain.Repository
	Products   productdomain.Repository
	Discounts  discountdomain.Repository
}

func New(p ReconcilerParam) *Reconciler {
	return &Reconciler{
		log:        p.Log.Named("enrollcode.reconciler"),
		db:         p.DB,
		genID:      p.GenID,
		clock:      p.Clock,
		cfg:        p.Cfg,
		metrics:    p.Metrics,
		contracts:  p.Contracts,
		courseware: p.Courseware,
		products:   p.Products,
		discounts:  p.Discounts,
	}
}

// target is the desired shape of every code linked to one product.
type target struct {
	count  int
	policy discountdomain.Policy
	kind   discountdomain.Kind
	amount int64
	isBulk bool
}

// targetFor derives the desired code population per product. The second
// return is false for the one row of the decision table that carries no
// codes at all.
func targetFor(contract contractdomain.Contract) (target, bool) {
	if contract.IsSSOFree() {
		return target{}, false
	}

	amount := int64(0)
	if cents, ok := contract.PriceCents(); ok {
		amount = cents
	}

	if limit, capped := contract.SeatLimit(); capped {
		return target{
			count:  limit,
			policy: discountdomain.PolicyOneTime,
			kind:   discountdomain.KindFixedPrice,
			amount: amount,
			isBulk: true,
		}, true
	}
	return target{
		count:  1,
		policy: discountdomain.PolicyUnlimited,
		kind:   discountdomain.KindFixedPrice,
		amount: amount,
		isBulk: false,
	}, true
}

// EnsureEnrollmentCodesExist brings the contract's codes into line with
// the decision table. The whole pass runs in one transaction holding the
// contract row lock, so duplicate requests serialize behind it.
func (r *Reconciler) EnsureEnrollmentCodesExist(ctx context.Context, contractID snowflake.ID) (Result, error) {
	var result Result

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		contracts := r.contracts.WithTx(tx)

		if err := contracts.LockByID(ctx, tx, contractID); err != nil {
			return err
		}
		contract, err := contracts.GetByID(ctx, contractID)
		if err != nil {
			return err
		}
		if contract == nil {
			return ErrContractNotFound
		}

		products, err := r.contractProducts(ctx, tx, contractID)
		if err != nil {
			return err
		}

		tgt, wantCodes := targetFor(*contract)
		for _, product := range products {
			var created, updated, errs int
			var perr error
			if wantCodes {
				created, updated, errs, perr = r.reconcileProduct(ctx, tx, *contract, product, tgt)
			} else {
				updated, perr = r.teardownProduct(ctx, tx, *contract, product)
			}
			if perr != nil {
				// One product failing does not doom the others.
				r.log.Error("product reconcile failed",
					zap.String("contract_id", contract.ID.String()),
					zap.String("product_id", product.ID.String()),
					zap.Error(perr),
				)
				result.Errors++
				continue
			}
			result.Created += created
			result.Updated += updated
			result.Errors += errs
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	r.metrics.RecordReconcile(ctx, int64(result.Created), int64(result.Updated), int64(result.Errors))
	r.log.Info("reconcile pass complete",
		zap.String("contract_id", contractID.String()),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("errors", result.Errors),
	)
	return result, nil
}

// contractProducts returns active products of the contract's runs in
// primary-key order. The order is load-bearing: counters must be
// reproducible across runs.
func (r *Reconciler) contractProducts(ctx context.Context, tx *gorm.DB, contractID snowflake.ID) ([]productdomain.Product, error) {
	runs, err := r.courseware.WithTx(tx).ListContractRuns(ctx, contractID)
	if err != nil {
		return nil, err
	}
	runIDs := make([]snowflake.ID, 0, len(runs))
	for _, run := range runs {
		runIDs = append(runIDs, run.ID)
	}
	return r.products.WithTx(tx).ListActiveByRuns(ctx, runIDs)
}

func (r *Reconciler) reconcileProduct(ctx context.Context, tx *gorm.DB, contract contractdomain.Contract, product productdomain.Product, tgt target) (created, updated, errs int, err error) {
	discounts := r.discounts.WithTx(tx)

	existing, err := discounts.ListDiscountsForProduct(ctx, product.ID)
	if err != nil {
		return 0, 0, 0, err
	}

	deficit := tgt.count - len(existing)
	switch {
	case deficit > 0:
		for i := 0; i < deficit; i++ {
			code := discountdomain.Discount{
				ID:              r.genID.Generate(),
				Code:            uuid.NewString(),
				Kind:            tgt.kind,
				Amount:          tgt.amount,
				Policy:          tgt.policy,
				PaymentCategory: discountdomain.PaymentCategoryEnrollmentCode,
				ContractID:      &contract.ID,
				IsBulk:          tgt.isBulk,
			}
			if err := discounts.Create(ctx, code); err != nil {
				return created, updated, errs, err
			}
			if err := discounts.LinkProduct(ctx, discountdomain.DiscountProduct{
				ID:         r.genID.Generate(),
				DiscountID: code.ID,
				ProductID:  product.ID,
			}); err != nil {
				return created, updated, errs, err
			}
			created++
		}
	case deficit < 0:
		// Surplus codes may already be in learners' hands. Never delete
		// them here; warn and move on.
		r.log.Warn("product has more codes than the contract calls for",
			zap.String("contract_id", contract.ID.String()),
			zap.String("product_id", product.ID.String()),
			zap.Int("existing", len(existing)),
			zap.Int("target", tgt.count),
		)
		errs++
	}

	for _, code := range existing {
		changed := code.Kind != tgt.kind ||
			code.Amount != tgt.amount ||
			code.Policy != tgt.policy ||
			code.PaymentCategory != discountdomain.PaymentCategoryEnrollmentCode ||
			code.IsBulk != tgt.isBulk ||
			code.ContractID == nil || *code.ContractID != contract.ID
		if !changed {
			continue
		}
		code.Kind = tgt.kind
		code.Amount = tgt.amount
		code.Policy = tgt.policy
		code.PaymentCategory = discountdomain.PaymentCategoryEnrollmentCode
		code.IsBulk = tgt.isBulk
		code.ContractID = &contract.ID
		if err := discounts.Save(ctx, code); err != nil {
			return created, updated, errs, err
		}
		updated++
	}
	return created, updated, errs, nil
}

// teardownProduct removes the contract's codes for the SSO-free row of
// the decision table. A code is deleted only when it loses its last
// product link and was never redeemed; anything else keeps its history.
func (r *Reconciler) teardownProduct(ctx context.Context, tx *gorm.DB, contract contractdomain.Contract, product productdomain.Product) (updated int, err error) {
	discounts := r.discounts.WithTx(tx)

	existing, err := discounts.ListDiscountsForProduct(ctx, product.ID)
	if err != nil {
		return 0, err
	}

	for _, code := range existing {
		if err := discounts.UnlinkProduct(ctx, code.ID, product.ID); err != nil {
			return updated, err
		}
		updated++

		remaining, err := discounts.CountProductLinks(ctx, code.ID)
		if err != nil {
			return updated, err
		}
		if remaining > 0 {
			continue
		}
		redeemed, err := discounts.CountRedemptions(ctx, code.ID)
		if err != nil {
			return updated, err
		}
		if redeemed > 0 {
			continue
		}
		if err := discounts.Delete(ctx, code.ID); err != nil {
			return updated, err
		}
		r.log.Info("unused code deleted",
			zap.String("contract_id", contract.ID.String()),
			zap.String("code", code.Code),
		)
	}
	return updated, nil
}
