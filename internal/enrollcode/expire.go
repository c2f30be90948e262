package enrollcode

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

// ExpireUnusedCodes detaches every unredeemed code from the contract's
// products and deletes the ones that end up orphaned. With dryRun the
// same set is computed but nothing is touched. Returns the affected
// code strings.
func (r *Reconciler) ExpireUnusedCodes(ctx context.Context, contractID snowflake.ID, dryRun bool) ([]string, error) {
	contract, err := r.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, ErrContractNotFound
	}

	products, err := r.contractProducts(ctx, r.db, contractID)
	if err != nil {
		return nil, err
	}

	var affected []string
	seen := make(map[snowflake.ID]bool)

	for _, product := range products {
		codes, err := r.discounts.ListDiscountsForProduct(ctx, product.ID)
		if err != nil {
			return nil, err
		}
		for _, code := range codes {
			redeemed, err := r.discounts.CountRedemptions(ctx, code.ID)
			if err != nil {
				return nil, err
			}
			if redeemed > 0 {
				continue
			}
			if !seen[code.ID] {
				seen[code.ID] = true
				affected = append(affected, code.Code)
			}
			if dryRun {
				continue
			}
			if err := r.discounts.UnlinkProduct(ctx, code.ID, product.ID); err != nil {
				return nil, err
			}
			remaining, err := r.discounts.CountProductLinks(ctx, code.ID)
			if err != nil {
				return nil, err
			}
			if remaining == 0 {
				if err := r.discounts.Delete(ctx, code.ID); err != nil {
					return nil, err
				}
			}
		}
	}

	r.log.Info("expire pass complete",
		zap.String("contract_id", contractID.String()),
		zap.Int("affected", len(affected)),
		zap.Bool("dry_run", dryRun),
	)
	return affected, nil
}
