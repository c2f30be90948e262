package enrollcode

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	contractdomain "github.com/smallbiznis/learnway/internal/contract/domain"
	productdomain "github.com/smallbiznis/learnway/internal/product/domain"
	"go.uber.org/zap"
)

// ValidationReport lists what diverges from the expected state of a
// contract and what, if anything, was repaired.
type ValidationReport struct {
	ContractID      string   `json:"contract_id"`
	Issues          []string `json:"issues"`
	ProductsCreated int      `json:"products_created"`
	PricesRewritten int      `json:"prices_rewritten"`
	Reconciled      bool     `json:"reconciled"`
	Result          *Result  `json:"result,omitempty"`
}

// Clean reports whether the contract passed with nothing to repair.
func (v ValidationReport) Clean() bool {
	return len(v.Issues) == 0
}

// ValidateContract checks a contract's runs, products, and codes
// against their expected state. With fix set it repairs products and
// prices directly and delegates code repair to the reconciler.
func (r *Reconciler) ValidateContract(ctx context.Context, contractID snowflake.ID, fix bool) (ValidationReport, error) {
	report := ValidationReport{ContractID: contractID.String()}

	contract, err := r.contracts.GetByID(ctx, contractID)
	if err != nil {
		return report, err
	}
	if contract == nil {
		return report, ErrContractNotFound
	}

	price := int64(0)
	if cents, ok := contract.PriceCents(); ok {
		price = cents
	}

	runs, err := r.courseware.ListContractRuns(ctx, contractID)
	if err != nil {
		return report, err
	}

	for _, run := range runs {
		product, err := r.products.GetActiveByRun(ctx, run.ID)
		if err != nil {
			return report, err
		}
		if product == nil {
			report.Issues = append(report.Issues,
				fmt.Sprintf("run %s has no active product", run.ReadableID))
			if !fix {
				continue
			}
			if err := r.products.Create(ctx, productdomain.Product{
				ID:          r.genID.Generate(),
				CourseRunID: run.ID,
				PriceCents:  price,
				Description: run.Title,
				Active:      true,
			}); err != nil {
				return report, err
			}
			report.ProductsCreated++
			continue
		}
		if product.PriceCents != price {
			report.Issues = append(report.Issues,
				fmt.Sprintf("product %s priced %d, contract calls for %d", product.ID, product.PriceCents, price))
			if !fix {
				continue
			}
			if err := r.products.UpdatePrice(ctx, product.ID, price); err != nil {
				return report, err
			}
			report.PricesRewritten++
		}
	}

	codeIssues, err := r.auditCodes(ctx, *contract)
	if err != nil {
		return report, err
	}
	report.Issues = append(report.Issues, codeIssues...)

	if fix && (len(codeIssues) > 0 || report.ProductsCreated > 0) {
		result, err := r.EnsureEnrollmentCodesExist(ctx, contractID)
		if err != nil {
			return report, err
		}
		report.Reconciled = true
		report.Result = &result
	}

	if !report.Clean() {
		r.log.Warn("contract validation found issues",
			zap.String("contract_id", contractID.String()),
			zap.Int("issues", len(report.Issues)),
			zap.Bool("fixed", fix),
		)
	}
	return report, nil
}

// FindDuplicateRedemptions reports one-time codes of a contract that
// were redeemed more than once. Each offender is logged with its code
// and discount id.
func (r *Reconciler) FindDuplicateRedemptions(ctx context.Context, contractID snowflake.ID) ([]string, error) {
	over, err := r.discounts.ListOverRedeemed(ctx, contractID)
	if err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(over))
	for _, d := range over {
		r.log.Warn("one-time code redeemed more than once",
			zap.String("contract_id", contractID.String()),
			zap.String("discount_id", d.ID.String()),
			zap.String("code", d.Code),
		)
		codes = append(codes, d.Code)
	}
	return codes, nil
}

// auditCodes compares the code population of every product with the
// decision table without mutating anything.
func (r *Reconciler) auditCodes(ctx context.Context, contract contractdomain.Contract) ([]string, error) {
	var issues []string

	products, err := r.contractProducts(ctx, r.db, contract.ID)
	if err != nil {
		return nil, err
	}

	tgt, wantCodes := targetFor(contract)
	for _, product := range products {
		codes, err := r.discounts.ListDiscountsForProduct(ctx, product.ID)
		if err != nil {
			return nil, err
		}
		if !wantCodes {
			if len(codes) > 0 {
				issues = append(issues,
					fmt.Sprintf("product %s carries %d codes but the contract is SSO-free", product.ID, len(codes)))
			}
			continue
		}
		if len(codes) != tgt.count {
			issues = append(issues,
				fmt.Sprintf("product %s has %d codes, expected %d", product.ID, len(codes), tgt.count))
		}
		for _, code := range codes {
			if code.Policy != tgt.policy || code.Amount != tgt.amount || code.Kind != tgt.kind {
				issues = append(issues,
					fmt.Sprintf("code %s diverges from contract settings", code.Code))
			}
		}
	}
	return issues, nil
}
