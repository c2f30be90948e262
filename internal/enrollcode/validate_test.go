package enrollcode

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	contractdomain "github.com/smallbiznis/learnway/internal/contract/domain"
	discountdomain "github.com/smallbiznis/learnway/internal/discount/domain"
	"github.com/stretchr/testify/require"
)

func TestValidateCleanContract(t *testing.T) {
	env := setupReconciler(t)
	ctx := context.Background()

	contract, _ := env.seedContract(t, contractdomain.Contract{
		IntegrationType: contractdomain.IntegrationNonSSO,
		Active:          true,
		MaxLearners:     intp(2),
	})
	_, err := env.reconciler.EnsureEnrollmentCodesExist(ctx, contract.ID)
	require.NoError(t, err)

	report, err := env.reconciler.ValidateContract(ctx, contract.ID, false)
	require.NoError(t, err)
	require.True(t, report.Clean())
	require.False(t, report.Reconciled)
}

func TestValidateRepairsMissingProduct(t *testing.T) {
	env := setupReconciler(t)
	ctx := context.Background()

	contract, product := env.seedContract(t, contractdomain.Contract{
		IntegrationType: contractdomain.IntegrationNonSSO,
		Active:          true,
		MaxLearners:     intp(1),
	})
	require.NoError(t, env.products.Deactivate(ctx, product.ID))

	report, err := env.reconciler.ValidateContract(ctx, contract.ID, false)
	require.NoError(t, err)
	require.False(t, report.Clean())
	require.Zero(t, report.ProductsCreated)

	fixed, err := env.reconciler.ValidateContract(ctx, contract.ID, true)
	require.NoError(t, err)
	require.Equal(t, 1, fixed.ProductsCreated)
	require.True(t, fixed.Reconciled)
	require.NotNil(t, fixed.Result)
	require.Equal(t, 1, fixed.Result.Created)

	// The repaired contract now validates clean.
	clean, err := env.reconciler.ValidateContract(ctx, contract.ID, false)
	require.NoError(t, err)
	require.True(t, clean.Clean())
}

func TestValidateRepairsPriceDrift(t *testing.T) {
	env := setupReconciler(t)
	ctx := context.Background()

	contract, product := env.seedContract(t, contractdomain.Contract{
		IntegrationType: contractdomain.IntegrationNonSSO,
		Active:          true,
		FixedPriceCents: int64p(5000),
	})
	_, err := env.reconciler.EnsureEnrollmentCodesExist(ctx, contract.ID)
	require.NoError(t, err)

	require.NoError(t, env.products.UpdatePrice(ctx, product.ID, 1))

	fixed, err := env.reconciler.ValidateContract(ctx, contract.ID, true)
	require.NoError(t, err)
	require.Equal(t, 1, fixed.PricesRewritten)

	repaired, err := env.products.GetByID(ctx, product.ID)
	require.NoError(t, err)
	require.Equal(t, int64(5000), repaired.PriceCents)
}

func TestFindDuplicateRedemptions(t *testing.T) {
	env := setupReconciler(t)
	ctx := context.Background()

	contract, product := env.seedContract(t, contractdomain.Contract{
		IntegrationType: contractdomain.IntegrationNonSSO,
		Active:          true,
		MaxLearners:     intp(2),
	})
	_, err := env.reconciler.EnsureEnrollmentCodesExist(ctx, contract.ID)
	require.NoError(t, err)

	codes, err := env.discounts.ListDiscountsForProduct(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, codes, 2)

	// Two racing checkouts both redeemed the first one-time code; the
	// second code was redeemed once, as intended.
	for i := 0; i < 2; i++ {
		require.NoError(t, env.discounts.CreateRedemption(ctx, discountdomain.DiscountRedemption{
			ID:         env.node.Generate(),
			DiscountID: codes[0].ID,
			UserID:     env.node.Generate(),
			OrderID:    env.node.Generate(),
		}))
	}
	require.NoError(t, env.discounts.CreateRedemption(ctx, discountdomain.DiscountRedemption{
		ID:         env.node.Generate(),
		DiscountID: codes[1].ID,
		UserID:     env.node.Generate(),
		OrderID:    env.node.Generate(),
	}))

	dupes, err := env.reconciler.FindDuplicateRedemptions(ctx, contract.ID)
	require.NoError(t, err)
	require.Equal(t, []string{codes[0].Code}, dupes)
}

func TestExpireUnusedCodes(t *testing.T) {
	env := setupReconciler(t)
	ctx := context.Background()

	contract, product := env.seedContract(t, contractdomain.Contract{
		IntegrationType: contractdomain.IntegrationNonSSO,
		Active:          true,
		MaxLearners:     intp(2),
	})
	_, err := env.reconciler.EnsureEnrollmentCodesExist(ctx, contract.ID)
	require.NoError(t, err)

	codes, err := env.discounts.ListDiscountsForProduct(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, codes, 2)
	require.NoError(t, env.discounts.CreateRedemption(ctx, discountdomain.DiscountRedemption{
		ID:         env.node.Generate(),
		DiscountID: codes[0].ID,
		UserID:     env.node.Generate(),
		OrderID:    env.node.Generate(),
	}))

	dry, err := env.reconciler.ExpireUnusedCodes(ctx, contract.ID, true)
	require.NoError(t, err)
	require.Equal(t, []string{codes[1].Code}, dry)

	// Dry run touched nothing.
	still, err := env.discounts.GetByID(ctx, codes[1].ID)
	require.NoError(t, err)
	require.NotNil(t, still)

	affected, err := env.reconciler.ExpireUnusedCodes(ctx, contract.ID, false)
	require.NoError(t, err)
	require.Equal(t, []string{codes[1].Code}, affected)

	gone, err := env.discounts.GetByID(ctx, codes[1].ID)
	require.NoError(t, err)
	require.Nil(t, gone)

	kept, err := env.discounts.GetByID(ctx, codes[0].ID)
	require.NoError(t, err)
	require.NotNil(t, kept)
}

func TestOutputCodesJSONUsableRemaining(t *testing.T) {
	env := setupReconciler(t)
	ctx := context.Background()

	contract, product := env.seedContract(t, contractdomain.Contract{
		IntegrationType: contractdomain.IntegrationNonSSO,
		Active:          true,
		MaxLearners:     intp(3),
	})
	_, err := env.reconciler.EnsureEnrollmentCodesExist(ctx, contract.ID)
	require.NoError(t, err)

	codes, err := env.discounts.ListDiscountsForProduct(ctx, product.ID)
	require.NoError(t, err)
	require.NoError(t, env.discounts.CreateRedemption(ctx, discountdomain.DiscountRedemption{
		ID:         env.node.Generate(),
		DiscountID: codes[0].ID,
		UserID:     env.node.Generate(),
		OrderID:    env.node.Generate(),
	}))
	require.NoError(t, env.contracts.AddLearner(ctx, contractdomain.ContractLearner{
		ID:         env.node.Generate(),
		ContractID: contract.ID,
		UserID:     env.node.Generate(),
	}))

	var buf bytes.Buffer
	err = env.reconciler.OutputCodes(ctx, &buf, contract.ID, OutputOptions{Format: "json"})
	require.NoError(t, err)

	// Three seats, one learner attached, one code redeemed: two unredeemed
	// codes remain and both fit under the remaining-seat cap of two.
	var rows []CodeRow
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 2)
	for _, row := range rows {
		require.Zero(t, row.Redemptions)
	}

	buf.Reset()
	err = env.reconciler.OutputCodes(ctx, &buf, contract.ID, OutputOptions{Format: "json", FullHistory: true})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 3)
}

func TestOutputCodesCSVHeader(t *testing.T) {
	env := setupReconciler(t)
	ctx := context.Background()

	contract, _ := env.seedContract(t, contractdomain.Contract{
		IntegrationType: contractdomain.IntegrationNonSSO,
		Active:          true,
		MaxLearners:     intp(1),
	})
	_, err := env.reconciler.EnsureEnrollmentCodesExist(ctx, contract.ID)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, env.reconciler.OutputCodes(ctx, &buf, contract.ID, OutputOptions{Format: "csv"}))
	require.Contains(t, buf.String(), "code,policy,kind,amount,redemptions,created_at")
}
