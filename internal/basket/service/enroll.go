package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	basketdomain "github.com/smallbiznis/learnway/internal/basket/domain"
	enrollmentdomain "github.com/smallbiznis/learnway/internal/enrollment/domain"
	"go.uber.org/zap"
)

// EnrollRunForUser drives the enroll endpoint. The returned outcome is
// a discriminated union; only genuinely unexpected failures surface as
// errors.
func (s *Service) EnrollRunForUser(ctx context.Context, userID snowflake.ID, runReadableID string) (basketdomain.EnrollOutcome, error) {
	run, err := s.courseware.GetRunByReadableID(ctx, runReadableID)
	if err != nil {
		return basketdomain.EnrollOutcome{}, err
	}
	if run == nil {
		return basketdomain.EnrollOutcome{}, basketdomain.ErrRunNotFound
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return basketdomain.EnrollOutcome{}, err
	}
	if user == nil {
		return basketdomain.EnrollOutcome{}, basketdomain.ErrUserNotFound
	}

	blocked, err := s.courseware.IsCountryBlocked(ctx, run.CourseID, user.CountryCode)
	if err != nil {
		return basketdomain.EnrollOutcome{}, err
	}
	if blocked {
		return basketdomain.EnrollOutcome{Result: basketdomain.ResultCountryBlocked}, nil
	}

	existing, err := s.enrollments.GetRunEnrollment(ctx, userID, run.ID)
	if err != nil {
		return basketdomain.EnrollOutcome{}, err
	}
	if existing != nil && existing.Active && existing.Mode == enrollmentdomain.ModeVerified {
		return basketdomain.EnrollOutcome{Result: basketdomain.ResultNonUpgradable}, nil
	}

	product, err := s.products.GetActiveByRun(ctx, run.ID)
	if err != nil {
		return basketdomain.EnrollOutcome{}, err
	}
	if product != nil {
		bought, err := s.orders.HasFulfilledProduct(ctx, userID, product.ID)
		if err != nil {
			return basketdomain.EnrollOutcome{}, err
		}
		if bought {
			return basketdomain.EnrollOutcome{Result: basketdomain.ResultDuplicate}, nil
		}
	}

	// A verified program enrollment short-circuits the code machinery.
	_, order, err := s.EnrollVerifiedProgramRun(ctx, userID, *run)
	if err == nil {
		return basketdomain.EnrollOutcome{
			Result:         basketdomain.ResultEnrolled,
			OrderID:        &order.ID,
			CheckoutResult: "program_fast_path",
		}, nil
	}
	if !errors.Is(err, basketdomain.ErrNoProgramEnrollment) {
		return basketdomain.EnrollOutcome{}, err
	}

	if run.ContractID == nil {
		return basketdomain.EnrollOutcome{Result: basketdomain.ResultBlocked}, nil
	}
	contract, err := s.contracts.GetByID(ctx, *run.ContractID)
	if err != nil {
		return basketdomain.EnrollOutcome{}, err
	}
	if contract == nil || !contract.IsActive(s.clock.Now()) {
		return basketdomain.EnrollOutcome{Result: basketdomain.ResultBlocked}, nil
	}
	if product == nil {
		return basketdomain.EnrollOutcome{Result: basketdomain.ResultBlocked}, nil
	}

	codes, err := s.discounts.ListDiscountsForProduct(ctx, product.ID)
	if err != nil {
		return basketdomain.EnrollOutcome{}, err
	}
	var usable *snowflake.ID
	var price int64 = product.PriceCents
	for _, code := range codes {
		valid, err := s.validForUser(ctx, code, userID)
		if err != nil {
			return basketdomain.EnrollOutcome{}, err
		}
		if !valid {
			continue
		}
		id := code.ID
		usable = &id
		price = code.ApplyTo(product.PriceCents)
		break
	}
	if usable == nil {
		return basketdomain.EnrollOutcome{Result: basketdomain.ResultDiscountInvalid}, nil
	}

	if price > 0 {
		// Payment happens in the commerce frontend; we only quote.
		return basketdomain.EnrollOutcome{
			Result:     basketdomain.ResultEnrolled,
			PriceCents: &price,
		}, nil
	}

	basket, err := s.openBasket(ctx, userID)
	if err != nil {
		return basketdomain.EnrollOutcome{}, err
	}
	if err := s.baskets.ClearItems(ctx, basket.ID); err != nil {
		return basketdomain.EnrollOutcome{}, err
	}
	if err := s.baskets.ClearDiscounts(ctx, basket.ID); err != nil {
		return basketdomain.EnrollOutcome{}, err
	}
	if err := s.baskets.AddItem(ctx, basketdomain.BasketItem{
		ID:        s.genID.Generate(),
		BasketID:  basket.ID,
		ProductID: product.ID,
	}); err != nil {
		return basketdomain.EnrollOutcome{}, err
	}
	if err := s.baskets.AttachDiscount(ctx, basketdomain.BasketDiscount{
		ID:         s.genID.Generate(),
		BasketID:   basket.ID,
		DiscountID: *usable,
	}); err != nil {
		return basketdomain.EnrollOutcome{}, err
	}

	ok, err := s.ValidateForB2BPurchase(ctx, basket.ID, userID)
	if err != nil {
		return basketdomain.EnrollOutcome{}, err
	}
	if !ok {
		return basketdomain.EnrollOutcome{Result: basketdomain.ResultDiscountInvalid}, nil
	}

	fulfilled, err := s.CheckoutZeroValue(ctx, basket.ID, userID)
	if err != nil {
		return basketdomain.EnrollOutcome{}, err
	}

	s.log.Info("b2b enrollment fulfilled",
		zap.String("user_id", userID.String()),
		zap.String("run", run.ReadableID),
		zap.String("order_id", fulfilled.ID.String()),
	)
	zero := int64(0)
	return basketdomain.EnrollOutcome{
		Result:         basketdomain.ResultPaymentZeroAccepted,
		OrderID:        &fulfilled.ID,
		PriceCents:     &zero,
		CheckoutResult: "zero_payment_accepted",
	}, nil
}

func (s *Service) openBasket(ctx context.Context, userID snowflake.ID) (*basketdomain.Basket, error) {
	basket, err := s.baskets.GetOpenByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if basket != nil {
		return basket, nil
	}
	fresh := basketdomain.Basket{
		ID:     s.genID.Generate(),
		UserID: userID,
		Status: basketdomain.StatusOpen,
	}
	if err := s.baskets.Create(ctx, fresh); err != nil {
		return nil, err
	}
	return &fresh, nil
}
