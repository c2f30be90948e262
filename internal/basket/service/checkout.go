package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	basketdomain "github.com/smallbiznis/learnway/internal/basket/domain"
	coursewaredomain "github.com/smallbiznis/learnway/internal/courseware/domain"
	discountdomain "github.com/smallbiznis/learnway/internal/discount/domain"
	enrollmentdomain "github.com/smallbiznis/learnway/internal/enrollment/domain"
	orderdomain "github.com/smallbiznis/learnway/internal/order/domain"
	"go.uber.org/zap"
)

// CheckoutZeroValue fulfills a fully discounted basket: it creates a
// fulfilled order at total 0, records redemptions for the discounts
// that zeroed it, enrolls the user into every run in verified mode, and
// closes the basket. Callers must have validated the basket first.
func (s *Service) CheckoutZeroValue(ctx context.Context, basketID, userID snowflake.ID) (*orderdomain.Order, error) {
	total, err := s.Total(ctx, basketID, userID)
	if err != nil {
		return nil, err
	}
	if total != 0 {
		return nil, basketdomain.ErrBasketNotZeroValue
	}

	lines, err := s.loadLines(ctx, basketID)
	if err != nil {
		return nil, err
	}
	attached, err := s.baskets.ListDiscounts(ctx, basketID)
	if err != nil {
		return nil, err
	}

	order := orderdomain.Order{
		ID:     s.genID.Generate(),
		UserID: userID,
		Status: orderdomain.StatusFulfilled,
	}
	orderLines := make([]orderdomain.OrderLine, 0, len(lines))
	for _, line := range lines {
		orderLines = append(orderLines, orderdomain.OrderLine{
			ID:         s.genID.Generate(),
			OrderID:    order.ID,
			ProductID:  line.product.ID,
			PriceCents: line.product.PriceCents,
			PaidCents:  0,
		})
	}

	if err := s.orders.Create(ctx, order, orderLines); err != nil {
		return nil, err
	}

	for _, link := range attached {
		discount, err := s.discounts.GetByID(ctx, link.DiscountID)
		if err != nil {
			return nil, err
		}
		if discount == nil {
			continue
		}
		if err := s.discounts.CreateRedemption(ctx, discountdomain.DiscountRedemption{
			ID:         s.genID.Generate(),
			DiscountID: discount.ID,
			UserID:     userID,
			OrderID:    order.ID,
		}); err != nil {
			return nil, err
		}
		s.metrics.RecordRedemption(ctx, string(discount.Policy))
	}

	for _, line := range lines {
		if err := s.enrollments.UpsertRunEnrollment(ctx, enrollmentdomain.CourseRunEnrollment{
			ID:          s.genID.Generate(),
			UserID:      userID,
			CourseRunID: line.product.CourseRunID,
			Mode:        enrollmentdomain.ModeVerified,
			Active:      true,
		}); err != nil {
			return nil, err
		}
	}

	if err := s.baskets.SetStatus(ctx, basketID, basketdomain.StatusCheckedOut); err != nil {
		return nil, err
	}

	s.metrics.RecordZeroCheckout(ctx)
	s.log.Info("zero-value checkout fulfilled",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", userID.String()),
		zap.Int("lines", len(orderLines)),
	)
	return &order, nil
}

// EnrollVerifiedProgramRun is the fast path: a learner holding a
// verified program enrollment gets a verified seat in one of the
// program's course runs through a synthetic zero-value checkout.
func (s *Service) EnrollVerifiedProgramRun(ctx context.Context, userID snowflake.ID, run coursewaredomain.CourseRun) (*enrollmentdomain.CourseRunEnrollment, *orderdomain.Order, error) {
	programs, err := s.courseware.ListProgramsByCourse(ctx, run.CourseID)
	if err != nil {
		return nil, nil, err
	}

	var programID snowflake.ID
	for _, program := range programs {
		enrollment, err := s.enrollments.GetProgramEnrollment(ctx, userID, program.ID)
		if err != nil {
			return nil, nil, err
		}
		if enrollment != nil && enrollment.Active && enrollment.Mode == enrollmentdomain.ModeVerified {
			programID = program.ID
			break
		}
	}
	if programID == 0 {
		return nil, nil, basketdomain.ErrNoProgramEnrollment
	}

	basket, err := s.baskets.GetOpenByUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if basket != nil {
		items, err := s.baskets.ListItems(ctx, basket.ID)
		if err != nil {
			return nil, nil, err
		}
		if len(items) > 0 {
			return nil, nil, basketdomain.ErrBasketNotEmpty
		}
	} else {
		fresh := basketdomain.Basket{
			ID:     s.genID.Generate(),
			UserID: userID,
			Status: basketdomain.StatusOpen,
		}
		if err := s.baskets.Create(ctx, fresh); err != nil {
			return nil, nil, err
		}
		basket = &fresh
	}

	product, err := s.products.GetActiveByRun(ctx, run.ID)
	if err != nil {
		return nil, nil, err
	}
	if product == nil {
		return nil, nil, basketdomain.ErrRunNotFound
	}

	discount, err := s.ensureProgramDiscount(ctx, programID, product.ID)
	if err != nil {
		return nil, nil, err
	}

	if err := s.baskets.ClearDiscounts(ctx, basket.ID); err != nil {
		return nil, nil, err
	}
	if err := s.baskets.AddItem(ctx, basketdomain.BasketItem{
		ID:        s.genID.Generate(),
		BasketID:  basket.ID,
		ProductID: product.ID,
	}); err != nil {
		return nil, nil, err
	}
	if err := s.baskets.AttachDiscount(ctx, basketdomain.BasketDiscount{
		ID:         s.genID.Generate(),
		BasketID:   basket.ID,
		DiscountID: discount.ID,
	}); err != nil {
		return nil, nil, err
	}

	order, err := s.CheckoutZeroValue(ctx, basket.ID, userID)
	if err != nil {
		return nil, nil, err
	}

	enrollment, err := s.enrollments.GetRunEnrollment(ctx, userID, run.ID)
	if err != nil {
		return nil, nil, err
	}
	if enrollment == nil {
		return nil, nil, basketdomain.ErrOrderIncomplete
	}
	return enrollment, order, nil
}

// ensureProgramDiscount returns the program's full-price discount,
// creating it on first use. One discount per program, unlimited policy,
// linked to products lazily as runs are enrolled.
func (s *Service) ensureProgramDiscount(ctx context.Context, programID, productID snowflake.ID) (*discountdomain.Discount, error) {
	code := fmt.Sprintf("program-%d", programID)
	discount, err := s.discounts.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if discount == nil {
		fresh := discountdomain.Discount{
			ID:              s.genID.Generate(),
			Code:            code,
			Kind:            discountdomain.KindPercentOff,
			Amount:          100,
			Policy:          discountdomain.PolicyUnlimited,
			PaymentCategory: discountdomain.PaymentCategoryEnrollmentCode,
		}
		if err := s.discounts.Create(ctx, fresh); err != nil {
			return nil, err
		}
		discount = &fresh
	}
	if err := s.discounts.LinkProduct(ctx, discountdomain.DiscountProduct{
		ID:         s.genID.Generate(),
		DiscountID: discount.ID,
		ProductID:  productID,
	}); err != nil {
		return nil, err
	}
	return discount, nil
}
