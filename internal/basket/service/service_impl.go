// Package service implements basket validation and the B2B checkout
// gate. The validator reads only from the data store; anything needing
// network I/O happens in async jobs instead.
package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	basketdomain "github.com/smallbiznis/learnway/internal/basket/domain"
	"github.com/smallbiznis/learnway/internal/clock"
	contractdomain "github.com/smallbiznis/learnway/internal/contract/domain"
	coursewaredomain "github.com/smallbiznis/learnway/internal/courseware/domain"
	discountdomain "github.com/smallbiznis/learnway/internal/discount/domain"
	enrollmentdomain "github.com/smallbiznis/learnway/internal/enrollment/domain"
	obsmetrics "github.com/smallbiznis/learnway/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/learnway/internal/order/domain"
	productdomain "github.com/smallbiznis/learnway/internal/product/domain"
	userdomain "github.com/smallbiznis/learnway/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	log         *zap.Logger
	db          *gorm.DB
	genID       *snowflake.Node
	clock       clock.Clock
	metrics     *obsmetrics.Metrics
	baskets     basketdomain.Repository
	contracts   contractdomain.Repository
	courseware  coursewaredomain.Repository
	products    productdomain.Repository
	discounts   discountdomain.Repository
	orders      orderdomain.Repository
	enrollments enrollmentdomain.Repository
	users       userdomain.Repository
}

type ServiceParam struct {
	fx.In

	Log         *zap.Logger
	DB          *gorm.DB
	GenID       *snowflake.Node
	Clock       clock.Clock
	Metrics     *obsmetrics.Metrics `optional:"true"`
	Baskets     basketdomain.Repository
	Contracts   contractdomain.Repository
	Courseware  coursewaredomain.Repository
	Products    productdomain.Repository
	Discounts   discountdomain.Repository
	Orders      orderdomain.Repository
	Enrollments enrollmentdomain.Repository
	Users       userdomain.Repository
}

func NewService(p ServiceParam) *Service {
	return &Service{
		log:         p.Log.Named("basket.service"),
		db:          p.DB,
		genID:       p.GenID,
		clock:       p.Clock,
		metrics:     p.Metrics,
		baskets:     p.Baskets,
		contracts:   p.Contracts,
		courseware:  p.Courseware,
		products:    p.Products,
		discounts:   p.Discounts,
		orders:      p.Orders,
		enrollments: p.Enrollments,
		users:       p.Users,
	}
}

// basketLine pairs a basket item with its resolved product and run.
type basketLine struct {
	product productdomain.Product
	run     *coursewaredomain.CourseRun
}

func (s *Service) loadLines(ctx context.Context, basketID snowflake.ID) ([]basketLine, error) {
	items, err := s.baskets.ListItems(ctx, basketID)
	if err != nil {
		return nil, err
	}
	lines := make([]basketLine, 0, len(items))
	for _, item := range items {
		product, err := s.products.GetByID(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		if product == nil {
			continue
		}
		run, err := s.courseware.GetRun(ctx, product.CourseRunID)
		if err != nil {
			return nil, err
		}
		lines = append(lines, basketLine{product: *product, run: run})
	}
	return lines, nil
}

// ValidateForB2BPurchase applies the coverage rule: every active
// contract represented in the basket must be covered by at least one
// attached discount that is valid for the user. Baskets without B2B
// items pass; other validation layers cover them.
func (s *Service) ValidateForB2BPurchase(ctx context.Context, basketID, userID snowflake.ID) (bool, error) {
	lines, err := s.loadLines(ctx, basketID)
	if err != nil {
		return false, err
	}

	now := s.clock.Now()
	b2bContracts := make(map[snowflake.ID]contractdomain.Contract)
	for _, line := range lines {
		if line.run == nil || line.run.ContractID == nil {
			continue
		}
		contract, err := s.contracts.GetByID(ctx, *line.run.ContractID)
		if err != nil {
			return false, err
		}
		// Inactive contracts drop out of the coverage check. A basket
		// assembled before deactivation still clears checkout.
		if contract == nil || !contract.IsActive(now) {
			continue
		}
		b2bContracts[contract.ID] = *contract
	}
	if len(b2bContracts) == 0 {
		return true, nil
	}

	attached, err := s.baskets.ListDiscounts(ctx, basketID)
	if err != nil {
		return false, err
	}

	covered := make(map[snowflake.ID]bool)
	usable := 0
	for _, link := range attached {
		discount, err := s.discounts.GetByID(ctx, link.DiscountID)
		if err != nil {
			return false, err
		}
		if discount == nil {
			continue
		}
		valid, err := s.validForUser(ctx, *discount, userID)
		if err != nil {
			return false, err
		}
		if !valid {
			continue
		}
		contractID, err := s.discountContract(ctx, *discount, b2bContracts)
		if err != nil {
			return false, err
		}
		if contractID == 0 {
			continue
		}
		usable++
		covered[contractID] = true
	}

	if usable < len(b2bContracts) {
		return false, nil
	}
	for id := range b2bContracts {
		if !covered[id] {
			return false, nil
		}
	}
	return true, nil
}

// discountContract resolves which basket contract a discount covers, by
// intersecting its linked products with the contracts' products.
func (s *Service) discountContract(ctx context.Context, discount discountdomain.Discount, contracts map[snowflake.ID]contractdomain.Contract) (snowflake.ID, error) {
	if discount.ContractID != nil {
		if _, ok := contracts[*discount.ContractID]; ok {
			return *discount.ContractID, nil
		}
	}
	links, err := s.discounts.ListProductLinks(ctx, discount.ID)
	if err != nil {
		return 0, err
	}
	for _, link := range links {
		product, err := s.products.GetByID(ctx, link.ProductID)
		if err != nil {
			return 0, err
		}
		if product == nil {
			continue
		}
		run, err := s.courseware.GetRun(ctx, product.CourseRunID)
		if err != nil {
			return 0, err
		}
		if run == nil || run.ContractID == nil {
			continue
		}
		if _, ok := contracts[*run.ContractID]; ok {
			return *run.ContractID, nil
		}
	}
	return 0, nil
}

// validForUser checks the activation window and the redemption policy
// against what the user has already redeemed.
func (s *Service) validForUser(ctx context.Context, discount discountdomain.Discount, userID snowflake.ID) (bool, error) {
	if !discount.ValidNow(s.clock.Now()) {
		return false, nil
	}
	switch discount.Policy {
	case discountdomain.PolicyUnlimited:
		return true, nil
	case discountdomain.PolicyOneTime:
		count, err := s.discounts.CountRedemptions(ctx, discount.ID)
		if err != nil {
			return false, err
		}
		return count == 0, nil
	case discountdomain.PolicyOneTimePerUser:
		count, err := s.discounts.CountRedemptionsByUser(ctx, discount.ID, userID)
		if err != nil {
			return false, err
		}
		return count == 0, nil
	default:
		return false, nil
	}
}

// HasDuplicatePurchase reports whether any run in the basket was
// already bought by the user on a fulfilled order.
func (s *Service) HasDuplicatePurchase(ctx context.Context, basketID, userID snowflake.ID) (bool, error) {
	lines, err := s.loadLines(ctx, basketID)
	if err != nil {
		return false, err
	}
	for _, line := range lines {
		bought, err := s.orders.HasFulfilledProduct(ctx, userID, line.product.ID)
		if err != nil {
			return false, err
		}
		if bought {
			return true, nil
		}
	}
	return false, nil
}

// IsCountryBlockedForUser reports whether any course in the basket is
// blocked for the user's legal-address country.
func (s *Service) IsCountryBlockedForUser(ctx context.Context, basketID snowflake.ID, user userdomain.User) (bool, error) {
	lines, err := s.loadLines(ctx, basketID)
	if err != nil {
		return false, err
	}
	for _, line := range lines {
		if line.run == nil {
			continue
		}
		blocked, err := s.courseware.IsCountryBlocked(ctx, line.run.CourseID, user.CountryCode)
		if err != nil {
			return false, err
		}
		if blocked {
			return true, nil
		}
	}
	return false, nil
}

// Total computes the basket total after applying the best attached
// discount to each line. Discounts apply per product link.
func (s *Service) Total(ctx context.Context, basketID, userID snowflake.ID) (int64, error) {
	lines, err := s.loadLines(ctx, basketID)
	if err != nil {
		return 0, err
	}
	attached, err := s.baskets.ListDiscounts(ctx, basketID)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, line := range lines {
		price := line.product.PriceCents
		for _, link := range attached {
			discount, err := s.discounts.GetByID(ctx, link.DiscountID)
			if err != nil {
				return 0, err
			}
			if discount == nil {
				continue
			}
			valid, err := s.validForUser(ctx, *discount, userID)
			if err != nil {
				return 0, err
			}
			if !valid {
				continue
			}
			applies, err := s.discountCoversProduct(ctx, discount.ID, line.product.ID)
			if err != nil {
				return 0, err
			}
			if !applies {
				continue
			}
			if discounted := discount.ApplyTo(line.product.PriceCents); discounted < price {
				price = discounted
			}
		}
		total += price
	}
	return total, nil
}

func (s *Service) discountCoversProduct(ctx context.Context, discountID, productID snowflake.ID) (bool, error) {
	links, err := s.discounts.ListProductLinks(ctx, discountID)
	if err != nil {
		return false, err
	}
	for _, link := range links {
		if link.ProductID == productID {
			return true, nil
		}
	}
	return false, nil
}
