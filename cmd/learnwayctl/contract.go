package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	contractdomain "github.com/smallbiznis/learnway/internal/contract/domain"
	orgdomain "github.com/smallbiznis/learnway/internal/organization/domain"
)

func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, want YYYY-MM-DD", value)
	}
	return &t, nil
}

func runContract(ctx context.Context, rt *runtime, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: learnwayctl contract create|modify [flags]")
		return exitNotFound
	}
	sub, rest := args[0], args[1:]

	switch sub {
	case "create":
		fs := flag.NewFlagSet("contract create", flag.ExitOnError)
		orgRef := fs.String("organization", "", "organization id, slug, or SSO uuid")
		name := fs.String("name", "", "contract name")
		integration := fs.String("integration", "non_sso", "integration type: sso or non_sso")
		start := fs.String("start", "", "start date YYYY-MM-DD")
		end := fs.String("end", "", "end date YYYY-MM-DD")
		maxLearners := fs.Int("max-learners", 0, "seat cap, 0 for unlimited")
		price := fs.Int64("price", 0, "fixed price in cents, 0 for free")
		description := fs.String("description", "", "contract description")
		create := fs.Bool("create", false, "create the organization if it does not exist")
		orgKey := fs.String("org-key", "", "org key used with --create")
		_ = fs.Parse(rest)

		org, err := rt.orgs.Resolve(ctx, *orgRef)
		if err != nil {
			if !errors.Is(err, orgdomain.ErrOrganizationUnknown) {
				return fail(err)
			}
			if !*create {
				return notFound(*orgRef)
			}
			org, err = rt.orgs.Create(ctx, orgdomain.CreateOrganizationRequest{
				Name:   *orgRef,
				OrgKey: *orgKey,
			})
			if err != nil {
				return fail(err)
			}
			fmt.Printf("organization created: %s\n", org.Slug)
		}

		startAt, err := parseDate(*start)
		if err != nil {
			return fail(err)
		}
		endAt, err := parseDate(*end)
		if err != nil {
			return fail(err)
		}

		req := contractdomain.CreateContractRequest{
			OrgID:           org.ID,
			Name:            *name,
			Description:     *description,
			IntegrationType: contractdomain.IntegrationType(*integration),
			StartAt:         startAt,
			EndAt:           endAt,
		}
		if *maxLearners > 0 {
			req.MaxLearners = maxLearners
		}
		if *price > 0 {
			req.FixedPriceCents = price
		}

		contract, err := rt.contracts.Create(ctx, req)
		if err != nil {
			return fail(err)
		}
		fmt.Printf("contract created: %s (%s)\n", contract.Slug, contract.ID)
		return exitOK

	case "modify":
		fs := flag.NewFlagSet("contract modify", flag.ExitOnError)
		contractRef := fs.String("contract", "", "contract id or slug")
		start := fs.String("start", "", "start date YYYY-MM-DD")
		end := fs.String("end", "", "end date YYYY-MM-DD")
		active := fs.Bool("active", false, "activate the contract")
		inactive := fs.Bool("inactive", false, "deactivate the contract")
		maxLearners := fs.Int("max-learners", 0, "seat cap")
		price := fs.Int64("price", 0, "fixed price in cents")
		noPrice := fs.Bool("no-price", false, "clear the fixed price")
		noCap := fs.Bool("no-learner-cap", false, "clear the seat cap")
		noStart := fs.Bool("no-start-date", false, "clear the start date")
		noEnd := fs.Bool("no-end-date", false, "clear the end date")
		_ = fs.Parse(rest)

		contract, err := rt.contracts.Resolve(ctx, *contractRef)
		if err != nil {
			if errors.Is(err, contractdomain.ErrContractNotFound) {
				return notFound(*contractRef)
			}
			return fail(err)
		}

		req := contractdomain.ModifyContractRequest{
			ClearStartAt:     *noStart,
			ClearEndAt:       *noEnd,
			ClearMaxLearners: *noCap,
			ClearFixedPrice:  *noPrice,
		}
		if req.StartAt, err = parseDate(*start); err != nil {
			return fail(err)
		}
		if req.EndAt, err = parseDate(*end); err != nil {
			return fail(err)
		}
		if *active {
			t := true
			req.Active = &t
		}
		if *inactive {
			f := false
			req.Active = &f
		}
		if *maxLearners > 0 {
			req.MaxLearners = maxLearners
		}
		if *price > 0 {
			req.FixedPriceCents = price
		}

		updated, err := rt.contracts.Modify(ctx, contract.ID, req)
		if err != nil {
			return fail(err)
		}
		fmt.Printf("contract modified: %s\n", updated.Slug)
		return exitOK

	default:
		fmt.Fprintln(os.Stderr, "unknown contract subcommand:", sub)
		return exitNotFound
	}
}
