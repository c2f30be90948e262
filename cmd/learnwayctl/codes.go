package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	contractdomain "github.com/smallbiznis/learnway/internal/contract/domain"
	"github.com/smallbiznis/learnway/internal/enrollcode"
	orgdomain "github.com/smallbiznis/learnway/internal/organization/domain"
)

// resolveContracts expands --contract or --organization into the set of
// contracts a codes subcommand operates on.
func resolveContracts(ctx context.Context, rt *runtime, contractRef, orgRef string) ([]contractdomain.Contract, int) {
	if contractRef != "" {
		contract, err := rt.contracts.Resolve(ctx, contractRef)
		if err != nil {
			if errors.Is(err, contractdomain.ErrContractNotFound) {
				return nil, notFound(contractRef)
			}
			return nil, fail(err)
		}
		return []contractdomain.Contract{*contract}, exitOK
	}
	if orgRef != "" {
		org, err := rt.orgs.Resolve(ctx, orgRef)
		if err != nil {
			if errors.Is(err, orgdomain.ErrOrganizationUnknown) {
				return nil, notFound(orgRef)
			}
			return nil, fail(err)
		}
		contracts, err := rt.contracts.List(ctx, org.ID)
		if err != nil {
			return nil, fail(err)
		}
		return contracts, exitOK
	}
	fmt.Fprintln(os.Stderr, "one of --contract or --organization is required")
	return nil, exitNotFound
}

func runCodes(ctx context.Context, rt *runtime, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: learnwayctl codes check|output|validate|expire [flags]")
		return exitNotFound
	}
	sub, rest := args[0], args[1:]

	fs := flag.NewFlagSet("codes "+sub, flag.ExitOnError)
	contractRef := fs.String("contract", "", "contract id or slug")
	orgRef := fs.String("organization", "", "organization id, slug, or SSO uuid")
	format := fs.String("format", "", "output format: json, csv, or fancy")
	filename := fs.String("filename", "", "write output to a file instead of stdout")
	fix := fs.Bool("fix", false, "repair issues found by validate")
	full := fs.Bool("full", false, "output full redemption history")
	expire := fs.Bool("expire", false, "actually expire codes (default is dry run)")
	_ = fs.Parse(rest)

	contracts, code := resolveContracts(ctx, rt, *contractRef, *orgRef)
	if code != exitOK {
		return code
	}

	switch sub {
	case "check":
		exit := exitOK
		for _, contract := range contracts {
			result, err := rt.reconciler.EnsureEnrollmentCodesExist(ctx, contract.ID)
			if err != nil {
				return fail(err)
			}
			fmt.Printf("%s: created=%d updated=%d errors=%d\n",
				contract.Slug, result.Created, result.Updated, result.Errors)
			if result.Errors > 0 {
				exit = exitFailed
			}
			dupes, err := rt.reconciler.FindDuplicateRedemptions(ctx, contract.ID)
			if err != nil {
				return fail(err)
			}
			for _, c := range dupes {
				fmt.Printf("  duplicate redemption: %s\n", c)
			}
			if len(dupes) > 0 {
				exit = exitFailed
			}
		}
		return exit

	case "validate":
		exit := exitOK
		for _, contract := range contracts {
			report, err := rt.reconciler.ValidateContract(ctx, contract.ID, *fix)
			if err != nil {
				return fail(err)
			}
			overfull, err := rt.contracts.IsOverfull(ctx, contract)
			if err != nil {
				return fail(err)
			}
			status := "OK"
			if !report.Clean() || overfull {
				status = "FAILED"
				if !*fix {
					exit = exitFailed
				}
			}
			fmt.Printf("%s: %s\n", contract.Slug, status)
			for _, issue := range report.Issues {
				fmt.Printf("  - %s\n", issue)
			}
			if overfull {
				fmt.Println("  - contract is overfull")
			}
		}
		return exit

	case "expire":
		for _, contract := range contracts {
			affected, err := rt.reconciler.ExpireUnusedCodes(ctx, contract.ID, !*expire)
			if err != nil {
				return fail(err)
			}
			verb := "would expire"
			if *expire {
				verb = "expired"
			}
			fmt.Printf("%s: %s %d codes\n", contract.Slug, verb, len(affected))
			for _, c := range affected {
				fmt.Printf("  %s\n", c)
			}
		}
		return exitOK

	case "output":
		out := os.Stdout
		if *filename != "" {
			f, err := os.Create(*filename)
			if err != nil {
				return fail(err)
			}
			defer f.Close()
			out = f
		}
		for _, contract := range contracts {
			err := rt.reconciler.OutputCodes(ctx, out, contract.ID, enrollcode.OutputOptions{
				Format:      *format,
				FullHistory: *full,
			})
			if err != nil {
				return fail(err)
			}
		}
		return exitOK

	default:
		fmt.Fprintln(os.Stderr, "unknown codes subcommand:", sub)
		return exitNotFound
	}
}
