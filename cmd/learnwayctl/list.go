package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
)

func runList(ctx context.Context, rt *runtime, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: learnwayctl list organizations|contracts|courseware")
		return exitNotFound
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	switch args[0] {
	case "organizations":
		orgs, err := rt.orgs.List(ctx)
		if err != nil {
			return fail(err)
		}
		fmt.Fprintln(tw, "ID\tSLUG\tORG KEY\tNAME\tSSO")
		for _, org := range orgs {
			sso := "-"
			if org.SSOOrgID != nil {
				sso = *org.SSOOrgID
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", org.ID, org.Slug, org.OrgKey, org.Name, sso)
		}
		return exitOK

	case "contracts":
		contracts, err := rt.contracts.ListAll(ctx)
		if err != nil {
			return fail(err)
		}
		fmt.Fprintln(tw, "ID\tSLUG\tORG\tINTEGRATION\tACTIVE\tSEATS\tPRICE")
		for _, contract := range contracts {
			seats := "unlimited"
			if limit, capped := contract.SeatLimit(); capped {
				seats = fmt.Sprint(limit)
			}
			price := "free"
			if cents, priced := contract.PriceCents(); priced {
				price = fmt.Sprintf("%d", cents)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
				contract.ID, contract.Slug, contract.OrgID, contract.IntegrationType,
				contract.Active, seats, price)
		}
		return exitOK

	case "courseware":
		courses, err := rt.courseware.ListCourses(ctx)
		if err != nil {
			return fail(err)
		}
		fmt.Fprintln(tw, "ID\tREADABLE\tCODE\tTITLE")
		for _, course := range courses {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", course.ID, course.ReadableID, course.Code, course.Title)
		}
		return exitOK

	default:
		fmt.Fprintln(os.Stderr, "unknown list target:", args[0])
		return exitNotFound
	}
}
