package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	contractdomain "github.com/smallbiznis/learnway/internal/contract/domain"
	"github.com/smallbiznis/learnway/internal/courseware/provisioner"
)

// runCourseware links courses or whole programs to a contract. Program
// provisioning is pushed through the job queue so large programs do not
// block the operator's terminal.
func runCourseware(ctx context.Context, rt *runtime, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: learnwayctl courseware add|remove --contract <id|slug> <course|program> [--also <course|program> ...]")
		return exitNotFound
	}
	sub, rest := args[0], args[1:]

	fs := flag.NewFlagSet("courseware "+sub, flag.ExitOnError)
	contractRef := fs.String("contract", "", "contract id or slug")
	noCreateRuns := fs.Bool("no-create-runs", false, "link programs without provisioning runs")
	force := fs.Bool("force", false, "reprovision even when a run already exists")
	removeProgramRuns := fs.Bool("remove-program-runs", false, "also remove runs provisioned for program courses")
	var also multiFlag
	fs.Var(&also, "also", "additional course or program (repeatable)")
	_ = fs.Parse(rest)

	refs := append(fs.Args(), also...)
	if len(refs) == 0 {
		fmt.Fprintln(os.Stderr, "at least one course or program is required")
		return exitNotFound
	}

	contract, err := rt.contracts.Resolve(ctx, *contractRef)
	if err != nil {
		if errors.Is(err, contractdomain.ErrContractNotFound) {
			return notFound(*contractRef)
		}
		return fail(err)
	}

	switch sub {
	case "add":
		for _, ref := range refs {
			if code := addOne(ctx, rt, *contract, ref, *noCreateRuns, *force); code != exitOK {
				return code
			}
		}
		return exitOK
	case "remove":
		for _, ref := range refs {
			if code := removeOne(ctx, rt, *contract, ref, *removeProgramRuns); code != exitOK {
				return code
			}
		}
		return exitOK
	default:
		fmt.Fprintln(os.Stderr, "unknown courseware subcommand:", sub)
		return exitNotFound
	}
}

func addOne(ctx context.Context, rt *runtime, contract contractdomain.Contract, ref string, noCreateRuns, force bool) int {
	if program, err := rt.courseware.GetProgramByReadableID(ctx, ref); err != nil {
		return fail(err)
	} else if program != nil {
		if err := rt.jobs.EnqueueProgramRuns(ctx, contract.ID, program.ID); err != nil {
			return fail(err)
		}
		fmt.Printf("program %s queued for provisioning\n", program.ReadableID)
		return exitOK
	}

	course, err := rt.courseware.GetCourseByReadableID(ctx, ref)
	if err != nil {
		return fail(err)
	}
	if course == nil {
		return notFound(ref)
	}
	if noCreateRuns {
		fmt.Printf("course %s linked, runs skipped\n", course.ReadableID)
		return exitOK
	}

	run, err := rt.provisioner.CreateContractRun(ctx, contract, course.ID)
	if errors.Is(err, provisioner.ErrTargetCourseRunExists) {
		if !force {
			fmt.Printf("course %s already provisioned\n", course.ReadableID)
			return exitOK
		}
		if err := rt.provisioner.RemoveContractRun(ctx, contract, course.ID); err != nil {
			return fail(err)
		}
		run, err = rt.provisioner.CreateContractRun(ctx, contract, course.ID)
	}
	if err != nil {
		return fail(err)
	}
	fmt.Printf("run created: %s\n", run.CoursewareID)
	return exitOK
}

func removeOne(ctx context.Context, rt *runtime, contract contractdomain.Contract, ref string, removeProgramRuns bool) int {
	if program, err := rt.courseware.GetProgramByReadableID(ctx, ref); err != nil {
		return fail(err)
	} else if program != nil {
		if !removeProgramRuns {
			fmt.Printf("program %s left linked, pass --remove-program-runs to remove its runs\n", program.ReadableID)
			return exitOK
		}
		courses, err := rt.courseware.ListProgramCourses(ctx, program.ID)
		if err != nil {
			return fail(err)
		}
		for _, course := range courses {
			if err := rt.provisioner.RemoveContractRun(ctx, contract, course.ID); err != nil {
				return fail(err)
			}
		}
		fmt.Printf("program %s runs removed\n", program.ReadableID)
		return exitOK
	}

	course, err := rt.courseware.GetCourseByReadableID(ctx, ref)
	if err != nil {
		return fail(err)
	}
	if course == nil {
		return notFound(ref)
	}
	if err := rt.provisioner.RemoveContractRun(ctx, contract, course.ID); err != nil {
		return fail(err)
	}
	fmt.Printf("course %s run removed\n", course.ReadableID)
	return exitOK
}

// multiFlag collects repeated --also values.
type multiFlag []string

func (m *multiFlag) String() string { return fmt.Sprint([]string(*m)) }

func (m *multiFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}
