// Command learnwayctl is the operator CLI for contracts, courseware
// links, and enrollment codes.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnway/internal/clock"
	"github.com/smallbiznis/learnway/internal/config"
	"github.com/smallbiznis/learnway/internal/contract"
	contractdomain "github.com/smallbiznis/learnway/internal/contract/domain"
	"github.com/smallbiznis/learnway/internal/courseware"
	coursewaredomain "github.com/smallbiznis/learnway/internal/courseware/domain"
	"github.com/smallbiznis/learnway/internal/courseware/provisioner"
	"github.com/smallbiznis/learnway/internal/discount"
	"github.com/smallbiznis/learnway/internal/enrollcode"
	"github.com/smallbiznis/learnway/internal/enrollment"
	"github.com/smallbiznis/learnway/internal/order"
	"github.com/smallbiznis/learnway/internal/organization"
	orgdomain "github.com/smallbiznis/learnway/internal/organization/domain"
	"github.com/smallbiznis/learnway/internal/product"
	"github.com/smallbiznis/learnway/internal/scheduler"
	"github.com/smallbiznis/learnway/internal/scheduler/queue"
	"github.com/smallbiznis/learnway/internal/user"
	"github.com/smallbiznis/learnway/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	exitOK       = 0
	exitFailed   = 1
	exitNotFound = 2
)

// runtime bundles the services the subcommands need.
type runtime struct {
	log         *zap.Logger
	orgs        orgdomain.Service
	contracts   contractdomain.Service
	courseware  coursewaredomain.Repository
	provisioner *provisioner.Provisioner
	reconciler  *enrollcode.Reconciler
	jobs        *queue.Queue
}

func newSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(2)
}

func newCLILogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func buildRuntime() (*runtime, *fx.App, error) {
	rt := &runtime{}
	app := fx.New(
		fx.NopLogger,
		fx.Provide(newSnowflakeNode),
		fx.Provide(newCLILogger),
		config.Module,
		clock.Module,
		db.Module,
		user.Module,
		organization.Module,
		contract.Module,
		courseware.Module,
		product.Module,
		discount.Module,
		order.Module,
		enrollment.Module,
		enrollcode.Module,
		fx.Provide(scheduler.NewQueue),
		fx.Populate(
			&rt.log,
			&rt.orgs,
			&rt.contracts,
			&rt.courseware,
			&rt.provisioner,
			&rt.reconciler,
			&rt.jobs,
		),
	)
	if err := app.Err(); err != nil {
		return nil, nil, err
	}
	return rt, app, nil
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: learnwayctl <command> [arguments]

commands:
  codes check|output|validate|expire   inspect or repair enrollment codes
  contract create|modify               manage contracts
  courseware add|remove                link courses to contracts
  list organizations|contracts|courseware
                                       read-only listings`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(exitNotFound)
	}

	rt, app, err := buildRuntime()
	if err != nil {
		fmt.Fprintln(os.Stderr, "init:", err)
		os.Exit(exitFailed)
	}
	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "start:", err)
		os.Exit(exitFailed)
	}
	defer func() { _ = app.Stop(ctx) }()

	var code int
	switch os.Args[1] {
	case "codes":
		code = runCodes(ctx, rt, os.Args[2:])
	case "contract":
		code = runContract(ctx, rt, os.Args[2:])
	case "courseware":
		code = runCourseware(ctx, rt, os.Args[2:])
	case "list":
		code = runList(ctx, rt, os.Args[2:])
	default:
		usage()
		code = exitNotFound
	}
	_ = app.Stop(ctx)
	os.Exit(code)
}

func fail(err error) int {
	fmt.Fprintln(os.Stderr, "error:", err)
	return exitFailed
}

func notFound(what string) int {
	fmt.Fprintln(os.Stderr, "not found:", what)
	return exitNotFound
}
