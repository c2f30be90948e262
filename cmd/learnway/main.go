// Command learnway runs the B2B enrollment API together with the
// reconciliation scheduler.
package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnway/internal/attachment"
	"github.com/smallbiznis/learnway/internal/basket"
	"github.com/smallbiznis/learnway/internal/clock"
	"github.com/smallbiznis/learnway/internal/config"
	"github.com/smallbiznis/learnway/internal/contract"
	"github.com/smallbiznis/learnway/internal/courseware"
	"github.com/smallbiznis/learnway/internal/discount"
	"github.com/smallbiznis/learnway/internal/enrollcode"
	"github.com/smallbiznis/learnway/internal/enrollment"
	"github.com/smallbiznis/learnway/internal/locker"
	"github.com/smallbiznis/learnway/internal/migration"
	"github.com/smallbiznis/learnway/internal/observability"
	"github.com/smallbiznis/learnway/internal/order"
	"github.com/smallbiznis/learnway/internal/organization"
	"github.com/smallbiznis/learnway/internal/product"
	"github.com/smallbiznis/learnway/internal/scheduler"
	"github.com/smallbiznis/learnway/internal/server"
	"github.com/smallbiznis/learnway/internal/user"
	"github.com/smallbiznis/learnway/pkg/db"
	"go.uber.org/fx"
)

func newSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func main() {
	fx.New(
		fx.Provide(newSnowflakeNode),
		config.Module,
		clock.Module,
		observability.Module,
		db.Module,
		migration.Module,
		locker.Module,
		user.Module,
		organization.Module,
		contract.Module,
		courseware.Module,
		product.Module,
		discount.Module,
		order.Module,
		enrollment.Module,
		basket.Module,
		enrollcode.Module,
		attachment.Module,
		scheduler.Module,
		server.Module,
	).Run()
}
