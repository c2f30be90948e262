package scheduler

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnway/internal/scheduler/queue"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func NewQueue(conn *gorm.DB, genID *snowflake.Node) *queue.Queue {
	return queue.New(conn, genID)
}

var Module = fx.Module("scheduler",
	fx.Provide(NewQueue),
	fx.Provide(NewNoopOrgSyncer),
	fx.Provide(New),
	fx.Invoke(func(lc fx.Lifecycle, s *Scheduler) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				s.Start()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return s.Stop(ctx)
			},
		})
	}),
)
