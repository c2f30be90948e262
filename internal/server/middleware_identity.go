package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/learnway/internal/attachment"
	"github.com/smallbiznis/learnway/internal/config"
	"github.com/smallbiznis/learnway/internal/scheduler/queue"
	"github.com/smallbiznis/learnway/internal/sso"
	userdomain "github.com/smallbiznis/learnway/internal/user/domain"
	"go.uber.org/zap"
)

const ctxUserKey = "learnway_user"

// IdentityMiddleware decodes the gateway identity header, upserts the
// user, and schedules an SSO membership reconcile when the payload's
// organization set differs from what is stored. Requests without the
// header pass through anonymously.
func IdentityMiddleware(cfg config.Config, log *zap.Logger, users userdomain.Repository, attachments *attachment.Service, jobs *queue.Queue) gin.HandlerFunc {
	log = log.Named("server.identity")
	return func(c *gin.Context) {
		header := c.GetHeader(cfg.IdentityHeader)
		if header == "" {
			c.Next()
			return
		}

		identity, err := sso.DecodeHeader(header)
		if err != nil {
			abortWithError(c, err)
			return
		}

		ctx := c.Request.Context()
		user, err := users.UpsertByEmail(ctx, userdomain.User{
			Email:       identity.Email,
			Name:        identity.Name,
			CountryCode: identity.Country,
		})
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Set(ctxUserKey, user)

		// Cheap debounce: only enqueue when the payload diverges from
		// the stored membership set.
		uuids := identity.OrgUUIDs()
		needs, err := attachments.NeedsReconcile(ctx, user.ID, uuids)
		if err != nil {
			log.Warn("membership comparison failed", zap.Error(err))
		} else if needs {
			if err := jobs.EnqueueUserOrgs(ctx, user.ID, uuids); err != nil {
				log.Warn("user orgs enqueue failed",
					zap.String("user_id", user.ID.String()),
					zap.Error(err),
				)
			}
		}

		c.Next()
	}
}

// currentUser returns the authenticated user, aborting with 401 when
// the request carried no identity.
func currentUser(c *gin.Context) (*userdomain.User, bool) {
	value, ok := c.Get(ctxUserKey)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "identity_required"})
		return nil, false
	}
	user, ok := value.(*userdomain.User)
	if !ok || user == nil || user.ID == snowflake.ID(0) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "identity_required"})
		return nil, false
	}
	return user, true
}
