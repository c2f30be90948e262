package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/learnway/internal/attachment"
	basketservice "github.com/smallbiznis/learnway/internal/basket/service"
	contractdomain "github.com/smallbiznis/learnway/internal/contract/domain"
	orgdomain "github.com/smallbiznis/learnway/internal/organization/domain"
	"github.com/smallbiznis/learnway/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Handlers struct {
	log         *zap.Logger
	orgs        orgdomain.Service
	contracts   contractdomain.Service
	baskets     *basketservice.Service
	attachments *attachment.Service
}

type HandlersParam struct {
	fx.In

	Log         *zap.Logger
	Orgs        orgdomain.Service
	Contracts   contractdomain.Service
	Baskets     *basketservice.Service
	Attachments *attachment.Service
}

func NewHandlers(p HandlersParam) *Handlers {
	return &Handlers{
		log:         p.Log.Named("server.handlers"),
		orgs:        p.Orgs,
		contracts:   p.Contracts,
		baskets:     p.Baskets,
		attachments: p.Attachments,
	}
}

func (h *Handlers) ListOrganizations(c *gin.Context) {
	page, ok := bindPagination(c)
	if !ok {
		return
	}
	orgs, info, err := h.orgs.ListPage(c.Request.Context(), page)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"organizations": orgs, "page_info": info})
}

func (h *Handlers) GetOrganization(c *gin.Context) {
	org, err := h.orgs.Resolve(c.Request.Context(), c.Param("slug"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

func (h *Handlers) ListContracts(c *gin.Context) {
	ctx := c.Request.Context()
	if orgRef := c.Query("organization"); orgRef != "" {
		org, err := h.orgs.Resolve(ctx, orgRef)
		if err != nil {
			abortWithError(c, err)
			return
		}
		contracts, err := h.contracts.List(ctx, org.ID)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"contracts": contracts})
		return
	}
	page, ok := bindPagination(c)
	if !ok {
		return
	}
	contracts, info, err := h.contracts.ListAllPage(ctx, page)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contracts": contracts, "page_info": info})
}

func bindPagination(c *gin.Context) (pagination.Pagination, bool) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: "invalid_pagination"})
		return page, false
	}
	return page, true
}

func (h *Handlers) GetContract(c *gin.Context) {
	contract, err := h.contracts.Resolve(c.Request.Context(), c.Param("slug"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

// Enroll creates a B2B enrollment for the authenticated learner. The
// response body is a discriminated union keyed by "result".
func (h *Handlers) Enroll(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	outcome, err := h.baskets.EnrollRunForUser(c.Request.Context(), user.ID, c.Param("readable_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// Attach redeems an enrollment code for contract membership.
func (h *Handlers) Attach(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	contract, err := h.attachments.AttachUserViaCode(c.Request.Context(), user.ID, c.Param("code"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"attached": true,
		"contract": contract,
	})
}
