// Package domain contains persistence models for B2B organizations.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Organization represents an external tenant that holds contracts.
type Organization struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgKey      string            `gorm:"type:text;not null;uniqueIndex:ux_organizations_org_key;column:org_key" json:"org_key"`
	Name        string            `gorm:"type:text;not null" json:"name"`
	Slug        string            `gorm:"type:text;not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	Description string            `gorm:"type:text" json:"description"`
	LogoURL     string            `gorm:"type:text;column:logo_url" json:"logo_url,omitempty"`
	SSOOrgID    *string           `gorm:"type:text;column:sso_organization_id;uniqueIndex:ux_organizations_sso_org_id" json:"sso_organization_id,omitempty"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// UserOrganization represents membership of a user in an organization.
// KeepUntilSeen pins a membership created outside the SSO payload
// (typically by code redemption) so the next SSO reconciliation does not
// remove it before the identity provider has ever reported it.
type UserOrganization struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID         snowflake.ID `gorm:"not null;index;uniqueIndex:ux_user_org,priority:1" json:"org_id"`
	UserID        snowflake.ID `gorm:"not null;index;uniqueIndex:ux_user_org,priority:2" json:"user_id"`
	KeepUntilSeen bool         `gorm:"not null;default:false;column:keep_until_seen" json:"keep_until_seen"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (UserOrganization) TableName() string { return "user_organizations" }
