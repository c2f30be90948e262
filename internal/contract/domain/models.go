// Package domain contains persistence models for B2B contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// IntegrationType controls how users are attached to a contract.
type IntegrationType string

const (
	IntegrationSSO    IntegrationType = "sso"
	IntegrationNonSSO IntegrationType = "non_sso"
)

// MembershipType is derived from the integration type at save time.
type MembershipType string

const (
	MembershipSSO     MembershipType = "sso"
	MembershipManaged MembershipType = "managed"
)

// Contract is an agreement with an organization for access to a set of
// courseware.
type Contract struct {
	ID              snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID           snowflake.ID      `gorm:"not null;index" json:"org_id"`
	Name            string            `gorm:"type:text;not null" json:"name"`
	Slug            string            `gorm:"type:text;not null;uniqueIndex:ux_contracts_slug" json:"slug"`
	Description     string            `gorm:"type:text" json:"description"`
	IntegrationType IntegrationType   `gorm:"type:text;not null;column:integration_type" json:"integration_type"`
	MembershipType  MembershipType    `gorm:"type:text;not null;column:membership_type" json:"membership_type"`
	StartAt         *time.Time        `gorm:"column:start_at" json:"start_at,omitempty"`
	EndAt           *time.Time        `gorm:"column:end_at" json:"end_at,omitempty"`
	Active          bool              `gorm:"not null;default:true" json:"active"`
	MaxLearners     *int              `gorm:"column:max_learners" json:"max_learners,omitempty"`
	FixedPriceCents *int64            `gorm:"column:fixed_price_cents" json:"fixed_price_cents,omitempty"`
	AutoAttach      bool              `gorm:"not null;default:true;column:auto_attach" json:"auto_attach"`
	Metadata        datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt       time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Contract) TableName() string { return "contracts" }

// IsActive reports whether the contract is usable at t: the active flag
// is set and t falls inside the optional start/end window.
func (c Contract) IsActive(t time.Time) bool {
	if !c.Active {
		return false
	}
	if c.StartAt != nil && t.Before(*c.StartAt) {
		return false
	}
	if c.EndAt != nil && t.After(*c.EndAt) {
		return false
	}
	return true
}

// SeatLimit returns the learner cap. Zero is treated the same as unset.
func (c Contract) SeatLimit() (int, bool) {
	if c.MaxLearners == nil || *c.MaxLearners <= 0 {
		return 0, false
	}
	return *c.MaxLearners, true
}

// PriceCents returns the fixed enrollment price. Zero is treated the
// same as unset (free).
func (c Contract) PriceCents() (int64, bool) {
	if c.FixedPriceCents == nil || *c.FixedPriceCents <= 0 {
		return 0, false
	}
	return *c.FixedPriceCents, true
}

// IsSSOFree reports whether the contract is the one decision-table row
// that carries no enrollment codes at all.
func (c Contract) IsSSOFree() bool {
	_, priced := c.PriceCents()
	return c.IntegrationType == IntegrationSSO && !priced
}

// DeriveMembershipType recomputes the membership type from the
// integration type. Called on every save.
func (c *Contract) DeriveMembershipType() {
	if c.IntegrationType == IntegrationSSO {
		c.MembershipType = MembershipSSO
		return
	}
	c.MembershipType = MembershipManaged
}

// ContractLearner attaches a user to a contract.
type ContractLearner struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	ContractID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_contract_learner,priority:1" json:"contract_id"`
	UserID     snowflake.ID `gorm:"not null;index;uniqueIndex:ux_contract_learner,priority:2" json:"user_id"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (ContractLearner) TableName() string { return "contract_learners" }

// ContractProgram links a contract to a program whose courses it covers.
type ContractProgram struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	ContractID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_contract_program,priority:1" json:"contract_id"`
	ProgramID  snowflake.ID `gorm:"not null;index;uniqueIndex:ux_contract_program,priority:2" json:"program_id"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (ContractProgram) TableName() string { return "contract_programs" }
