// Package sso decodes the identity header the gateway forwards with
// every authenticated request.
package sso

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"sort"
	"strings"
)

var (
	ErrEmptyHeader   = errors.New("empty_identity_header")
	ErrMalformedJSON = errors.New("malformed_identity_payload")
	ErrMissingEmail  = errors.New("identity_missing_email")
)

// Identity is the decoded gateway payload. The organization map is
// keyed by an opaque gateway key; only the UUIDs matter here. A missing
// organization key means the user has no organizations, not an error.
type Identity struct {
	Email        string                 `json:"email"`
	Name         string                 `json:"name"`
	Country      string                 `json:"country"`
	Organization map[string]OrgClaimRef `json:"organization"`
}

type OrgClaimRef struct {
	ID string `json:"id"`
}

// OrgUUIDs returns the organization UUIDs in sorted order so callers
// can compare payloads cheaply.
func (i Identity) OrgUUIDs() []string {
	uuids := make([]string, 0, len(i.Organization))
	for _, ref := range i.Organization {
		if ref.ID != "" {
			uuids = append(uuids, ref.ID)
		}
	}
	sort.Strings(uuids)
	return uuids
}

// DecodeHeader parses a base64-url-encoded identity header. Both padded
// and unpadded encodings are accepted; gateways disagree on this.
func DecodeHeader(value string) (Identity, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Identity{}, ErrEmptyHeader
	}

	raw, err := base64.URLEncoding.DecodeString(value)
	if err != nil {
		raw, err = base64.RawURLEncoding.DecodeString(value)
		if err != nil {
			return Identity{}, ErrMalformedJSON
		}
	}

	var identity Identity
	if err := json.Unmarshal(raw, &identity); err != nil {
		return Identity{}, ErrMalformedJSON
	}
	if strings.TrimSpace(identity.Email) == "" {
		return Identity{}, ErrMissingEmail
	}
	return identity, nil
}

// EncodeIdentity is the inverse of DecodeHeader, used by tests and the
// operator CLI when replaying payloads.
func EncodeIdentity(identity Identity) (string, error) {
	raw, err := json.Marshal(identity)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}
