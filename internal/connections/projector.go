// Package connections derives the read-only link status shown to clients.
package connections

import (
	"time"

	"github.com/tyemirov/creatoros/internal/credentials"
)

// Status is the public view of one platform block. Tokens never appear here.
type Status struct {
	Connected   bool                 `json:"connected"`
	Profile     *credentials.Profile `json:"profile,omitempty"`
	ConnectedAt *time.Time           `json:"connected_at,omitempty"`
	ExpiresAt   *time.Time           `json:"expires_at,omitempty"`
}

// Projection maps every supported platform to its status.
type Projection map[credentials.Platform]Status

// Project derives the status of each supported platform. Profile and
// timestamps are reported only while connected.
func Project(user credentials.User) Projection {
	projection := make(Projection, len(credentials.SupportedPlatforms))
	for _, platform := range credentials.SupportedPlatforms {
		projection[platform] = projectCredential(user.Credential(platform))
	}
	return projection
}

func projectCredential(credential credentials.PlatformCredential) Status {
	if !credential.Connected() {
		return Status{}
	}
	status := Status{Connected: true}
	if !credential.Profile.IsZero() {
		profile := credential.Profile
		status.Profile = &profile
	}
	if credential.ConnectedAt != nil {
		connectedAt := *credential.ConnectedAt
		status.ConnectedAt = &connectedAt
	}
	if credential.Expiry != nil {
		expiresAt := *credential.Expiry
		status.ExpiresAt = &expiresAt
	}
	return status
}

// Connected reports whether platform is linked in the projection.
func (projection Projection) Connected(platform credentials.Platform) bool {
	return projection[platform].Connected
}
