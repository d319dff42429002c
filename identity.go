package nbslot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
)

// Roles passed from the tool consumer.
const (
	RoleAdministrator = "http://purl.imsglobal.org/vocab/lis/v2/institution/person#Administrator"
	RoleInstructor    = "http://purl.imsglobal.org/vocab/lis/v2/institution/person#Instructor"
	RoleStudent       = "http://purl.imsglobal.org/vocab/lis/v2/institution/person#Student"
)

// LaunchRequest identifies one launch.
type LaunchRequest struct {
	// LaunchID identifies one user's launch context.
	LaunchID string `json:"launch_id"`
	// ResourceID identifies the shared assignment.
	ResourceID string `json:"resource_id"`
	// Build is true for privileged launches that write the template volume.
	Build bool `json:"build"`
}

// Validate checks that the request carries both identifiers.
func (r LaunchRequest) Validate() error {
	if strings.TrimSpace(r.LaunchID) == "" {
		return fmt.Errorf("%w: launch id is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.ResourceID) == "" {
		return fmt.Errorf("%w: resource id is required", ErrInvalidRequest)
	}
	if r.LaunchID == r.ResourceID {
		return fmt.Errorf("%w: launch id must differ from resource id", ErrInvalidRequest)
	}
	return nil
}

// LaunchID derives the launch identifier for a user in a context working on
// a resource: the hex SHA-256 of the three values concatenated.
func LaunchID(contextID, userID, resourceID string) (string, error) {
	if contextID == "" || userID == "" || resourceID == "" {
		return "", fmt.Errorf("%w: context, user and resource ids are required", ErrInvalidRequest)
	}
	sum := sha256.Sum256([]byte(contextID + userID + resourceID))
	return hex.EncodeToString(sum[:]), nil
}

// IsBuildRoles reports whether roles grant write access to a resource's
// template volume.
func IsBuildRoles(roles []string) bool {
	return slices.Contains(roles, RoleInstructor) || slices.Contains(roles, RoleAdministrator)
}

// HostLabel derives the externally routable host name of a launch from the
// first prefixLen characters of its ID and the routing domain. Host names are
// case-insensitive, so the prefix is lowercased.
func HostLabel(launchID string, prefixLen int, domain string) string {
	prefix := strings.ToLower(launchID)
	if prefixLen > 0 && len(prefix) > prefixLen {
		prefix = prefix[:prefixLen]
	}
	if domain == "" {
		return prefix
	}
	return prefix + "." + domain
}
