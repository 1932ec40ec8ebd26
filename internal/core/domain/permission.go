package domain

// PermissionResult is what a bearer token may do. CanManage always implies
// IsStaff because IsStaff is computed from it.
type PermissionResult struct {
	IsStaff     bool `json:"isStaff"`
	IsOwner     bool `json:"isOwner"`
	CanManage   bool `json:"canManage"`
	IsModerator bool `json:"isModerator"`
}

// RoleSets holds the configured guild role ids per tier.
type RoleSets struct {
	Owner     []string
	Director  []string
	Manager   []string
	Moderator []string
	Staff     []string
}

// ComputePermissions derives a PermissionResult from a member's role ids.
// Moderators are part of the manage tier on purpose: they may run
// moderation actions and connect to the relay.
func ComputePermissions(roles []string, sets RoleSets) PermissionResult {
	held := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		held[r] = struct{}{}
	}
	has := func(ids ...[]string) bool {
		for _, set := range ids {
			for _, id := range set {
				if _, ok := held[id]; ok {
					return true
				}
			}
		}
		return false
	}

	isOwner := has(sets.Owner)
	isManagerTier := has(sets.Director, sets.Manager)
	isModerator := has(sets.Moderator)
	canManage := isOwner || isManagerTier || isModerator

	return PermissionResult{
		IsOwner:     isOwner,
		IsModerator: isModerator,
		CanManage:   canManage,
		IsStaff:     canManage || has(sets.Staff),
	}
}
