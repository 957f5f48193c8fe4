package services

import "github.com/tbourn/go-alliance-bot/internal/domain"

// CanDecide reports whether actor may approve or reject requests of alliance.
//
//   - Administrators always may.
//   - With a non-empty approver list, the actor must hold one of those roles.
//   - With an empty list, holders of the alliance role itself decide. This
//     includes the requesting member, so self-approval is possible until
//     approvers are configured.
func CanDecide(actor Actor, alliance domain.Alliance) bool {
	if actor.Admin {
		return true
	}
	if alliance.HasApprovers() {
		for _, rid := range alliance.ApproverRoleIDs {
			if domain.ContainsRole(actor.RoleIDs, rid) {
				return true
			}
		}
		return false
	}
	return domain.ContainsRole(actor.RoleIDs, alliance.RoleID)
}
