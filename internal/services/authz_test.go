package services

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/tbourn/go-alliance-bot/internal/domain"
)

func TestCanDecide_TruthTable(t *testing.T) {
	withApprovers := domain.Alliance{RoleID: "alliance", ApproverRoleIDs: []string{"lead", "officer"}}
	fallback := domain.Alliance{RoleID: "alliance", ApproverRoleIDs: []string{}}

	cases := []struct {
		name     string
		actor    Actor
		alliance domain.Alliance
		want     bool
	}{
		{"admin, approvers set", Actor{Admin: true}, withApprovers, true},
		{"admin, fallback", Actor{Admin: true}, fallback, true},
		{"listed approver", Actor{RoleIDs: []string{"x", "officer"}}, withApprovers, true},
		{"alliance role only, approvers set", Actor{RoleIDs: []string{"alliance"}}, withApprovers, false},
		{"no roles, approvers set", Actor{}, withApprovers, false},
		{"alliance role, fallback", Actor{RoleIDs: []string{"alliance"}}, fallback, true},
		{"approver-looking role, fallback", Actor{RoleIDs: []string{"lead"}}, fallback, false},
		{"nil approver list is fallback", Actor{RoleIDs: []string{"alliance"}}, domain.Alliance{RoleID: "alliance"}, true},
	}
	for _, tc := range cases {
		if got := CanDecide(tc.actor, tc.alliance); got != tc.want {
			t.Errorf("%s: CanDecide = %v; want %v", tc.name, got, tc.want)
		}
	}
}

func TestCanDecide_Properties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 300
	properties := gopter.NewProperties(params)

	pool := []string{"a", "b", "c", "d", "alliance"}
	roles := gen.SliceOf(gen.IntRange(0, len(pool)-1).Map(func(i int) string { return pool[i] }))

	properties.Property("admins are always authorized", prop.ForAll(
		func(actorRoles, approvers []string) bool {
			a := domain.Alliance{RoleID: "alliance", ApproverRoleIDs: approvers}
			return CanDecide(Actor{Admin: true, RoleIDs: actorRoles}, a)
		},
		roles, roles,
	))

	properties.Property("non-admins: listed role, or alliance role when unlisted", prop.ForAll(
		func(actorRoles, approvers []string) bool {
			a := domain.Alliance{RoleID: "alliance", ApproverRoleIDs: approvers}
			var want bool
			if len(approvers) > 0 {
				for _, r := range approvers {
					want = want || domain.ContainsRole(actorRoles, r)
				}
			} else {
				want = domain.ContainsRole(actorRoles, "alliance")
			}
			return CanDecide(Actor{RoleIDs: actorRoles}, a) == want
		},
		roles, roles,
	))

	properties.TestingRun(t)
}
