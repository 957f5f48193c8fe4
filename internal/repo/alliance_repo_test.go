package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-alliance-bot/internal/domain"
)

func TestAlliances_Upsert_CreatesAndOverwrites(t *testing.T) {
	ctx := context.Background()
	r := &Alliances{DB: newRepoDB(t)}

	a, err := r.Upsert(ctx, "g1", "r1", "TLG", "c1")
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !a.Enabled || a.Prefix != "TLG" || a.ApprovalChannelID != "c1" || a.HasApprovers() {
		t.Fatalf("unexpected new mapping: %+v", a)
	}

	// Disable and configure approvers, then upsert again.
	off := false
	if _, err := r.Update(ctx, "g1", "r1", domain.AlliancePatch{Enabled: &off}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := r.SetApprovers(ctx, "g1", "r1", []string{"lead"}); err != nil {
		t.Fatalf("SetApprovers: %v", err)
	}

	a, err = r.Upsert(ctx, "g1", "r1", "NEW", "c2")
	if err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	if !a.Enabled {
		t.Fatal("upsert must force enabled=true")
	}
	if a.Prefix != "NEW" || a.ApprovalChannelID != "c2" {
		t.Fatalf("upsert did not overwrite: %+v", a)
	}
	if len(a.ApproverRoleIDs) != 1 || a.ApproverRoleIDs[0] != "lead" {
		t.Fatalf("upsert should keep approvers, got %v", a.ApproverRoleIDs)
	}

	all, err := r.List(ctx, "g1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one mapping per (community, role), got %d", len(all))
	}
}

func TestAlliances_Update_Partial(t *testing.T) {
	ctx := context.Background()
	r := &Alliances{DB: newRepoDB(t)}

	if _, err := r.Update(ctx, "g1", "missing", domain.AlliancePatch{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := r.Upsert(ctx, "g1", "r1", "TLG", "c1"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	prefix := "XYZ"
	a, err := r.Update(ctx, "g1", "r1", domain.AlliancePatch{Prefix: &prefix})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if a.Prefix != "XYZ" || a.ApprovalChannelID != "c1" || !a.Enabled {
		t.Fatalf("only prefix should change: %+v", a)
	}

	// Empty patch is an existence check that returns the current row.
	a, err = r.Update(ctx, "g1", "r1", domain.AlliancePatch{})
	if err != nil || a.Prefix != "XYZ" {
		t.Fatalf("empty patch: a=%+v err=%v", a, err)
	}
}

func TestAlliances_SetApprovers(t *testing.T) {
	ctx := context.Background()
	r := &Alliances{DB: newRepoDB(t)}

	if _, err := r.SetApprovers(ctx, "g1", "r1", []string{"x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := r.Upsert(ctx, "g1", "r1", "TLG", "c1"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := r.SetApprovers(ctx, "g1", "r1", []string{"a", "b"}); err != nil {
		t.Fatalf("SetApprovers: %v", err)
	}
	a, err := r.SetApprovers(ctx, "g1", "r1", nil)
	if err != nil {
		t.Fatalf("clear approvers: %v", err)
	}
	if a.HasApprovers() {
		t.Fatalf("expected empty approvers, got %v", a.ApproverRoleIDs)
	}

	got, err := r.Get(ctx, "g1", "r1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.HasApprovers() {
		t.Fatalf("cleared approvers should persist, got %v", got.ApproverRoleIDs)
	}
}

func TestAlliances_Get_NotFound(t *testing.T) {
	r := &Alliances{DB: newRepoDB(t)}
	if _, err := r.Get(context.Background(), "g1", "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAlliances_ListEnabled_And_FindForMember(t *testing.T) {
	ctx := context.Background()
	r := &Alliances{DB: newRepoDB(t)}

	for _, role := range []string{"r1", "r2", "r3"} {
		if _, err := r.Upsert(ctx, "g1", role, "P"+role, "c"); err != nil {
			t.Fatalf("Upsert %s: %v", role, err)
		}
	}
	if _, err := r.Upsert(ctx, "g2", "r9", "OTHER", "c"); err != nil {
		t.Fatalf("Upsert g2: %v", err)
	}
	off := false
	if _, err := r.Update(ctx, "g1", "r2", domain.AlliancePatch{Enabled: &off}); err != nil {
		t.Fatalf("disable r2: %v", err)
	}

	enabled, err := r.ListEnabled(ctx, "g1")
	if err != nil {
		t.Fatalf("ListEnabled: %v", err)
	}
	seen := map[string]bool{}
	for _, a := range enabled {
		seen[a.RoleID] = true
	}
	if len(enabled) != 2 || !seen["r1"] || !seen["r3"] {
		t.Fatalf("unexpected enabled set: %+v", enabled)
	}

	// Disabled mappings never match.
	if _, err := r.FindForMember(ctx, "g1", []string{"r2", "unrelated"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for disabled-only match, got %v", err)
	}
	// Mappings from other communities never match.
	if _, err := r.FindForMember(ctx, "g1", []string{"r9"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound across communities, got %v", err)
	}
	if _, err := r.FindForMember(ctx, "g1", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for no roles, got %v", err)
	}

	// Two alliance roles: bound to one of them, not an error.
	a, err := r.FindForMember(ctx, "g1", []string{"r3", "r1"})
	if err != nil {
		t.Fatalf("FindForMember: %v", err)
	}
	if a.RoleID != "r1" && a.RoleID != "r3" {
		t.Fatalf("unexpected match %q", a.RoleID)
	}
}
