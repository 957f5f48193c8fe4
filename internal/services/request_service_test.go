package services

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-alliance-bot/internal/domain"
)

func TestRequestService(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	f.seedAlliance(t, roleTLG.ID, "TLG")
	f.platform.addMember(member("u1", "", roleTLG))
	s := &RequestService{Repo: f.requests}
	ctx := context.Background()

	first := f.submit(t, "u1", roleTLG.ID, "Nexus")
	second := f.submit(t, "u2", roleTLG.ID, "Other")
	_, err := f.v.Decide(ctx, Decision{CommunityID: "g1", RequestID: first, Outcome: domain.StatusApproved, Actor: Actor{Admin: true}})
	require.NoError(t, err)

	all, err := s.List(ctx, "g1", domain.RequestFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second, all[0].RequestID, "newest first")

	pending, err := s.List(ctx, "g1", domain.RequestFilter{Status: "pending"})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second, pending[0].RequestID)

	_, err = s.List(ctx, "g1", domain.RequestFilter{Status: "LOST"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.List(ctx, "g1", domain.RequestFilter{Limit: -1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	none, err := s.List(ctx, "g2", domain.RequestFilter{})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	got, err := s.Get(ctx, "g1", first)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, got.Status)

	_, err = s.Get(ctx, "g1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDecisionMetrics(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	f.seedAlliance(t, roleTLG.ID, "TLG")
	f.platform.addMember(member("u1", "", roleTLG))
	id := f.submit(t, "u1", roleTLG.ID, "Nexus")
	ctx := context.Background()

	applied := decisionsTotal.WithLabelValues("REJECTED", "applied")
	stale := decisionsTotal.WithLabelValues("REJECTED", "stale")
	forbidden := decisionsTotal.WithLabelValues("REJECTED", "forbidden")
	a0, s0, f0 := testutil.ToFloat64(applied), testutil.ToFloat64(stale), testutil.ToFloat64(forbidden)

	_, err := f.v.Decide(ctx, Decision{CommunityID: "g1", RequestID: id, Outcome: domain.StatusRejected, Actor: Actor{ID: "x"}})
	require.ErrorIs(t, err, ErrForbidden, "fallback: actor lacks the alliance role")
	_, err = f.v.Decide(ctx, Decision{CommunityID: "g1", RequestID: id, Outcome: domain.StatusRejected, Actor: Actor{Admin: true}})
	require.NoError(t, err)
	_, err = f.v.Decide(ctx, Decision{CommunityID: "g1", RequestID: id, Outcome: domain.StatusRejected, Actor: Actor{Admin: true}})
	require.NoError(t, err)

	assert.Equal(t, a0+1, testutil.ToFloat64(applied))
	assert.Equal(t, s0+1, testutil.ToFloat64(stale))
	assert.Equal(t, f0+1, testutil.ToFloat64(forbidden))
}
