package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"songcatalog/model"
	"songcatalog/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingObserver struct {
	entries []model.AuditEntry
}

func (o *recordingObserver) CatalogChanged(_ context.Context, _ *model.Song, entry model.AuditEntry) {
	o.entries = append(o.entries, entry)
}

type failingSaveRepo struct {
	repository.SongRepository
	err error
}

func (r failingSaveRepo) Save(context.Context, *model.Song) error { return r.err }

func newTestService(t *testing.T, songs ...*model.Song) (*Service, repository.SongRepository) {
	t.Helper()
	repo := repository.NewMemorySongRepository()
	for _, s := range songs {
		require.NoError(t, repo.Create(context.Background(), s))
	}
	svc := NewService(repo)
	svc.SetClock(func() time.Time { return fixedNow })
	return svc, repo
}

func newSong(id string, regions ...model.RegionEntry) *model.Song {
	s := model.NewSong(id, "Song "+id, []model.Artist{{ID: "a1", Name: "Artist"}}, fixedNow)
	if len(regions) > 0 {
		s.Availability.Regions = regions
	}
	return s
}

func TestBlockGlobal(t *testing.T) {
	svc, repo := newTestService(t, newSong("s1", region("GLOBAL", model.RegionPublished), region("AR", model.RegionRegionBlocked)))

	song, err := svc.Block(context.Background(), "s1", BlockRequest{Scope: model.ScopeGlobal, ReasonCode: "legal", Actor: "alice"})
	require.NoError(t, err)

	assert.Equal(t, model.StatusBlocked, song.Status)
	for _, r := range song.Availability.Regions {
		assert.False(t, r.Allowed, r.Code)
		assert.Equal(t, model.RegionAdminBlocked, r.Status, r.Code)
	}
	assert.Equal(t, model.EffectiveAdminBlocked, EffectiveStatusOf(song))
	require.NotNil(t, song.AdminBlock)
	assert.Equal(t, model.ScopeGlobal, song.AdminBlock.Scope)
	assert.Equal(t, "alice", song.AdminBlock.Actor)

	require.Len(t, song.AuditLog, 1)
	entry := song.AuditLog[0]
	assert.Equal(t, model.ActionBlocked, entry.Action)
	assert.Equal(t, "Admin block applied globally (legal)", entry.Details)
	assert.Equal(t, []string{"GLOBAL"}, entry.Regions)
	assert.Equal(t, "legal", entry.ReasonCode)
	assert.Equal(t, model.EffectiveRegionBlocked, entry.PreviousState)
	assert.Equal(t, model.EffectiveAdminBlocked, entry.NewState)
	assert.Equal(t, fixedNow, entry.Timestamp)
	assert.Regexp(t, `^audit-`, entry.ID)

	stored, err := repo.GetByID(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusBlocked, stored.Status)
	assert.Equal(t, int64(2), stored.Version)
}

func TestBlockDefaultsToGlobalScope(t *testing.T) {
	svc, _ := newTestService(t, newSong("s1"))

	song, err := svc.Block(context.Background(), "s1", BlockRequest{ReasonCode: "policy", Actor: "alice"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusBlocked, song.Status)
	assert.Equal(t, model.ScopeGlobal, song.AuditLog[0].Scope)
}

func TestBlockRegionalIsolation(t *testing.T) {
	svc, _ := newTestService(t, newSong("s1", region("global", model.RegionPublished), region("AR", model.RegionPublished)))

	song, err := svc.Block(context.Background(), "s1", BlockRequest{Scope: model.ScopeRegions, Regions: []string{"mx"}, ReasonCode: "copyright", Actor: "alice"})
	require.NoError(t, err)

	require.Len(t, song.Availability.Regions, 3)
	assert.Equal(t, region("GLOBAL", model.RegionPublished), song.Availability.Regions[0])
	assert.Equal(t, region("AR", model.RegionPublished), song.Availability.Regions[1])
	assert.Equal(t, region("MX", model.RegionAdminBlocked), song.Availability.Regions[2])
	assert.Equal(t, model.StatusPublished, song.Status)

	entry := song.AuditLog[0]
	assert.Equal(t, "Admin block applied to MX", entry.Details)
	assert.Equal(t, []string{"MX"}, entry.Regions)
	assert.Equal(t, model.ScopeRegions, entry.Scope)
	assert.Equal(t, model.EffectiveAdminBlocked, entry.NewState)

	require.NotNil(t, song.AdminBlock)
	assert.Equal(t, []string{"MX"}, song.AdminBlock.Regions)
}

func TestBlockRegionalMergesExistingBlock(t *testing.T) {
	svc, _ := newTestService(t, newSong("s1"))
	ctx := context.Background()

	_, err := svc.Block(ctx, "s1", BlockRequest{Scope: model.ScopeRegions, Regions: []string{"ar"}, ReasonCode: "legal", Actor: "alice"})
	require.NoError(t, err)
	song, err := svc.Block(ctx, "s1", BlockRequest{Scope: model.ScopeRegions, Regions: []string{"MX", "ar"}, ReasonCode: "quality", Actor: "bob"})
	require.NoError(t, err)

	assert.Equal(t, []string{"AR", "MX"}, song.AdminBlock.Regions)
	assert.Equal(t, "quality", song.AdminBlock.ReasonCode)
	assert.Equal(t, "Admin block applied to MX, AR", song.AuditLog[0].Details)
	assert.Len(t, song.AuditLog, 2)
}

func TestBlockRegionalKeepsGlobalBlock(t *testing.T) {
	svc, _ := newTestService(t, newSong("s1"))
	ctx := context.Background()

	_, err := svc.Block(ctx, "s1", BlockRequest{ReasonCode: "legal", Actor: "alice"})
	require.NoError(t, err)
	song, err := svc.Block(ctx, "s1", BlockRequest{Scope: model.ScopeRegions, Regions: []string{"br"}, ReasonCode: "quality", Actor: "bob"})
	require.NoError(t, err)

	assert.Equal(t, model.ScopeGlobal, song.AdminBlock.Scope)
	assert.Equal(t, "legal", song.AdminBlock.ReasonCode)
}

func TestBlockRejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		req  BlockRequest
	}{
		{"regional scope without regions", BlockRequest{Scope: model.ScopeRegions, ReasonCode: "legal", Actor: "alice"}},
		{"regional scope with blank regions", BlockRequest{Scope: model.ScopeRegions, Regions: []string{" ", ""}, ReasonCode: "legal", Actor: "alice"}},
		{"unknown scope", BlockRequest{Scope: "planet", ReasonCode: "legal", Actor: "alice"}},
		{"missing reason", BlockRequest{Actor: "alice"}},
		{"unknown reason", BlockRequest{ReasonCode: "boredom", Actor: "alice"}},
		{"missing actor", BlockRequest{ReasonCode: "legal"}},
		{"blank actor", BlockRequest{ReasonCode: "legal", Actor: "   "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newTestService(t, newSong("s1"))

			_, err := svc.Block(context.Background(), "s1", tt.req)
			require.ErrorIs(t, err, ErrInvalidArgument)

			stored, err := repo.GetByID(context.Background(), "s1")
			require.NoError(t, err)
			assert.Empty(t, stored.AuditLog)
			assert.Equal(t, model.StatusPublished, stored.Status)
			assert.Equal(t, model.DefaultAvailability(), stored.Availability)
			assert.Equal(t, int64(1), stored.Version)
		})
	}
}

func TestMutationsReportNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Block(ctx, "missing", BlockRequest{ReasonCode: "legal", Actor: "alice"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Unblock(ctx, "missing", UnblockRequest{Actor: "alice"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.UpdateAvailability(ctx, "missing", AvailabilityRequest{Status: model.StatusPublished, Actor: "alice"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnblockRestoresOnlyAdminBlockedRegions(t *testing.T) {
	song := newSong("s1", region("AR", model.RegionRegionBlocked), region("GLOBAL", model.RegionAdminBlocked))
	song.Status = model.StatusBlocked
	song.AdminBlock = &model.AdminBlock{Scope: model.ScopeGlobal, ReasonCode: "legal", Actor: "alice"}
	svc, _ := newTestService(t, song)

	got, err := svc.Unblock(context.Background(), "s1", UnblockRequest{Actor: "bob"})
	require.NoError(t, err)

	assert.Equal(t, region("AR", model.RegionRegionBlocked), got.Availability.Regions[0])
	assert.Equal(t, region("GLOBAL", model.RegionPublished), got.Availability.Regions[1])
	assert.Equal(t, model.StatusPublished, got.Status)
	assert.Nil(t, got.AdminBlock)

	entry := got.AuditLog[0]
	assert.Equal(t, model.ActionUnblocked, entry.Action)
	assert.Equal(t, model.ScopeGlobal, entry.Scope)
	assert.Equal(t, "Admin block removed and availability restored", entry.Details)
	assert.Equal(t, "bob", entry.Actor)
	assert.Equal(t, model.EffectiveAdminBlocked, entry.PreviousState)
	assert.Equal(t, model.EffectiveRegionBlocked, entry.NewState)
}

func TestUnblockLeavesUnblockedBaseStatus(t *testing.T) {
	song := newSong("s1")
	song.Status = model.StatusScheduled
	svc, _ := newTestService(t, song)

	got, err := svc.Unblock(context.Background(), "s1", UnblockRequest{Actor: "bob"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, got.Status)
	assert.Len(t, got.AuditLog, 1)
}

func TestUpdateAvailabilityRegionalScenario(t *testing.T) {
	svc, _ := newTestService(t, newSong("s1"))

	song, err := svc.UpdateAvailability(context.Background(), "s1", AvailabilityRequest{
		Status:  model.StatusRegionBlocked,
		Scope:   model.ScopeRegions,
		Regions: []string{"ar", "mx"},
		Actor:   "alice",
	})
	require.NoError(t, err)

	require.Len(t, song.Availability.Regions, 3)
	assert.Equal(t, region("GLOBAL", model.RegionPublished), song.Availability.Regions[0])
	assert.Equal(t, region("AR", model.RegionRegionBlocked), song.Availability.Regions[1])
	assert.Equal(t, region("MX", model.RegionRegionBlocked), song.Availability.Regions[2])

	entry := song.AuditLog[0]
	assert.Equal(t, []string{"AR", "MX"}, entry.Regions)
	assert.Equal(t, model.EffectivePublished, entry.PreviousState)
	assert.Equal(t, model.EffectiveRegionBlocked, entry.NewState)
	assert.Equal(t, "Availability changed to region-blocked (regions)", entry.Details)
}

func TestUpdateAvailabilityGlobalRemapsEveryRegion(t *testing.T) {
	svc, _ := newTestService(t, newSong("s1", region("GLOBAL", model.RegionPublished), region("AR", model.RegionRegionBlocked)))

	song, err := svc.UpdateAvailability(context.Background(), "s1", AvailabilityRequest{Status: model.StatusScheduled, Actor: "alice"})
	require.NoError(t, err)

	assert.Equal(t, model.StatusScheduled, song.Status)
	for _, r := range song.Availability.Regions {
		assert.Equal(t, model.RegionScheduled, r.Status)
		assert.True(t, r.Allowed)
	}
	assert.Equal(t, model.ScopeGlobal, song.AuditLog[0].Scope)
	assert.Equal(t, model.EffectiveScheduled, song.AuditLog[0].NewState)
}

func TestUpdateAvailabilityDetails(t *testing.T) {
	tests := []struct {
		name string
		req  AvailabilityRequest
		want string
	}{
		{"reason wins", AvailabilityRequest{Status: model.StatusPublished, Reason: "Label request", ValidFrom: "2025-01-01"}, "Label request"},
		{"no status", AvailabilityRequest{}, "Availability changed to updated (global)"},
		{"validity both", AvailabilityRequest{Status: model.StatusPublished, ValidFrom: "2025-01-01", ValidTo: "2025-02-01"}, "Availability changed to published (global) | validity 2025-01-01 - 2025-02-01"},
		{"validity open end", AvailabilityRequest{Status: model.StatusPublished, ValidFrom: "2025-01-01"}, "Availability changed to published (global) | validity 2025-01-01 - no end"},
		{"validity from now", AvailabilityRequest{Status: model.StatusPublished, ValidTo: "2025-02-01T00:00:00Z"}, "Availability changed to published (global) | validity immediate - 2025-02-01T00:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t, newSong("s1"))
			tt.req.Actor = "alice"
			song, err := svc.UpdateAvailability(context.Background(), "s1", tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, song.AuditLog[0].Details)
		})
	}
}

func TestUpdateAvailabilityRegionsWithoutStatusOnlyEnsuresEntries(t *testing.T) {
	svc, _ := newTestService(t, newSong("s1", region("GLOBAL", model.RegionPublished), region("AR", model.RegionRegionBlocked)))

	song, err := svc.UpdateAvailability(context.Background(), "s1", AvailabilityRequest{Scope: model.ScopeRegions, Regions: []string{"ar", "br"}, Actor: "alice"})
	require.NoError(t, err)

	assert.Equal(t, model.StatusPublished, song.Status)
	assert.Equal(t, region("AR", model.RegionRegionBlocked), song.Availability.Regions[1])
	assert.Equal(t, region("BR", model.RegionPublished), song.Availability.Regions[2])
	assert.Equal(t, "Availability changed to updated (regions)", song.AuditLog[0].Details)
}

func TestUpdateAvailabilityRejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		req  AvailabilityRequest
	}{
		{"regions scope without regions", AvailabilityRequest{Status: model.StatusPublished, Scope: model.ScopeRegions, Actor: "alice"}},
		{"unknown status", AvailabilityRequest{Status: "gone", Actor: "alice"}},
		{"unknown scope", AvailabilityRequest{Status: model.StatusPublished, Scope: "planet", Actor: "alice"}},
		{"bad validity", AvailabilityRequest{Status: model.StatusPublished, ValidFrom: "yesterday", Actor: "alice"}},
		{"missing actor", AvailabilityRequest{Status: model.StatusPublished}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newTestService(t, newSong("s1"))
			_, err := svc.UpdateAvailability(context.Background(), "s1", tt.req)
			require.ErrorIs(t, err, ErrInvalidArgument)

			stored, err := repo.GetByID(context.Background(), "s1")
			require.NoError(t, err)
			assert.Empty(t, stored.AuditLog)
		})
	}
}

func TestMutationHealsEmptyRegions(t *testing.T) {
	song := newSong("s1")
	song.Availability = model.Availability{}
	svc, _ := newTestService(t, song)

	got, err := svc.UpdateAvailability(context.Background(), "s1", AvailabilityRequest{Status: model.StatusRegionBlocked, Actor: "alice"})
	require.NoError(t, err)
	require.Len(t, got.Availability.Regions, 1)
	assert.Equal(t, region("GLOBAL", model.RegionRegionBlocked), got.Availability.Regions[0])
	assert.Equal(t, model.DefaultPolicy, got.Availability.Policy)
}

func TestMutationDetectsConcurrentWrite(t *testing.T) {
	svc, repo := newTestService(t, newSong("s1"))
	ctx := context.Background()

	stale, err := repo.GetByID(ctx, "s1")
	require.NoError(t, err)
	_, err = svc.Block(ctx, "s1", BlockRequest{ReasonCode: "legal", Actor: "alice"})
	require.NoError(t, err)

	stale.Title = "overwritten"
	assert.ErrorIs(t, repo.Save(ctx, stale), repository.ErrStaleVersion)

	conflicting := NewService(failingSaveRepo{SongRepository: repo, err: repository.ErrStaleVersion})
	_, err = conflicting.Unblock(ctx, "s1", UnblockRequest{Actor: "bob"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestPersistFailureLeavesNoAuditEntry(t *testing.T) {
	_, repo := newTestService(t, newSong("s1"))
	observer := &recordingObserver{}
	svc := NewService(failingSaveRepo{SongRepository: repo, err: errors.New("disk full")}, observer)

	_, err := svc.Block(context.Background(), "s1", BlockRequest{ReasonCode: "legal", Actor: "alice"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConflict)

	stored, err := repo.GetByID(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, stored.AuditLog)
	assert.Equal(t, model.StatusPublished, stored.Status)
	assert.Empty(t, observer.entries)
}

func TestObserversSeeEachEntry(t *testing.T) {
	observer := &recordingObserver{}
	svc, _ := newTestService(t, newSong("s1"))
	svc.AddObserver(observer)
	ctx := context.Background()

	_, err := svc.Block(ctx, "s1", BlockRequest{ReasonCode: "legal", Actor: "alice"})
	require.NoError(t, err)
	song, err := svc.Unblock(ctx, "s1", UnblockRequest{Actor: "alice"})
	require.NoError(t, err)

	require.Len(t, observer.entries, 2)
	assert.Equal(t, song.AuditLog[0].ID, observer.entries[1].ID)
	assert.Equal(t, song.AuditLog[1].ID, observer.entries[0].ID)
}

// Any sequence of mutations keeps the audit trail complete and consistent
// with the resolver.
func TestMutationSequencesKeepAuditComplete(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		repo := repository.NewMemorySongRepository()
		song := model.NewSong("s1", "Song", nil, fixedNow)
		song.Status = rapid.SampledFrom(baseStatuses).Draw(t, "initialBase")
		song.Availability.Regions = drawRegions(t)
		song.Availability.Normalize()
		if err := repo.Create(context.Background(), song); err != nil {
			t.Fatalf("create: %v", err)
		}
		svc := NewService(repo)
		ctx := context.Background()

		steps := rapid.IntRange(1, 8).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			before, _ := repo.GetByID(ctx, "s1")
			prevLen := len(before.AuditLog)
			prevState := EffectiveStatusOf(before)

			var (
				after *model.Song
				err   error
			)
			scope := rapid.SampledFrom([]model.BlockScope{model.ScopeGlobal, model.ScopeRegions}).Draw(t, "scope")
			regions := rapid.SliceOfN(rapid.SampledFrom(regionCodes), 0, 3).Draw(t, "regions")
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				after, err = svc.Block(ctx, "s1", BlockRequest{Scope: scope, Regions: regions, ReasonCode: "legal", Actor: "prop"})
			case 1:
				after, err = svc.Unblock(ctx, "s1", UnblockRequest{Actor: "prop"})
			default:
				status := rapid.SampledFrom(baseStatuses).Draw(t, "status")
				after, err = svc.UpdateAvailability(ctx, "s1", AvailabilityRequest{Status: status, Scope: scope, Regions: regions, Actor: "prop"})
			}

			stored, _ := repo.GetByID(ctx, "s1")
			if err != nil {
				if !errors.Is(err, ErrInvalidArgument) {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(stored.AuditLog) != prevLen {
					t.Fatalf("failed mutation wrote audit entry")
				}
				continue
			}

			if len(after.AuditLog) != prevLen+1 || len(stored.AuditLog) != prevLen+1 {
				t.Fatalf("audit grew from %d to %d", prevLen, len(after.AuditLog))
			}
			head := after.AuditLog[0]
			if head.PreviousState != prevState {
				t.Fatalf("previous state %s, want %s", head.PreviousState, prevState)
			}
			if head.NewState != EffectiveStatusOf(after) {
				t.Fatalf("new state %s, resolver says %s", head.NewState, EffectiveStatusOf(after))
			}
			for _, r := range after.Availability.Regions {
				if r.Allowed != r.Status.Allows() {
					t.Fatalf("region %s allowed=%v with status %s", r.Code, r.Allowed, r.Status)
				}
			}
		}
	})
}

func TestGlobalBlockInvariantHoldsFromAnyState(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		repo := repository.NewMemorySongRepository()
		song := model.NewSong("s1", "Song", nil, fixedNow)
		song.Status = rapid.SampledFrom(baseStatuses).Draw(t, "base")
		song.Availability.Regions = drawRegions(t)
		song.AdminBlock = drawBlock(t)
		if err := repo.Create(context.Background(), song); err != nil {
			t.Fatalf("create: %v", err)
		}

		got, err := NewService(repo).Block(context.Background(), "s1", BlockRequest{Scope: model.ScopeGlobal, ReasonCode: "legal", Actor: "prop"})
		if err != nil {
			t.Fatalf("block: %v", err)
		}
		if len(got.Availability.Regions) == 0 {
			t.Fatalf("regions must never be empty")
		}
		for _, r := range got.Availability.Regions {
			if r.Allowed || r.Status != model.RegionAdminBlocked {
				t.Fatalf("region %s not admin-blocked: %+v", r.Code, r)
			}
		}
		if EffectiveStatusOf(got) != model.EffectiveAdminBlocked {
			t.Fatalf("resolved %s", EffectiveStatusOf(got))
		}
	})
}
