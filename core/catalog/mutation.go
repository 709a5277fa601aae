package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"songcatalog/logger"
	"songcatalog/model"
	"songcatalog/repository"
)

// ReasonCodes accepted by Block.
var ReasonCodes = []string{"legal", "copyright", "quality", "artist-request", "policy"}

// BlockRequest 管理员封禁请求
type BlockRequest struct {
	Scope      model.BlockScope `json:"scope"`
	Regions    []string         `json:"regions"`
	ReasonCode string           `json:"reasonCode"`
	Actor      string           `json:"actor"`
}

// UnblockRequest 解除封禁请求
type UnblockRequest struct {
	Actor string `json:"actor"`
}

// AvailabilityRequest 可用性更新请求
type AvailabilityRequest struct {
	Status    model.BaseStatus `json:"status"`
	Scope     model.BlockScope `json:"scope"`
	Regions   []string         `json:"regions"`
	Reason    string           `json:"reason"`
	Actor     string           `json:"actor"`
	ValidFrom string           `json:"validFrom"`
	ValidTo   string           `json:"validTo"`
}

// Observer is notified after a mutation has been persisted.
type Observer interface {
	CatalogChanged(ctx context.Context, song *model.Song, entry model.AuditEntry)
}

// Service applies block, unblock and availability mutations to catalog items.
type Service struct {
	repo      repository.SongRepository
	audit     *AuditRecorder
	observers []Observer
	releases  ReleaseDateSource
}

// NewService creates a catalog service backed by repo.
func NewService(repo repository.SongRepository, observers ...Observer) *Service {
	return &Service{
		repo:      repo,
		audit:     NewAuditRecorder(time.Now),
		observers: observers,
	}
}

// SetClock replaces the wall clock used for audit timestamps.
func (s *Service) SetClock(now func() time.Time) {
	s.audit = NewAuditRecorder(now)
}

// AddObserver registers o for future mutations.
func (s *Service) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

// change is what a mutation reports for its audit entry.
type change struct {
	action     model.AuditAction
	details    string
	scope      model.BlockScope
	regions    []string
	reasonCode string
}

// Block applies an admin block globally or to specific regions.
func (s *Service) Block(ctx context.Context, id string, req BlockRequest) (*model.Song, error) {
	scope := req.Scope
	if scope == "" {
		scope = model.ScopeGlobal
	}
	if err := validateScope(scope); err != nil {
		return nil, err
	}
	if !validReasonCode(req.ReasonCode) {
		return nil, fmt.Errorf("%w: reasonCode must be one of %s", ErrInvalidArgument, strings.Join(ReasonCodes, ", "))
	}
	var codes []string
	if scope == model.ScopeRegions {
		codes = NormalizeRegionCodes(req.Regions)
		if len(codes) == 0 {
			return nil, fmt.Errorf("%w: regions are required for regional blocks", ErrInvalidArgument)
		}
	}

	return s.mutate(ctx, id, req.Actor, func(song *model.Song, now time.Time) change {
		if scope == model.ScopeGlobal {
			song.Status = model.StatusBlocked
			for i := range song.Availability.Regions {
				song.Availability.Regions[i].Set(model.RegionAdminBlocked)
			}
			song.AdminBlock = &model.AdminBlock{
				Scope:      model.ScopeGlobal,
				Regions:    []string{},
				ReasonCode: req.ReasonCode,
				Actor:      req.Actor,
				AppliedAt:  now,
			}
			return change{
				action:     model.ActionBlocked,
				details:    fmt.Sprintf("Admin block applied globally (%s)", req.ReasonCode),
				scope:      model.ScopeGlobal,
				regions:    []string{model.GlobalRegion},
				reasonCode: req.ReasonCode,
			}
		}

		upper := UpperCodes(codes)
		for _, code := range codes {
			EnsureRegion(&song.Availability, code).Set(model.RegionAdminBlocked)
		}
		song.AdminBlock = mergeRegionalBlock(song.AdminBlock, upper, req.ReasonCode, req.Actor, now)
		return change{
			action:     model.ActionBlocked,
			details:    "Admin block applied to " + strings.Join(upper, ", "),
			scope:      model.ScopeRegions,
			regions:    upper,
			reasonCode: req.ReasonCode,
		}
	})
}

// Unblock removes the admin block and restores admin-blocked regions.
func (s *Service) Unblock(ctx context.Context, id string, req UnblockRequest) (*model.Song, error) {
	return s.mutate(ctx, id, req.Actor, func(song *model.Song, _ time.Time) change {
		song.AdminBlock = nil
		if song.Status == model.StatusBlocked {
			song.Status = model.StatusPublished
		}
		for i := range song.Availability.Regions {
			if song.Availability.Regions[i].Status == model.RegionAdminBlocked {
				song.Availability.Regions[i].Set(model.RegionPublished)
			}
		}
		return change{
			action:  model.ActionUnblocked,
			details: "Admin block removed and availability restored",
			scope:   model.ScopeGlobal,
			regions: []string{model.GlobalRegion},
		}
	})
}

// UpdateAvailability overwrites the base status and remaps the targeted regions.
func (s *Service) UpdateAvailability(ctx context.Context, id string, req AvailabilityRequest) (*model.Song, error) {
	if req.Status != "" && !req.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, req.Status)
	}
	scope := req.Scope
	if scope != "" {
		if err := validateScope(scope); err != nil {
			return nil, err
		}
	}
	if scope == "" && req.Status != "" {
		scope = model.ScopeGlobal
	}
	var codes []string
	if scope == model.ScopeRegions {
		codes = NormalizeRegionCodes(req.Regions)
		if len(codes) == 0 {
			return nil, fmt.Errorf("%w: regions are required for regional scope", ErrInvalidArgument)
		}
	}
	for _, bound := range []string{req.ValidFrom, req.ValidTo} {
		if bound == "" {
			continue
		}
		if _, ok := ParseDate(bound); !ok {
			return nil, fmt.Errorf("%w: invalid validity bound %q", ErrInvalidArgument, bound)
		}
	}

	return s.mutate(ctx, id, req.Actor, func(song *model.Song, _ time.Time) change {
		if req.Status != "" {
			song.Status = req.Status
		}
		switch scope {
		case model.ScopeGlobal:
			if req.Status != "" {
				mapped := RegionStatusFor(req.Status)
				for i := range song.Availability.Regions {
					song.Availability.Regions[i].Set(mapped)
				}
			}
		case model.ScopeRegions:
			for _, code := range codes {
				entry := EnsureRegion(&song.Availability, code)
				if req.Status != "" {
					entry.Set(RegionStatusFor(req.Status))
				}
			}
		}

		c := change{
			action:  model.ActionAvailabilityUpdate,
			details: req.Reason,
			scope:   model.ScopeGlobal,
			regions: []string{model.GlobalRegion},
		}
		if scope == model.ScopeRegions {
			c.scope = model.ScopeRegions
			c.regions = UpperCodes(codes)
		}
		if c.details == "" {
			c.details = availabilityDetails(req.Status, c.scope, req.ValidFrom, req.ValidTo)
		}
		return c
	})
}

// mutate runs fn against a freshly loaded song, appends the audit entry and
// persists once. Nothing is written when fn's song cannot be saved.
func (s *Service) mutate(ctx context.Context, id, actor string, fn func(*model.Song, time.Time) change) (*model.Song, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, fmt.Errorf("%w: actor is required", ErrInvalidArgument)
	}

	song, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	EnsureDefaultRegion(&song.Availability)

	now := s.audit.Now()
	previous := EffectiveStatusOf(song)
	c := fn(song, now)
	next := EffectiveStatusOf(song)

	entry := s.audit.Record(song, AuditInput{
		Action:        c.action,
		Actor:         actor,
		Details:       c.details,
		Scope:         c.scope,
		Regions:       c.regions,
		ReasonCode:    c.reasonCode,
		PreviousState: previous,
		NewState:      next,
	}, now)
	song.UpdatedAt = now

	if err := s.repo.Save(ctx, song); err != nil {
		if errors.Is(err, repository.ErrStaleVersion) {
			return nil, fmt.Errorf("%w: %s", ErrConflict, id)
		}
		logger.Error("[Catalog] 保存失败",
			logger.String("songId", id),
			logger.String("action", string(c.action)),
			logger.ErrorField(err))
		return nil, fmt.Errorf("persist song %s: %w", id, err)
	}

	logger.Info("[Catalog] 可用性已变更",
		logger.String("songId", id),
		logger.String("action", string(c.action)),
		logger.String("actor", actor),
		logger.String("previousState", string(previous)),
		logger.String("newState", string(next)))

	for _, o := range s.observers {
		o.CatalogChanged(ctx, song, entry)
	}
	return song, nil
}

func (s *Service) load(ctx context.Context, id string) (*model.Song, error) {
	song, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load song %s: %w", id, err)
	}
	if song == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return song, nil
}

func mergeRegionalBlock(existing *model.AdminBlock, regions []string, reasonCode, actor string, now time.Time) *model.AdminBlock {
	if existing != nil && existing.Scope == model.ScopeGlobal {
		return existing
	}
	merged := &model.AdminBlock{
		Scope:      model.ScopeRegions,
		ReasonCode: reasonCode,
		Actor:      actor,
		AppliedAt:  now,
	}
	seen := make(map[string]bool)
	if existing != nil {
		for _, r := range existing.Regions {
			c := model.CanonicalRegion(r)
			if !seen[c] {
				seen[c] = true
				merged.Regions = append(merged.Regions, c)
			}
		}
	}
	for _, r := range regions {
		if !seen[r] {
			seen[r] = true
			merged.Regions = append(merged.Regions, r)
		}
	}
	return merged
}

func availabilityDetails(status model.BaseStatus, scope model.BlockScope, validFrom, validTo string) string {
	label := string(status)
	if label == "" {
		label = "updated"
	}
	details := fmt.Sprintf("Availability changed to %s (%s)", label, scope)
	if validFrom != "" || validTo != "" {
		from, to := validFrom, validTo
		if from == "" {
			from = "immediate"
		}
		if to == "" {
			to = "no end"
		}
		details += fmt.Sprintf(" | validity %s - %s", from, to)
	}
	return details
}

func validateScope(scope model.BlockScope) error {
	if scope != model.ScopeGlobal && scope != model.ScopeRegions {
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidArgument, scope)
	}
	return nil
}

func validReasonCode(code string) bool {
	for _, c := range ReasonCodes {
		if c == code {
			return true
		}
	}
	return false
}
