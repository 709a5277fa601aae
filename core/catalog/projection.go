package catalog

import (
	"time"

	"songcatalog/model"
)

// AvailabilityDetail is the availability as shown to clients, with the
// admin block folded into the region list.
type AvailabilityDetail struct {
	Policy  string              `json:"policy"`
	Regions []model.RegionEntry `json:"regions"`
}

// SongDetail 单曲详情的对外结构
type SongDetail struct {
	Type            string                `json:"type"`
	ID              string                `json:"id"`
	Title           string                `json:"title"`
	Artists         []model.Artist        `json:"artists"`
	AlbumID         string                `json:"albumId,omitempty"`
	Duration        int                   `json:"duration"`
	Status          model.BaseStatus      `json:"status"`
	EffectiveStatus model.EffectiveStatus `json:"effectiveStatus"`
	ProgrammedAt    *time.Time            `json:"programmedAt,omitempty"`
	ReleaseDate     *time.Time            `json:"releaseDate,omitempty"`
	HasVideo        bool                  `json:"hasVideo"`
	Availability    AvailabilityDetail    `json:"availability"`
	AdminBlock      *model.AdminBlock     `json:"adminBlock"`
	AuditLog        model.AuditLog        `json:"auditLog"`
	Version         int64                 `json:"version"`
	CreatedAt       time.Time             `json:"createdAt"`
	UpdatedAt       time.Time             `json:"updatedAt"`
}

// Project maps a song onto its wire projection.
func Project(song *model.Song) SongDetail {
	artists := []model.Artist(song.Artists)
	if artists == nil {
		artists = []model.Artist{}
	}
	auditLog := song.AuditLog
	if auditLog == nil {
		auditLog = model.AuditLog{}
	}
	return SongDetail{
		Type:            "song",
		ID:              song.ID,
		Title:           song.Title,
		Artists:         artists,
		AlbumID:         song.AlbumID,
		Duration:        song.Duration,
		Status:          song.Status,
		EffectiveStatus: EffectiveStatusOf(song),
		ProgrammedAt:    song.ProgrammedAt,
		ReleaseDate:     song.ReleaseDate,
		HasVideo:        song.HasVideo,
		Availability: AvailabilityDetail{
			Policy:  song.Availability.Policy,
			Regions: AvailabilityView(song.Availability, song.AdminBlock),
		},
		AdminBlock: song.AdminBlock,
		AuditLog:   auditLog,
		Version:    song.Version,
		CreatedAt:  song.CreatedAt,
		UpdatedAt:  song.UpdatedAt,
	}
}
