package model

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Artist 歌曲艺人
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ArtistList 自定义类型用于 GORM JSON 字段的自动扫描
type ArtistList []Artist

// Scan 实现 sql.Scanner 接口
func (a *ArtistList) Scan(value interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*a = nil
		return nil
	}
	if len(bytes) == 0 || string(bytes) == "null" {
		*a = nil
		return nil
	}
	return json.Unmarshal(bytes, a)
}

// Value 实现 driver.Valuer 接口
func (a ArtistList) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	return json.Marshal(a)
}

// Song 目录条目（聚合根）
type Song struct {
	ID           string       `json:"id" gorm:"primaryKey;size:36"`
	Title        string       `json:"title" gorm:"size:255;not null;index"`
	Artists      ArtistList   `json:"artists" gorm:"type:json"`
	ArtistIndex  string       `json:"-" gorm:"column:artist_names;size:1024"` // 小写艺人名，供 LIKE 搜索
	AlbumID      string       `json:"albumId,omitempty" gorm:"size:64"`
	Duration     int          `json:"duration"` // 秒
	FilePath     string       `json:"-" gorm:"size:512"`
	Status       BaseStatus   `json:"status" gorm:"size:20;not null;default:'published';index"`
	ProgrammedAt *time.Time   `json:"programmedAt,omitempty"`
	ReleaseDate  *time.Time   `json:"releaseDate,omitempty"`
	HasVideo     bool         `json:"hasVideo" gorm:"default:false"`
	Availability Availability `json:"availability" gorm:"type:json"`
	AdminBlock   *AdminBlock  `json:"adminBlock" gorm:"type:json;serializer:json"`
	AuditLog     AuditLog     `json:"auditLog" gorm:"type:json"`
	Version      int64        `json:"version" gorm:"not null;default:1"`
	CreatedAt    time.Time    `json:"createdAt" gorm:"index"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// TableName 指定表名
func (Song) TableName() string {
	return "songs"
}

// NewSong creates a published song with a single global region and an empty audit log.
func NewSong(id, title string, artists []Artist, now time.Time) *Song {
	return &Song{
		ID:           id,
		Title:        title,
		Artists:      ArtistList(artists),
		Status:       StatusPublished,
		Availability: DefaultAvailability(),
		AuditLog:     AuditLog{},
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// BeforeSave 同步搜索列
func (s *Song) BeforeSave(tx *gorm.DB) error {
	s.RefreshArtistIndex()
	return nil
}

// RefreshArtistIndex 由艺人列表重新生成 artist_names 列
func (s *Song) RefreshArtistIndex() {
	s.ArtistIndex = strings.ToLower(s.ArtistNames())
}

// AfterFind 旧数据可能缺少区域信息，加载时补齐
func (s *Song) AfterFind(tx *gorm.DB) error {
	s.Heal()
	return nil
}

// Heal brings a loaded row back to the constructor invariants.
func (s *Song) Heal() {
	if s.Status == "" {
		s.Status = StatusPublished
	}
	s.Availability.Normalize()
	if s.AuditLog == nil {
		s.AuditLog = AuditLog{}
	}
}

// ArtistNames 以逗号连接的艺人名
func (s *Song) ArtistNames() string {
	names := make([]string, 0, len(s.Artists))
	for _, a := range s.Artists {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return strings.Join(names, ", ")
}

// Clone 深拷贝，内存仓库和缓存需要隔离调用方的修改
func (s *Song) Clone() *Song {
	if s == nil {
		return nil
	}
	out := *s
	out.Artists = append(ArtistList(nil), s.Artists...)
	out.Availability = s.Availability.Clone()
	out.AdminBlock = s.AdminBlock.Clone()
	out.AuditLog = s.AuditLog.Clone()
	if s.ProgrammedAt != nil {
		t := *s.ProgrammedAt
		out.ProgrammedAt = &t
	}
	if s.ReleaseDate != nil {
		t := *s.ReleaseDate
		out.ReleaseDate = &t
	}
	return &out
}
