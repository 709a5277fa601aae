package model

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"
)

// BaseStatus 歌曲的基础生命周期状态
type BaseStatus string

const (
	StatusScheduled     BaseStatus = "scheduled"
	StatusPublished     BaseStatus = "published"
	StatusRegionBlocked BaseStatus = "region-blocked"
	StatusBlocked       BaseStatus = "blocked"
)

// Valid reports whether s is one of the four lifecycle statuses.
func (s BaseStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusPublished, StatusRegionBlocked, StatusBlocked:
		return true
	}
	return false
}

// RegionStatus 区域条目状态
type RegionStatus string

const (
	RegionPublished     RegionStatus = "published"
	RegionScheduled     RegionStatus = "scheduled"
	RegionRegionBlocked RegionStatus = "region-blocked"
	RegionAdminBlocked  RegionStatus = "admin-blocked"
)

// Allows 区域状态对应的 allowed 标志
func (s RegionStatus) Allows() bool {
	return s != RegionRegionBlocked && s != RegionAdminBlocked
}

// BlockScope 变更作用范围
type BlockScope string

const (
	ScopeGlobal  BlockScope = "global"
	ScopeRegions BlockScope = "regions"
)

const (
	// GlobalRegion is the fallback entry consulted when no specific region matches.
	GlobalRegion  = "GLOBAL"
	DefaultPolicy = "global-allow"
)

// CanonicalRegion returns the stored form of a region code.
func CanonicalRegion(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// RegionEntry 单个区域的可用性记录
type RegionEntry struct {
	Code    string       `json:"code"`
	Allowed bool         `json:"allowed"`
	Status  RegionStatus `json:"status"`
}

// Set 更新状态并同步 allowed 标志
func (e *RegionEntry) Set(status RegionStatus) {
	e.Status = status
	e.Allowed = status.Allows()
}

// Availability 歌曲可用性（JSON 列）
type Availability struct {
	Policy  string        `json:"policy"`
	Regions []RegionEntry `json:"regions"`
}

// DefaultAvailability 新建歌曲的默认可用性：全局发布
func DefaultAvailability() Availability {
	return Availability{
		Policy:  DefaultPolicy,
		Regions: []RegionEntry{{Code: GlobalRegion, Allowed: true, Status: RegionPublished}},
	}
}

// Normalize enforces the stored-shape invariants: a policy label, canonical
// unique region codes, allowed derived from status and at least one entry.
func (a *Availability) Normalize() {
	if a.Policy == "" {
		a.Policy = DefaultPolicy
	}
	seen := make(map[string]bool, len(a.Regions))
	regions := make([]RegionEntry, 0, len(a.Regions))
	for _, entry := range a.Regions {
		code := CanonicalRegion(entry.Code)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		entry.Code = code
		if entry.Status == "" {
			entry.Status = RegionPublished
		}
		entry.Allowed = entry.Status.Allows()
		regions = append(regions, entry)
	}
	a.Regions = regions
	if len(a.Regions) == 0 {
		a.Regions = DefaultAvailability().Regions
	}
}

// Clone 深拷贝
func (a Availability) Clone() Availability {
	out := Availability{Policy: a.Policy}
	if a.Regions != nil {
		out.Regions = append([]RegionEntry(nil), a.Regions...)
	}
	return out
}

// Scan 实现 sql.Scanner 接口
func (a *Availability) Scan(value interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*a = Availability{}
		return nil
	}
	if len(bytes) == 0 || string(bytes) == "null" {
		*a = Availability{}
		return nil
	}
	return json.Unmarshal(bytes, a)
}

// Value 实现 driver.Valuer 接口
func (a Availability) Value() (driver.Value, error) {
	if a.Regions == nil {
		a.Regions = []RegionEntry{}
	}
	return json.Marshal(a)
}

// AdminBlock 管理员封禁记录，仅在封禁生效期间存在
type AdminBlock struct {
	Scope      BlockScope `json:"scope"`
	Regions    []string   `json:"regions"`
	ReasonCode string     `json:"reasonCode"`
	Actor      string     `json:"actor"`
	AppliedAt  time.Time  `json:"appliedAt"`
}

// Covers reports whether the block applies to the given region code.
func (b *AdminBlock) Covers(region string) bool {
	if b == nil {
		return false
	}
	if b.Scope == ScopeGlobal {
		return true
	}
	code := CanonicalRegion(region)
	if code == "" {
		return false
	}
	for _, r := range b.Regions {
		if CanonicalRegion(r) == code {
			return true
		}
	}
	return false
}

// Clone 深拷贝
func (b *AdminBlock) Clone() *AdminBlock {
	if b == nil {
		return nil
	}
	out := *b
	out.Regions = append([]string(nil), b.Regions...)
	return &out
}
