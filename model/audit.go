package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// EffectiveStatus is the derived user-facing verdict, highest precedence first.
type EffectiveStatus string

const (
	EffectiveAdminBlocked  EffectiveStatus = "Bloqueado-admin"
	EffectiveRegionBlocked EffectiveStatus = "No-disponible-region"
	EffectiveScheduled     EffectiveStatus = "Programado"
	EffectivePublished     EffectiveStatus = "Publicado"
)

// Valid reports whether s is one of the four effective statuses.
func (s EffectiveStatus) Valid() bool {
	switch s {
	case EffectiveAdminBlocked, EffectiveRegionBlocked, EffectiveScheduled, EffectivePublished:
		return true
	}
	return false
}

// AuditAction 审计动作
type AuditAction string

const (
	ActionBlocked            AuditAction = "blocked-admin"
	ActionUnblocked          AuditAction = "unblocked-admin"
	ActionAvailabilityUpdate AuditAction = "availability-update"
)

// AuditEntry 一次状态变更的不可变记录
type AuditEntry struct {
	ID            string          `json:"id"`
	Timestamp     time.Time       `json:"timestamp"`
	Action        AuditAction     `json:"action"`
	Actor         string          `json:"actor"`
	Details       string          `json:"details"`
	Scope         BlockScope      `json:"scope,omitempty"`
	Regions       []string        `json:"regions,omitempty"`
	ReasonCode    string          `json:"reasonCode,omitempty"`
	PreviousState EffectiveStatus `json:"previousState"`
	NewState      EffectiveStatus `json:"newState"`
}

// AuditLog 审计日志，最新的在前
type AuditLog []AuditEntry

// Prepend inserts e at index 0.
func (l *AuditLog) Prepend(e AuditEntry) {
	*l = append(AuditLog{e}, *l...)
}

// Clone 深拷贝
func (l AuditLog) Clone() AuditLog {
	if l == nil {
		return nil
	}
	out := make(AuditLog, len(l))
	for i, e := range l {
		e.Regions = append([]string(nil), e.Regions...)
		out[i] = e
	}
	return out
}

// Scan 实现 sql.Scanner 接口
func (l *AuditLog) Scan(value interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*l = AuditLog{}
		return nil
	}
	if len(bytes) == 0 || string(bytes) == "null" {
		*l = AuditLog{}
		return nil
	}
	return json.Unmarshal(bytes, l)
}

// Value 实现 driver.Valuer 接口
func (l AuditLog) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return json.Marshal(l)
}
