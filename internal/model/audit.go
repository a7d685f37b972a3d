package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActivityKind enumerates the security-relevant actions that are audited.
type ActivityKind string

const (
	ActivityLogin                ActivityKind = "login"
	ActivityLoginFailed          ActivityKind = "login_failed"
	ActivityLogout               ActivityKind = "logout"
	ActivityPasswordChange       ActivityKind = "password_change"
	ActivityPasswordResetRequest ActivityKind = "password_reset_request"
	ActivityPasswordReset        ActivityKind = "password_reset"
	ActivityProfileUpdate        ActivityKind = "profile_update"
	ActivityAdminAction          ActivityKind = "admin_action"
	ActivityAccountLock          ActivityKind = "account_lock"
	ActivityAccountUnlock        ActivityKind = "account_unlock"
)

var activityKinds = map[ActivityKind]struct{}{
	ActivityLogin:                {},
	ActivityLoginFailed:          {},
	ActivityLogout:               {},
	ActivityPasswordChange:       {},
	ActivityPasswordResetRequest: {},
	ActivityPasswordReset:        {},
	ActivityProfileUpdate:        {},
	ActivityAdminAction:          {},
	ActivityAccountLock:          {},
	ActivityAccountUnlock:        {},
}

func (k ActivityKind) Valid() bool {
	_, ok := activityKinds[k]
	return ok
}

// ActivityLog is an immutable audit event.
type ActivityLog struct {
	ID             uuid.UUID     `json:"id" db:"id"`
	AccountID      uuid.UUID     `json:"account_id" db:"account_id"`
	OrganizationID uuid.UUID     `json:"organization_id" db:"organization_id"`
	Kind           ActivityKind  `json:"kind" db:"kind"`
	Description    string        `json:"description" db:"description"`
	IPAddress      *string       `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent      *string       `json:"user_agent,omitempty" db:"user_agent"`
	Extra          ActivityExtra `json:"extra" db:"extra"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
}

// ActivityExtraVersion is the current schema version of ActivityExtra.
const ActivityExtraVersion = 1

// ActivityExtra is the structured payload attached to an event. Values are
// strings so that round-trips through JSONB are lossless.
type ActivityExtra struct {
	Version int               `json:"v"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Extra builds an ActivityExtra from alternating key/value pairs.
func Extra(kv ...string) ActivityExtra {
	e := ActivityExtra{Version: ActivityExtraVersion}
	if len(kv) == 0 {
		return e
	}
	e.Fields = make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		e.Fields[kv[i]] = kv[i+1]
	}
	return e
}

// Clone returns a copy that shares no map with e.
func (e ActivityExtra) Clone() ActivityExtra {
	c := ActivityExtra{Version: e.Version}
	if e.Fields != nil {
		c.Fields = make(map[string]string, len(e.Fields))
		for k, v := range e.Fields {
			c.Fields[k] = v
		}
	}
	return c
}

func (e ActivityExtra) Get(key string) string {
	return e.Fields[key]
}

func (e ActivityExtra) Value() (driver.Value, error) {
	if e.Version == 0 {
		e.Version = ActivityExtraVersion
	}
	return json.Marshal(e)
}

func (e *ActivityExtra) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*e = ActivityExtra{Version: ActivityExtraVersion}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported extra type %T", src)
	}
	if err := json.Unmarshal(raw, e); err != nil {
		return fmt.Errorf("failed to decode activity extra: %w", err)
	}
	if e.Version == 0 {
		e.Version = ActivityExtraVersion
	}
	return nil
}

// ActivityEntry is the input to audit recording.
type ActivityEntry struct {
	AccountID      uuid.UUID
	OrganizationID uuid.UUID
	Kind           ActivityKind
	Description    string
	Request        RequestContext
	Extra          ActivityExtra
}

// ActivityFilter narrows an activity query. Zero values are ignored.
type ActivityFilter struct {
	AccountID      *uuid.UUID
	OrganizationID *uuid.UUID
	Kind           ActivityKind
	IPAddress      string
	From           *time.Time
	To             *time.Time
	Pagination
}

// ActivityPage is one page of a descending-time activity query.
type ActivityPage struct {
	Items      []*ActivityLog `json:"items"`
	Total      int64          `json:"total"`
	Offset     int            `json:"offset"`
	PageSize   int            `json:"page_size"`
	NextOffset *int           `json:"next_offset,omitempty"`
}

// ActivityQuery is the transport form of ActivityFilter.
type ActivityQuery struct {
	AccountID string `form:"account_id" binding:"omitempty,uuid"`
	Kind      string `form:"kind"`
	IPAddress string `form:"ip" binding:"omitempty,ip"`
	From      string `form:"from"`
	To        string `form:"to"`
	Offset    int    `form:"offset" binding:"min=0"`
	PageSize  int    `form:"page_size" binding:"min=0"`
}
