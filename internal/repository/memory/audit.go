package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jwalitptl/account-security/internal/model"
	"github.com/jwalitptl/account-security/internal/repository"
)

type AuditRepository struct {
	mu   sync.RWMutex
	logs []*model.ActivityLog
}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

var _ repository.AuditRepository = (*AuditRepository)(nil)

func (r *AuditRepository) Create(ctx context.Context, log *model.ActivityLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logs = append(r.logs, cloneLog(log))
	return nil
}

func (r *AuditRepository) List(ctx context.Context, filter model.ActivityFilter) ([]*model.ActivityLog, int64, error) {
	r.mu.RLock()
	matched := make([]*model.ActivityLog, 0)
	for _, l := range r.logs {
		if matches(l, filter) {
			matched = append(matched, cloneLog(l))
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() > matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	page := filter.Pagination.Normalize()
	if page.Offset >= len(matched) {
		return []*model.ActivityLog{}, total, nil
	}
	end := page.Offset + page.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[page.Offset:end], total, nil
}

func (r *AuditRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.logs[:0]
	var deleted int64
	for _, l := range r.logs {
		if l.CreatedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, l)
	}
	r.logs = kept
	return deleted, nil
}

func matches(l *model.ActivityLog, f model.ActivityFilter) bool {
	switch {
	case f.AccountID != nil && l.AccountID != *f.AccountID:
		return false
	case f.OrganizationID != nil && l.OrganizationID != *f.OrganizationID:
		return false
	case f.Kind != "" && l.Kind != f.Kind:
		return false
	case f.IPAddress != "" && (l.IPAddress == nil || *l.IPAddress != f.IPAddress):
		return false
	case f.From != nil && l.CreatedAt.Before(*f.From):
		return false
	case f.To != nil && l.CreatedAt.After(*f.To):
		return false
	}
	return true
}

func cloneLog(l *model.ActivityLog) *model.ActivityLog {
	c := *l
	c.IPAddress = copyString(l.IPAddress)
	c.UserAgent = copyString(l.UserAgent)
	c.Extra = l.Extra.Clone()
	return &c
}
