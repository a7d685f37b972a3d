package audit

import (
	"context"

	"github.com/jwalitptl/account-security/internal/model"
)

// Pager walks a filtered activity query page by page. It can be restarted
// from any offset with Seek.
type Pager struct {
	svc    *Service
	filter model.ActivityFilter
	done   bool
}

func (s *Service) NewPager(filter model.ActivityFilter) *Pager {
	filter.Pagination = filter.Pagination.Normalize()
	return &Pager{svc: s, filter: filter}
}

// Next fetches the next page. ok is false once the sequence is exhausted.
func (p *Pager) Next(ctx context.Context) (items []*model.ActivityLog, ok bool, err error) {
	if p.done {
		return nil, false, nil
	}

	page, err := p.svc.Query(ctx, p.filter)
	if err != nil {
		return nil, false, err
	}
	if len(page.Items) == 0 {
		p.done = true
		return nil, false, nil
	}

	if page.NextOffset == nil {
		p.done = true
	} else {
		p.filter.Offset = *page.NextOffset
	}
	return page.Items, true, nil
}

// Offset is the position the next call to Next reads from.
func (p *Pager) Offset() int {
	return p.filter.Offset
}

func (p *Pager) Seek(offset int) {
	if offset < 0 {
		offset = 0
	}
	p.filter.Offset = offset
	p.done = false
}
