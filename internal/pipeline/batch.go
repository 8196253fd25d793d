package pipeline

import (
	"context"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/evidence"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/snapshotio"
)

// IngestAll ingests a batch. Each tenant's snapshots run sequentially in
// captured_at order; tenants run concurrently up to the configured
// parallelism. The first error cancels the remaining work.
//
// Results are grouped by tenant id, each group in ingest order.
func (p *Pipeline) IngestAll(ctx context.Context, snaps []*evidence.Snapshot) ([]*Result, error) {
	byTenant := make(map[string][]*evidence.Snapshot)
	for _, s := range snaps {
		if s == nil {
			continue
		}
		byTenant[s.TenantID] = append(byTenant[s.TenantID], s)
	}
	tenants := make([]string, 0, len(byTenant))
	for t := range byTenant {
		tenants = append(tenants, t)
	}
	slices.Sort(tenants)

	results := make([][]*Result, len(tenants))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallel)
	for i, tenantID := range tenants {
		group := slices.Clone(byTenant[tenantID])
		snapshotio.SortByCapture(group)
		g.Go(func() error {
			for _, s := range group {
				if err := gctx.Err(); err != nil {
					return err
				}
				res, err := p.Ingest(gctx, s)
				if err != nil {
					return err
				}
				results[i] = append(results[i], res)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []*Result
	for _, rs := range results {
		out = append(out, rs...)
	}
	return out, nil
}
