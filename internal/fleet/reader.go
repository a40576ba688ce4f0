package fleet

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/yairfalse/fleetop/pkg/instance"
)

// Reader samples instance state from the provider, one batched call per read.
type Reader struct {
	provider Provider
	log      zerolog.Logger
}

// NewReader creates a Reader over p.
func NewReader(p Provider, opts ...Option) *Reader {
	o := newOptions(opts)
	return &Reader{provider: p, log: o.logger}
}

// Read returns the current state of ids. Ids the provider does not report
// are absent from the snapshot.
func (r *Reader) Read(ctx context.Context, ids []instance.ID) (instance.Snapshot, error) {
	raws, err := r.ReadFull(ctx, ids)
	if err != nil {
		return instance.Snapshot{}, err
	}
	snap := instance.NewSnapshot(raws)
	r.log.Debug().Interface("states", snap.Strings()).Msg("current states")
	return snap, nil
}

// ReadFull returns the provider's full description of ids, in provider order.
func (r *Reader) ReadFull(ctx context.Context, ids []instance.ID) ([]instance.Raw, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyTargetSet
	}
	r.log.Debug().Strs("instance_ids", instance.IDStrings(ids)).Msg("describing instances")

	raws, err := r.provider.DescribeInstances(ctx, ids)
	if err != nil {
		return nil, newProviderError("describe", ids, err)
	}
	return raws, nil
}

// ReadAll returns every instance the provider can see.
func (r *Reader) ReadAll(ctx context.Context) ([]instance.Raw, error) {
	raws, err := r.provider.DescribeAllInstances(ctx)
	if err != nil {
		return nil, newProviderError("describe-all", nil, err)
	}
	return raws, nil
}

// Resolve returns the target id set: every instance when all is set,
// otherwise the de-duplicated ids. An empty result is ErrEmptyTargetSet.
func (r *Reader) Resolve(ctx context.Context, ids []instance.ID, all bool) ([]instance.ID, error) {
	var resolved []instance.ID
	if all {
		raws, err := r.ReadAll(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range raws {
			resolved = append(resolved, raw.ID)
		}
	} else {
		resolved = ids
	}

	resolved = instance.UniqueIDs(resolved)
	if len(resolved) == 0 {
		return nil, ErrEmptyTargetSet
	}
	return resolved, nil
}
