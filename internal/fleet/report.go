package fleet

import (
	"context"

	"github.com/yairfalse/fleetop/pkg/instance"
)

// ReportBuilder materializes instance records for a set of ids.
type ReportBuilder struct {
	reader *Reader
}

// NewReportBuilder creates a ReportBuilder that reads through r.
func NewReportBuilder(r *Reader) *ReportBuilder {
	return &ReportBuilder{reader: r}
}

// Build describes ids and returns one record per reported instance, in the
// order the provider returned them.
func (b *ReportBuilder) Build(ctx context.Context, ids []instance.ID) ([]instance.Record, error) {
	raws, err := b.reader.ReadFull(ctx, ids)
	if err != nil {
		return nil, err
	}
	return Records(raws), nil
}

// Records converts raw instances to records, keeping their order.
func Records(raws []instance.Raw) []instance.Record {
	records := make([]instance.Record, 0, len(raws))
	for _, raw := range raws {
		records = append(records, instance.NewRecord(raw))
	}
	return records
}
