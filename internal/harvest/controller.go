package harvest

import (
	"fmt"

	"go.uber.org/zap"
)

// DedupStore durably marks persisted article ids so later runs can skip
// them. Optional; a nil store preserves the pure run-lifetime semantics.
type DedupStore interface {
	Seen(key string) (bool, error)
	Mark(key string) error
}

// batchSummary reports what happened to one dispatched batch.
type batchSummary struct {
	Persisted  int
	Failed     int
	Skipped    int
	Duplicates int
}

// persister is the single place records enter the sink. It is owned by the
// controller goroutine; fetch workers never touch it.
type persister struct {
	sink   *RecordSink
	store  DedupStore
	logger *zap.Logger
}

// persistBatch appends every successful outcome. Per-item failures were
// already logged at the fetch worker when they occurred; here they are only
// counted. Only a sink write failure is returned, and it must end the run.
func (p *persister) persistBatch(results []Result) (batchSummary, error) {
	var sum batchSummary
	for _, res := range results {
		switch {
		case res.Err != nil:
			sum.Failed++
		case res.Skipped:
			sum.Skipped++
		case res.Record != nil:
			persisted, err := p.persistRecord(*res.Record)
			if err != nil {
				return sum, err
			}
			if persisted {
				sum.Persisted++
			} else {
				sum.Duplicates++
			}
		}
	}
	return sum, nil
}

func (p *persister) persistRecord(record ArticleRecord) (bool, error) {
	key := record.Publisher + "/" + record.ArticleID
	if p.store != nil {
		seen, err := p.store.Seen(key)
		if err != nil {
			return false, fmt.Errorf("dedup store lookup: %w", err)
		}
		if seen {
			duplicateSkips.Inc()
			p.logger.Debug("record already persisted in a previous run",
				zap.String("article_id", record.ArticleID),
			)
			return false, nil
		}
	}

	if err := p.sink.Append(record); err != nil {
		return false, err
	}
	recordsPersisted.Inc()

	if p.store != nil {
		if err := p.store.Mark(key); err != nil {
			return false, fmt.Errorf("dedup store mark: %w", err)
		}
	}
	return true, nil
}
