// Package ingest converts provider call, message and alert records into
// logs and stores the ones not seen before.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/callwatch/internal/metrics"
	"github.com/good-yellow-bee/callwatch/internal/models"
)

// LogWriter stores logs, skipping SIDs that already exist.
type LogWriter interface {
	Exists(ctx context.Context, sid string) (bool, error)
	Create(ctx context.Context, log *models.Log) (bool, error)
}

// Batch is a set of raw provider records, as returned by the provider API.
type Batch struct {
	Calls    []json.RawMessage `json:"calls"`
	Messages []json.RawMessage `json:"messages"`
	Alerts   []json.RawMessage `json:"alerts"`
}

// Len returns the number of records in the batch.
func (b *Batch) Len() int {
	return len(b.Calls) + len(b.Messages) + len(b.Alerts)
}

// DecodeBatch reads a JSON batch.
func DecodeBatch(r io.Reader) (*Batch, error) {
	var b Batch
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	return &b, nil
}

// Result reports how many new logs were stored per record type.
type Result struct {
	Calls      int `json:"calls"`
	Messages   int `json:"messages"`
	Alerts     int `json:"alerts"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
}

// Total returns the number of new logs stored.
func (r Result) Total() int {
	return r.Calls + r.Messages + r.Alerts
}

type converter func(raw json.RawMessage, now time.Time) (*models.Log, error)

// Ingestor stores provider records as unprocessed logs.
type Ingestor struct {
	logs   LogWriter
	logger *zap.Logger
	now    func() time.Time
}

// New creates an ingestor.
func New(logs LogWriter, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		logs:   logs,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Ingest converts and stores every record in b. Records that fail to
// convert are logged and counted as rejected; a store error aborts.
func (i *Ingestor) Ingest(ctx context.Context, b *Batch) (Result, error) {
	var res Result

	stages := []struct {
		name    string
		records []json.RawMessage
		convert converter
		count   *int
	}{
		{"call", b.Calls, convertCall, &res.Calls},
		{"message", b.Messages, convertMessage, &res.Messages},
		{"alert", b.Alerts, convertAlert, &res.Alerts},
	}

	for _, stage := range stages {
		for _, raw := range stage.records {
			if err := ctx.Err(); err != nil {
				return res, err
			}

			log, err := stage.convert(raw, i.now())
			if err != nil {
				res.Rejected++
				i.logger.Warn("rejected provider record", zap.String("record_type", stage.name), zap.Error(err))
				continue
			}

			stored, err := i.store(ctx, log)
			if err != nil {
				return res, err
			}
			if !stored {
				res.Duplicates++
				metrics.IngestDuplicatesTotal.Inc()
				continue
			}
			*stage.count++
			metrics.LogsIngestedTotal.WithLabelValues(string(log.Kind)).Inc()
		}
	}

	i.logger.Info("ingested provider records",
		zap.Int("total", res.Total()),
		zap.Int("calls", res.Calls),
		zap.Int("messages", res.Messages),
		zap.Int("alerts", res.Alerts),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("rejected", res.Rejected))
	return res, nil
}

// store writes log unless its SID exists. The unique SID index catches a
// concurrent insert that passes the existence check.
func (i *Ingestor) store(ctx context.Context, log *models.Log) (bool, error) {
	exists, err := i.logs.Exists(ctx, log.SID)
	if err != nil {
		return false, fmt.Errorf("check sid %s: %w", log.SID, err)
	}
	if exists {
		return false, nil
	}

	log.ID = uuid.New().String()
	log.CreatedAt = i.now()
	log.Processed = false

	created, err := i.logs.Create(ctx, log)
	if err != nil {
		return false, fmt.Errorf("store sid %s: %w", log.SID, err)
	}
	return created, nil
}
