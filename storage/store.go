// Package storage persists audit run history in a local bbolt file
// and keeps an in-memory fleet index for fast reads.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/btree"
	"go.etcd.io/bbolt"

	"github.com/yairfalse/vaaka/telemetry"
	"github.com/yairfalse/vaaka/types"
)

// Bucket names in bbolt.
var (
	bucketRuns    = []byte("runs")
	bucketResults = []byte("results")
	bucketMeta    = []byte("meta")
)

var keyCurrentSeq = []byte("current_seq")

const dbFileName = "vaaka.db"

// Store is the audit history store. Every recorded run gets the next
// sequence number; results are keyed by sequence and ARN so one run's
// results read back in ARN order.
type Store struct {
	mu sync.RWMutex

	// fleet indexes the latest successful audit per load balancer.
	fleet *btree.BTreeG[*FleetEntry]

	db *bbolt.DB

	currentSeq uint64

	dir    string
	logger *telemetry.Logger
}

// FleetEntry tracks one load balancer's latest audit in the index.
type FleetEntry struct {
	ARN         string
	Name        string
	Kind        types.LBKind
	LastSeq     uint64
	LastScore   float64
	LastAudited time.Time
}

// NewStore opens (or creates) the store under dir and rebuilds the
// fleet index from disk.
func NewStore(dir string, logger *telemetry.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	dbPath := filepath.Join(dir, dbFileName)

	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketRuns, bucketResults, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	store := &Store{
		fleet: btree.NewG[*FleetEntry](32, func(a, b *FleetEntry) bool {
			return a.ARN < b.ARN
		}),
		db:     db,
		dir:    dir,
		logger: logger,
	}

	store.loadSeq()

	if err := store.rebuildFleet(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to rebuild fleet index: %w", err)
	}
	logger.LogRebuildIndex(context.Background(), store.fleet.Len())

	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CurrentSeq returns the sequence number of the newest run.
func (s *Store) CurrentSeq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSeq
}

// RecordRun persists one run summary with all its results atomically
// and returns the sequence number assigned to the run.
func (s *Store) RecordRun(ctx context.Context, summary types.RunSummary, results []types.AuditResult) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentSeq++
	seq := s.currentSeq

	err := s.db.Update(func(tx *bbolt.Tx) error {
		runs := tx.Bucket(bucketRuns)
		value, err := json.Marshal(summary)
		if err != nil {
			return err
		}
		if err := runs.Put(seqKey(seq), value); err != nil {
			return err
		}

		resBucket := tx.Bucket(bucketResults)
		for _, result := range results {
			value, err := json.Marshal(result)
			if err != nil {
				return err
			}
			if err := resBucket.Put(resultKey(seq, result.ARN), value); err != nil {
				return err
			}
		}

		meta := tx.Bucket(bucketMeta)
		return meta.Put(keyCurrentSeq, uint64ToBytes(seq))
	})
	if err != nil {
		s.logger.LogStorageError(ctx, "record_run", err)
		return 0, err
	}

	for _, result := range results {
		s.updateFleet(result, seq)
	}

	return seq, nil
}

// LatestRun returns the newest run summary and its sequence number.
func (s *Store) LatestRun() (types.RunSummary, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var summary types.RunSummary
	var seq uint64

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketRuns).Cursor()
		key, value := c.Last()
		if key == nil {
			return fmt.Errorf("no runs recorded")
		}
		seq = parseSeqKey(key)
		return json.Unmarshal(value, &summary)
	})
	if err != nil {
		return types.RunSummary{}, 0, err
	}
	return summary, seq, nil
}

// Run returns the summary recorded under seq.
func (s *Store) Run(seq uint64) (types.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var summary types.RunSummary
	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucketRuns).Get(seqKey(seq))
		if value == nil {
			return fmt.Errorf("run %d not found", seq)
		}
		return json.Unmarshal(value, &summary)
	})
	if err != nil {
		return types.RunSummary{}, err
	}
	return summary, nil
}

// Results returns all per-resource results of one run in ARN order.
func (s *Store) Results(seq uint64) ([]types.AuditResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []types.AuditResult
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketResults).Cursor()
		prefix := []byte(fmt.Sprintf("%016d:", seq))

		for key, value := c.Seek(prefix); key != nil && strings.HasPrefix(string(key), string(prefix)); key, value = c.Next() {
			var result types.AuditResult
			if err := json.Unmarshal(value, &result); err != nil {
				return err
			}
			results = append(results, result)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ScorePoint is one historical score observation for a load balancer.
type ScorePoint struct {
	Seq       uint64    `json:"seq"`
	Score     float64   `json:"score"`
	AuditedAt time.Time `json:"audited_at"`
}

// ScoreHistory returns up to n score points for one load balancer,
// oldest first. Failed audits carry no score and are skipped.
func (s *Store) ScoreHistory(arn string, n int) ([]ScorePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var points []ScorePoint
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketResults)

		// Walk newest to oldest; sequence gaps from compaction just
		// miss.
		for seq := s.currentSeq; seq >= 1 && len(points) < n; seq-- {
			value := bucket.Get(resultKey(seq, arn))
			if value == nil {
				continue
			}
			var result types.AuditResult
			if err := json.Unmarshal(value, &result); err != nil {
				return err
			}
			if result.Failed() {
				continue
			}
			points = append(points, ScorePoint{Seq: seq, Score: result.HealthScore, AuditedAt: result.AuditedAt})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}

// FleetState returns the latest known audit state of every load
// balancer, in ARN order.
func (s *Store) FleetState() []FleetEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]FleetEntry, 0, s.fleet.Len())
	s.fleet.Ascend(func(e *FleetEntry) bool {
		entries = append(entries, *e)
		return true
	})
	return entries
}

// Compact deletes all runs older than the newest keepRuns, results
// included.
func (s *Store) Compact(ctx context.Context, keepRuns int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.LogCompaction(ctx, keepRuns, s.currentSeq)
	start := time.Now()

	if keepRuns < 0 || uint64(keepRuns) >= s.currentSeq {
		return nil
	}
	cutoff := s.currentSeq - uint64(keepRuns)

	deleted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		runs := tx.Bucket(bucketRuns)
		for _, key := range keysBelow(runs, cutoff) {
			if err := runs.Delete(key); err != nil {
				return err
			}
			deleted++
		}

		results := tx.Bucket(bucketResults)
		for _, key := range keysBelow(results, cutoff) {
			if err := results.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.LogStorageError(ctx, "compact", err)
		return err
	}

	s.logger.LogCompactionComplete(ctx, deleted, float64(time.Since(start).Milliseconds()))
	return nil
}

// keysBelow collects keys whose sequence prefix is at or below cutoff.
func keysBelow(bucket *bbolt.Bucket, cutoff uint64) [][]byte {
	var keys [][]byte
	c := bucket.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		if parseSeqKey(k) <= cutoff {
			keys = append(keys, append([]byte(nil), k...))
		}
	}
	return keys
}

// Helper functions

func (s *Store) updateFleet(result types.AuditResult, seq uint64) {
	if result.Failed() {
		return
	}

	probe := &FleetEntry{ARN: result.ARN}
	entry, found := s.fleet.Get(probe)
	if !found {
		entry = &FleetEntry{ARN: result.ARN}
	}
	entry.Name = result.Name
	entry.Kind = result.Kind
	entry.LastSeq = seq
	entry.LastScore = result.HealthScore
	entry.LastAudited = result.AuditedAt
	s.fleet.ReplaceOrInsert(entry)
}

func (s *Store) loadSeq() {
	_ = s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keyCurrentSeq)
		if data != nil {
			s.currentSeq = bytesToUint64(data)
		}
		return nil
	})
}

// rebuildFleet replays the results bucket in sequence order so the
// newest result per ARN wins.
func (s *Store) rebuildFleet() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketResults).Cursor()
		for key, value := c.First(); key != nil; key, value = c.Next() {
			seq, _ := parseResultKey(key)

			var result types.AuditResult
			if err := json.Unmarshal(value, &result); err != nil {
				return err
			}
			s.updateFleet(result, seq)
		}
		return nil
	})
}

func seqKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%016d", seq))
}

func parseSeqKey(key []byte) uint64 {
	if len(key) < 16 {
		return 0
	}
	return bytesToUint64(key[:16])
}

func resultKey(seq uint64, arn string) []byte {
	return []byte(fmt.Sprintf("%016d:%s", seq, arn))
}

// parseResultKey splits a results key at the first colon. ARNs carry
// colons of their own, so only that first separator counts.
func parseResultKey(key []byte) (uint64, string) {
	str := string(key)
	if len(str) < 17 {
		return 0, ""
	}
	return bytesToUint64(key[:16]), str[17:]
}

func uint64ToBytes(n uint64) []byte {
	return []byte(strconv.FormatUint(n, 10))
}

func bytesToUint64(b []byte) uint64 {
	n, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
