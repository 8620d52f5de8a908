package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/celltower/internal/cellular"
	"github.com/banshee-data/celltower/internal/tower"
)

// StoredScan is one persisted scan.
type StoredScan struct {
	ID        string             `json:"scan_id"`
	ScannedAt time.Time          `json:"scanned_at"`
	Info      cellular.TowerInfo `json:"info"`
}

// SignalPoint is one persisted signal sample.
type SignalPoint struct {
	SampledAt time.Time `json:"sampled_at"`
	cellular.Signal
}

// RecordScan stores info with its neighbors and returns the new scan id.
func (db *DB) RecordScan(ctx context.Context, info cellular.TowerInfo, at time.Time) (string, error) {
	id := uuid.NewString()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	s := info.Serving
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO scans (scan_id, scanned_at, rat, mcc, mnc, lac, cell_id, signal_power, valid)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, at.UnixMilli(), int(s.RAT), s.MCC, s.MNC, s.LAC, s.CellID, s.SignalPower, boolInt(info.IsValid()),
	); err != nil {
		return "", fmt.Errorf("insert scan: %w", err)
	}

	if len(info.Neighbors) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO neighbors (scan_id, position, rat, earfcn, neighbor_id, signal_quality, signal_power, signal_strength)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return "", err
		}
		defer stmt.Close()
		for i, n := range info.Neighbors {
			if _, err := stmt.ExecContext(ctx, id, i, int(n.RAT), n.EARFCN, n.NeighborID,
				n.SignalQuality, n.SignalPower, n.SignalStrength); err != nil {
				return "", fmt.Errorf("insert neighbor %d: %w", i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// RecentScans returns up to limit scans, newest first.
func (db *DB) RecentScans(ctx context.Context, limit int) ([]StoredScan, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT scan_id, scanned_at, rat, mcc, mnc, lac, cell_id, signal_power
		FROM scans
		ORDER BY scanned_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scans []StoredScan
	for rows.Next() {
		var (
			sc        StoredScan
			scannedAt int64
			rat       int
		)
		sc.Info = cellular.NewTowerInfo()
		s := &sc.Info.Serving
		if err := rows.Scan(&sc.ID, &scannedAt, &rat, &s.MCC, &s.MNC, &s.LAC, &s.CellID, &s.SignalPower); err != nil {
			return nil, err
		}
		s.RAT = cellular.RadioAccessTechnology(rat)
		sc.ScannedAt = time.UnixMilli(scannedAt).UTC()
		scans = append(scans, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range scans {
		neighbors, err := db.neighbors(ctx, scans[i].ID)
		if err != nil {
			return nil, err
		}
		scans[i].Info.Neighbors = neighbors
	}
	return scans, nil
}

func (db *DB) neighbors(ctx context.Context, scanID string) ([]cellular.NeighborCell, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT rat, earfcn, neighbor_id, signal_quality, signal_power, signal_strength
		FROM neighbors
		WHERE scan_id = ?
		ORDER BY position`, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []cellular.NeighborCell
	for rows.Next() {
		var (
			n   cellular.NeighborCell
			rat int
		)
		if err := rows.Scan(&rat, &n.EARFCN, &n.NeighborID, &n.SignalQuality, &n.SignalPower, &n.SignalStrength); err != nil {
			return nil, err
		}
		n.RAT = cellular.RadioAccessTechnology(rat)
		out = append(out, n)
	}
	return out, rows.Err()
}

// RecordSignal stores one signal sample. Samples without a reading are
// skipped.
func (db *DB) RecordSignal(ctx context.Context, sample tower.SignalSample) error {
	if !sample.HasReading() {
		return nil
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO signal_samples (sampled_at, strength, quality) VALUES (?, ?, ?)`,
		sample.Updated.UnixMilli(), sample.Strength, sample.Quality)
	return err
}

// SignalHistory returns samples taken at or after since, oldest first.
func (db *DB) SignalHistory(ctx context.Context, since time.Time) ([]SignalPoint, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT sampled_at, strength, quality
		FROM signal_samples
		WHERE sampled_at >= ?
		ORDER BY sampled_at, rowid`, since.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SignalPoint
	for rows.Next() {
		var (
			p  SignalPoint
			ms int64
		)
		if err := rows.Scan(&ms, &p.Strength, &p.Quality); err != nil {
			return nil, err
		}
		p.SampledAt = time.UnixMilli(ms).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// Prune deletes scans and signal samples older than before and reports how
// many rows went.
func (db *DB) Prune(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for _, q := range []string{
		`DELETE FROM scans WHERE scanned_at < ?`,
		`DELETE FROM signal_samples WHERE sampled_at < ?`,
	} {
		res, err := db.ExecContext(ctx, q, before.UnixMilli())
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

var _ tower.Sink = (*DB)(nil)

// ScanCount returns the number of stored scans.
func (db *DB) ScanCount(ctx context.Context) (int64, error) {
	var n int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scans`).Scan(&n)
	return n, err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
