package store

import (
	"context"
	"fmt"
)

// CheckIntegrity enumerates orphans in both directions between symbols
// and symbols_fts, plus dangling import_links and symbol_references
// targets. It reports divergence; it never auto-heals.
func (s *sqliteStore) CheckIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := s.db.QueryContext(ctx,
		`SELECT f.id FROM symbols_fts f LEFT JOIN symbols s ON f.id = s.id WHERE s.id IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("check orphan fts rows: %w", err)
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		report.OrphanFTSIDs = append(report.OrphanFTSIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT s.id FROM symbols s LEFT JOIN symbols_fts f ON s.id = f.id WHERE f.id IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("check orphan symbol rows: %w", err)
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		report.OrphanSymbolIDs = append(report.OrphanSymbolIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM import_links il
		 WHERE il.definition_file IS NOT NULL
		   AND NOT EXISTS (SELECT 1 FROM files f WHERE f.path = il.definition_file)`,
	).Scan(&report.OrphanImportLinks)
	if err != nil {
		return nil, fmt.Errorf("check orphan import links: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM symbol_references sr
		 WHERE sr.target_file IS NOT NULL
		   AND NOT EXISTS (SELECT 1 FROM files f WHERE f.path = sr.target_file)`,
	).Scan(&report.OrphanReferences)
	if err != nil {
		return nil, fmt.Errorf("check orphan symbol references: %w", err)
	}

	return report, nil
}
