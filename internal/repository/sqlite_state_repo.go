package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"guardian-recovery/internal/model"
	"guardian-recovery/internal/recovery"
)

// SQLiteStateRepository persists the recovery state in an embedded SQLite
// database opened with database.OpenSQLite.
type SQLiteStateRepository struct {
	db *sql.DB
}

func NewSQLiteStateRepository(db *sql.DB) *SQLiteStateRepository {
	return &SQLiteStateRepository{db: db}
}

func (r *SQLiteStateRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteStateRepository) Load(ctx context.Context) (recovery.State, bool, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return recovery.State{}, false, fmt.Errorf("load recovery state: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op after commit

	var state recovery.State
	var owner, signer string
	var required, delayMS, total int64
	err = tx.QueryRowContext(ctx,
		`SELECT owner, signer, required_weight, recovery_delay_ms, total_weight
		 FROM recovery_config WHERE id = 1`).
		Scan(&owner, &signer, &required, &delayMS, &total)
	if errors.Is(err, sql.ErrNoRows) {
		return recovery.State{}, false, nil
	}
	if err != nil {
		return recovery.State{}, false, fmt.Errorf("load recovery config: %w", err)
	}

	if state.Owner, err = parseStoredAddress(owner); err != nil {
		return recovery.State{}, false, err
	}
	if state.Signer, err = parseStoredAddress(signer); err != nil {
		return recovery.State{}, false, err
	}
	if state.RequiredWeight, err = toUint64("required_weight", required); err != nil {
		return recovery.State{}, false, err
	}
	if state.TotalWeight, err = toUint64("total_weight", total); err != nil {
		return recovery.State{}, false, err
	}
	state.Delay = millisToDelay(delayMS)

	if err := r.loadGuardians(ctx, tx, &state); err != nil {
		return recovery.State{}, false, err
	}
	if err := r.loadRequest(ctx, tx, &state); err != nil {
		return recovery.State{}, false, err
	}

	sortState(&state)
	if err := tx.Commit(); err != nil {
		return recovery.State{}, false, fmt.Errorf("load recovery state: commit: %w", err)
	}
	return state, true, nil
}

func (r *SQLiteStateRepository) loadGuardians(ctx context.Context, tx *sql.Tx, state *recovery.State) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT identity, active, weight, last_active, position
		 FROM guardians ORDER BY identity`)
	if err != nil {
		return fmt.Errorf("query guardians: %w", err)
	}
	defer rows.Close()

	positions := map[int]common.Address{}
	for rows.Next() {
		var identity, lastActive string
		var weight int64
		var position sql.NullInt64
		var g model.Guardian
		if err := rows.Scan(&identity, &g.Active, &weight, &lastActive, &position); err != nil {
			return fmt.Errorf("scan guardian: %w", err)
		}
		if g.Identity, err = parseStoredAddress(identity); err != nil {
			return err
		}
		if g.Weight, err = toUint64("weight", weight); err != nil {
			return err
		}
		if g.LastActive, err = time.Parse(time.RFC3339Nano, lastActive); err != nil {
			return fmt.Errorf("parse guardian last_active: %w", err)
		}
		if position.Valid {
			positions[int(position.Int64)] = g.Identity
		}
		state.Guardians = append(state.Guardians, g)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate guardians: %w", err)
	}

	state.Order, err = orderFromPositions(positions)
	return err
}

func (r *SQLiteStateRepository) loadRequest(ctx context.Context, tx *sql.Tx, state *recovery.State) error {
	var target, initiatedAt string
	var weight int64
	err := tx.QueryRowContext(ctx,
		`SELECT target, initiated_at, executed, approval_weight
		 FROM recovery_request WHERE id = 1`).
		Scan(&target, &initiatedAt, &state.Request.Executed, &weight)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load recovery request: %w", err)
	}

	if state.Request.Target, err = parseStoredAddress(target); err != nil {
		return err
	}
	if state.Request.ApprovalWeight, err = toUint64("approval_weight", weight); err != nil {
		return err
	}
	if state.Request.InitiatedAt, err = time.Parse(time.RFC3339Nano, initiatedAt); err != nil {
		return fmt.Errorf("parse initiated_at: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT guardian FROM recovery_approvals ORDER BY guardian`)
	if err != nil {
		return fmt.Errorf("query approvals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return fmt.Errorf("scan approval: %w", err)
		}
		id, err := parseStoredAddress(raw)
		if err != nil {
			return err
		}
		state.Request.Approvers = append(state.Request.Approvers, id)
	}
	return rows.Err()
}

// Save replaces the persisted state in one transaction.
func (r *SQLiteStateRepository) Save(ctx context.Context, s recovery.State) error {
	required, err := toInt64("required_weight", s.RequiredWeight)
	if err != nil {
		return err
	}
	total, err := toInt64("total_weight", s.TotalWeight)
	if err != nil {
		return err
	}
	approvalWeight, err := toInt64("approval_weight", s.Request.ApprovalWeight)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save recovery state: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op after commit

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO recovery_config (id, owner, signer, required_weight, recovery_delay_ms, total_weight, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   owner = excluded.owner, signer = excluded.signer,
		   required_weight = excluded.required_weight,
		   recovery_delay_ms = excluded.recovery_delay_ms,
		   total_weight = excluded.total_weight, updated_at = excluded.updated_at`,
		s.Owner.Hex(), s.Signer.Hex(), required, delayToMillis(s.Delay), total, now); err != nil {
		return fmt.Errorf("save recovery config: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM guardians`); err != nil {
		return fmt.Errorf("clear guardians: %w", err)
	}
	positions := guardianPositions(s)
	for _, g := range s.Guardians {
		weight, err := toInt64("weight", g.Weight)
		if err != nil {
			return err
		}
		var position sql.NullInt64
		if idx, listed := positions[g.Identity]; listed {
			position = sql.NullInt64{Int64: int64(idx), Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO guardians (identity, active, weight, last_active, position)
			 VALUES (?, ?, ?, ?, ?)`,
			g.Identity.Hex(), g.Active, weight, g.LastActive.UTC().Format(time.RFC3339Nano), position); err != nil {
			return fmt.Errorf("save guardian %s: %w", g.Identity.Hex(), err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM recovery_approvals`); err != nil {
		return fmt.Errorf("clear approvals: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM recovery_request`); err != nil {
		return fmt.Errorf("clear recovery request: %w", err)
	}
	if s.Request.Target != (common.Address{}) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO recovery_request (id, target, initiated_at, executed, approval_weight)
			 VALUES (1, ?, ?, ?, ?)`,
			s.Request.Target.Hex(), s.Request.InitiatedAt.UTC().Format(time.RFC3339Nano),
			s.Request.Executed, approvalWeight); err != nil {
			return fmt.Errorf("save recovery request: %w", err)
		}
		for _, id := range s.Request.Approvers {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO recovery_approvals (guardian) VALUES (?)`, id.Hex()); err != nil {
				return fmt.Errorf("save approval %s: %w", id.Hex(), err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save recovery state: commit: %w", err)
	}
	return nil
}
