package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"guardian-recovery/internal/database"
	"guardian-recovery/internal/model"
	"guardian-recovery/internal/recovery"
)

type PostgresStateRepository struct {
	db *database.DB
}

func NewPostgresStateRepository(db *database.DB) *PostgresStateRepository {
	return &PostgresStateRepository{db: db}
}

// Load reads the full state in one repeatable snapshot. ok is false when the
// state has never been saved.
func (r *PostgresStateRepository) Load(ctx context.Context) (state recovery.State, ok bool, err error) {
	err = pgx.BeginTxFunc(ctx, r.db.Pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		var owner, signer string
		var required, delayMS, total int64
		err := tx.QueryRow(ctx,
			`SELECT owner, signer, required_weight, recovery_delay_ms, total_weight
			 FROM recovery_config WHERE id = 1`).
			Scan(&owner, &signer, &required, &delayMS, &total)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load recovery config: %w", err)
		}

		if state.Owner, err = parseStoredAddress(owner); err != nil {
			return err
		}
		if state.Signer, err = parseStoredAddress(signer); err != nil {
			return err
		}
		if state.RequiredWeight, err = toUint64("required_weight", required); err != nil {
			return err
		}
		if state.TotalWeight, err = toUint64("total_weight", total); err != nil {
			return err
		}
		state.Delay = millisToDelay(delayMS)

		if err := r.loadGuardians(ctx, tx, &state); err != nil {
			return err
		}
		if err := r.loadRequest(ctx, tx, &state); err != nil {
			return err
		}

		sortState(&state)
		ok = true
		return nil
	})
	if err != nil {
		return recovery.State{}, false, err
	}
	return state, ok, nil
}

func (r *PostgresStateRepository) loadGuardians(ctx context.Context, tx pgx.Tx, state *recovery.State) error {
	rows, err := tx.Query(ctx,
		`SELECT identity, active, weight, last_active, position
		 FROM guardians ORDER BY identity`)
	if err != nil {
		return fmt.Errorf("query guardians: %w", err)
	}
	defer rows.Close()

	positions := map[int]common.Address{}
	for rows.Next() {
		var identity string
		var weight int64
		var position *int32
		var g model.Guardian
		if err := rows.Scan(&identity, &g.Active, &weight, &g.LastActive, &position); err != nil {
			return fmt.Errorf("scan guardian: %w", err)
		}
		if g.Identity, err = parseStoredAddress(identity); err != nil {
			return err
		}
		if g.Weight, err = toUint64("weight", weight); err != nil {
			return err
		}
		g.LastActive = g.LastActive.UTC()
		if position != nil {
			positions[int(*position)] = g.Identity
		}
		state.Guardians = append(state.Guardians, g)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate guardians: %w", err)
	}

	state.Order, err = orderFromPositions(positions)
	return err
}

func (r *PostgresStateRepository) loadRequest(ctx context.Context, tx pgx.Tx, state *recovery.State) error {
	var target string
	var initiatedAt time.Time
	var weight int64
	err := tx.QueryRow(ctx,
		`SELECT target, initiated_at, executed, approval_weight
		 FROM recovery_request WHERE id = 1`).
		Scan(&target, &initiatedAt, &state.Request.Executed, &weight)
	if errors.Is(err, pgx.ErrNoRows) {
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
	state.Request.InitiatedAt = initiatedAt.UTC()

	rows, err := tx.Query(ctx, `SELECT guardian FROM recovery_approvals ORDER BY guardian`)
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

// Save replaces the persisted state in a single serializable transaction.
func (r *PostgresStateRepository) Save(ctx context.Context, s recovery.State) error {
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

	positions := guardianPositions(s)
	batch := &pgx.Batch{}
	batch.Queue(
		`INSERT INTO recovery_config (id, owner, signer, required_weight, recovery_delay_ms, total_weight, updated_at)
		 VALUES (1, $1, $2, $3, $4, $5, now())
		 ON CONFLICT (id) DO UPDATE SET
		   owner = EXCLUDED.owner, signer = EXCLUDED.signer,
		   required_weight = EXCLUDED.required_weight,
		   recovery_delay_ms = EXCLUDED.recovery_delay_ms,
		   total_weight = EXCLUDED.total_weight, updated_at = now()`,
		s.Owner.Hex(), s.Signer.Hex(), required, delayToMillis(s.Delay), total)
	batch.Queue(`DELETE FROM guardians`)
	for _, g := range s.Guardians {
		weight, err := toInt64("weight", g.Weight)
		if err != nil {
			return err
		}
		var position *int32
		if idx, listed := positions[g.Identity]; listed {
			p := int32(idx)
			position = &p
		}
		batch.Queue(
			`INSERT INTO guardians (identity, active, weight, last_active, position)
			 VALUES ($1, $2, $3, $4, $5)`,
			g.Identity.Hex(), g.Active, weight, g.LastActive.UTC(), position)
	}
	batch.Queue(`DELETE FROM recovery_approvals`)
	batch.Queue(`DELETE FROM recovery_request`)
	if s.Request.Target != (common.Address{}) {
		batch.Queue(
			`INSERT INTO recovery_request (id, target, initiated_at, executed, approval_weight)
			 VALUES (1, $1, $2, $3, $4)`,
			s.Request.Target.Hex(), s.Request.InitiatedAt.UTC(), s.Request.Executed, approvalWeight)
		for _, id := range s.Request.Approvers {
			batch.Queue(`INSERT INTO recovery_approvals (guardian) VALUES ($1)`, id.Hex())
		}
	}

	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("save recovery state: %w", err)
			}
		}
		return br.Close()
	})
}
