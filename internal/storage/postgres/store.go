package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"researchdao/internal/model"
	"researchdao/internal/storage"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Store provides Postgres persistence for the platform.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Gateway = (*Store)(nil)

// NewStore opens a pgx pool for dsn and pings it.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const daoColumns = `id, name, description, category, COALESCE(dao_address, ''), creator, token_symbol, created_block, created_at, source`

func scanDAO(row pgx.Row) (model.DAORecord, error) {
	var (
		rec   model.DAORecord
		block int64
	)
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Description, &rec.Category, &rec.DAOAddress,
		&rec.Creator, &rec.TokenSymbol, &block, &rec.CreatedAt, &rec.Source); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.DAORecord{}, storage.ErrNotFound
		}
		return model.DAORecord{}, err
	}
	rec.CreatedBlock = uint64(block)
	return rec, nil
}

// UpsertResearchDAO inserts or refreshes a DAO keyed by address. The id and
// descriptive fields of an existing row are kept; the creator comes from the
// event and the earliest non-zero creation block wins.
func (s *Store) UpsertResearchDAO(ctx context.Context, rec model.DAORecord) (model.DAORecord, error) {
	addr := strings.ToLower(rec.DAOAddress)
	if addr == "" {
		return model.DAORecord{}, fmt.Errorf("dao address required")
	}
	if rec.ID == "" {
		rec.ID = model.BlockchainDAOID(addr)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO research_daos (
			id, name, description, category, dao_address, creator, token_symbol, created_block, created_at, source, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (dao_address)
		DO UPDATE SET
			creator = EXCLUDED.creator,
			name = COALESCE(NULLIF(research_daos.name, ''), EXCLUDED.name),
			created_block = COALESCE(LEAST(NULLIF(research_daos.created_block, 0), NULLIF(EXCLUDED.created_block, 0)), 0),
			updated_at = now()
		RETURNING `+daoColumns,
		rec.ID, rec.Name, rec.Description, rec.Category, addr, rec.Creator, rec.TokenSymbol,
		int64(rec.CreatedBlock), rec.CreatedAt, rec.Source,
	)
	return scanDAO(row)
}

func (s *Store) CreateResearchDAO(ctx context.Context, rec model.DAORecord) (model.DAORecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO research_daos (
			id, name, description, category, dao_address, creator, token_symbol, created_block, created_at, source, updated_at
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, now())
		RETURNING `+daoColumns,
		rec.ID, rec.Name, rec.Description, rec.Category, strings.ToLower(rec.DAOAddress), rec.Creator,
		rec.TokenSymbol, int64(rec.CreatedBlock), rec.CreatedAt, rec.Source,
	)
	out, err := scanDAO(row)
	if isPgError(err, uniqueViolation) {
		return model.DAORecord{}, storage.ErrConflict
	}
	return out, err
}

func (s *Store) GetResearchDAO(ctx context.Context, id string) (model.DAORecord, error) {
	return scanDAO(s.pool.QueryRow(ctx, `SELECT `+daoColumns+` FROM research_daos WHERE id=$1`, id))
}

func (s *Store) GetResearchDAOByAddress(ctx context.Context, address string) (model.DAORecord, error) {
	return scanDAO(s.pool.QueryRow(ctx, `SELECT `+daoColumns+` FROM research_daos WHERE dao_address=$1`, strings.ToLower(address)))
}

func (s *Store) ListResearchDAOs(ctx context.Context) ([]model.DAORecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+daoColumns+` FROM research_daos ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.DAORecord, 0)
	for rows.Next() {
		rec, err := scanDAO(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const investorColumns = `wallet_address, pseudonym, profile_completed, show_on_leaderboard, total_invested::text, investment_count, joined_at`

func scanInvestor(row pgx.Row) (model.Investor, error) {
	var (
		inv   model.Investor
		total string
	)
	if err := row.Scan(&inv.WalletAddress, &inv.Pseudonym, &inv.ProfileCompleted, &inv.ShowOnLeaderboard,
		&total, &inv.InvestmentCount, &inv.JoinedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Investor{}, storage.ErrNotFound
		}
		return model.Investor{}, err
	}
	amount, err := decimal.NewFromString(total)
	if err != nil {
		return model.Investor{}, fmt.Errorf("parse total_invested: %w", err)
	}
	inv.TotalInvested = amount
	return inv, nil
}

func (s *Store) GetInvestor(ctx context.Context, wallet string) (model.Investor, error) {
	return scanInvestor(s.pool.QueryRow(ctx, `SELECT `+investorColumns+` FROM investors WHERE wallet_address=$1`, model.NormalizeWallet(wallet)))
}

func (s *Store) CreateInvestor(ctx context.Context, inv model.Investor) (model.Investor, error) {
	if inv.JoinedAt.IsZero() {
		inv.JoinedAt = time.Now().UTC()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO investors (
			wallet_address, pseudonym, profile_completed, show_on_leaderboard, total_invested, investment_count, joined_at
		) VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)
		RETURNING `+investorColumns,
		model.NormalizeWallet(inv.WalletAddress), inv.Pseudonym, inv.ProfileCompleted, inv.ShowOnLeaderboard,
		inv.TotalInvested.String(), inv.InvestmentCount, inv.JoinedAt,
	)
	out, err := scanInvestor(row)
	if isPgError(err, uniqueViolation) {
		return model.Investor{}, storage.ErrConflict
	}
	return out, err
}

func (s *Store) UpdateInvestor(ctx context.Context, wallet string, update model.InvestorUpdate) (model.Investor, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE investors SET
			pseudonym = COALESCE($2, pseudonym),
			profile_completed = COALESCE($3, profile_completed),
			show_on_leaderboard = COALESCE($4, show_on_leaderboard)
		WHERE wallet_address = $1
		RETURNING `+investorColumns,
		model.NormalizeWallet(wallet), update.Pseudonym, update.ProfileCompleted, update.ShowOnLeaderboard,
	)
	return scanInvestor(row)
}

func (s *Store) GetInvestorPreferences(ctx context.Context, wallet string) (model.InvestorPreferences, error) {
	var prefs model.InvestorPreferences
	err := s.pool.QueryRow(ctx, `
		SELECT wallet_address, research_areas, risk_tolerance, investment_horizon, notify_new_daos, updated_at
		FROM investor_preferences WHERE wallet_address=$1
	`, model.NormalizeWallet(wallet)).Scan(
		&prefs.WalletAddress, &prefs.ResearchAreas, &prefs.RiskTolerance,
		&prefs.InvestmentHorizon, &prefs.NotifyNewDAOs, &prefs.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.InvestorPreferences{}, storage.ErrNotFound
	}
	return prefs, err
}

func (s *Store) SaveInvestorPreferences(ctx context.Context, prefs model.InvestorPreferences) (model.InvestorPreferences, error) {
	if prefs.ResearchAreas == nil {
		prefs.ResearchAreas = []string{}
	}
	var out model.InvestorPreferences
	err := s.pool.QueryRow(ctx, `
		INSERT INTO investor_preferences (
			wallet_address, research_areas, risk_tolerance, investment_horizon, notify_new_daos, updated_at
		) VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (wallet_address)
		DO UPDATE SET
			research_areas = EXCLUDED.research_areas,
			risk_tolerance = EXCLUDED.risk_tolerance,
			investment_horizon = EXCLUDED.investment_horizon,
			notify_new_daos = EXCLUDED.notify_new_daos,
			updated_at = now()
		RETURNING wallet_address, research_areas, risk_tolerance, investment_horizon, notify_new_daos, updated_at
	`, model.NormalizeWallet(prefs.WalletAddress), prefs.ResearchAreas, prefs.RiskTolerance,
		prefs.InvestmentHorizon, prefs.NotifyNewDAOs,
	).Scan(&out.WalletAddress, &out.ResearchAreas, &out.RiskTolerance, &out.InvestmentHorizon, &out.NotifyNewDAOs, &out.UpdatedAt)
	if isPgError(err, foreignKeyViolation) {
		return model.InvestorPreferences{}, storage.ErrNotFound
	}
	return out, err
}

// CreateInvestment inserts a database investment and bumps the investor's
// aggregates in one transaction.
func (s *Store) CreateInvestment(ctx context.Context, inv model.Investment) (model.Investment, error) {
	inv.WalletAddress = model.NormalizeWallet(inv.WalletAddress)
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Investment{}, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE investors
		SET total_invested = total_invested + $2::numeric, investment_count = investment_count + 1
		WHERE wallet_address = $1
	`, inv.WalletAddress, inv.Amount.String())
	if err != nil {
		return model.Investment{}, fmt.Errorf("update investor aggregates: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.Investment{}, storage.ErrNotFound
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO investments (
			wallet_address, target_id, target_name, target_type, amount, currency, status, returns, performance, created_at
		) VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8::numeric, $9, $10)
		RETURNING id
	`, inv.WalletAddress, inv.TargetID, inv.TargetName, inv.TargetType, inv.Amount.String(),
		inv.Currency, inv.Status, inv.Returns.String(), inv.Performance, inv.CreatedAt,
	).Scan(&inv.ID)
	if err != nil {
		return model.Investment{}, fmt.Errorf("insert investment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Investment{}, err
	}
	return inv, nil
}

func (s *Store) GetInvestorInvestments(ctx context.Context, wallet string) ([]model.Investment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, wallet_address, target_id, target_name, target_type, amount::text, currency, status,
			returns::text, performance, created_at
		FROM investments WHERE wallet_address=$1
		ORDER BY created_at DESC, id DESC
	`, model.NormalizeWallet(wallet))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Investment, 0)
	for rows.Next() {
		var (
			inv             model.Investment
			amount, returns string
		)
		if err := rows.Scan(&inv.ID, &inv.WalletAddress, &inv.TargetID, &inv.TargetName, &inv.TargetType,
			&amount, &inv.Currency, &inv.Status, &returns, &inv.Performance, &inv.CreatedAt); err != nil {
			return nil, err
		}
		if inv.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}
		if inv.Returns, err = decimal.NewFromString(returns); err != nil {
			return nil, fmt.Errorf("parse returns: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *Store) RecordBlockchainInvestment(ctx context.Context, inv model.BlockchainInvestment) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO blockchain_investments (
			tx_hash, log_index, token_id, wallet_address, dao_address, target_id, target_name, target_type,
			amount, block_number, date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10, $11)
		ON CONFLICT (tx_hash, log_index) DO NOTHING
	`, inv.TransactionHash, int64(inv.LogIndex), inv.TokenID, model.NormalizeWallet(inv.WalletAddress),
		strings.ToLower(inv.DAOAddress), inv.TargetID, inv.TargetName, inv.TargetType, inv.Amount.String(),
		int64(inv.BlockNumber), inv.Date,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) GetBlockchainInvestments(ctx context.Context, wallet string) ([]model.BlockchainInvestment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tx_hash, log_index, token_id, wallet_address, dao_address, target_id, target_name, target_type,
			amount::text, block_number, date
		FROM blockchain_investments WHERE wallet_address=$1
		ORDER BY block_number DESC, log_index DESC
	`, model.NormalizeWallet(wallet))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.BlockchainInvestment, 0)
	for rows.Next() {
		var (
			inv             model.BlockchainInvestment
			logIndex, block int64
			amount          string
		)
		if err := rows.Scan(&inv.TransactionHash, &logIndex, &inv.TokenID, &inv.WalletAddress, &inv.DAOAddress,
			&inv.TargetID, &inv.TargetName, &inv.TargetType, &amount, &block, &inv.Date); err != nil {
			return nil, err
		}
		if inv.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}
		inv.LogIndex = uint64(logIndex)
		inv.BlockNumber = uint64(block)
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *Store) RecordEvent(ctx context.Context, event model.IndexedEvent) (bool, error) {
	payload := event.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO dao_events (
			tx_hash, log_index, contract_address, event_name, block_number, block_timestamp, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
		ON CONFLICT (tx_hash, log_index) DO NOTHING
	`, event.TxHash, int64(event.LogIndex), strings.ToLower(event.ContractAddress), event.EventName,
		int64(event.BlockNumber), int64(event.Timestamp), string(payload),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// LoadCursor returns last_processed_block for a name.
func (s *Store) LoadCursor(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveCursor upserts last_processed_block for a name. The stored value
// never moves backwards.
func (s *Store) SaveCursor(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = GREATEST(indexer_state.last_processed_block, EXCLUDED.last_processed_block),
			updated_at = now()
	`, name, int64(block))
	return err
}

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
