package archive

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/obslog"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

type PostgresRepository struct {
	db *sql.DB
}

// OpenPostgres connects, pings and migrates the archive schema.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresRepository{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}
	obslog.L().Info("archive_migrations_done")
	return nil
}

func (r *PostgresRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *PostgresRepository) SaveGame(ctx context.Context, g *Game) error {
	if r == nil || r.db == nil || g == nil {
		return nil
	}
	movesUCI, err := json.Marshal(nonNil(g.MovesUCI))
	if err != nil {
		return fmt.Errorf("marshal moves_uci: %w", err)
	}
	movesSAN, err := json.Marshal(nonNil(g.MovesSAN))
	if err != nil {
		return fmt.Errorf("marshal moves_san: %w", err)
	}

	const q = `INSERT INTO arena_games (
        session_id, white_id, white_name, black_id, black_name,
        white_rating, black_rating, white_delta, black_delta, rated,
        time_control, source, tournament_id,
        result, winner_color, reason,
        initial_fen, final_fen, moves_uci, moves_san, pgn,
        started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19::jsonb,$20::jsonb,$21,$22,$23,$24
      ) ON CONFLICT (session_id) DO UPDATE SET
        white_name=EXCLUDED.white_name,
        black_name=EXCLUDED.black_name,
        white_delta=EXCLUDED.white_delta,
        black_delta=EXCLUDED.black_delta,
        result=EXCLUDED.result,
        winner_color=EXCLUDED.winner_color,
        reason=EXCLUDED.reason,
        final_fen=EXCLUDED.final_fen,
        moves_uci=EXCLUDED.moves_uci,
        moves_san=EXCLUDED.moves_san,
        pgn=EXCLUDED.pgn,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err = r.db.ExecContext(ctx, q,
		g.SessionID, g.WhiteID, g.WhiteName, g.BlackID, g.BlackName,
		g.WhiteRating, g.BlackRating, g.WhiteDelta, g.BlackDelta, g.Rated,
		g.TimeControl, g.Source, g.TournamentID,
		g.Result, g.WinnerColor, g.Reason,
		g.InitialFEN, g.FinalFEN, string(movesUCI), string(movesSAN), g.PGN,
		g.StartedAt, g.EndedAt, g.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("upsert arena game: %w", err)
	}
	return nil
}

const selectGame = `
		SELECT
			session_id, white_id, white_name, black_id, black_name,
			white_rating, black_rating, white_delta, black_delta, rated,
			time_control, source, tournament_id,
			result, winner_color, reason,
			initial_fen, final_fen, moves_uci, moves_san, pgn,
			started_at, ended_at, duration_ms
		FROM arena_games`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*Game, error) {
	var (
		g          Game
		uciJSON    []byte
		sanJSON    []byte
		durationMS sql.NullInt64
	)
	if err := row.Scan(
		&g.SessionID, &g.WhiteID, &g.WhiteName, &g.BlackID, &g.BlackName,
		&g.WhiteRating, &g.BlackRating, &g.WhiteDelta, &g.BlackDelta, &g.Rated,
		&g.TimeControl, &g.Source, &g.TournamentID,
		&g.Result, &g.WinnerColor, &g.Reason,
		&g.InitialFEN, &g.FinalFEN, &uciJSON, &sanJSON, &g.PGN,
		&g.StartedAt, &g.EndedAt, &durationMS,
	); err != nil {
		return nil, err
	}
	if durationMS.Valid {
		g.Duration = time.Duration(durationMS.Int64) * time.Millisecond
	}
	if err := json.Unmarshal(uciJSON, &g.MovesUCI); err != nil {
		return nil, fmt.Errorf("unmarshal moves_uci: %w", err)
	}
	if err := json.Unmarshal(sanJSON, &g.MovesSAN); err != nil {
		return nil, fmt.Errorf("unmarshal moves_san: %w", err)
	}
	return &g, nil
}

// GetGame returns nil, nil when the session was never archived.
func (r *PostgresRepository) GetGame(ctx context.Context, sessionID string) (*Game, error) {
	row := r.db.QueryRowContext(ctx, selectGame+` WHERE session_id = $1`, sessionID)
	g, err := scanGame(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select arena game: %w", err)
	}
	return g, nil
}

func (r *PostgresRepository) RecentGames(ctx context.Context, playerID string, limit int) ([]*Game, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx,
		selectGame+` WHERE white_id = $1 OR black_id = $1 ORDER BY ended_at DESC LIMIT $2`,
		playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("select arena games: %w", err)
	}
	defer rows.Close()

	games := make([]*Game, 0, limit)
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			obslog.L().Warn("archive_scan_error", zap.Error(err))
			return nil, fmt.Errorf("scan arena game: %w", err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
