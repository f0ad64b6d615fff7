package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rankboard/rankboard/internal/app/domain/board"
	"github.com/rankboard/rankboard/internal/app/domain/user"
	"github.com/rankboard/rankboard/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.BoardStore = (*Store)(nil)
var _ storage.ColumnStore = (*Store)(nil)
var _ storage.CardStore = (*Store)(nil)
var _ storage.MemberStore = (*Store)(nil)
var _ storage.StateStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, storage.ErrNotFound)
	}
	return err
}

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, username, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, u.ID, u.Email, u.Username, u.PasswordHash, u.CreatedAt)
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, username, password_hash, created_at
		FROM users
		WHERE id = $1
	`, id)

	var u user.User
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
		return user.User{}, notFound(err, "user", id)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, username, password_hash, created_at
		FROM users
		WHERE email = $1
	`, email)

	var u user.User
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
		return user.User{}, notFound(err, "user", email)
	}
	return u, nil
}

// --- BoardStore -------------------------------------------------------------

func (s *Store) CreateBoard(ctx context.Context, b board.Board) (board.Board, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO boards (id, title, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, b.ID, b.Title, b.OwnerID, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return board.Board{}, err
	}
	return b, nil
}

func (s *Store) UpdateBoard(ctx context.Context, b board.Board) (board.Board, error) {
	b.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE boards
		SET title = $2, updated_at = $3
		WHERE id = $1
	`, b.ID, b.Title, b.UpdatedAt)
	if err != nil {
		return board.Board{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return board.Board{}, fmt.Errorf("board %s: %w", b.ID, storage.ErrNotFound)
	}
	return s.GetBoard(ctx, b.ID)
}

func (s *Store) GetBoard(ctx context.Context, id string) (board.Board, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, owner_id, created_at, updated_at
		FROM boards
		WHERE id = $1
	`, id)

	var b board.Board
	if err := row.Scan(&b.ID, &b.Title, &b.OwnerID, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return board.Board{}, notFound(err, "board", id)
	}
	return b, nil
}

func (s *Store) ListBoardsForUser(ctx context.Context, userID string) ([]board.Board, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT b.id, b.title, b.owner_id, b.created_at, b.updated_at
		FROM boards b
		LEFT JOIN board_members m ON m.board_id = b.id
		WHERE b.owner_id = $1 OR m.user_id = $1
		ORDER BY b.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []board.Board
	for rows.Next() {
		var b board.Board
		if err := rows.Scan(&b.ID, &b.Title, &b.OwnerID, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func (s *Store) DeleteBoard(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM boards WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("board %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// --- ColumnStore ------------------------------------------------------------

func (s *Store) CreateColumn(ctx context.Context, c board.Column) (board.Column, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO columns (id, board_id, title, rank, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.BoardID, c.Title, c.Rank, c.CreatedAt)
	if err != nil {
		return board.Column{}, err
	}
	return c, nil
}

func (s *Store) UpdateColumn(ctx context.Context, c board.Column) (board.Column, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE columns
		SET title = $2, rank = $3
		WHERE id = $1
	`, c.ID, c.Title, c.Rank)
	if err != nil {
		return board.Column{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return board.Column{}, fmt.Errorf("column %s: %w", c.ID, storage.ErrNotFound)
	}
	return s.GetColumn(ctx, c.ID)
}

func (s *Store) GetColumn(ctx context.Context, id string) (board.Column, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, board_id, title, rank, created_at
		FROM columns
		WHERE id = $1
	`, id)

	var c board.Column
	if err := row.Scan(&c.ID, &c.BoardID, &c.Title, &c.Rank, &c.CreatedAt); err != nil {
		return board.Column{}, notFound(err, "column", id)
	}
	return c, nil
}

func (s *Store) ListColumns(ctx context.Context, boardID string) ([]board.Column, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, board_id, title, rank, created_at
		FROM columns
		WHERE board_id = $1
		ORDER BY rank
	`, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []board.Column
	for rows.Next() {
		var c board.Column
		if err := rows.Scan(&c.ID, &c.BoardID, &c.Title, &c.Rank, &c.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) DeleteColumn(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM columns WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("column %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// --- CardStore --------------------------------------------------------------

func (s *Store) CreateCard(ctx context.Context, c board.Card) (board.Card, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cards (id, column_id, content, description, rank, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, c.ID, c.ColumnID, c.Content, c.Description, c.Rank, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return board.Card{}, err
	}
	return c, nil
}

func (s *Store) UpdateCard(ctx context.Context, c board.Card) (board.Card, error) {
	c.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE cards
		SET column_id = $2, content = $3, description = $4, rank = $5, updated_at = $6
		WHERE id = $1
	`, c.ID, c.ColumnID, c.Content, c.Description, c.Rank, c.UpdatedAt)
	if err != nil {
		return board.Card{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return board.Card{}, fmt.Errorf("card %s: %w", c.ID, storage.ErrNotFound)
	}
	return s.GetCard(ctx, c.ID)
}

func (s *Store) GetCard(ctx context.Context, id string) (board.Card, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, column_id, content, description, rank, created_at, updated_at
		FROM cards
		WHERE id = $1
	`, id)

	var c board.Card
	if err := row.Scan(&c.ID, &c.ColumnID, &c.Content, &c.Description, &c.Rank, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return board.Card{}, notFound(err, "card", id)
	}
	return c, nil
}

func (s *Store) ListCards(ctx context.Context, columnID string) ([]board.Card, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, column_id, content, description, rank, created_at, updated_at
		FROM cards
		WHERE column_id = $1
		ORDER BY rank
	`, columnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []board.Card
	for rows.Next() {
		var c board.Card
		if err := rows.Scan(&c.ID, &c.ColumnID, &c.Content, &c.Description, &c.Rank, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) DeleteCard(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM cards WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("card %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// --- MemberStore ------------------------------------------------------------

func (s *Store) AddMember(ctx context.Context, m board.Member) (board.Member, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.JoinedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO board_members (id, board_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4, $5)
	`, m.ID, m.BoardID, m.UserID, m.Role, m.JoinedAt)
	if err != nil {
		return board.Member{}, err
	}
	return m, nil
}

func (s *Store) GetMember(ctx context.Context, boardID, userID string) (board.Member, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, board_id, user_id, role, joined_at
		FROM board_members
		WHERE board_id = $1 AND user_id = $2
	`, boardID, userID)

	var m board.Member
	if err := row.Scan(&m.ID, &m.BoardID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
		return board.Member{}, notFound(err, "member", userID)
	}
	return m, nil
}

func (s *Store) ListMembers(ctx context.Context, boardID string) ([]board.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, board_id, user_id, role, joined_at
		FROM board_members
		WHERE board_id = $1
		ORDER BY joined_at
	`, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []board.Member
	for rows.Next() {
		var m board.Member
		if err := rows.Scan(&m.ID, &m.BoardID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (s *Store) RemoveMember(ctx context.Context, boardID, userID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM board_members WHERE board_id = $1 AND user_id = $2
	`, boardID, userID)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("member %s of board %s: %w", userID, boardID, storage.ErrNotFound)
	}
	return nil
}

// --- StateStore -------------------------------------------------------------

func (s *Store) GetBoardState(ctx context.Context, boardID string) (board.State, error) {
	b, err := s.GetBoard(ctx, boardID)
	if err != nil {
		return board.State{}, err
	}
	cols, err := s.ListColumns(ctx, boardID)
	if err != nil {
		return board.State{}, err
	}

	state := board.State{Board: b, Columns: make([]board.ColumnState, 0, len(cols))}
	for _, col := range cols {
		cards, err := s.ListCards(ctx, col.ID)
		if err != nil {
			return board.State{}, err
		}
		state.Columns = append(state.Columns, board.ColumnState{Column: col, Cards: cards})
	}
	return state, nil
}

// UpsertBoardState writes the assembled state back in one transaction. Rank
// and column assignments win over whatever the rows currently hold; rows the
// state does not mention are left alone, since deletes go through the CRUD
// path synchronously.
func (s *Store) UpsertBoardState(ctx context.Context, state board.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE boards SET updated_at = $2 WHERE id = $1
	`, state.Board.ID, now); err != nil {
		return err
	}

	for _, cs := range state.Columns {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO columns (id, board_id, title, rank, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, rank = EXCLUDED.rank
		`, cs.ID, state.Board.ID, cs.Title, cs.Rank, now); err != nil {
			return err
		}
		for _, card := range cs.Cards {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO cards (id, column_id, content, description, rank, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (id) DO UPDATE SET
					column_id = EXCLUDED.column_id,
					content = EXCLUDED.content,
					description = EXCLUDED.description,
					rank = EXCLUDED.rank,
					updated_at = EXCLUDED.updated_at
			`, card.ID, cs.ID, card.Content, card.Description, card.Rank, now, now); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}
