package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rankboard/rankboard/internal/app/domain/board"
	"github.com/rankboard/rankboard/internal/app/domain/user"
	"github.com/rankboard/rankboard/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu           sync.RWMutex
	users        map[string]user.User
	usersByEmail map[string]string
	boards       map[string]board.Board
	columns      map[string]board.Column
	cards        map[string]board.Card
	members      map[string]board.Member
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.BoardStore = (*Store)(nil)
var _ storage.ColumnStore = (*Store)(nil)
var _ storage.CardStore = (*Store)(nil)
var _ storage.MemberStore = (*Store)(nil)
var _ storage.StateStore = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		users:        make(map[string]user.User),
		usersByEmail: make(map[string]string),
		boards:       make(map[string]board.Board),
		columns:      make(map[string]board.Column),
		cards:        make(map[string]board.Card),
		members:      make(map[string]board.Member),
	}
}

// UserStore implementation ----------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if _, exists := s.usersByEmail[u.Email]; exists {
		return user.User{}, fmt.Errorf("user with email %s already exists", u.Email)
	}
	u.CreatedAt = time.Now().UTC()

	s.users[u.ID] = u
	s.usersByEmail[u.Email] = u.ID
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[email]
	if !ok {
		return user.User{}, fmt.Errorf("user %s: %w", email, storage.ErrNotFound)
	}
	return s.users[id], nil
}

// BoardStore implementation ---------------------------------------------------

func (s *Store) CreateBoard(_ context.Context, b board.Board) (board.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	s.boards[b.ID] = b
	return b, nil
}

func (s *Store) UpdateBoard(_ context.Context, b board.Board) (board.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.boards[b.ID]
	if !ok {
		return board.Board{}, fmt.Errorf("board %s: %w", b.ID, storage.ErrNotFound)
	}
	b.CreatedAt = original.CreatedAt
	b.UpdatedAt = time.Now().UTC()

	s.boards[b.ID] = b
	return b, nil
}

func (s *Store) GetBoard(_ context.Context, id string) (board.Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.boards[id]
	if !ok {
		return board.Board{}, fmt.Errorf("board %s: %w", id, storage.ErrNotFound)
	}
	return b, nil
}

func (s *Store) ListBoardsForUser(_ context.Context, userID string) ([]board.Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	memberOf := make(map[string]bool)
	for _, m := range s.members {
		if m.UserID == userID {
			memberOf[m.BoardID] = true
		}
	}

	var result []board.Board
	for _, b := range s.boards {
		if b.OwnerID == userID || memberOf[b.ID] {
			result = append(result, b)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) DeleteBoard(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.boards[id]; !ok {
		return fmt.Errorf("board %s: %w", id, storage.ErrNotFound)
	}
	delete(s.boards, id)
	for cid, c := range s.columns {
		if c.BoardID != id {
			continue
		}
		delete(s.columns, cid)
		for kid, card := range s.cards {
			if card.ColumnID == cid {
				delete(s.cards, kid)
			}
		}
	}
	for mid, m := range s.members {
		if m.BoardID == id {
			delete(s.members, mid)
		}
	}
	return nil
}

// ColumnStore implementation --------------------------------------------------

func (s *Store) CreateColumn(_ context.Context, c board.Column) (board.Column, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, ok := s.boards[c.BoardID]; !ok {
		return board.Column{}, fmt.Errorf("board %s: %w", c.BoardID, storage.ErrNotFound)
	}
	c.CreatedAt = time.Now().UTC()

	s.columns[c.ID] = c
	return c, nil
}

func (s *Store) UpdateColumn(_ context.Context, c board.Column) (board.Column, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.columns[c.ID]
	if !ok {
		return board.Column{}, fmt.Errorf("column %s: %w", c.ID, storage.ErrNotFound)
	}
	c.BoardID = original.BoardID
	c.CreatedAt = original.CreatedAt

	s.columns[c.ID] = c
	return c, nil
}

func (s *Store) GetColumn(_ context.Context, id string) (board.Column, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.columns[id]
	if !ok {
		return board.Column{}, fmt.Errorf("column %s: %w", id, storage.ErrNotFound)
	}
	return c, nil
}

func (s *Store) ListColumns(_ context.Context, boardID string) ([]board.Column, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []board.Column
	for _, c := range s.columns {
		if c.BoardID == boardID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Rank < result[j].Rank })
	return result, nil
}

func (s *Store) DeleteColumn(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.columns[id]; !ok {
		return fmt.Errorf("column %s: %w", id, storage.ErrNotFound)
	}
	delete(s.columns, id)
	for kid, card := range s.cards {
		if card.ColumnID == id {
			delete(s.cards, kid)
		}
	}
	return nil
}

// CardStore implementation ----------------------------------------------------

func (s *Store) CreateCard(_ context.Context, c board.Card) (board.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, ok := s.columns[c.ColumnID]; !ok {
		return board.Card{}, fmt.Errorf("column %s: %w", c.ColumnID, storage.ErrNotFound)
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	s.cards[c.ID] = c
	return c, nil
}

func (s *Store) UpdateCard(_ context.Context, c board.Card) (board.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.cards[c.ID]
	if !ok {
		return board.Card{}, fmt.Errorf("card %s: %w", c.ID, storage.ErrNotFound)
	}
	c.CreatedAt = original.CreatedAt
	c.UpdatedAt = time.Now().UTC()

	s.cards[c.ID] = c
	return c, nil
}

func (s *Store) GetCard(_ context.Context, id string) (board.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cards[id]
	if !ok {
		return board.Card{}, fmt.Errorf("card %s: %w", id, storage.ErrNotFound)
	}
	return c, nil
}

func (s *Store) ListCards(_ context.Context, columnID string) ([]board.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []board.Card
	for _, c := range s.cards {
		if c.ColumnID == columnID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Rank < result[j].Rank })
	return result, nil
}

func (s *Store) DeleteCard(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cards[id]; !ok {
		return fmt.Errorf("card %s: %w", id, storage.ErrNotFound)
	}
	delete(s.cards, id)
	return nil
}

// MemberStore implementation --------------------------------------------------

func (s *Store) AddMember(_ context.Context, m board.Member) (board.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	for _, existing := range s.members {
		if existing.BoardID == m.BoardID && existing.UserID == m.UserID {
			return board.Member{}, fmt.Errorf("user %s is already a member of board %s", m.UserID, m.BoardID)
		}
	}
	m.JoinedAt = time.Now().UTC()

	s.members[m.ID] = m
	return m, nil
}

func (s *Store) GetMember(_ context.Context, boardID, userID string) (board.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.members {
		if m.BoardID == boardID && m.UserID == userID {
			return m, nil
		}
	}
	return board.Member{}, fmt.Errorf("member %s of board %s: %w", userID, boardID, storage.ErrNotFound)
}

func (s *Store) ListMembers(_ context.Context, boardID string) ([]board.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []board.Member
	for _, m := range s.members {
		if m.BoardID == boardID {
			result = append(result, m)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].JoinedAt.Before(result[j].JoinedAt) })
	return result, nil
}

func (s *Store) RemoveMember(_ context.Context, boardID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, m := range s.members {
		if m.BoardID == boardID && m.UserID == userID {
			delete(s.members, id)
			return nil
		}
	}
	return fmt.Errorf("member %s of board %s: %w", userID, boardID, storage.ErrNotFound)
}

// StateStore implementation ---------------------------------------------------

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

func (s *Store) UpsertBoardState(_ context.Context, state board.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.boards[state.Board.ID]; !ok {
		return fmt.Errorf("board %s: %w", state.Board.ID, storage.ErrNotFound)
	}

	now := time.Now().UTC()
	b := state.Board
	b.UpdatedAt = now
	s.boards[b.ID] = b

	for _, cs := range state.Columns {
		col := cs.Column
		if existing, ok := s.columns[col.ID]; ok {
			col.CreatedAt = existing.CreatedAt
		}
		s.columns[col.ID] = col
		for _, card := range cs.Cards {
			if existing, ok := s.cards[card.ID]; ok {
				card.CreatedAt = existing.CreatedAt
			}
			card.UpdatedAt = now
			s.cards[card.ID] = card
		}
	}
	return nil
}
