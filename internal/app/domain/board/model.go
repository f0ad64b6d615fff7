// Package board holds the board aggregate: boards, their ranked columns and
// cards, and membership records.
package board

import "time"

// Board is the top-level collaborative surface.
type Board struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Column is a ranked lane within a board. Rank is a rank-key string; columns
// of a board sort by plain string comparison of their ranks.
type Column struct {
	ID        string    `json:"id"`
	BoardID   string    `json:"boardId"`
	Title     string    `json:"title"`
	Rank      string    `json:"rank"`
	CreatedAt time.Time `json:"created_at"`
}

// Card is a ranked item within a column.
type Card struct {
	ID          string    `json:"id"`
	ColumnID    string    `json:"columnId"`
	Content     string    `json:"content"`
	Description string    `json:"description,omitempty"`
	Rank        string    `json:"rank"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Member grants a user access to a board. The owner is not stored as a
// member row; access checks treat ownership as implicit membership.
type Member struct {
	ID       string    `json:"id"`
	BoardID  string    `json:"boardId"`
	UserID   string    `json:"userId"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// Membership roles.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// ColumnState is a column with its cards in rank order.
type ColumnState struct {
	Column
	Cards []Card `json:"cards"`
}

// State is the full assembled board: the unit the cache holds, the realtime
// path mutates, and the write-behind job persists.
type State struct {
	Board   Board         `json:"board"`
	Columns []ColumnState `json:"columns"`
}

// Clone returns a deep copy of the state. Move operations mutate slices in
// place, so any state handed across a concurrency boundary (the cache, the
// write-behind job) must be cloned first.
func (s State) Clone() State {
	out := State{Board: s.Board}
	if s.Columns == nil {
		return out
	}
	out.Columns = make([]ColumnState, len(s.Columns))
	for i, cs := range s.Columns {
		out.Columns[i] = ColumnState{Column: cs.Column}
		if cs.Cards != nil {
			out.Columns[i].Cards = make([]Card, len(cs.Cards))
			copy(out.Columns[i].Cards, cs.Cards)
		}
	}
	return out
}

// FindCard locates a card by id across all columns. Returns the owning
// column index and card index, or (-1, -1) when absent.
func (s *State) FindCard(cardID string) (colIdx, cardIdx int) {
	for i := range s.Columns {
		for j := range s.Columns[i].Cards {
			if s.Columns[i].Cards[j].ID == cardID {
				return i, j
			}
		}
	}
	return -1, -1
}

// FindColumn locates a column by id, or -1 when absent.
func (s *State) FindColumn(columnID string) int {
	for i := range s.Columns {
		if s.Columns[i].ID == columnID {
			return i
		}
	}
	return -1
}

// MoveCard reparents and reranks a card inside the state, keeping each
// column's card slice sorted by rank. It is a no-op if the card or the
// destination column is unknown.
func (s *State) MoveCard(cardID, toColumnID, newRank string) bool {
	ci, cj := s.FindCard(cardID)
	di := s.FindColumn(toColumnID)
	if ci < 0 || di < 0 {
		return false
	}

	card := s.Columns[ci].Cards[cj]
	s.Columns[ci].Cards = append(s.Columns[ci].Cards[:cj], s.Columns[ci].Cards[cj+1:]...)

	card.ColumnID = toColumnID
	card.Rank = newRank
	dst := s.Columns[di].Cards
	pos := len(dst)
	for k := range dst {
		if dst[k].Rank > newRank {
			pos = k
			break
		}
	}
	dst = append(dst, Card{})
	copy(dst[pos+1:], dst[pos:])
	dst[pos] = card
	s.Columns[di].Cards = dst
	return true
}

// MoveColumn reranks a column and re-sorts the column slice. It is a no-op
// if the column is unknown.
func (s *State) MoveColumn(columnID, newRank string) bool {
	ci := s.FindColumn(columnID)
	if ci < 0 {
		return false
	}

	col := s.Columns[ci]
	s.Columns = append(s.Columns[:ci], s.Columns[ci+1:]...)

	col.Rank = newRank
	pos := len(s.Columns)
	for k := range s.Columns {
		if s.Columns[k].Rank > newRank {
			pos = k
			break
		}
	}
	s.Columns = append(s.Columns, ColumnState{})
	copy(s.Columns[pos+1:], s.Columns[pos:])
	s.Columns[pos] = col
	return true
}
