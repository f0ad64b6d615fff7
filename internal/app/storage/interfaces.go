package storage

import (
	"context"

	"github.com/rankboard/rankboard/internal/app/domain/board"
	"github.com/rankboard/rankboard/internal/app/domain/user"
)

// UserStore persists user accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
}

// BoardStore persists board records.
type BoardStore interface {
	CreateBoard(ctx context.Context, b board.Board) (board.Board, error)
	UpdateBoard(ctx context.Context, b board.Board) (board.Board, error)
	GetBoard(ctx context.Context, id string) (board.Board, error)
	ListBoardsForUser(ctx context.Context, userID string) ([]board.Board, error)
	DeleteBoard(ctx context.Context, id string) error
}

// ColumnStore persists columns. ListColumns returns columns in rank order.
type ColumnStore interface {
	CreateColumn(ctx context.Context, c board.Column) (board.Column, error)
	UpdateColumn(ctx context.Context, c board.Column) (board.Column, error)
	GetColumn(ctx context.Context, id string) (board.Column, error)
	ListColumns(ctx context.Context, boardID string) ([]board.Column, error)
	DeleteColumn(ctx context.Context, id string) error
}

// CardStore persists cards. ListCards returns cards in rank order.
type CardStore interface {
	CreateCard(ctx context.Context, c board.Card) (board.Card, error)
	UpdateCard(ctx context.Context, c board.Card) (board.Card, error)
	GetCard(ctx context.Context, id string) (board.Card, error)
	ListCards(ctx context.Context, columnID string) ([]board.Card, error)
	DeleteCard(ctx context.Context, id string) error
}

// MemberStore persists board membership.
type MemberStore interface {
	AddMember(ctx context.Context, m board.Member) (board.Member, error)
	GetMember(ctx context.Context, boardID, userID string) (board.Member, error)
	ListMembers(ctx context.Context, boardID string) ([]board.Member, error)
	RemoveMember(ctx context.Context, boardID, userID string) error
}

// StateStore reads and writes the assembled board aggregate. GetBoardState
// joins the board with its columns and cards sorted by rank; UpsertBoardState
// is the write-behind reconciliation target and must tolerate repeated
// application of the same state.
type StateStore interface {
	GetBoardState(ctx context.Context, boardID string) (board.State, error)
	UpsertBoardState(ctx context.Context, state board.State) error
}
