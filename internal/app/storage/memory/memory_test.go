package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/rankboard/rankboard/internal/app/domain/board"
	"github.com/rankboard/rankboard/internal/app/domain/user"
	"github.com/rankboard/rankboard/internal/app/storage"
)

func TestBoardLifecycle(t *testing.T) {
	ctx := context.Background()
	store := New()

	owner, err := store.CreateUser(ctx, user.User{Email: "a@example.com", Username: "a", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	b, err := store.CreateBoard(ctx, board.Board{Title: "roadmap", OwnerID: owner.ID})
	if err != nil {
		t.Fatalf("create board: %v", err)
	}

	col1, err := store.CreateColumn(ctx, board.Column{BoardID: b.ID, Title: "todo", Rank: "0|hzzzzz"})
	if err != nil {
		t.Fatalf("create column: %v", err)
	}
	col2, err := store.CreateColumn(ctx, board.Column{BoardID: b.ID, Title: "doing", Rank: "0|i00007"})
	if err != nil {
		t.Fatalf("create column: %v", err)
	}

	if _, err := store.CreateCard(ctx, board.Card{ColumnID: col1.ID, Content: "one", Rank: "0|i"}); err != nil {
		t.Fatalf("create card: %v", err)
	}
	if _, err := store.CreateCard(ctx, board.Card{ColumnID: col1.ID, Content: "zero", Rank: "0|a"}); err != nil {
		t.Fatalf("create card: %v", err)
	}

	cards, err := store.ListCards(ctx, col1.ID)
	if err != nil {
		t.Fatalf("list cards: %v", err)
	}
	if len(cards) != 2 || cards[0].Content != "zero" {
		t.Fatalf("cards not in rank order: %+v", cards)
	}

	state, err := store.GetBoardState(ctx, b.ID)
	if err != nil {
		t.Fatalf("get board state: %v", err)
	}
	if len(state.Columns) != 2 || state.Columns[0].ID != col1.ID || state.Columns[1].ID != col2.ID {
		t.Fatalf("columns not in rank order: %+v", state.Columns)
	}

	if err := store.DeleteBoard(ctx, b.ID); err != nil {
		t.Fatalf("delete board: %v", err)
	}
	if _, err := store.GetColumn(ctx, col1.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected cascade delete of columns, got %v", err)
	}
}

func TestMembership(t *testing.T) {
	ctx := context.Background()
	store := New()

	owner, _ := store.CreateUser(ctx, user.User{Email: "o@example.com", Username: "o"})
	guest, _ := store.CreateUser(ctx, user.User{Email: "g@example.com", Username: "g"})
	b, _ := store.CreateBoard(ctx, board.Board{Title: "shared", OwnerID: owner.ID})

	if _, err := store.AddMember(ctx, board.Member{BoardID: b.ID, UserID: guest.ID, Role: board.RoleMember}); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if _, err := store.AddMember(ctx, board.Member{BoardID: b.ID, UserID: guest.ID, Role: board.RoleMember}); err == nil {
		t.Fatalf("expected duplicate member error")
	}

	boards, err := store.ListBoardsForUser(ctx, guest.ID)
	if err != nil {
		t.Fatalf("list boards: %v", err)
	}
	if len(boards) != 1 || boards[0].ID != b.ID {
		t.Fatalf("member should see shared board: %+v", boards)
	}

	if err := store.RemoveMember(ctx, b.ID, guest.ID); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	if _, err := store.GetMember(ctx, b.ID, guest.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found after removal, got %v", err)
	}
}

func TestNotFoundSentinel(t *testing.T) {
	ctx := context.Background()
	store := New()

	if _, err := store.GetBoard(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
