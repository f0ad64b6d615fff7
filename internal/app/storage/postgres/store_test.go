package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/lib/pq"

	"github.com/rankboard/rankboard/internal/app/domain/board"
	"github.com/rankboard/rankboard/internal/app/domain/user"
	"github.com/rankboard/rankboard/internal/app/rank"
	"github.com/rankboard/rankboard/internal/platform/migrations"
)

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := migrations.Apply(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	store := New(db)

	owner, err := store.CreateUser(ctx, user.User{Email: "owner@example.com", Username: "owner", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	b, err := store.CreateBoard(ctx, board.Board{Title: "roadmap", OwnerID: owner.ID})
	if err != nil {
		t.Fatalf("create board: %v", err)
	}

	col, err := store.CreateColumn(ctx, board.Column{BoardID: b.ID, Title: "todo", Rank: rank.Initial()})
	if err != nil {
		t.Fatalf("create column: %v", err)
	}

	card, err := store.CreateCard(ctx, board.Card{ColumnID: col.ID, Content: "ship it", Rank: rank.Initial()})
	if err != nil {
		t.Fatalf("create card: %v", err)
	}

	state, err := store.GetBoardState(ctx, b.ID)
	if err != nil {
		t.Fatalf("get board state: %v", err)
	}
	if len(state.Columns) != 1 || len(state.Columns[0].Cards) != 1 {
		t.Fatalf("unexpected state shape: %+v", state)
	}

	next, err := rank.After(card.Rank)
	if err != nil {
		t.Fatalf("after: %v", err)
	}
	state.Columns[0].Cards[0].Rank = next
	if err := store.UpsertBoardState(ctx, state); err != nil {
		t.Fatalf("upsert board state: %v", err)
	}

	got, err := store.GetCard(ctx, card.ID)
	if err != nil {
		t.Fatalf("get card: %v", err)
	}
	if got.Rank != next {
		t.Fatalf("card rank = %q, want %q", got.Rank, next)
	}
}

func TestUpsertBoardStateTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	state := board.State{
		Board: board.Board{ID: "b1", Title: "roadmap"},
		Columns: []board.ColumnState{
			{
				Column: board.Column{ID: "col1", BoardID: "b1", Title: "todo", Rank: "0|hzzzzz"},
				Cards: []board.Card{
					{ID: "c1", ColumnID: "col1", Content: "ship it", Rank: "0|hzzzzz"},
				},
			},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE boards").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO columns").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO cards").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := New(db).UpsertBoardState(context.Background(), state); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
