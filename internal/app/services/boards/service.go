// Package boards implements board, column, card and membership operations,
// including the access checks the realtime gateway relies on.
package boards

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/rankboard/rankboard/internal/app/cache"
	"github.com/rankboard/rankboard/internal/app/domain/board"
	"github.com/rankboard/rankboard/internal/app/rank"
	"github.com/rankboard/rankboard/internal/app/storage"
	"github.com/rankboard/rankboard/internal/errors"
	"github.com/rankboard/rankboard/internal/logging"
)

// Store is the storage surface the board service needs.
type Store interface {
	storage.BoardStore
	storage.ColumnStore
	storage.CardStore
	storage.MemberStore
	storage.UserStore
	storage.StateStore
}

// Service manages boards and their contents. REST mutations write straight
// to storage and invalidate the cached board so the realtime path reloads
// fresh state.
type Service struct {
	store Store
	cache cache.BoardStateCache
	log   *logging.Logger
}

// NewService creates a board service over store, invalidating c on writes.
func NewService(store Store, c cache.BoardStateCache, log *logging.Logger) *Service {
	return &Service{store: store, cache: c, log: log.Named("boards")}
}

// CanAccessBoard reports whether userID owns or is a member of boardID.
func (s *Service) CanAccessBoard(ctx context.Context, userID, boardID string) (bool, error) {
	b, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if b.OwnerID == userID {
		return true, nil
	}
	if _, err := s.store.GetMember(ctx, boardID, userID); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// requireAccess loads the board and verifies userID may touch it.
func (s *Service) requireAccess(ctx context.Context, userID, boardID string) (board.Board, error) {
	b, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return board.Board{}, errors.NotFound("board not found")
		}
		return board.Board{}, errors.Internal("board lookup failed", err)
	}
	if b.OwnerID == userID {
		return b, nil
	}
	if _, err := s.store.GetMember(ctx, boardID, userID); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return board.Board{}, errors.Forbidden("not a member of this board")
		}
		return board.Board{}, errors.Internal("membership lookup failed", err)
	}
	return b, nil
}

// requireOwner loads the board and verifies userID owns it.
func (s *Service) requireOwner(ctx context.Context, userID, boardID string) (board.Board, error) {
	b, err := s.requireAccess(ctx, userID, boardID)
	if err != nil {
		return board.Board{}, err
	}
	if b.OwnerID != userID {
		return board.Board{}, errors.Forbidden("only the board owner may do this")
	}
	return b, nil
}

func (s *Service) invalidate(ctx context.Context, boardID string) {
	if err := s.cache.Invalidate(ctx, boardID); err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("board_id", boardID).Warn("cache invalidation failed")
	}
}

// CreateBoard creates a board owned by userID.
func (s *Service) CreateBoard(ctx context.Context, userID, title string) (board.Board, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return board.Board{}, errors.InvalidInput("board title is required")
	}
	b, err := s.store.CreateBoard(ctx, board.Board{Title: title, OwnerID: userID})
	if err != nil {
		return board.Board{}, errors.Internal("create board failed", err)
	}
	return b, nil
}

// ListBoards returns the boards userID owns or belongs to.
func (s *Service) ListBoards(ctx context.Context, userID string) ([]board.Board, error) {
	bs, err := s.store.ListBoardsForUser(ctx, userID)
	if err != nil {
		return nil, errors.Internal("list boards failed", err)
	}
	return bs, nil
}

// GetState returns the assembled state of a board the user can access.
func (s *Service) GetState(ctx context.Context, userID, boardID string) (board.State, error) {
	if _, err := s.requireAccess(ctx, userID, boardID); err != nil {
		return board.State{}, err
	}
	state, err := s.store.GetBoardState(ctx, boardID)
	if err != nil {
		return board.State{}, errors.Internal("load board state failed", err)
	}
	return state, nil
}

// RenameBoard changes a board's title. Any member may rename.
func (s *Service) RenameBoard(ctx context.Context, userID, boardID, title string) (board.Board, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return board.Board{}, errors.InvalidInput("board title is required")
	}
	b, err := s.requireAccess(ctx, userID, boardID)
	if err != nil {
		return board.Board{}, err
	}
	b.Title = title
	updated, err := s.store.UpdateBoard(ctx, b)
	if err != nil {
		return board.Board{}, errors.Internal("update board failed", err)
	}
	s.invalidate(ctx, boardID)
	return updated, nil
}

// DeleteBoard removes a board and everything on it. Owner only.
func (s *Service) DeleteBoard(ctx context.Context, userID, boardID string) error {
	if _, err := s.requireOwner(ctx, userID, boardID); err != nil {
		return err
	}
	if err := s.store.DeleteBoard(ctx, boardID); err != nil {
		return errors.Internal("delete board failed", err)
	}
	s.invalidate(ctx, boardID)
	return nil
}

// CreateColumn appends a column at the end of the board.
func (s *Service) CreateColumn(ctx context.Context, userID, boardID, title string) (board.Column, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return board.Column{}, errors.InvalidInput("column title is required")
	}
	if _, err := s.requireAccess(ctx, userID, boardID); err != nil {
		return board.Column{}, err
	}

	key, err := s.nextColumnRank(ctx, boardID)
	if err != nil {
		return board.Column{}, err
	}
	col, err := s.store.CreateColumn(ctx, board.Column{BoardID: boardID, Title: title, Rank: key})
	if err != nil {
		return board.Column{}, errors.Internal("create column failed", err)
	}
	s.invalidate(ctx, boardID)
	return col, nil
}

func (s *Service) nextColumnRank(ctx context.Context, boardID string) (string, error) {
	cols, err := s.store.ListColumns(ctx, boardID)
	if err != nil {
		return "", errors.Internal("list columns failed", err)
	}
	if len(cols) == 0 {
		return rank.Initial(), nil
	}
	key, err := rank.After(cols[len(cols)-1].Rank)
	if err != nil {
		return "", errors.Internal("rank allocation failed", err)
	}
	return key, nil
}

// RenameColumn changes a column's title.
func (s *Service) RenameColumn(ctx context.Context, userID, columnID, title string) (board.Column, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return board.Column{}, errors.InvalidInput("column title is required")
	}
	col, err := s.getColumn(ctx, columnID)
	if err != nil {
		return board.Column{}, err
	}
	if _, err := s.requireAccess(ctx, userID, col.BoardID); err != nil {
		return board.Column{}, err
	}
	col.Title = title
	updated, err := s.store.UpdateColumn(ctx, col)
	if err != nil {
		return board.Column{}, errors.Internal("update column failed", err)
	}
	s.invalidate(ctx, col.BoardID)
	return updated, nil
}

// DeleteColumn removes a column and its cards.
func (s *Service) DeleteColumn(ctx context.Context, userID, columnID string) error {
	col, err := s.getColumn(ctx, columnID)
	if err != nil {
		return err
	}
	if _, err := s.requireAccess(ctx, userID, col.BoardID); err != nil {
		return err
	}
	if err := s.store.DeleteColumn(ctx, columnID); err != nil {
		return errors.Internal("delete column failed", err)
	}
	s.invalidate(ctx, col.BoardID)
	return nil
}

func (s *Service) getColumn(ctx context.Context, columnID string) (board.Column, error) {
	col, err := s.store.GetColumn(ctx, columnID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return board.Column{}, errors.NotFound("column not found")
		}
		return board.Column{}, errors.Internal("column lookup failed", err)
	}
	return col, nil
}

// CreateCard appends a card at the end of the column.
func (s *Service) CreateCard(ctx context.Context, userID, columnID, content, description string) (board.Card, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return board.Card{}, errors.InvalidInput("card content is required")
	}
	col, err := s.getColumn(ctx, columnID)
	if err != nil {
		return board.Card{}, err
	}
	if _, err := s.requireAccess(ctx, userID, col.BoardID); err != nil {
		return board.Card{}, err
	}

	cards, err := s.store.ListCards(ctx, columnID)
	if err != nil {
		return board.Card{}, errors.Internal("list cards failed", err)
	}
	key := rank.Initial()
	if len(cards) > 0 {
		key, err = rank.After(cards[len(cards)-1].Rank)
		if err != nil {
			return board.Card{}, errors.Internal("rank allocation failed", err)
		}
	}

	card, err := s.store.CreateCard(ctx, board.Card{
		ColumnID:    columnID,
		Content:     content,
		Description: description,
		Rank:        key,
	})
	if err != nil {
		return board.Card{}, errors.Internal("create card failed", err)
	}
	s.invalidate(ctx, col.BoardID)
	return card, nil
}

// UpdateCard changes a card's content and description.
func (s *Service) UpdateCard(ctx context.Context, userID, cardID, content, description string) (board.Card, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return board.Card{}, errors.InvalidInput("card content is required")
	}
	card, col, err := s.getCardWithColumn(ctx, cardID)
	if err != nil {
		return board.Card{}, err
	}
	if _, err := s.requireAccess(ctx, userID, col.BoardID); err != nil {
		return board.Card{}, err
	}
	card.Content = content
	card.Description = description
	updated, err := s.store.UpdateCard(ctx, card)
	if err != nil {
		return board.Card{}, errors.Internal("update card failed", err)
	}
	s.invalidate(ctx, col.BoardID)
	return updated, nil
}

// DeleteCard removes a card.
func (s *Service) DeleteCard(ctx context.Context, userID, cardID string) error {
	_, col, err := s.getCardWithColumn(ctx, cardID)
	if err != nil {
		return err
	}
	if _, err := s.requireAccess(ctx, userID, col.BoardID); err != nil {
		return err
	}
	if err := s.store.DeleteCard(ctx, cardID); err != nil {
		return errors.Internal("delete card failed", err)
	}
	s.invalidate(ctx, col.BoardID)
	return nil
}

func (s *Service) getCardWithColumn(ctx context.Context, cardID string) (board.Card, board.Column, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return board.Card{}, board.Column{}, errors.NotFound("card not found")
		}
		return board.Card{}, board.Column{}, errors.Internal("card lookup failed", err)
	}
	col, err := s.getColumn(ctx, card.ColumnID)
	if err != nil {
		return board.Card{}, board.Column{}, err
	}
	return card, col, nil
}

// InviteMember adds the user with the given email to the board. Owner only.
func (s *Service) InviteMember(ctx context.Context, actorID, boardID, email string) (board.Member, error) {
	if _, err := s.requireOwner(ctx, actorID, boardID); err != nil {
		return board.Member{}, err
	}

	email = strings.ToLower(strings.TrimSpace(email))
	invitee, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return board.Member{}, errors.NotFound("no user with that email")
		}
		return board.Member{}, errors.Internal("user lookup failed", err)
	}
	if invitee.ID == actorID {
		return board.Member{}, errors.Conflict("owner is already on the board")
	}
	if _, err := s.store.GetMember(ctx, boardID, invitee.ID); err == nil {
		return board.Member{}, errors.Conflict("user is already a member")
	} else if !stderrors.Is(err, storage.ErrNotFound) {
		return board.Member{}, errors.Internal("membership lookup failed", err)
	}

	m, err := s.store.AddMember(ctx, board.Member{
		BoardID: boardID,
		UserID:  invitee.ID,
		Role:    board.RoleMember,
	})
	if err != nil {
		return board.Member{}, errors.Internal("add member failed", err)
	}
	s.log.WithContext(ctx).WithFields(map[string]interface{}{
		"board_id": boardID,
		"user_id":  invitee.ID,
	}).Info("member invited")
	return m, nil
}

// ListMembers returns the board's membership, visible to any member.
func (s *Service) ListMembers(ctx context.Context, userID, boardID string) ([]board.Member, error) {
	if _, err := s.requireAccess(ctx, userID, boardID); err != nil {
		return nil, err
	}
	ms, err := s.store.ListMembers(ctx, boardID)
	if err != nil {
		return nil, errors.Internal("list members failed", err)
	}
	return ms, nil
}

// RemoveMember removes a member. The owner may remove anyone; a member may
// remove only themselves.
func (s *Service) RemoveMember(ctx context.Context, actorID, boardID, userID string) error {
	b, err := s.requireAccess(ctx, actorID, boardID)
	if err != nil {
		return err
	}
	if userID == b.OwnerID {
		return errors.InvalidInput("the owner cannot be removed")
	}
	if actorID != b.OwnerID && actorID != userID {
		return errors.Forbidden("only the board owner may remove other members")
	}
	if err := s.store.RemoveMember(ctx, boardID, userID); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NotFound("member not found")
		}
		return errors.Internal("remove member failed", err)
	}
	return nil
}
