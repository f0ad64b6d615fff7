// Package httpapi exposes the REST surface: account auth plus CRUD for
// boards, columns, cards and members. Live reordering happens over the
// websocket gateway, not here.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rankboard/rankboard/internal/app/services/boards"
	"github.com/rankboard/rankboard/internal/app/services/users"
	"github.com/rankboard/rankboard/internal/httputil"
	"github.com/rankboard/rankboard/internal/logging"
	"github.com/rankboard/rankboard/internal/middleware"
)

// Handler carries the services the REST routes need.
type Handler struct {
	users  *users.Service
	boards *boards.Service
	auth   *middleware.AuthMiddleware
	log    *logging.Logger
}

// NewHandler creates the REST handler.
func NewHandler(usersSvc *users.Service, boardsSvc *boards.Service, auth *middleware.AuthMiddleware, log *logging.Logger) *Handler {
	return &Handler{users: usersSvc, boards: boardsSvc, auth: auth, log: log.Named("httpapi")}
}

// Register attaches the API routes to r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/api/auth/register", h.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login", h.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/logout", h.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/me", h.handleMe).Methods(http.MethodGet)

	r.HandleFunc("/api/boards", h.handleListBoards).Methods(http.MethodGet)
	r.HandleFunc("/api/boards", h.handleCreateBoard).Methods(http.MethodPost)
	r.HandleFunc("/api/boards/{id}", h.handleGetBoard).Methods(http.MethodGet)
	r.HandleFunc("/api/boards/{id}", h.handleRenameBoard).Methods(http.MethodPatch)
	r.HandleFunc("/api/boards/{id}", h.handleDeleteBoard).Methods(http.MethodDelete)

	r.HandleFunc("/api/boards/{id}/columns", h.handleCreateColumn).Methods(http.MethodPost)
	r.HandleFunc("/api/columns/{id}", h.handleRenameColumn).Methods(http.MethodPatch)
	r.HandleFunc("/api/columns/{id}", h.handleDeleteColumn).Methods(http.MethodDelete)

	r.HandleFunc("/api/columns/{id}/cards", h.handleCreateCard).Methods(http.MethodPost)
	r.HandleFunc("/api/cards/{id}", h.handleUpdateCard).Methods(http.MethodPatch)
	r.HandleFunc("/api/cards/{id}", h.handleDeleteCard).Methods(http.MethodDelete)

	r.HandleFunc("/api/boards/{id}/members", h.handleListMembers).Methods(http.MethodGet)
	r.HandleFunc("/api/boards/{id}/members", h.handleInviteMember).Methods(http.MethodPost)
	r.HandleFunc("/api/boards/{id}/members/{userId}", h.handleRemoveMember).Methods(http.MethodDelete)
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.auth.TokenTTL() / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}

	u, err := h.users.Register(r.Context(), payload.Email, payload.Username, payload.Password)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	token, err := h.auth.IssueToken(u.ID, u.Email, u.Username)
	if err != nil {
		httputil.InternalError(w, "token issue failed")
		return
	}
	h.setSessionCookie(w, token)
	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{"user": u, "token": token})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}

	u, err := h.users.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	token, err := h.auth.IssueToken(u.ID, u.Email, u.Username)
	if err != nil {
		httputil.InternalError(w, "token issue failed")
		return
	}
	h.setSessionCookie(w, token)
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"user": u, "token": token})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	u, err := h.users.Get(r.Context(), userID)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"user": u})
}

func (h *Handler) handleListBoards(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	bs, err := h.boards.ListBoards(r.Context(), userID)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"boards": bs})
}

func (h *Handler) handleCreateBoard(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Title string `json:"title"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	b, err := h.boards.CreateBoard(r.Context(), userID, payload.Title)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{"board": b})
}

func (h *Handler) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	state, err := h.boards.GetState(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, state)
}

func (h *Handler) handleRenameBoard(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Title string `json:"title"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	b, err := h.boards.RenameBoard(r.Context(), userID, mux.Vars(r)["id"], payload.Title)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"board": b})
}

func (h *Handler) handleDeleteBoard(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	if err := h.boards.DeleteBoard(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCreateColumn(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Title string `json:"title"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	col, err := h.boards.CreateColumn(r.Context(), userID, mux.Vars(r)["id"], payload.Title)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{"column": col})
}

func (h *Handler) handleRenameColumn(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Title string `json:"title"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	col, err := h.boards.RenameColumn(r.Context(), userID, mux.Vars(r)["id"], payload.Title)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"column": col})
}

func (h *Handler) handleDeleteColumn(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	if err := h.boards.DeleteColumn(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Content     string `json:"content"`
		Description string `json:"description"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	card, err := h.boards.CreateCard(r.Context(), userID, mux.Vars(r)["id"], payload.Content, payload.Description)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{"card": card})
}

func (h *Handler) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Content     string `json:"content"`
		Description string `json:"description"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	card, err := h.boards.UpdateCard(r.Context(), userID, mux.Vars(r)["id"], payload.Content, payload.Description)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"card": card})
}

func (h *Handler) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	if err := h.boards.DeleteCard(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListMembers(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	ms, err := h.boards.ListMembers(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"members": ms})
}

func (h *Handler) handleInviteMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Email string `json:"email"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	m, err := h.boards.InviteMember(r.Context(), userID, mux.Vars(r)["id"], payload.Email)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{"member": m})
}

func (h *Handler) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	if err := h.boards.RemoveMember(r.Context(), userID, vars["id"], vars["userId"]); err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
