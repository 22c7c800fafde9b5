package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"bastionrp.ru/internal/token"
)

type createPostRequest struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Category string `json:"category"`
}

type createCommentRequest struct {
	Body string `json:"body"`
}

func (a *API) handleForumPosts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))
		posts, err := a.deps.Forum.ListPosts(r.Context(), limit, offset)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
	case http.MethodPost:
		snap, ok := token.SnapshotFromContext(r.Context())
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		var req createPostRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		post, err := a.deps.Forum.CreatePost(r.Context(), snap.UserID, req.Title, req.Body, req.Category)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, post)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleForumPostResource serves /v1/forum/posts/{id},
// /v1/forum/posts/{id}/comments and /v1/forum/posts/{id}/like.
func (a *API) handleForumPostResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/forum/posts/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		post, comments, err := a.deps.Forum.GetPost(r.Context(), parts[0])
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"post":     post,
			"comments": comments,
		})
	case len(parts) == 2 && parts[1] == "comments":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		snap, ok := token.SnapshotFromContext(r.Context())
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		var req createCommentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		comment, err := a.deps.Forum.AddComment(r.Context(), snap.UserID, parts[0], req.Body)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, comment)
	case len(parts) == 2 && parts[1] == "like":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		snap, ok := token.SnapshotFromContext(r.Context())
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		likes, err := a.deps.Forum.Like(r.Context(), snap.UserID, parts[0])
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"likes": likes})
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}
