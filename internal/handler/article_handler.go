package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/eventkeeper/internal/article"
	"github.com/hitoshi/eventkeeper/internal/model"
)

// ArticleServiceInterface は記事ハンドラーが必要とするサービスインターフェース。
type ArticleServiceInterface interface {
	CreateArticle(ctx context.Context, userID string, in article.Input) (*model.Article, error)
	UpdateArticle(ctx context.Context, articleID, actingUserID string, in article.Input) (*model.Article, error)
	GetArticle(ctx context.Context, articleID string) (*model.Article, error)
}

// ArticleHandler はスピーカーが紹介する記事のHTTPハンドラー。
type ArticleHandler struct {
	service ArticleServiceInterface
}

// NewArticleHandler はArticleHandlerを生成する。
func NewArticleHandler(service ArticleServiceInterface) *ArticleHandler {
	return &ArticleHandler{service: service}
}

type articleRequest struct {
	Title       string  `json:"title" validate:"required,max=200"`
	Description *string `json:"description"`
	URL         *string `json:"url" validate:"omitempty,max=2048"`
}

func (req articleRequest) input() article.Input {
	return article.Input{Title: req.Title, Description: req.Description, URL: req.URL}
}

// CreateArticle は記事を作成する。
// POST /api/articles
func (h *ArticleHandler) CreateArticle(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req articleRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	a, err := h.service.CreateArticle(r.Context(), userID, req.input())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toArticleResponse(a))
}

// GetArticle は記事を返す。
// GET /api/articles/{id}
func (h *ArticleHandler) GetArticle(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}
	articleID, ok := pathID(w, r, "id", model.NewArticleNotFoundError)
	if !ok {
		return
	}

	a, err := h.service.GetArticle(r.Context(), articleID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toArticleResponse(a))
}

// UpdateArticle は記事を更新する。作成者のみ実行できる。
// PATCH /api/articles/{id}
func (h *ArticleHandler) UpdateArticle(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	articleID, ok := pathID(w, r, "id", model.NewArticleNotFoundError)
	if !ok {
		return
	}
	var req articleRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	a, err := h.service.UpdateArticle(r.Context(), articleID, userID, req.input())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toArticleResponse(a))
}
