package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/mediatech/internal/middleware"
	"github.com/hitoshi/mediatech/internal/model"
)

// recentAttemptsLimit は試行記録一覧で返す最大件数。
const recentAttemptsLimit = 100

// LoginAttemptLister はログイン試行記録の閲覧に必要なインターフェース。
// throttle.Throttleが実装する。
type LoginAttemptLister interface {
	Recent(ctx context.Context, identity, origin string, limit int) ([]*model.LoginAttempt, error)
}

// CollectionModerator は管理者によるコレクション削除のインターフェース。
type CollectionModerator interface {
	DeleteAsAdmin(ctx context.Context, adminID, collectionID string) error
}

// AdminHandler は管理者向けのHTTPハンドラー。
type AdminHandler struct {
	attempts    LoginAttemptLister
	collections CollectionModerator
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(attempts LoginAttemptLister, collections CollectionModerator) *AdminHandler {
	return &AdminHandler{
		attempts:    attempts,
		collections: collections,
	}
}

type loginAttemptResponse struct {
	ID          string    `json:"id"`
	Identity    string    `json:"identity"`
	Origin      string    `json:"origin"`
	Success     bool      `json:"success"`
	AttemptedAt time.Time `json:"attempted_at"`
}

// ListLoginAttempts は直近のログイン試行記録を新しい順で返す。
// GET /api/admin/login-attempts?identity=&origin=
func (h *AdminHandler) ListLoginAttempts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	attempts, err := h.attempts.Recent(r.Context(), q.Get("identity"), q.Get("origin"), recentAttemptsLimit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]loginAttemptResponse, 0, len(attempts))
	for _, a := range attempts {
		resp = append(resp, loginAttemptResponse{
			ID:          a.ID,
			Identity:    a.Identity,
			Origin:      a.Origin,
			Success:     a.Success,
			AttemptedAt: a.AttemptedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteCollection は任意ユーザーのコレクションを削除する。
// DELETE /api/admin/collections/{id}
func (h *AdminHandler) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	adminID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}
	collectionID, ok := uuidParam(w, r, "id", model.NewCollectionNotFoundError)
	if !ok {
		return
	}

	if err := h.collections.DeleteAsAdmin(r.Context(), adminID, collectionID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
