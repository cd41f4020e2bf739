package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hitoshi/mediatech/internal/catalog"
	"github.com/hitoshi/mediatech/internal/library"
	"github.com/hitoshi/mediatech/internal/middleware"
	"github.com/hitoshi/mediatech/internal/model"
)

// maxRequestBodySize はJSONリクエストボディの上限（1 MiB）。
const maxRequestBodySize = 1 << 20

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// requestValidator はリクエストボディ検証用のvalidatorを返す。
// エラーメッセージのフィールド名にはJSONタグ名を使う。
func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// decodeRequest はJSONボディをdstに読み込み、validateタグで検証する。
// 失敗時はエラーレスポンスを書き込みfalseを返す。
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(dst); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return false
	}

	if err := requestValidator().Struct(dst); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(describeValidationError(err)))
		return false
	}
	return true
}

// describeValidationError はvalidatorのエラーを利用者向けの文にまとめる。
func describeValidationError(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		unit := ""
		if fe.Kind() == reflect.String {
			unit = "文字"
		}
		switch fe.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%sは必須です", fe.Field()))
		case "email":
			messages = append(messages, fmt.Sprintf("%sの形式が正しくありません", fe.Field()))
		case "min":
			messages = append(messages, fmt.Sprintf("%sは%s%s以上で指定してください", fe.Field(), fe.Param(), unit))
		case "max":
			messages = append(messages, fmt.Sprintf("%sは%s%s以下で指定してください", fe.Field(), fe.Param(), unit))
		case "oneof":
			messages = append(messages, fmt.Sprintf("%sには次のいずれかを指定してください: %s", fe.Field(), fe.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%sが不正です", fe.Field()))
		}
	}
	return strings.Join(messages, "; ")
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// writeUnauthorized はセッションのないリクエストに401を返す。
func writeUnauthorized(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
}

// uuidParam はUUID形式のURLパラメータを正規化して返す。
// 形式が不正なIDに該当するリソースは存在しないため、notFoundのエラーで404を書き込む。
func uuidParam(w http.ResponseWriter, r *http.Request, key string, notFound func(id string) *model.APIError) (string, bool) {
	raw := chi.URLParam(r, key)
	id, err := uuid.Parse(raw)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusNotFound, notFound(raw))
		return "", false
	}
	return id.String(), true
}

// parseKind はURLパラメータのメディア種別を解析する。不正な場合は400を書き込む。
func parseKind(w http.ResponseWriter, raw string) (model.MediaKind, bool) {
	kind, err := model.ParseMediaKind(raw)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidMediaKindError(raw))
		return "", false
	}
	return kind, true
}

// handleMediaError はメディア追加・取得で発生したエラーをレスポンスに変換する。
// 外部カタログに存在しないメディアは404とする。
func handleMediaError(w http.ResponseWriter, err error, kind model.MediaKind, externalID string) {
	if errors.Is(err, catalog.ErrNotFound) {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewMediaNotFoundError(kind, externalID))
		return
	}
	handleServiceError(w, err)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	switch {
	case errors.Is(err, model.ErrUnsupportedMediaKind):
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("メディア種別が不正です"))
		return
	case errors.Is(err, library.ErrInvalidExternalID):
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("外部IDが空です"))
		return
	case errors.Is(err, catalog.ErrNotFound):
		writeAPIErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     model.ErrCodeMediaNotFound,
			Message:  "指定されたメディアが見つかりません。",
			Category: "catalog",
			Action:   "IDを確認してください。",
		})
		return
	case errors.Is(err, catalog.ErrUnavailable):
		slog.Warn("catalog unavailable", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewCatalogUnavailableError())
		return
	}

	// 上記以外は内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidMediaKind, model.ErrCodeValidationFailed, model.ErrCodeReservedName:
		return http.StatusBadRequest
	case model.ErrCodeInvalidCredentials, model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden, model.ErrCodeNotPublic, model.ErrCodeOwnCollection:
		return http.StatusForbidden
	case model.ErrCodeMediaNotFound, model.ErrCodeCollectionNotFound,
		model.ErrCodeCommentNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeEmailTaken, model.ErrCodeDefaultCollectionLock:
		return http.StatusConflict
	case model.ErrCodeLoginThrottled:
		return http.StatusTooManyRequests
	case model.ErrCodeCatalogUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// queryInt は整数のクエリパラメータを返す。未指定・不正な値の場合はdefaultValueを返す。
func queryInt(r *http.Request, key string, defaultValue int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return v
}
