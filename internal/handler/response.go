package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hitoshi/eventkeeper/internal/middleware"
	"github.com/hitoshi/eventkeeper/internal/model"
)

// validate はリクエストボディの検証に使う共有インスタンス。
// フィールド名はJSONタグの名前で報告する。
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// errInvalidRequestBody はJSONとして解析できないリクエストボディのエラー。
func errInvalidRequestBody() *model.APIError {
	return &model.APIError{
		Kind:     model.KindValidation,
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// writeJSON はステータスコードを指定してJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

// handleServiceError はサービス層のエラーを統一エラーフォーマットで返す。
// APIErrorを含まないエラーは内部エラーとしてログに記録し、詳細は返さない。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	slog.Error("internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// requireUserID はコンテキストから認証済みユーザーIDを取り出す。
// 取得できない場合は401を書き込みfalseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewUnauthenticatedError())
		return "", false
	}
	return userID, true
}

// pathID はURLパラメータをUUIDとして取り出す。
// UUIDとして解釈できないIDは存在しないものとして notFound のエラーを書き込む。
func pathID(w http.ResponseWriter, r *http.Request, name string, notFound func(id string) *model.APIError) (string, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		middleware.WriteAPIError(w, notFound(raw))
		return "", false
	}
	return id.String(), true
}

// decodeRequest はJSONボディをdstにデコードし、validateタグで検証する。
// 失敗した場合はエラーレスポンスを書き込みfalseを返す。
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		// JSONとしては正しいが型が合わないフィールドは入力値エラーとして扱う。
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			middleware.WriteAPIError(w, model.NewValidationError(typeErr.Field, "must be of type "+typeErr.Type.String()))
			return false
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest, errInvalidRequestBody())
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			middleware.WriteAPIError(w, model.NewValidationError(fe.Field(), validationReason(fe)))
			return false
		}
		handleServiceError(w, r, err)
		return false
	}
	return true
}

// validationReason はvalidatorのエラーを短い説明に変換する。
func validationReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "max":
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "uuid", "uuid_rfc4122":
		return "must be a UUID"
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "failed on " + fe.Tag()
	}
}

func routeNotFoundError() *model.APIError {
	return &model.APIError{
		Kind:     model.KindNotFound,
		Code:     "ROUTE_NOT_FOUND",
		Message:  "指定されたエンドポイントは存在しません。",
		Category: "system",
		Action:   "URLを確認してください。",
	}
}
