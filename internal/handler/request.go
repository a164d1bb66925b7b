package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/roamjs/backend/internal/model"
)

// validate はリクエストボディの構造検証に使用する共有バリデーター。
var validate = validator.New()

// decodeAndValidate はJSONリクエストボディをデコードし、structタグで検証する。
// 解析・検証の失敗はバリデーションエラーとして返す。
func decodeAndValidate(r *http.Request, out interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return model.NewValidationError(model.ErrCodeInvalidRequest, "Invalid request body")
	}
	if err := validate.Struct(out); err != nil {
		return model.NewValidationError(model.ErrCodeInvalidRequest, err.Error())
	}
	return nil
}
