package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/soulishere/internal/model"
	"github.com/hitoshi/soulishere/internal/policy"
)

// maxJSONBodySize はJSONリクエストボディの上限（1MB）。
const maxJSONBodySize = 1 << 20

// decodeJSON はリクエストボディを厳密にデコードする。未知のフィールドはエラーにする。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBodySize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return model.NewInvalidRequestError("リクエストボディが大きすぎます")
		}
		return model.NewInvalidRequestError(err.Error())
	}
	return decodeStrict(body, dst)
}

// decodeWithoutProtected は保護フィールドを取り除いてから厳密にデコードする。
// クライアントが取得したメモリアルをそのまま送り返しても、状態・支払い・所有者は変更されない。
func decodeWithoutProtected(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBodySize))
	if err != nil {
		return model.NewInvalidRequestError(err.Error())
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return model.NewInvalidRequestError(describeJSONError(err))
	}
	kept, dropped := policy.StripProtectedFields(fields)
	if len(dropped) > 0 {
		slog.Debug("protected fields ignored",
			slog.String("path", r.URL.Path),
			slog.String("fields", strings.Join(dropped, ",")),
		)
	}

	stripped, err := json.Marshal(kept)
	if err != nil {
		return fmt.Errorf("failed to re-encode request body: %w", err)
	}
	return decodeStrict(stripped, dst)
}

func decodeStrict(body []byte, dst any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return model.NewInvalidRequestError("リクエストボディが空です")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return model.NewInvalidRequestError(describeJSONError(err))
	}
	if dec.More() {
		return model.NewInvalidRequestError("JSONの後に余分なデータがあります")
	}
	return nil
}

func describeJSONError(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("%s の型が正しくありません", typeErr.Field)
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return fmt.Sprintf("JSONの構文エラー（位置 %d）", syntaxErr.Offset)
	}
	return err.Error()
}
