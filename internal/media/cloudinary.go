// Package media は画像アップロード（Cloudinary）とリモート画像の取り込みを提供する。
package media

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/soulishere/internal/model"
)

const (
	defaultCloudinaryEndpoint = "https://api.cloudinary.com/v1_1"
	// DefaultFolder はアップロード先のフォルダ名。
	DefaultFolder = "soulishere"
)

// ErrNotConfigured は資格情報が設定されていない場合に返される。
var ErrNotConfigured = errors.New("media host is not configured")

// CloudinaryConfig はCloudinaryクライアントの設定。
type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	Endpoint  string // テスト用にエンドポイントを差し替え可能
}

// Configured は資格情報が全て設定されているかを返す。
func (c CloudinaryConfig) Configured() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

// CloudinaryClient はCloudinaryの署名付きアップロードAPIのクライアント。
type CloudinaryClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	config     CloudinaryConfig
	now        func() time.Time
}

// NewCloudinaryClient はCloudinaryClientを生成する。
func NewCloudinaryClient(httpClient *http.Client, logger *slog.Logger, config CloudinaryConfig) *CloudinaryClient {
	if config.Folder == "" {
		config.Folder = DefaultFolder
	}
	if config.Endpoint == "" {
		config.Endpoint = defaultCloudinaryEndpoint
	}
	return &CloudinaryClient{
		httpClient: httpClient,
		logger:     logger,
		config:     config,
		now:        time.Now,
	}
}

// uploadResponse はアップロードAPIのレスポンスのうち使用する項目。
type uploadResponse struct {
	SecureURL        string `json:"secure_url"`
	PublicID         string `json:"public_id"`
	OriginalFilename string `json:"original_filename"`
	Error            *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload は画像を1枚アップロードする。
func (c *CloudinaryClient) Upload(ctx context.Context, file File) (*model.UploadedImage, error) {
	if !c.config.Configured() {
		return nil, ErrNotConfigured
	}

	params := map[string]string{
		"folder":    c.config.Folder,
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range params {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("マルチパートの作成に失敗しました: %w", err)
		}
	}
	if err := w.WriteField("api_key", c.config.APIKey); err != nil {
		return nil, fmt.Errorf("マルチパートの作成に失敗しました: %w", err)
	}
	if err := w.WriteField("signature", sign(params, c.config.APISecret)); err != nil {
		return nil, fmt.Errorf("マルチパートの作成に失敗しました: %w", err)
	}
	part, err := w.CreateFormFile("file", file.Filename)
	if err != nil {
		return nil, fmt.Errorf("マルチパートの作成に失敗しました: %w", err)
	}
	if _, err := part.Write(file.Content); err != nil {
		return nil, fmt.Errorf("マルチパートの作成に失敗しました: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("マルチパートの作成に失敗しました: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/image/upload", strings.TrimRight(c.config.Endpoint, "/"), c.config.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Cloudinaryの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("filename", file.Filename),
		)
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var result uploadResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		c.logger.Error("Cloudinaryのレスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK || result.Error != nil {
		msg := ""
		if result.Error != nil {
			msg = result.Error.Message
		}
		c.logger.Error("Cloudinaryがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("message", msg),
		)
		return nil, fmt.Errorf("Cloudinaryがステータス %d を返しました: %s", resp.StatusCode, msg)
	}
	if result.SecureURL == "" {
		return nil, fmt.Errorf("Cloudinaryのレスポンスにsecure_urlがありません")
	}

	return &model.UploadedImage{
		URL:      result.SecureURL,
		PublicID: result.PublicID,
		Filename: result.OriginalFilename,
	}, nil
}

// sign はCloudinaryの署名を計算する。
// パラメータをキー順に "k=v&k=v" で連結し、APIシークレットを付けたSHA-1の16進表記。
func sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}
