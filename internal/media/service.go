package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/soulishere/internal/metrics"
	"github.com/hitoshi/soulishere/internal/model"
	"github.com/hitoshi/soulishere/internal/security"
)

const (
	// DefaultMaxSize は1枚あたりの既定の上限サイズ（10MB）。
	DefaultMaxSize int64 = 10 << 20
	// MaxBatchSize は一括アップロードの最大枚数。
	MaxBatchSize = 20

	batchConcurrency = 4
	remoteTimeout    = 15 * time.Second
)

// File はアップロードする画像1枚分。
type File struct {
	Filename string
	Content  []byte
}

// Uploader は画像をメディアホストへ送るインターフェース。CloudinaryClientが実装する。
type Uploader interface {
	Upload(ctx context.Context, file File) (*model.UploadedImage, error)
}

// Config はメディアサービスの設定。
type Config struct {
	MaxSize int64
}

// Service は画像アップロードの業務ロジックを提供する。
type Service struct {
	uploader Uploader
	urls     security.URLGuard
	fetcher  *http.Client
	metrics  metrics.Recorder
	maxSize  int64
}

// NewService はServiceを生成する。リモート画像の取得にはurlsが返す安全なクライアントを使う。
func NewService(uploader Uploader, urls security.URLGuard, recorder metrics.Recorder, config Config) *Service {
	if config.MaxSize <= 0 {
		config.MaxSize = DefaultMaxSize
	}
	return &Service{
		uploader: uploader,
		urls:     urls,
		fetcher:  urls.NewSafeClient(remoteTimeout),
		metrics:  metrics.OrNop(recorder),
		maxSize:  config.MaxSize,
	}
}

// MaxSize は1枚あたりの上限サイズを返す。
func (s *Service) MaxSize() int64 {
	return s.maxSize
}

// UploadOne は画像を1枚アップロードする。
func (s *Service) UploadOne(ctx context.Context, file File) (*model.UploadedImage, error) {
	if err := s.checkImage(file); err != nil {
		return nil, err
	}
	img, err := s.uploader.Upload(ctx, file)
	if err != nil {
		return nil, s.upstreamError(err)
	}
	s.metrics.RecordUploads(1)
	return img, nil
}

// UploadMany は複数の画像を並行してアップロードする。
// 1枚でも失敗した場合は全体を失敗とし、部分的な結果は返さない。結果は入力と同じ順序。
func (s *Service) UploadMany(ctx context.Context, files []File) ([]*model.UploadedImage, error) {
	if len(files) == 0 {
		return nil, model.NewValidationError("アップロードするファイルがありません")
	}
	if len(files) > MaxBatchSize {
		return nil, model.NewValidationError(fmt.Sprintf("一度にアップロードできるのは%d枚までです", MaxBatchSize))
	}
	for _, f := range files {
		if err := s.checkImage(f); err != nil {
			return nil, err
		}
	}

	results := make([]*model.UploadedImage, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, f := range files {
		g.Go(func() error {
			img, err := s.uploader.Upload(gctx, f)
			if err != nil {
				return fmt.Errorf("%s: %w", f.Filename, err)
			}
			results[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, s.upstreamError(err)
	}

	s.metrics.RecordUploads(len(results))
	slog.Info("images uploaded", slog.Int("count", len(results)))
	return results, nil
}

// ImportRemote は公開URLの画像を取得してアップロードする。
// 内部ネットワークへの接続はURL検証と安全なHTTPクライアントの両方で拒否する。
func (s *Service) ImportRemote(ctx context.Context, rawURL string) (*model.UploadedImage, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := s.urls.ValidateURL(rawURL); err != nil {
		return nil, model.NewInvalidURLError("url", err.Error())
	}

	file, err := s.fetchRemote(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return s.UploadOne(ctx, *file)
}

func (s *Service) fetchRemote(ctx context.Context, rawURL string) (*File, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, model.NewInvalidURLError("url", err.Error())
	}
	req.Header.Set("User-Agent", "Soulishere/1.0 image import")

	resp, err := s.fetcher.Do(req)
	if err != nil {
		s.metrics.RecordUpstreamFailure("remote_image")
		return nil, model.NewUpstreamError("画像の取得", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.metrics.RecordUpstreamFailure("remote_image")
		return nil, model.NewUpstreamError("画像の取得", fmt.Errorf("status %d", resp.StatusCode))
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, s.maxSize+1))
	if err != nil {
		return nil, model.NewUpstreamError("画像の取得", err)
	}
	if int64(len(content)) > s.maxSize {
		return nil, model.NewValidationError(fmt.Sprintf("画像サイズが上限（%dバイト）を超えています", s.maxSize))
	}

	return &File{Filename: remoteFilename(resp, rawURL), Content: content}, nil
}

// checkImage はサイズと内容の種類を検証する。拡張子ではなく先頭バイトで判定する。
func (s *Service) checkImage(file File) error {
	if len(file.Content) == 0 {
		return model.NewValidationError("ファイルが空です")
	}
	if int64(len(file.Content)) > s.maxSize {
		return model.NewValidationError(fmt.Sprintf("%s のサイズが上限（%dバイト）を超えています", file.Filename, s.maxSize))
	}
	if ct := http.DetectContentType(file.Content); !strings.HasPrefix(ct, "image/") {
		return model.NewValidationError(fmt.Sprintf("%s は画像ではありません (%s)", file.Filename, ct))
	}
	return nil
}

func (s *Service) upstreamError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	s.metrics.RecordUpstreamFailure("cloudinary")
	return model.NewUpstreamError("Cloudinary", err)
}

func remoteFilename(resp *http.Response, rawURL string) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil && params["filename"] != "" {
			return params["filename"]
		}
	}
	name := path.Base(resp.Request.URL.Path)
	if name == "" || name == "/" || name == "." {
		return "remote-image"
	}
	return name
}
