package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/hitoshi/soulishere/internal/media"
	"github.com/hitoshi/soulishere/internal/middleware"
	"github.com/hitoshi/soulishere/internal/model"
)

const (
	singleImageField = "image"
	multiImageField  = "images"
	multipartMemory  = 32 << 20
)

// MediaServiceInterface はアップロードハンドラーが必要とするサービスインターフェース。
type MediaServiceInterface interface {
	UploadOne(ctx context.Context, file media.File) (*model.UploadedImage, error)
	UploadMany(ctx context.Context, files []media.File) ([]*model.UploadedImage, error)
	ImportRemote(ctx context.Context, rawURL string) (*model.UploadedImage, error)
	MaxSize() int64
}

// UploadHandler は画像アップロードのHTTPハンドラー。
type UploadHandler struct {
	service MediaServiceInterface
}

// NewUploadHandler はUploadHandlerを生成する。
func NewUploadHandler(service MediaServiceInterface) *UploadHandler {
	return &UploadHandler{service: service}
}

type remoteUploadRequest struct {
	URL string `json:"url"`
}

// UploadOne は画像を1枚アップロードする。
// POST /upload (multipart: image)
func (h *UploadHandler) UploadOne(w http.ResponseWriter, r *http.Request) {
	if err := h.parseMultipart(w, r, 1); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()
	headers := r.MultipartForm.File[singleImageField]
	if len(headers) == 0 {
		middleware.WriteError(w, r, model.NewValidationError("image フィールドにファイルを指定してください"))
		return
	}

	file, err := h.readFile(headers[0])
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	img, err := h.service.UploadOne(r.Context(), file)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, img)
}

// UploadMany は複数の画像をまとめてアップロードする。1枚でも失敗した場合は全体を失敗とする。
// POST /upload/multiple (multipart: images)
func (h *UploadHandler) UploadMany(w http.ResponseWriter, r *http.Request) {
	if err := h.parseMultipart(w, r, media.MaxBatchSize); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()
	headers := r.MultipartForm.File[multiImageField]
	if len(headers) == 0 {
		middleware.WriteError(w, r, model.NewValidationError("images フィールドにファイルを指定してください"))
		return
	}
	if len(headers) > media.MaxBatchSize {
		middleware.WriteError(w, r, model.NewValidationError(fmt.Sprintf("一度にアップロードできるのは%d枚までです", media.MaxBatchSize)))
		return
	}

	files := make([]media.File, 0, len(headers))
	for _, fh := range headers {
		f, err := h.readFile(fh)
		if err != nil {
			middleware.WriteError(w, r, err)
			return
		}
		files = append(files, f)
	}

	imgs, err := h.service.UploadMany(r.Context(), files)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, imgs)
}

// ImportRemote は公開URLの画像を取り込む。
// POST /upload/remote
func (h *UploadHandler) ImportRemote(w http.ResponseWriter, r *http.Request) {
	var req remoteUploadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	img, err := h.service.ImportRemote(r.Context(), req.URL)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, img)
}

func (h *UploadHandler) parseMultipart(w http.ResponseWriter, r *http.Request, maxFiles int) error {
	// ファイル本体に加えてマルチパートのヘッダー分の余裕を持たせる
	limit := h.service.MaxSize()*int64(maxFiles) + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return model.NewValidationError(fmt.Sprintf("アップロードサイズが上限（%dバイト）を超えています", limit))
		}
		return model.NewInvalidRequestError(err.Error())
	}
	return nil
}

func (h *UploadHandler) readFile(fh *multipart.FileHeader) (media.File, error) {
	if fh.Size > h.service.MaxSize() {
		return media.File{}, model.NewValidationError(fmt.Sprintf("%s のサイズが上限（%dバイト）を超えています", fh.Filename, h.service.MaxSize()))
	}
	f, err := fh.Open()
	if err != nil {
		return media.File{}, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, h.service.MaxSize()+1))
	if err != nil {
		return media.File{}, fmt.Errorf("failed to read uploaded file: %w", err)
	}
	return media.File{Filename: fh.Filename, Content: content}, nil
}
