package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"safepaw/internal/domain"

	"github.com/rs/zerolog"
)

// MaxPhotoBytes bounds pet photo uploads.
const MaxPhotoBytes = 5 << 20

type MediaService struct {
	signer   domain.MediaSigner
	uploader domain.MediaUploader
	logger   *zerolog.Logger
}

func NewMediaService(signer domain.MediaSigner, uploader domain.MediaUploader, logger *zerolog.Logger) *MediaService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &MediaService{signer: signer, uploader: uploader, logger: logger}
}

// SignUpload returns the credentials a client needs for a direct signed upload.
func (s *MediaService) SignUpload(timestamp int64) (*domain.UploadSignature, error) {
	if timestamp <= 0 {
		return nil, domain.Invalid("timestamp", "must be a positive unix timestamp")
	}
	if s.signer == nil {
		return nil, domain.Unavailable("media", fmt.Errorf("media store not configured"))
	}
	return s.signer.SignUpload(timestamp)
}

// UploadPhoto stores an image server-side and returns its content URL.
func (s *MediaService) UploadPhoto(ctx context.Context, r io.Reader, filename string) (string, error) {
	if s.uploader == nil {
		return "", domain.Unavailable("media", fmt.Errorf("media store not configured"))
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", domain.Invalid("file", "unreadable upload")
	}
	if n == 0 {
		return "", domain.Invalid("file", "is empty")
	}
	head = head[:n]
	if ct := http.DetectContentType(head); !strings.HasPrefix(ct, "image/") {
		return "", domain.Invalid("file", "must be an image")
	}

	body := io.MultiReader(bytes.NewReader(head), r)
	url, err := s.uploader.Upload(ctx, body, filename)
	if err != nil {
		s.logger.Error().Err(err).Str("filename", filename).Msg("photo upload failed")
		return "", err
	}
	return url, nil
}
