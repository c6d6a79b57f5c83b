// Package media signs and performs pet photo uploads against Cloudinary.
package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"safepaw/internal/config"
	"safepaw/internal/domain"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

var ErrNotConfigured = errors.New("cloudinary credentials not set in configuration")

// Signer produces upload signatures for direct client uploads.
type Signer struct {
	cloudName string
	apiKey    string
	apiSecret string
	folder    string
}

func NewSigner(cfg config.CloudinaryConfig) (*Signer, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	return &Signer{
		cloudName: cfg.CloudName,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		folder:    cfg.Folder,
	}, nil
}

// SignUpload signs the folder and timestamp parameters the client will send.
func (s *Signer) SignUpload(timestamp int64) (*domain.UploadSignature, error) {
	params := url.Values{}
	params.Set("timestamp", strconv.FormatInt(timestamp, 10))
	if s.folder != "" {
		params.Set("folder", s.folder)
	}

	signature, err := api.SignParameters(params, s.apiSecret)
	if err != nil {
		return nil, fmt.Errorf("sign upload parameters: %w", err)
	}

	return &domain.UploadSignature{
		CloudName: s.cloudName,
		APIKey:    s.apiKey,
		Timestamp: timestamp,
		Folder:    s.folder,
		Signature: signature,
	}, nil
}

// Uploader stores files server-side through the Cloudinary upload API.
type Uploader struct {
	cld    *cloudinary.Cloudinary
	folder string
	logger *zerolog.Logger
}

func NewUploader(cfg config.CloudinaryConfig, logger *zerolog.Logger) (*Uploader, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}
	return &Uploader{cld: cld, folder: cfg.Folder, logger: logger}, nil
}

// Upload sends file (a path, URL or io.Reader) and returns its secure URL.
func (u *Uploader) Upload(ctx context.Context, file interface{}, filename string) (string, error) {
	result, err := u.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		Folder:         u.folder,
		ResourceType:   "image",
		UseFilename:    api.Bool(filename != ""),
		UniqueFilename: api.Bool(true),
	})
	if err != nil {
		return "", domain.Unavailable("cloudinary", err)
	}
	if result.Error.Message != "" {
		return "", domain.Unavailable("cloudinary", errors.New(result.Error.Message))
	}
	if result.SecureURL == "" {
		return "", domain.Unavailable("cloudinary", errors.New("no secure url returned"))
	}

	u.logger.Info().Str("public_id", result.PublicID).Str("filename", filename).Msg("photo uploaded")
	return result.SecureURL, nil
}
