// Package services contains application services for the Narrate client.
// This file defines the profile service: profile info updates, avatar upload
// and user search.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/narrate/internal/client/models"
	"github.com/dmitrijs2005/narrate/internal/logging"
	"github.com/go-playground/validator/v10"
)

var (
	ErrNothingToUpdate  = errors.New("nothing to update")
	ErrUnsupportedImage = errors.New("unsupported image type")
	ErrEmptyQuery       = errors.New("empty search query")
)

// DefaultPageSize is used by Search when no page size is given.
const DefaultPageSize = 10

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".avif": true,
}

// ProfileAPI is the subset of the API client used by the profile service.
type ProfileAPI interface {
	UpdateProfile(ctx context.Context, data models.UpdateUserData) (*models.User, error)
	UploadProfileImage(ctx context.Context, filename string, content io.Reader) (string, error)
	SearchUsers(ctx context.Context, q models.SearchQuery) (*models.SearchResult, error)
}

// SessionInvalidator marks the cached session stale after the profile changes.
type SessionInvalidator interface {
	Invalidate()
}

// ProfileService defines profile operations for the CLI.
//
// Contract:
//   - UpdateInfo: change any of username, email and bio; nil fields stay.
//   - UploadImage: upload an image file as the avatar, returning its URL.
//   - Search: look users up by username, one page at a time.
//
// Successful mutations invalidate the session so the cached identity
// reflects them.
type ProfileService interface {
	UpdateInfo(ctx context.Context, data models.UpdateUserData) (*models.User, error)
	UploadImage(ctx context.Context, path string) (string, error)
	Search(ctx context.Context, username string, pageSize int, cursor *models.Cursor) (*models.SearchResult, error)
}

type profileService struct {
	api      ProfileAPI
	session  SessionInvalidator
	logger   logging.Logger
	validate *validator.Validate
}

// NewProfileService constructs a ProfileService over the API client.
func NewProfileService(api ProfileAPI, session SessionInvalidator, logger logging.Logger) ProfileService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &profileService{
		api:      api,
		session:  session,
		logger:   logger.With("service", "profile"),
		validate: validator.New(),
	}
}

// UpdateInfo validates the changed fields and sends them. Empty strings are
// treated as "leave unchanged" for username and email; an empty bio clears
// the bio.
func (s *profileService) UpdateInfo(ctx context.Context, data models.UpdateUserData) (*models.User, error) {
	if data.Username != nil && *data.Username == "" {
		data.Username = nil
	}
	if data.Email != nil && *data.Email == "" {
		data.Email = nil
	}
	if data.Empty() {
		return nil, ErrNothingToUpdate
	}

	if data.Username != nil {
		if err := s.validate.Var(*data.Username, "min=3"); err != nil {
			return nil, fmt.Errorf("username must be at least 3 characters: %w", err)
		}
	}
	if data.Email != nil {
		if err := s.validate.Var(*data.Email, "email"); err != nil {
			return nil, fmt.Errorf("email is invalid: %w", err)
		}
	}

	user, err := s.api.UpdateProfile(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("update profile error: %w", err)
	}

	s.session.Invalidate()
	s.logger.Info(ctx, "profile updated")
	return user, nil
}

// UploadImage uploads the file at path as the profile picture. Only image
// files, judged by extension, are accepted.
func (s *profileService) UploadImage(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !imageExtensions[ext] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedImage, ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open image error: %w", err)
	}
	defer f.Close()

	url, err := s.api.UploadProfileImage(ctx, filepath.Base(path), f)
	if err != nil {
		return "", fmt.Errorf("upload image error: %w", err)
	}

	s.session.Invalidate()
	s.logger.Info(ctx, "profile image updated", "image", url)
	return url, nil
}

// Search returns one page of users whose username matches. Pass the
// previous page's NextCursor to continue.
func (s *profileService) Search(ctx context.Context, username string, pageSize int, cursor *models.Cursor) (*models.SearchResult, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrEmptyQuery
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	res, err := s.api.SearchUsers(ctx, models.SearchQuery{Username: username, PageSize: pageSize, Cursor: cursor})
	if err != nil {
		return nil, fmt.Errorf("search error: %w", err)
	}
	return res, nil
}
