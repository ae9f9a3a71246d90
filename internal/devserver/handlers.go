package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/narrate/internal/common"
	"github.com/dmitrijs2005/narrate/internal/devserver/auth"
	"github.com/dmitrijs2005/narrate/internal/devserver/users"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const profileImageField = "profileImage"

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Image     *string   `json:"image,omitempty"`
	Bio       *string   `json:"bio,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func toUserResponse(u *users.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Image:     u.Image,
		Bio:       u.Bio,
		CreatedAt: u.CreatedAt,
	}
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type signUpRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"required,min=3"`
	LastName  string `json:"last_name" validate:"required,min=3"`
	Username  string `json:"username" validate:"required,min=3,max=32,excludesall=/ "`
}

type verifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,numeric"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type updateInfoRequest struct {
	Username *string `json:"username" validate:"omitempty,min=3,max=32,excludesall=/ "`
	Email    *string `json:"email" validate:"omitempty,email"`
	Bio      *string `json:"bio" validate:"omitempty,max=500"`
}

type cursorResponse struct {
	ID        string `json:"id"`
	CreatedAt string `json:"createdAt"`
}

type searchResponse struct {
	Users      []userResponse  `json:"users"`
	NextCursor *cursorResponse `json:"nextCursor,omitempty"`
}

// decode reads a JSON body into dst and validates it, answering 400 itself
// when either step fails.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst); err != nil {
		s.writeMessage(w, r, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.writeMessage(w, r, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return "invalid " + ve[0].Field()
	}
	return "invalid request"
}

func (s *Server) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	secret, token, err := auth.NewCSRFPair(s.secret)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     common.CSRFCookieName,
		Value:    secret,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"csrfToken": token})
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !s.decode(w, r, &req) {
		return
	}

	user, pair, err := s.users.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.setTokenCookies(w, pair)
	s.writeJSON(w, r, http.StatusOK, "signed in", toUserResponse(user))
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !s.decode(w, r, &req) {
		return
	}

	user, err := s.users.SignUp(r.Context(), users.SignUpInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusCreated, "verification code sent", toUserResponse(user))
}

func (s *Server) handleCheckUsername(w http.ResponseWriter, r *http.Request) {
	exists, err := s.users.UsernameExists(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, "", map[string]bool{"exists": exists})
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if !s.decode(w, r, &req) {
		return
	}

	user, pair, err := s.users.VerifyOTP(r.Context(), req.Email, req.OTP)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.setTokenCookies(w, pair)
	s.writeJSON(w, r, http.StatusOK, "account verified", toUserResponse(user))
}

func (s *Server) handleRefreshOTP(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.users.ResendOTP(r.Context(), req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeMessage(w, r, http.StatusOK, "verification code sent")
}

func (s *Server) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(common.RefreshTokenCookieName)
	if err != nil || c.Value == "" {
		s.writeError(w, r, common.ErrorUnauthorized)
		return
	}

	pair, err := s.users.RefreshToken(r.Context(), c.Value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.setTokenCookies(w, pair)
	s.writeMessage(w, r, http.StatusOK, "token refreshed")
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	var refresh string
	if c, err := r.Cookie(common.RefreshTokenCookieName); err == nil {
		refresh = c.Value
	}

	if err := s.users.SignOut(r.Context(), refresh); err != nil {
		s.writeError(w, r, err)
		return
	}

	clearTokenCookies(w)
	s.writeMessage(w, r, http.StatusOK, "signed out")
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, "", toUserResponse(userFromContext(r.Context())))
}

func (s *Server) handleProfileImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageSize+1<<16)
	if err := r.ParseMultipartForm(maxImageSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeMessage(w, r, http.StatusRequestEntityTooLarge, "image too large")
			return
		}
		s.writeMessage(w, r, http.StatusBadRequest, "invalid multipart body")
		return
	}

	file, _, err := r.FormFile(profileImageField)
	if err != nil {
		s.writeMessage(w, r, http.StatusBadRequest, profileImageField+" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeMessage(w, r, http.StatusBadRequest, "invalid multipart body")
		return
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		s.writeMessage(w, r, http.StatusBadRequest, "profile image must be an image")
		return
	}

	id := s.images.put(contentType, data)
	url := fmt.Sprintf("%s/images/%s", baseURL(r), id)

	if _, err := s.users.SetImage(r.Context(), userFromContext(r.Context()).ID, url); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusCreated, "profile image updated", map[string]string{"image": url})
}

func (s *Server) handleProfileInfo(w http.ResponseWriter, r *http.Request) {
	var req updateInfoRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Username == nil && req.Email == nil && req.Bio == nil {
		s.writeMessage(w, r, http.StatusBadRequest, "nothing to update")
		return
	}

	user, err := s.users.UpdateInfo(r.Context(), userFromContext(r.Context()).ID, users.UpdateInput{
		Username: req.Username,
		Email:    req.Email,
		Bio:      req.Bio,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, "profile updated", toUserResponse(user))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	username := strings.TrimSpace(q.Get("username"))
	if username == "" {
		s.writeMessage(w, r, http.StatusBadRequest, "username is required")
		return
	}

	pageSize := users.DefaultSearchLimit
	if v := q.Get("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeMessage(w, r, http.StatusBadRequest, "invalid pageSize")
			return
		}
		pageSize = min(n, maxSearchPerPage)
	}

	var after *users.Cursor
	id, createdAt := q.Get("id"), q.Get("createdAt")
	if id != "" || createdAt != "" {
		at, err := time.Parse(time.RFC3339Nano, createdAt)
		if id == "" || err != nil {
			s.writeMessage(w, r, http.StatusBadRequest, "invalid cursor")
			return
		}
		after = &users.Cursor{ID: id, CreatedAt: at}
	}

	found, next, err := s.users.Search(r.Context(), username, pageSize, after)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := searchResponse{Users: make([]userResponse, 0, len(found))}
	for _, u := range found {
		resp.Users = append(resp.Users, toUserResponse(u))
	}
	if next != nil {
		resp.NextCursor = &cursorResponse{ID: next.ID, CreatedAt: next.CreatedAt.Format(time.RFC3339Nano)}
	}
	s.writeJSON(w, r, http.StatusOK, "", resp)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	img, ok := s.images.get(chi.URLParam(r, "id"))
	if !ok {
		s.writeMessage(w, r, http.StatusNotFound, "image not found")
		return
	}
	w.Header().Set("Content-Type", img.contentType)
	_, _ = w.Write(img.data)
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
