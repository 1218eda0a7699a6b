package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/session-gate/internal/audit"
	"github.com/yourusername/session-gate/internal/logutil"
	"github.com/yourusername/session-gate/internal/password"
	"github.com/yourusername/session-gate/internal/session"
	"github.com/yourusername/session-gate/internal/users"
	"github.com/yourusername/session-gate/internal/web"
)

// パス
const (
	PathRoot      = "/"
	PathProtected = "/index1.html"
	PathLogin     = "/login"
	PathSignup    = "/signup"
	PathLogout    = "/logout"
)

// 画面に出すメッセージ
const (
	msgFieldsRequired     = "すべての項目を入力してください。"
	msgInvalidCredentials = "ユーザー名またはパスワードが正しくありません。"
	msgLoginSucceeded     = "ログインしました。"
	msgUserExists         = "このユーザー名は既に使われています。"
	msgPasswordTooLong    = "パスワードは72バイト以内で入力してください。"
	msgSignupFailed       = "アカウントは作成されましたが、ログインに失敗しました。ログイン画面からお試しください。"
	msgWelcome            = "アカウントを作成しました。ようこそ、%s さん。"
	msgLoggedOut          = "ログアウトしました。"
	msgInternalError      = "サーバー内部でエラーが発生しました。時間をおいて再度お試しください。"
)

// EventPublisher は認証イベントの送り先です。
type EventPublisher interface {
	Publish(ctx context.Context, event audit.Event) error
}

// Handler は画面とフォーム送信のハンドラーをまとめた構造体です。
type Handler struct {
	service  *Service
	sessions *session.Manager
	events   EventPublisher
}

// NewHandler は Handler を作成します。events は nil でも構いません。
func NewHandler(service *Service, sessions *session.Manager, events EventPublisher) *Handler {
	return &Handler{
		service:  service,
		sessions: sessions,
		events:   events,
	}
}

// RegisterRoutes はルートを登録します。sessions.Sessions と session.Manager.Establish は呼び出し側で先に Use してください。
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET(PathRoot, h.Home)
	r.GET(PathProtected, h.sessions.RequireLogin(PathLogin), h.Protected)
	r.GET(PathLogin, h.LoginForm)
	r.POST(PathLogin, h.Login)
	r.GET(PathSignup, h.SignupForm)
	r.POST(PathSignup, h.Signup)
	r.GET(PathLogout, h.Logout)
	r.POST(PathLogout, h.Logout)
}

// Home は GET / のハンドラーです。
func (h *Handler) Home(c *gin.Context) {
	c.Redirect(http.StatusFound, PathProtected)
}

// Protected は GET /index1.html のハンドラーです。RequireLogin の後ろに置きます。
func (h *Handler) Protected(c *gin.Context) {
	userID := c.GetString(session.ContextUserIDKey)
	user, err := h.service.UserByID(c.Request.Context(), userID)
	if err != nil {
		if !errors.Is(err, users.ErrNotFound) {
			logger := logutil.GetOrDefault(c.Request.Context())
			logger.Error().Err(err).Msg("failed to load session user")
			h.renderError(c, web.PageLogin, "Login")
			return
		}
		// ユーザーが消えている（メモリストアの再起動など）場合は未認証に戻す
		if err := h.sessions.Clear(c); err != nil {
			logger := logutil.GetOrDefault(c.Request.Context())
			logger.Warn().Err(err).Str("user.id", userID).Msg("failed to clear stale session")
		}
		c.Redirect(http.StatusFound, PathLogin)
		return
	}

	c.HTML(http.StatusOK, web.PageProtected, web.Page{
		Title:   "Home",
		Flashes: h.sessions.Flashes(c),
		User:    user,
	})
}

// LoginForm は GET /login のハンドラーです。
func (h *Handler) LoginForm(c *gin.Context) {
	c.HTML(http.StatusOK, web.PageLogin, web.Page{
		Title:   "Login",
		Flashes: h.sessions.Flashes(c),
	})
}

// Login は POST /login のハンドラーです。
// 存在しないログイン名とパスワード不一致は同じ応答になります。
func (h *Handler) Login(c *gin.Context) {
	loginName := strings.TrimSpace(c.PostForm("username"))
	plaintext := c.PostForm("password")
	if loginName == "" || plaintext == "" {
		h.redirectWithFlash(c, PathLogin, msgFieldsRequired)
		return
	}

	ctx := c.Request.Context()
	user, err := h.service.Authenticate(ctx, loginName, plaintext)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			h.publish(c, audit.Event{Kind: audit.KindLoginFailed, LoginName: loginName})
			h.redirectWithFlash(c, PathLogin, msgInvalidCredentials)
			return
		}
		logger := logutil.GetOrDefault(ctx)
		logger.Error().Err(err).Msg("login failed")
		h.renderError(c, web.PageLogin, "Login")
		return
	}

	if err := h.sessions.Authenticate(c, user.ID); err != nil {
		logger := logutil.GetOrDefault(ctx)
		logger.Error().Err(err).Str("user.id", user.ID).Msg("failed to bind session")
		h.renderError(c, web.PageLogin, "Login")
		return
	}

	h.publish(c, audit.Event{Kind: audit.KindLoginSucceeded, LoginName: user.LoginName, UserID: user.ID})
	h.redirectWithFlash(c, PathProtected, msgLoginSucceeded)
}

// SignupForm は GET /signup のハンドラーです。
func (h *Handler) SignupForm(c *gin.Context) {
	c.HTML(http.StatusOK, web.PageSignup, web.Page{
		Title:   "Signup",
		Flashes: h.sessions.Flashes(c),
	})
}

// Signup は POST /signup のハンドラーです。
func (h *Handler) Signup(c *gin.Context) {
	loginName := strings.TrimSpace(c.PostForm("username"))
	displayName := strings.TrimSpace(c.PostForm("name"))
	plaintext := c.PostForm("password")

	page := web.Page{
		Title:    "Signup",
		Name:     displayName,
		Username: loginName,
	}

	if loginName == "" || displayName == "" || plaintext == "" {
		page.Message = msgFieldsRequired
		c.HTML(http.StatusBadRequest, web.PageSignup, page)
		return
	}

	ctx := c.Request.Context()
	user, err := h.service.Register(ctx, loginName, displayName, plaintext)
	if err != nil {
		if errors.Is(err, users.ErrDuplicateAccount) {
			page.Message = msgUserExists
			c.HTML(http.StatusConflict, web.PageSignup, page)
			return
		}
		if errors.Is(err, password.ErrTooLong) {
			page.Message = msgPasswordTooLong
			c.HTML(http.StatusBadRequest, web.PageSignup, page)
			return
		}
		logger := logutil.GetOrDefault(ctx)
		logger.Error().Err(err).Msg("signup failed")
		page.Message = msgInternalError
		c.HTML(http.StatusInternalServerError, web.PageSignup, page)
		return
	}

	h.publish(c, audit.Event{Kind: audit.KindSignup, LoginName: user.LoginName, UserID: user.ID})

	if err := h.sessions.Authenticate(c, user.ID); err != nil {
		err = fmt.Errorf("%w: %v", ErrSessionBinding, err)
		logger := logutil.GetOrDefault(ctx)
		logger.Error().Err(err).Str("user.id", user.ID).Msg("signup session binding failed")
		page.Message = msgSignupFailed
		c.HTML(http.StatusInternalServerError, web.PageSignup, page)
		return
	}

	h.redirectWithFlash(c, PathProtected, fmt.Sprintf(msgWelcome, user.Name))
}

// Logout は GET|POST /logout のハンドラーです。
func (h *Handler) Logout(c *gin.Context) {
	if userID, ok := h.sessions.CurrentUserID(c); ok {
		if user, err := h.service.UserByID(c.Request.Context(), userID); err == nil {
			h.publish(c, audit.Event{Kind: audit.KindLogout, LoginName: user.LoginName, UserID: user.ID})
		}
	}

	if err := h.sessions.Clear(c); err != nil {
		logger := logutil.GetOrDefault(c.Request.Context())
		logger.Error().Err(err).Msg("failed to clear session")
		h.renderError(c, web.PageLogin, "Login")
		return
	}
	h.redirectWithFlash(c, PathLogin, msgLoggedOut)
}

func (h *Handler) redirectWithFlash(c *gin.Context, location, message string) {
	if err := h.sessions.AddFlash(c, message); err != nil {
		logger := logutil.GetOrDefault(c.Request.Context())
		logger.Warn().Err(err).Msg("failed to store flash message")
	}
	c.Redirect(http.StatusFound, location)
}

func (h *Handler) renderError(c *gin.Context, page, title string) {
	c.HTML(http.StatusInternalServerError, page, web.Page{
		Title:   title,
		Message: msgInternalError,
	})
}

func (h *Handler) publish(c *gin.Context, event audit.Event) {
	if h.events == nil {
		return
	}
	event.ClientIP = c.ClientIP()
	event.OccurredAt = time.Now().UTC()
	if err := h.events.Publish(c.Request.Context(), event); err != nil {
		logger := logutil.GetOrDefault(c.Request.Context())
		logger.Warn().Err(err).Str("audit.kind", string(event.Kind)).Msg("failed to publish audit event")
	}
}
