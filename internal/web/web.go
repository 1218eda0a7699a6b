// Package web は画面テンプレートを提供します。
package web

import (
	"embed"
	"html/template"

	"github.com/yourusername/session-gate/internal/users"
)

//go:embed templates/*.html
var templateFS embed.FS

// テンプレート名
const (
	PageProtected = "index1.html"
	PageLogin     = "login.html"
	PageSignup    = "signup.html"
)

// Page はテンプレートに渡す値です。
type Page struct {
	Title   string
	Flashes []string
	Message string
	User    *users.User

	// サインアップ失敗時に入力を戻すための値（パスワードは戻さない）
	Name     string
	Username string
}

// Templates は埋め込みテンプレートを読み込みます。gin.Engine.SetHTMLTemplate に渡して使います。
func Templates() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/*.html")
}
