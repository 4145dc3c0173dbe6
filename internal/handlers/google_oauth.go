package handlers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"blogsphere/internal/apperrors"
	"blogsphere/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const defaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleAuth Google 登录：前端传 access_token，或走浏览器跳转流程
type GoogleAuth struct {
	config      *oauth2.Config
	users       *services.UserService
	userInfoURL string
}

// NewGoogleAuth clientID 为空时只支持 access_token 方式
func NewGoogleAuth(clientID, clientSecret, siteURL string, users *services.UserService) *GoogleAuth {
	g := &GoogleAuth{users: users, userInfoURL: defaultUserInfoURL}
	if clientID != "" {
		g.config = &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  siteURL + "/auth/google/callback",
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		}
	}
	return g
}

// GoogleUserInfo Google 用户信息结构
type GoogleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// generateStateToken 生成随机 state token
func generateStateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// fetchUserInfo 用 access token 调用 userinfo 接口
func (g *GoogleAuth) fetchUserInfo(ctx context.Context, token *oauth2.Token) (*GoogleUserInfo, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}
	var info GoogleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (g *GoogleAuth) signIn(c *gin.Context, token *oauth2.Token) {
	info, err := g.fetchUserInfo(c.Request.Context(), token)
	if err != nil {
		respondError(c, apperrors.New(apperrors.KindInternal, "Failed to authenticate you with google. Try with some other google account"))
		return
	}
	result, err := g.users.GoogleSignIn(c.Request.Context(), services.GoogleProfile{
		Email:   info.Email,
		Name:    info.Name,
		Picture: info.Picture,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, result)
}

type googleTokenRequest struct {
	AccessToken string `json:"access_token"`
}

// TokenSignIn POST /google-auth
func (g *GoogleAuth) TokenSignIn(c *gin.Context) {
	var req googleTokenRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.AccessToken == "" {
		respondError(c, apperrors.Validation("access_token is required"))
		return
	}
	g.signIn(c, &oauth2.Token{AccessToken: req.AccessToken, TokenType: "Bearer"})
}

// Login 发起 Google OAuth 跳转
func (g *GoogleAuth) Login(c *gin.Context) {
	if g.config == nil {
		respondError(c, apperrors.New(apperrors.KindInternal, "Google sign-in is not configured"))
		return
	}
	state, err := generateStateToken()
	if err != nil {
		respondError(c, err)
		return
	}

	// 将 state 存储到 session 中,用于验证回调
	session := sessions.Default(c)
	session.Set("oauth_state", state)
	if err := session.Save(); err != nil {
		respondError(c, err)
		return
	}

	c.Redirect(http.StatusTemporaryRedirect, g.config.AuthCodeURL(state))
}

// Callback 处理 Google OAuth 回调，返回与 /google-auth 相同的结构
func (g *GoogleAuth) Callback(c *gin.Context) {
	if g.config == nil {
		respondError(c, apperrors.New(apperrors.KindInternal, "Google sign-in is not configured"))
		return
	}
	session := sessions.Default(c)
	savedState, _ := session.Get("oauth_state").(string)
	if savedState == "" || c.Query("state") != savedState {
		respondError(c, apperrors.Validation("Invalid oauth state"))
		return
	}
	session.Delete("oauth_state")
	_ = session.Save()

	code := c.Query("code")
	if code == "" {
		respondError(c, apperrors.Validation("Missing authorization code"))
		return
	}
	token, err := g.config.Exchange(c.Request.Context(), code)
	if err != nil {
		respondError(c, apperrors.Credentials("Failed to exchange google authorization code"))
		return
	}
	g.signIn(c, token)
}
