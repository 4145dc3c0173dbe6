package services

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"blogsphere/internal/apperrors"
	"blogsphere/internal/models"
	"blogsphere/internal/repository"
	"blogsphere/internal/utils"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	maxBioLength    = 200
	userSearchLimit = 50
)

var (
	validate = newValidator()

	digitRe = regexp.MustCompile(`[0-9]`)
	lowerRe = regexp.MustCompile(`[a-z]`)
	upperRe = regexp.MustCompile(`[A-Z]`)
)

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return ValidPassword(fl.Field().String())
	})
	return v
}

// ValidPassword 6-20 位，至少包含一个数字、一个小写字母和一个大写字母
func ValidPassword(p string) bool {
	n := utf8.RuneCountInString(p)
	return n >= 6 && n <= 20 && digitRe.MatchString(p) && lowerRe.MatchString(p) && upperRe.MatchString(p)
}

type signUpForm struct {
	Fullname string `validate:"min=3"`
	Email    string `validate:"required,email"`
	Password string `validate:"password"`
}

// firstViolation 把 validator 的第一个错误转成用户可读的信息
func firstViolation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	switch verrs[0].Field() {
	case "Fullname":
		return "Fullname must be at least 3 letters long"
	case "Email":
		if verrs[0].Tag() == "required" {
			return "Enter Email"
		}
		return "Email is invalid"
	case "Password":
		return "Password should be 6 to 20 characters long with a numeric, 1 lowercase and 1 uppercase letters"
	}
	return verrs[0].Error()
}

// AuthResult 登录成功后返回给前端的数据
type AuthResult struct {
	AccessToken string `json:"access_token"`
	ProfileImg  string `json:"profile_img"`
	Username    string `json:"username"`
	Fullname    string `json:"fullname"`
}

// GoogleProfile 从 Google userinfo 接口取得的资料
type GoogleProfile struct {
	Email   string
	Name    string
	Picture string
}

type UserService struct {
	store  repository.Store
	tokens *TokenService
	log    *zap.Logger
}

func NewUserService(store repository.Store, tokens *TokenService, log *zap.Logger) *UserService {
	return &UserService{store: store, tokens: tokens, log: log}
}

func (s *UserService) authResult(user *models.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		AccessToken: token,
		ProfileImg:  user.PersonalInfo.ProfileImg,
		Username:    user.PersonalInfo.Username,
		Fullname:    user.PersonalInfo.Fullname,
	}, nil
}

// generateUsername 邮箱前缀被占用时追加随机后缀
func (s *UserService) generateUsername(ctx context.Context, email string) (string, error) {
	base := utils.UsernameFromEmail(email)
	username := base
	for i := 0; i < 5; i++ {
		_, err := s.store.Users().FindByUsername(ctx, username)
		if errors.Is(err, repository.ErrNotFound) {
			return username, nil
		}
		if err != nil {
			return "", apperrors.Store(err)
		}
		username = base + utils.RandomSuffix(5)
	}
	return base + utils.RandomSuffix(12), nil
}

func newUser(fullname, email, username, passwordHash, profileImg string, google bool) *models.User {
	now := time.Now()
	return &models.User{
		ID: uuid.NewString(),
		PersonalInfo: models.PersonalInfo{
			Fullname:   fullname,
			Email:      email,
			Password:   passwordHash,
			Username:   username,
			ProfileImg: profileImg,
		},
		GoogleAuth: google,
		Blogs:      pq.StringArray{},
		JoinedAt:   now,
		UpdatedAt:  now,
	}
}

// SignUp 邮箱注册
func (s *UserService) SignUp(ctx context.Context, fullname, email, password string) (*AuthResult, error) {
	form := signUpForm{Fullname: strings.TrimSpace(fullname), Email: strings.ToLower(strings.TrimSpace(email)), Password: password}
	if err := validate.Struct(form); err != nil {
		return nil, apperrors.Credentials(firstViolation(err))
	}

	_, err := s.store.Users().FindByEmail(ctx, form.Email)
	if err == nil {
		return nil, apperrors.Conflict("Email already exists")
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Store(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	username, err := s.generateUsername(ctx, form.Email)
	if err != nil {
		return nil, err
	}

	user := newUser(form.Fullname, form.Email, username, string(hash), utils.RandomProfileImg(), false)
	if err := s.store.Users().Create(ctx, user); err != nil {
		return nil, apperrors.Store(err)
	}
	s.log.Info("user signed up", zap.String("user", user.ID), zap.String("username", username))
	return s.authResult(user)
}

// SignIn 邮箱密码登录。Google 注册的账号只能用 Google 登录。
func (s *UserService) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.store.Users().FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Credentials("Email not found")
	}
	if err != nil {
		return nil, apperrors.Store(err)
	}
	if user.GoogleAuth {
		return nil, apperrors.Credentials("Account was created using Google. Please use Google login")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PersonalInfo.Password), []byte(password)) != nil {
		return nil, apperrors.Credentials("Incorrect password")
	}
	return s.authResult(user)
}

// GoogleSignIn 首次登录时创建账号；邮箱已用密码注册的账号不能通过 Google 登录
func (s *UserService) GoogleSignIn(ctx context.Context, profile GoogleProfile) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(profile.Email))
	if email == "" {
		return nil, apperrors.Credentials("Google account has no email")
	}
	user, err := s.store.Users().FindByEmail(ctx, email)
	if err == nil {
		if !user.GoogleAuth {
			return nil, apperrors.Credentials("This email was signed up without google. Please log in with password to access the account")
		}
		return s.authResult(user)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Store(err)
	}

	username, err := s.generateUsername(ctx, email)
	if err != nil {
		return nil, err
	}
	// 换成更高分辨率的头像
	picture := strings.Replace(profile.Picture, "s96-c", "s384-c", 1)
	if picture == "" {
		picture = utils.RandomProfileImg()
	}
	fullname := strings.TrimSpace(profile.Name)
	if fullname == "" {
		fullname = username
	}
	user = newUser(fullname, email, username, "", picture, true)
	if err := s.store.Users().Create(ctx, user); err != nil {
		return nil, apperrors.Store(err)
	}
	s.log.Info("user signed up with google", zap.String("user", user.ID))
	return s.authResult(user)
}

// ChangePassword 修改密码，Google 账号不支持
func (s *UserService) ChangePassword(ctx context.Context, userID, current, next string) error {
	if !ValidPassword(current) || !ValidPassword(next) {
		return apperrors.Credentials("Password should be 6 to 20 characters long with a numeric, 1 lowercase and 1 uppercase letters")
	}
	user, err := s.store.Users().FindByID(ctx, userID)
	if err != nil {
		return lookupErr(err, "User not found")
	}
	if user.GoogleAuth {
		return apperrors.Credentials("You can't change account's password because you logged in through google")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PersonalInfo.Password), []byte(current)) != nil {
		return apperrors.Credentials("Incorrect current password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.PersonalInfo.Password = string(hash)
	user.UpdatedAt = time.Now()
	if err := s.store.Users().Update(ctx, user); err != nil {
		return apperrors.Store(err)
	}
	return nil
}

// GetProfile 公开资料，不含密码
func (s *UserService) GetProfile(ctx context.Context, username string) (*models.User, error) {
	user, err := s.store.Users().FindByUsername(ctx, username)
	if err != nil {
		return nil, lookupErr(err, "User not found")
	}
	user.PersonalInfo.Password = ""
	return user, nil
}

// SearchUsers 按用户名模糊搜索
func (s *UserService) SearchUsers(ctx context.Context, query string) ([]models.UserSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.UserSummary{}, nil
	}
	users, err := s.store.Users().Search(ctx, query, userSearchLimit)
	if err != nil {
		return nil, apperrors.Store(err)
	}
	out := make([]models.UserSummary, 0, len(users))
	for i := range users {
		out = append(out, users[i].Summary())
	}
	return out, nil
}

// UpdateProfileImg 更新头像地址
func (s *UserService) UpdateProfileImg(ctx context.Context, userID, imgURL string) (string, error) {
	if !isHTTPURL(imgURL) {
		return "", apperrors.Validation("Profile image must be a valid url")
	}
	user, err := s.store.Users().FindByID(ctx, userID)
	if err != nil {
		return "", lookupErr(err, "User not found")
	}
	user.PersonalInfo.ProfileImg = imgURL
	user.UpdatedAt = time.Now()
	if err := s.store.Users().Update(ctx, user); err != nil {
		return "", apperrors.Store(err)
	}
	return imgURL, nil
}

type ProfileUpdate struct {
	Username    string
	Bio         string
	SocialLinks models.SocialLinks
}

// UpdateProfile 更新用户名、简介和社交链接，返回新的用户名
func (s *UserService) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (string, error) {
	username := strings.TrimSpace(in.Username)
	if utf8.RuneCountInString(username) < 3 {
		return "", apperrors.Validation("Username should be at least 3 letters long")
	}
	if utf8.RuneCountInString(in.Bio) > maxBioLength {
		return "", apperrors.Validation("Bio should not be more than %d characters", maxBioLength)
	}
	for platform, link := range in.SocialLinks.AsMap() {
		if link == "" {
			continue
		}
		if !validSocialLink(platform, link) {
			return "", apperrors.Validation("%s link is invalid. You must enter a full link", platform)
		}
	}

	user, err := s.store.Users().FindByID(ctx, userID)
	if err != nil {
		return "", lookupErr(err, "User not found")
	}
	if username != user.PersonalInfo.Username {
		_, err := s.store.Users().FindByUsername(ctx, username)
		if err == nil {
			return "", apperrors.Conflict("Username is already taken")
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return "", apperrors.Store(err)
		}
	}

	user.PersonalInfo.Username = username
	user.PersonalInfo.Bio = in.Bio
	user.SocialLinks = in.SocialLinks
	user.UpdatedAt = time.Now()
	if err := s.store.Users().Update(ctx, user); err != nil {
		return "", apperrors.Store(err)
	}
	return username, nil
}

// validSocialLink 链接必须是 http(s)，且除 website 外域名要包含平台名
func validSocialLink(platform, link string) bool {
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	if platform == "website" {
		return true
	}
	host := strings.ToLower(u.Hostname())
	if platform == "twitter" && (strings.Contains(host, "x.com") || strings.Contains(host, "twitter.com")) {
		return true
	}
	return strings.Contains(host, platform+".com")
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
