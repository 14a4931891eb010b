// Package identity is the auth boundary: it owns credentials (password
// hashes, provider subjects, reset tokens) and creates the staff profile that
// the session manager later resolves.
package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	credentialstore "github.com/dalemusser/donorhub/internal/app/store/credentials"
	userstore "github.com/dalemusser/donorhub/internal/app/store/users"
	"github.com/dalemusser/donorhub/internal/app/system/inputval"
	"github.com/dalemusser/donorhub/internal/app/system/mailer"
	"github.com/dalemusser/donorhub/internal/app/system/normalize"
	"github.com/dalemusser/donorhub/internal/domain/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailInUse         = errors.New("an account with this email already exists")
	// ErrAccountExistsWithDifferentCredential is returned when a provider
	// sign-in carries an email already bound to another credential.
	ErrAccountExistsWithDifferentCredential = errors.New("an account already exists with this email using a different sign-in method")
	ErrResetTokenInvalid                    = errors.New("this reset link is invalid or has expired")
)

// ValidationError carries one message per offending field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		keys[i] = k + ": " + e.Fields[k]
	}
	return "invalid input: " + strings.Join(keys, "; ")
}

// Credentials is the credential store.
type Credentials interface {
	Create(ctx context.Context, c models.Credential) (models.Credential, error)
	Delete(ctx context.Context, uid string) error
	GetByEmail(ctx context.Context, email string) (models.Credential, error)
	GetByProvider(ctx context.Context, provider, subject string) (models.Credential, error)
	SetResetToken(ctx context.Context, uid, tokenHash string, expires time.Time) error
	ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time) (models.Credential, error)
	SetPasswordHash(ctx context.Context, uid, hash string, at time.Time) error
}

// Profiles is the user profile store.
type Profiles interface {
	Get(ctx context.Context, uid string) (models.User, error)
	Create(ctx context.Context, u models.User) (models.User, error)
	TouchLastLogin(ctx context.Context, uid string, at time.Time) error
}

// Config tunes the service. Zero values get defaults.
type Config struct {
	BcryptCost int           // default bcrypt.DefaultCost
	ResetTTL   time.Duration // default 1h
	SiteName   string        // used in emails
	BaseURL    string        // reset links point at BaseURL + ResetPath
	ResetPath  string        // default "/reset-password"
}

type Service struct {
	creds  Credentials
	users  Profiles
	mail   mailer.Sender
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

func New(creds Credentials, users Profiles, mail mailer.Sender, cfg Config, logger *zap.Logger) *Service {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = time.Hour
	}
	if cfg.SiteName == "" {
		cfg.SiteName = "DonorHub"
	}
	if cfg.ResetPath == "" {
		cfg.ResetPath = "/reset-password"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		creds:  creds,
		users:  users,
		mail:   mail,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SignUpInput is the sign-up form.
type SignUpInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// SignUp creates a password credential and then the profile (role manager).
// The two writes are not atomic; if the profile write fails the credential is
// removed again.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (models.User, error) {
	fields := map[string]string{}
	email := strings.TrimSpace(in.Email)
	if !inputval.IsValidEmail(email) {
		fields["email"] = "Enter a valid email address."
	}
	if problems := inputval.PasswordProblems(in.Password); len(problems) > 0 {
		fields["password"] = "Password must be " + inputval.PasswordRules + "."
	}
	first, last := normalize.Name(in.FirstName), normalize.Name(in.LastName)
	if !inputval.ValidPersonName(first) {
		fields["first_name"] = "First name must be 3-50 characters."
	}
	if !inputval.ValidPersonName(last) {
		fields["last_name"] = "Last name must be 3-50 characters."
	}
	if len(fields) > 0 {
		return models.User{}, &ValidationError{Fields: fields}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cfg.BcryptCost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	cred, err := s.creds.Create(ctx, models.Credential{
		Email:        email,
		Provider:     models.ProviderPassword,
		PasswordHash: string(hash),
	})
	if errors.Is(err, credentialstore.ErrDuplicate) {
		return models.User{}, ErrEmailInUse
	}
	if err != nil {
		return models.User{}, err
	}

	now := s.now()
	u, err := s.users.Create(ctx, models.User{
		ID:        cred.ID,
		Email:     cred.Email,
		FirstName: first,
		LastName:  last,
		Role:      models.RoleManager,
		IsActive:  true,
		CreatedAt: now,
		LastLogin: &now,
	})
	if err != nil {
		if derr := s.creds.Delete(context.WithoutCancel(ctx), cred.ID); derr != nil {
			s.logger.Error("orphaned credential after failed profile create",
				zap.String("uid", cred.ID), zap.Error(derr))
		}
		return models.User{}, fmt.Errorf("create profile: %w", err)
	}
	return u, nil
}

// dummyHash keeps the unknown-email path as slow as a real comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("donorhub-timing-equalizer"), bcrypt.DefaultCost)

// SignIn checks an email and password and returns the credential uid.
func (s *Service) SignIn(ctx context.Context, email, password string) (string, error) {
	cred, err := s.creds.GetByEmail(ctx, email)
	if errors.Is(err, credentialstore.ErrNotFound) || (err == nil && cred.PasswordHash == "") {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}
	s.touch(ctx, cred.ID)
	return cred.ID, nil
}

// Identity is what a provider vouches for after a successful exchange.
type Identity struct {
	Provider  string
	Subject   string
	Email     string
	FirstName string
	LastName  string
}

// SignInWithIdentity signs in through a provider. The first sign-in creates
// the credential and the profile; later ones only update last_login.
func (s *Service) SignInWithIdentity(ctx context.Context, id Identity) (uid string, created bool, err error) {
	if id.Provider == "" || id.Subject == "" {
		return "", false, errors.New("identity: provider and subject required")
	}

	cred, err := s.creds.GetByProvider(ctx, id.Provider, id.Subject)
	switch {
	case err == nil:
		if _, perr := s.users.Get(ctx, cred.ID); errors.Is(perr, userstore.ErrNotFound) {
			// A previous first sign-in stopped between the two writes.
			if _, err := s.createProfile(ctx, cred.ID, id); err != nil {
				return "", false, err
			}
			return cred.ID, true, nil
		}
		s.touch(ctx, cred.ID)
		return cred.ID, false, nil
	case !errors.Is(err, credentialstore.ErrNotFound):
		return "", false, err
	}

	if id.Email != "" {
		if _, err := s.creds.GetByEmail(ctx, id.Email); err == nil {
			return "", false, ErrAccountExistsWithDifferentCredential
		} else if !errors.Is(err, credentialstore.ErrNotFound) {
			return "", false, err
		}
	}

	cred, err = s.creds.Create(ctx, models.Credential{
		Email:           id.Email,
		Provider:        id.Provider,
		ProviderSubject: id.Subject,
	})
	if errors.Is(err, credentialstore.ErrDuplicate) {
		return "", false, ErrAccountExistsWithDifferentCredential
	}
	if err != nil {
		return "", false, err
	}
	if _, err := s.createProfile(ctx, cred.ID, id); err != nil {
		return "", false, err
	}
	return cred.ID, true, nil
}

func (s *Service) createProfile(ctx context.Context, uid string, id Identity) (models.User, error) {
	now := s.now()
	u, err := s.users.Create(ctx, models.User{
		ID:        uid,
		Email:     id.Email,
		FirstName: id.FirstName,
		LastName:  id.LastName,
		Role:      models.RoleManager,
		IsActive:  true,
		CreatedAt: now,
		LastLogin: &now,
	})
	if errors.Is(err, userstore.ErrExists) {
		s.touch(ctx, uid)
		return s.users.Get(ctx, uid)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("create profile: %w", err)
	}
	return u, nil
}

func (s *Service) touch(ctx context.Context, uid string) {
	if err := s.users.TouchLastLogin(ctx, uid, s.now()); err != nil && !errors.Is(err, userstore.ErrNotFound) {
		s.logger.Warn("update last_login failed", zap.String("uid", uid), zap.Error(err))
	}
}

// SendPasswordReset emails a one-time reset link when email belongs to a
// password credential. found reports whether a link was sent; callers must
// not reveal it to the client.
func (s *Service) SendPasswordReset(ctx context.Context, email string) (found bool, err error) {
	cred, err := s.creds.GetByEmail(ctx, email)
	if errors.Is(err, credentialstore.ErrNotFound) || (err == nil && cred.Provider != models.ProviderPassword) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	token, err := newToken()
	if err != nil {
		return false, err
	}
	if err := s.creds.SetResetToken(ctx, cred.ID, hashToken(token), s.now().Add(s.cfg.ResetTTL)); err != nil {
		return false, err
	}

	link := strings.TrimRight(s.cfg.BaseURL, "/") + s.cfg.ResetPath + "?token=" + url.QueryEscape(token)
	msg := mailer.BuildPasswordResetEmail(cred.Email, mailer.PasswordResetData{
		SiteName:  s.cfg.SiteName,
		ResetLink: link,
		ExpiresIn: humanDuration(s.cfg.ResetTTL),
	})
	if s.mail == nil {
		return true, errors.New("identity: no mailer configured")
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		return true, err
	}
	return true, nil
}

// ConfirmPasswordReset spends a reset token and sets a new password. It
// returns the uid whose password changed.
func (s *Service) ConfirmPasswordReset(ctx context.Context, token, password string) (string, error) {
	if problems := inputval.PasswordProblems(password); len(problems) > 0 {
		return "", &ValidationError{Fields: map[string]string{
			"password": "Password must be " + inputval.PasswordRules + ".",
		}}
	}
	if token == "" {
		return "", ErrResetTokenInvalid
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	now := s.now()
	cred, err := s.creds.ConsumeResetToken(ctx, hashToken(token), now)
	if errors.Is(err, credentialstore.ErrNotFound) {
		return "", ErrResetTokenInvalid
	}
	if err != nil {
		return "", err
	}
	if err := s.creds.SetPasswordHash(ctx, cred.ID, string(hash), now); err != nil {
		return "", err
	}
	return cred.ID, nil
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func humanDuration(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "1 hour"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", d/time.Minute)
	}
	return d.String()
}
