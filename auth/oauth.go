package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ft-transcendence/server/config"
	"github.com/ft-transcendence/server/model"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// Profile is the subset of the identity provider's "me" response that
// we keep.
type Profile struct {
	Email     string `json:"email"`
	Login     string `json:"login"`
	FirstName string `json:"first_name"`
	FullName  string `json:"usual_full_name"`
	Image     struct {
		Link string `json:"link"`
	} `json:"image"`
}

// OAuth wraps the authorization-code flow against the intra-style
// identity provider and the profile fetch that follows it.
type OAuth struct {
	conf          *oauth2.Config
	meURL         string
	db            *gorm.DB
	defaultAvatar string
}

func NewOAuth(cfg config.OAuthConfig, db *gorm.DB, defaultAvatar string) *OAuth {
	return &OAuth{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"public"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		meURL:         cfg.MeURL,
		db:            db,
		defaultAvatar: defaultAvatar,
	}
}

// AuthCodeURL returns the provider sign-in URL for the given CSRF state.
func (o *OAuth) AuthCodeURL(state string) string {
	return o.conf.AuthCodeURL(state)
}

// Exchange trades the callback code for an access token.
func (o *OAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := o.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("oauth exchange: %w", err)
	}
	return tok, nil
}

// FetchProfile loads the signed-in identity from the provider.
func (o *OAuth) FetchProfile(ctx context.Context, tok *oauth2.Token) (*Profile, error) {
	client := o.conf.Client(ctx, tok)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.meURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch profile: provider returned %d", resp.StatusCode)
	}
	var p Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if p.Email == "" || p.Login == "" {
		return nil, errors.New("provider profile missing email or login")
	}
	return &p, nil
}

// Upsert finds or creates the local user for a provider profile. The
// first sign-in creates the record; a taken nickname gets a numeric
// suffix so the unique index holds.
func (o *OAuth) Upsert(ctx context.Context, p *Profile) (*model.User, bool, error) {
	var u model.User
	err := o.db.WithContext(ctx).Where("email = ?", p.Email).First(&u).Error
	if err == nil {
		return &u, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("lookup user: %w", err)
	}

	nick, err := o.freeNick(ctx, p.Login)
	if err != nil {
		return nil, false, err
	}
	avatar := p.Image.Link
	if avatar == "" {
		avatar = o.defaultAvatar
	}
	u = model.User{
		Email:     p.Email,
		Nick:      nick,
		FirstName: p.FirstName,
		FullName:  p.FullName,
		AvatarURL: avatar,
		Matches:   "0",
		Wins:      "0",
		Losses:    "0",
	}
	if err := o.db.WithContext(ctx).Create(&u).Error; err != nil {
		return nil, false, fmt.Errorf("create user: %w", err)
	}
	return &u, true, nil
}

func (o *OAuth) freeNick(ctx context.Context, login string) (string, error) {
	login = strings.TrimSpace(login)
	for i := 0; i < 100; i++ {
		candidate := login
		if i > 0 {
			candidate = fmt.Sprintf("%s%d", login, i)
		}
		var n int64
		if err := o.db.WithContext(ctx).Model(&model.User{}).
			Where("nick = ?", candidate).Count(&n).Error; err != nil {
			return "", fmt.Errorf("nick lookup: %w", err)
		}
		if n == 0 {
			return candidate, nil
		}
	}
	return "", errors.New("no free nickname variant")
}
