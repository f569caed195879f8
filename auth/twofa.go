package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ft-transcendence/server/cache"
	"github.com/ft-transcendence/server/mailer"
	"github.com/ft-transcendence/server/model"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrCodeExpired = errors.New("code expired or never sent")
	ErrCodeInvalid = errors.New("invalid code")
)

// TwoFA issues and checks short-lived email sign-in codes. Only the
// bcrypt hash of a code is kept, in the cache, under the code's TTL.
type TwoFA struct {
	cache  cache.Cache
	sender mailer.Sender
	ttl    time.Duration
}

func NewTwoFA(c cache.Cache, sender mailer.Sender, ttl time.Duration) *TwoFA {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TwoFA{cache: c, sender: sender, ttl: ttl}
}

func codeKey(userID int64) string {
	return "tfa:" + strconv.FormatInt(userID, 10)
}

// SendCode generates a six-digit code, stores its hash and emails it to
// the user's 2FA address (falling back to the account email).
func (t *TwoFA) SendCode(ctx context.Context, u *model.User) error {
	code, err := randomCode()
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash code: %w", err)
	}
	if err := t.cache.Set(ctx, codeKey(u.ID), string(hash), t.ttl); err != nil {
		return fmt.Errorf("store code: %w", err)
	}

	to := u.TFAEmail
	if to == "" {
		to = u.Email
	}
	return t.sender.Send2FACode(to, u.Nick, code)
}

// Validate checks a submitted code. The stored hash is consumed on
// success so a code cannot be replayed.
func (t *TwoFA) Validate(ctx context.Context, userID int64, code string) error {
	hash, err := t.cache.Get(ctx, codeKey(userID))
	if err != nil {
		return ErrCodeExpired
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) != nil {
		return ErrCodeInvalid
	}
	_ = t.cache.Del(ctx, codeKey(userID))
	return nil
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
