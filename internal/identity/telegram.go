package identity

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"ekh_mining/internal/domain"
)

const (
	initDataMaxAge  = time.Hour
	initDataMaxSkew = 5 * time.Minute
)

type webAppUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// TelegramVerifier accepts Telegram WebApp init data as the token.
// The user id becomes the decimal Telegram id.
type TelegramVerifier struct {
	secret []byte
	now    func() time.Time
}

func NewTelegramVerifier(botToken string) (*TelegramVerifier, error) {
	if botToken == "" {
		return nil, errors.New("telegram bot token is empty")
	}
	// secret_key = HMAC_SHA256("WebAppData", bot_token)
	m := hmac.New(sha256.New, []byte("WebAppData"))
	m.Write([]byte(botToken))
	return &TelegramVerifier{secret: m.Sum(nil), now: time.Now}, nil
}

func (v *TelegramVerifier) Verify(_ context.Context, initData string) (*domain.Identity, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	provided, err := hex.DecodeString(values.Get("hash"))
	if err != nil || len(provided) == 0 {
		return nil, fmt.Errorf("%w: hash missing", ErrUnauthenticated)
	}
	values.Del("hash")
	if !hmac.Equal(v.sign(values), provided) {
		return nil, fmt.Errorf("%w: hash mismatch", ErrUnauthenticated)
	}

	// защита от replay: auth_date не старше часа
	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: auth_date missing", ErrUnauthenticated)
	}
	age := v.now().Sub(time.Unix(authDate, 0))
	if age > initDataMaxAge || age < -initDataMaxSkew {
		return nil, fmt.Errorf("%w: init data expired", ErrUnauthenticated)
	}

	var user webAppUser
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil || user.ID == 0 {
		return nil, fmt.Errorf("%w: user missing", ErrUnauthenticated)
	}

	name := user.Username
	if name == "" {
		name = user.FirstName
	}
	return &domain.Identity{ID: strconv.FormatInt(user.ID, 10), Name: name}, nil
}

// sign hashes the sorted "key=value" lines of values.
func (v *TelegramVerifier) sign(values url.Values) []byte {
	lines := make([]string, 0, len(values))
	for k, vs := range values {
		lines = append(lines, k+"="+strings.Join(vs, ""))
	}
	sort.Strings(lines)

	m := hmac.New(sha256.New, v.secret)
	m.Write([]byte(strings.Join(lines, "\n")))
	return m.Sum(nil)
}
