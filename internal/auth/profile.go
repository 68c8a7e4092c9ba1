package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const (
	ProfileCookieName = "qldc_profile"
	ProfileTTL        = 365 * 24 * time.Hour
)

// ProfileCodec signs and verifies client profile ids carried in a cookie.
// With an empty secret ids travel unsigned.
type ProfileCodec struct {
	secret []byte
}

func NewProfileCodec(secret []byte) ProfileCodec {
	secretCopy := make([]byte, len(secret))
	copy(secretCopy, secret)
	return ProfileCodec{secret: secretCopy}
}

func (c ProfileCodec) Encode(profileID string) string {
	if len(c.secret) == 0 {
		return profileID
	}

	mac := hmac.New(sha256.New, c.secret)
	_, _ = mac.Write([]byte(profileID))
	sig := mac.Sum(nil)

	return profileID + "." + base64.RawURLEncoding.EncodeToString(sig)
}

func (c ProfileCodec) Decode(cookieValue string) (string, bool) {
	var id string
	if len(c.secret) == 0 {
		id = cookieValue
	} else {
		var sigB64 string
		var ok bool
		id, sigB64, ok = strings.Cut(cookieValue, ".")
		if !ok || id == "" || sigB64 == "" {
			return "", false
		}

		sig, err := base64.RawURLEncoding.DecodeString(sigB64)
		if err != nil || len(sig) != sha256.Size {
			return "", false
		}

		mac := hmac.New(sha256.New, c.secret)
		_, _ = mac.Write([]byte(id))
		expected := mac.Sum(nil)
		if subtle.ConstantTimeCompare(sig, expected) != 1 {
			return "", false
		}
	}

	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

func NewProfileID() string {
	return uuid.NewString()
}

// NamespaceFor maps a profile id to the store namespace holding its throttle
// entries. Raw ids never reach the store.
func NamespaceFor(profileID string) string {
	sum := blake2b.Sum256([]byte(profileID))
	return "profile:" + hex.EncodeToString(sum[:])
}

func SetProfileCookie(w http.ResponseWriter, cookieValue string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     ProfileCookieName,
		Value:    cookieValue,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
	})
}

type profileCtxKey struct{}

// EnsureProfile attaches a client profile id to every request, minting one
// and setting the cookie when the request carries none or a forged one.
func EnsureProfile(codec ProfileCodec, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if c, err := r.Cookie(ProfileCookieName); err == nil && c.Value != "" {
				id, _ = codec.Decode(c.Value)
			}
			if id == "" {
				id = NewProfileID()
				SetProfileCookie(w, codec.Encode(id), ProfileTTL, secure)
			}
			next.ServeHTTP(w, r.WithContext(WithProfileID(r.Context(), id)))
		})
	}
}

func WithProfileID(ctx context.Context, profileID string) context.Context {
	return context.WithValue(ctx, profileCtxKey{}, profileID)
}

func ProfileID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(profileCtxKey{}).(string)
	return id, ok && id != ""
}
