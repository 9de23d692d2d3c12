package photos

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/humanwheel-leaderboard/internal/domain"
)

// Signer issues and checks time-limited photo URLs
type Signer struct {
	secret  []byte
	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

// NewSigner creates a signer. baseURL is the public root of the service.
// An empty secret is replaced by a random key, so URLs signed by one
// process do not verify in another.
func NewSigner(secret, baseURL string, ttl time.Duration) *Signer {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		rand.Read(key)
	}
	return &Signer{
		secret:  key,
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     ttl,
		now:     time.Now,
	}
}

// URL returns a signed URL for name valid for the signer's TTL
func (s *Signer) URL(name string) string {
	expires := s.now().Add(s.ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", s.sign(name, expires))
	return fmt.Sprintf("%s/photos/%s?%s", s.baseURL, url.PathEscape(name), q.Encode())
}

// Verify checks the expires and signature query values for name
func (s *Signer) Verify(name, expires, signature string) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return domain.ErrInvalidSignature
	}
	if s.now().Unix() > exp {
		return domain.ErrInvalidSignature
	}
	want := s.sign(name, exp)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

func (s *Signer) sign(name string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(name))
	mac.Write([]byte{'|'})
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
