package e2etest

import (
	"github.com/myrjola/vera/internal/errors"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
)

// visitorCookieJar holds the visitor session cookie. It does not enforce the Secure flag so that the session
// survives plain HTTP test servers.
type visitorCookieJar struct {
	mu  sync.Mutex
	jar *cookiejar.Jar
}

func newVisitorCookieJar() (*visitorCookieJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "new cookie jar")
	}
	return &visitorCookieJar{mu: sync.Mutex{}, jar: jar}, nil
}

func (v *visitorCookieJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	for _, cookie := range cookies {
		cookie.Secure = false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.jar.SetCookies(u, cookies)
}

func (v *visitorCookieJar) Cookies(u *url.URL) []*http.Cookie {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.jar.Cookies(u)
}

// reset forgets every cookie, turning the client into a new visitor.
func (v *visitorCookieJar) reset() error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return errors.Wrap(err, "new cookie jar")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.jar = jar
	return nil
}
