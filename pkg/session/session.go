package session

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/zarni99/brutepedro/pkg/config"
	"github.com/zarni99/brutepedro/pkg/logger"
	"golang.org/x/net/publicsuffix"
)

const maxBodySize = 4 << 20

var ErrUnavailable = errors.New("session unavailable")

// Session is one cookie context plus the number of credential attempts it
// has absorbed. It is replaced, never reset in place.
type Session struct {
	Client   *http.Client
	Jar      http.CookieJar
	Attempts int
}

// LoginForm is a snapshot of the login form taken right before an attempt.
type LoginForm struct {
	PostURL string
	Fields  map[string]string
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

type Manager struct {
	cfg       config.Config
	pageURL   *url.URL
	postURL   string
	transport http.RoundTripper
}

// NewManager validates the target URLs. A nil transport gets a default one
// honouring session.insecure_skip_verify.
func NewManager(cfg config.Config, transport http.RoundTripper) (*Manager, error) {
	pageURL, err := url.Parse(cfg.Target.LoginPageURL)
	if err != nil || !pageURL.IsAbs() {
		return nil, fmt.Errorf("invalid login page URL %q", cfg.Target.LoginPageURL)
	}

	postURL := cfg.Target.LoginPostURL
	if postURL == "" {
		postURL = pageURL.String()
	} else {
		parsed, err := url.Parse(postURL)
		if err != nil {
			return nil, fmt.Errorf("invalid login post URL: %w", err)
		}
		postURL = pageURL.ResolveReference(parsed).String()
	}

	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.Session.InsecureSkipVerify,
			},
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		}
	}

	return &Manager{
		cfg:       cfg,
		pageURL:   pageURL,
		postURL:   postURL,
		transport: transport,
	}, nil
}

func (m *Manager) Threshold() int {
	return m.cfg.Session.MaxAttemptsPerSession
}

func (m *Manager) LoginPageURL() string {
	return m.pageURL.String()
}

// Create opens a fresh cookie context and checks the login page answers 200.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("%w: cookie jar: %v", ErrUnavailable, err)
	}

	sess := &Session{
		Client: &http.Client{
			Transport: m.transport,
			Jar:       jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		Jar: jar,
	}

	resp, err := m.get(ctx, sess, m.cfg.ReachabilityTimeout())
	if err != nil {
		logger.Error("Connection error: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		logger.Error("Server returned status: %d", resp.StatusCode)
		return nil, fmt.Errorf("%w: login page returned status %d", ErrUnavailable, resp.StatusCode)
	}

	logger.Debug("Session created and initial cookies fetched.")
	return sess, nil
}

// Refresh is the identity while the session has budget left. A nil session or
// an exhausted one is recreated; on failure the returned session is nil.
func (m *Manager) Refresh(ctx context.Context, sess *Session) (*Session, error) {
	if sess != nil && sess.Attempts < m.Threshold() {
		return sess, nil
	}

	logger.Debug("Refreshing session...")
	return m.Create(ctx)
}

// ForceRefresh recreates the session regardless of its remaining budget.
func (m *Manager) ForceRefresh(ctx context.Context, sess *Session) (*Session, error) {
	if sess != nil {
		sess.Attempts = m.Threshold()
	}
	return m.Refresh(ctx, sess)
}

func (m *Manager) FetchLoginForm(ctx context.Context, sess *Session) (LoginForm, error) {
	form := LoginForm{PostURL: m.postURL, Fields: map[string]string{}}

	resp, err := m.get(ctx, sess, m.cfg.RequestTimeout())
	if err != nil {
		return form, fmt.Errorf("failed to fetch login form: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		logger.Debug("Login page returned status %d while fetching form", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return form, fmt.Errorf("failed to parse login page: %w", err)
	}

	sel := doc.Find("form").First()
	if sel.Length() == 0 {
		logger.Debug("No form on login page, using %s", m.postURL)
		return form, nil
	}

	if action, ok := sel.Attr("action"); ok && strings.TrimSpace(action) != "" {
		if ref, err := url.Parse(strings.TrimSpace(action)); err == nil {
			form.PostURL = m.pageURL.ResolveReference(ref).String()
		}
	}

	sel.Find("input").Each(func(_ int, input *goquery.Selection) {
		name, _ := input.Attr("name")
		if name == "" {
			return
		}
		value, _ := input.Attr("value")
		form.Fields[name] = value
	})

	return form, nil
}

func (m *Manager) ExtractCSRFToken(fields map[string]string) (string, bool) {
	return ExtractCSRFToken(fields, m.cfg.Form.CSRFParam, m.cfg.Form.CSRFAlternatives)
}

// ExtractCSRFToken tries primary first, then each alternative in order.
func ExtractCSRFToken(fields map[string]string, primary string, alternatives []string) (string, bool) {
	if value, ok := fields[primary]; ok {
		return value, true
	}
	for _, alt := range alternatives {
		if value, ok := fields[alt]; ok {
			return value, true
		}
	}
	return "", false
}

// BuildPayload always sends the token under the configured primary name,
// whichever field it was found in.
func (m *Manager) BuildPayload(form LoginForm, username, password string) url.Values {
	payload := url.Values{}
	payload.Set(m.cfg.Form.UsernameParam, username)
	payload.Set(m.cfg.Form.PasswordParam, password)

	redirect, ok := form.Fields[m.cfg.Form.RedirectParam]
	if !ok {
		redirect = m.cfg.Target.RedirectURL
	}
	payload.Set(m.cfg.Form.RedirectParam, redirect)

	if token, ok := m.ExtractCSRFToken(form.Fields); ok && token != "" {
		payload.Set(m.cfg.Form.CSRFParam, token)
	}

	return payload
}

// Submit posts the payload. Cookies set by the response land in the
// session's jar.
func (m *Manager) Submit(ctx context.Context, sess *Session, postURL string, payload url.Values) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postURL, strings.NewReader(payload.Encode()))
	if err != nil {
		return nil, err
	}

	m.applyHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("Referer", m.pageURL.String())
	req.Header.Set("Origin", m.pageURL.Scheme+"://"+m.pageURL.Host)

	return m.do(sess, req)
}

func (m *Manager) get(ctx context.Context, sess *Session, timeout time.Duration) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.pageURL.String(), nil)
	if err != nil {
		return nil, err
	}
	m.applyHeaders(req)

	return m.do(sess, req)
}

func (m *Manager) do(sess *Session, req *http.Request) (*Response, error) {
	if sess == nil || sess.Client == nil {
		return nil, ErrUnavailable
	}

	resp, err := sess.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (m *Manager) applyHeaders(req *http.Request) {
	ua := m.cfg.Session.UserAgent
	if ua == "" {
		ua = config.DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)

	for key, value := range m.cfg.Session.Headers {
		req.Header.Set(key, value)
	}
}
