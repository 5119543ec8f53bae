package check

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zarni99/brutepedro/pkg/config"
	"github.com/zarni99/brutepedro/pkg/logger"
	"github.com/zarni99/brutepedro/pkg/session"
)

func TestMain(m *testing.M) {
	logger.InitWithWriter(io.Discard, "silent", false)
	os.Exit(m.Run())
}

func newServer(t *testing.T, pageStatus int, body string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(pageStatus)
		w.Write([]byte(`<form action="/post"><input type="hidden" name="csrf_token" value="tok"></form>`))
	})
	mux.HandleFunc("/post", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func runCheck(t *testing.T, srv *httptest.Server) (string, error) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Target.LoginPageURL = srv.URL + "/login"
	manager, err := session.NewManager(cfg, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	err = Run(context.Background(), cfg, manager, &buf)
	return buf.String(), err
}

func TestRun(t *testing.T) {
	t.Run("DumpsRoundTrip", func(t *testing.T) {
		srv := newServer(t, http.StatusOK, `{"error":true,"message":"Invalid username or password"}`)

		out, err := runCheck(t, srv)
		require.NoError(t, err)

		assert.Contains(t, out, "[CHECK] post_url: "+srv.URL+"/post")
		assert.Contains(t, out, `form_values: {"csrf_token": "tok"}`)
		assert.Contains(t, out, `"login": "dummy_user"`)
		assert.Contains(t, out, `"password": "dummy_password"`)
		assert.Contains(t, out, `"csrf_token": "tok"`)
		assert.Contains(t, out, "resp.status_code: 200")
		assert.Contains(t, out, "response_json:\n{\n    \"error\": true,")
		assert.Contains(t, out, "verdict: negative")
		assert.Contains(t, out, "Server checks completed.")
		assert.NotContains(t, out, "resolved", "IP literal targets skip DNS")
	})

	t.Run("NonJSONResponse", func(t *testing.T) {
		srv := newServer(t, http.StatusOK, `<html>nope</html>`)

		out, err := runCheck(t, srv)
		require.NoError(t, err)
		assert.Contains(t, out, "Response is not valid JSON.")
		assert.Contains(t, out, "verdict: unparseable")
	})

	t.Run("SessionUnavailable", func(t *testing.T) {
		srv := newServer(t, http.StatusServiceUnavailable, `{}`)

		out, err := runCheck(t, srv)
		assert.ErrorIs(t, err, session.ErrUnavailable)
		assert.Contains(t, out, "Failed to create session.")
		assert.NotContains(t, out, "payload")
	})
}

func startResolver(t *testing.T, handler dns.HandlerFunc) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go srv.ActivateAndServe()
	<-started
	t.Cleanup(func() { srv.Shutdown() })

	return pc.LocalAddr().String()
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("ARecords", func(t *testing.T) {
		addr := startResolver(t, func(w dns.ResponseWriter, r *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(r)
			if r.Question[0].Qtype == dns.TypeA {
				rr, _ := dns.NewRR(r.Question[0].Name + " 60 IN A 10.0.0.7")
				m.Answer = append(m.Answer, rr)
			}
			w.WriteMsg(m)
		})

		addrs, err := Resolve(ctx, "login.example.com", []string{addr}, time.Second)
		require.NoError(t, err)
		assert.Equal(t, []string{"10.0.0.7"}, addrs)
	})

	t.Run("NXDomain", func(t *testing.T) {
		addr := startResolver(t, func(w dns.ResponseWriter, r *dns.Msg) {
			m := new(dns.Msg)
			m.SetRcode(r, dns.RcodeNameError)
			w.WriteMsg(m)
		})

		_, err := Resolve(ctx, "missing.example.com", []string{addr}, time.Second)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "NXDOMAIN")
	})

	t.Run("NoResolvers", func(t *testing.T) {
		_, err := Resolve(ctx, "example.com", nil, time.Second)
		assert.Error(t, err)
	})
}

func TestNeedsLookup(t *testing.T) {
	assert.True(t, needsLookup("example.com"))
	assert.False(t, needsLookup("127.0.0.1"))
	assert.False(t, needsLookup("::1"))
	assert.False(t, needsLookup("localhost"))
	assert.False(t, needsLookup("app.localhost"))
	assert.False(t, needsLookup(""))
}
