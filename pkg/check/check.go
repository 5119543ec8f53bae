package check

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/zarni99/brutepedro/pkg/attack"
	"github.com/zarni99/brutepedro/pkg/config"
	"github.com/zarni99/brutepedro/pkg/logger"
)

// Run performs one round trip with the dummy credentials and dumps what was
// sent and received to w.
func Run(ctx context.Context, cfg config.Config, sessions attack.Sessions, w io.Writer) error {
	out := func(format string, args ...interface{}) {
		fmt.Fprintf(w, "%s [CHECK] %s\n", logger.Timestamp(), fmt.Sprintf(format, args...))
	}

	if host := hostname(cfg.Target.LoginPageURL); needsLookup(host) {
		addrs, err := Resolve(ctx, host, cfg.Check.Resolvers, cfg.ReachabilityTimeout())
		if err != nil {
			logger.Warn("DNS lookup for %s failed: %v", host, err)
		} else {
			out("resolved %s: %s", host, strings.Join(addrs, ", "))
		}
	}

	sess, err := sessions.Create(ctx)
	if err != nil {
		out("Failed to create session.")
		return err
	}

	form, err := sessions.FetchLoginForm(ctx, sess)
	if err != nil {
		return err
	}
	out("post_url: %s", form.PostURL)
	out("form_values: %s", formatFields(form.Fields))

	payload := sessions.BuildPayload(form, cfg.Check.DummyUsername, cfg.Check.DummyPassword)
	flat := make(map[string]string, len(payload))
	for key := range payload {
		flat[key] = payload.Get(key)
	}
	out("payload: %s", formatFields(flat))

	resp, err := sessions.Submit(ctx, sess, form.PostURL, payload)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	out("resp.status_code: %d", resp.StatusCode)

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, bytes.TrimSpace(resp.Body), "", "    "); err != nil {
		out("Response is not valid JSON.")
	} else {
		out("response_json:\n%s", pretty.String())
	}

	verdict := attack.ClassifyBody(resp.Body, attack.Rules{
		WrongCredentialsPhrase: cfg.Detection.WrongCredentialsPhrase,
		SuccessPhrase:          cfg.Detection.SuccessPhrase,
	})
	out("verdict: %s", verdict)
	out("Server checks completed.")

	return nil
}

// Resolve looks up A then AAAA records for host, trying each resolver in
// turn until one answers.
func Resolve(ctx context.Context, host string, resolvers []string, timeout time.Duration) ([]string, error) {
	if len(resolvers) == 0 {
		return nil, fmt.Errorf("no resolvers configured")
	}

	c := new(dns.Client)
	c.Timeout = timeout

	var addrs []string
	var lastErr error
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		m := new(dns.Msg)
		m.SetQuestion(dns.Fqdn(host), qtype)
		m.RecursionDesired = true

		for _, resolver := range resolvers {
			resp, _, err := c.ExchangeContext(ctx, m, resolver)
			if err != nil {
				lastErr = err
				continue
			}
			if resp.Rcode != dns.RcodeSuccess {
				lastErr = fmt.Errorf("%s answered %s", resolver, dns.RcodeToString[resp.Rcode])
				continue
			}

			for _, answer := range resp.Answer {
				switch rr := answer.(type) {
				case *dns.A:
					addrs = append(addrs, rr.A.String())
				case *dns.AAAA:
					addrs = append(addrs, rr.AAAA.String())
				}
			}
			break
		}
	}

	if len(addrs) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, fmt.Errorf("no A or AAAA records for %s", host)
	}
	return addrs, nil
}

func hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func needsLookup(host string) bool {
	if host == "" || net.ParseIP(host) != nil {
		return false
	}
	host = strings.ToLower(host)
	return host != "localhost" && !strings.HasSuffix(host, ".localhost")
}

func formatFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, key := range keys {
		parts[i] = fmt.Sprintf("%q: %q", key, fields[key])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
