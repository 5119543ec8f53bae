package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

type Config struct {
	Target    TargetConfig    `json:"target" yaml:"target"`
	Form      FormConfig      `json:"form" yaml:"form"`
	Detection DetectionConfig `json:"detection" yaml:"detection"`
	Session   SessionConfig   `json:"session" yaml:"session"`
	Timing    TimingConfig    `json:"timing" yaml:"timing"`
	Files     FilesConfig     `json:"files" yaml:"files"`
	Check     CheckConfig     `json:"check" yaml:"check"`
	Output    OutputConfig    `json:"output" yaml:"output"`
}

type TargetConfig struct {
	LoginPageURL string `json:"login_page_url" yaml:"login_page_url"`
	LoginPostURL string `json:"login_post_url" yaml:"login_post_url"`
	RedirectURL  string `json:"redirect_url" yaml:"redirect_url"`
}

type FormConfig struct {
	UsernameParam    string   `json:"username_param" yaml:"username_param"`
	PasswordParam    string   `json:"password_param" yaml:"password_param"`
	CSRFParam        string   `json:"csrf_param" yaml:"csrf_param"`
	RedirectParam    string   `json:"redirect_param" yaml:"redirect_param"`
	CSRFAlternatives []string `json:"csrf_alternatives" yaml:"csrf_alternatives"`
}

type DetectionConfig struct {
	WrongCredentialsPhrase string `json:"wrong_credentials_phrase" yaml:"wrong_credentials_phrase"`
	SuccessPhrase          string `json:"success_phrase" yaml:"success_phrase"`
}

type SessionConfig struct {
	MaxAttemptsPerSession int               `json:"max_attempts_per_session" yaml:"max_attempts_per_session"`
	UserAgent             string            `json:"user_agent" yaml:"user_agent"`
	Headers               map[string]string `json:"headers" yaml:"headers"`
	InsecureSkipVerify    bool              `json:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// TimingConfig timeouts are whole seconds. The delay may be fractional.
type TimingConfig struct {
	DelaySeconds        float64 `json:"delay_seconds" yaml:"delay_seconds"`
	RequestTimeout      int     `json:"request_timeout" yaml:"request_timeout"`
	ReachabilityTimeout int     `json:"reachability_timeout" yaml:"reachability_timeout"`
}

type FilesConfig struct {
	Usernames string `json:"usernames" yaml:"usernames"`
	Passwords string `json:"passwords" yaml:"passwords"`
	Success   string `json:"success" yaml:"success"`
	Progress  string `json:"progress" yaml:"progress"`
}

type CheckConfig struct {
	DummyUsername string   `json:"dummy_username" yaml:"dummy_username"`
	DummyPassword string   `json:"dummy_password" yaml:"dummy_password"`
	Resolvers     []string `json:"resolvers" yaml:"resolvers"`
}

type OutputConfig struct {
	ReportFile string `json:"report_file" yaml:"report_file"`
	LogLevel   string `json:"log_level" yaml:"log_level"`
	NoColor    bool   `json:"no_color" yaml:"no_color"`
}

func DefaultConfig() Config {
	return Config{
		Target: TargetConfig{
			RedirectURL: "/apps/tncms/login.cms",
		},
		Form: FormConfig{
			UsernameParam:    "login",
			PasswordParam:    "password",
			CSRFParam:        "csrf_token",
			RedirectParam:    "redirect",
			CSRFAlternatives: []string{"csrf_token", "_csrf", "token"},
		},
		Detection: DetectionConfig{
			WrongCredentialsPhrase: "Invalid username or password",
		},
		Session: SessionConfig{
			MaxAttemptsPerSession: 20,
			UserAgent:             DefaultUserAgent,
			Headers: map[string]string{
				"Accept":           "application/json, text/javascript, */*; q=0.01",
				"X-Requested-With": "XMLHttpRequest",
			},
		},
		Timing: TimingConfig{
			DelaySeconds:        1.5,
			RequestTimeout:      15,
			ReachabilityTimeout: 10,
		},
		Files: FilesConfig{
			Usernames: "data/usernames.txt",
			Passwords: "data/passwords.txt",
			Success:   "data/success.brute",
			Progress:  "data/progress.brute",
		},
		Check: CheckConfig{
			DummyUsername: "dummy_user",
			DummyPassword: "dummy_password",
			Resolvers:     []string{"8.8.8.8:53", "1.1.1.1:53"},
		},
		Output: OutputConfig{
			LogLevel: "info",
		},
	}
}

func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", filepath.Ext(filePath))
	}

	return &cfg, nil
}

func SaveConfig(cfg *Config, filePath string) error {
	var (
		data []byte
		err  error
	)

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON config: %w", err)
		}
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal YAML config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", filepath.Ext(filePath))
	}

	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	return os.WriteFile(filePath, data, 0644)
}

func (c *Config) Validate() error {
	page, err := url.Parse(c.Target.LoginPageURL)
	if c.Target.LoginPageURL == "" || err != nil || !page.IsAbs() || page.Host == "" {
		return fmt.Errorf("login page URL must be an absolute http(s) URL, got %q", c.Target.LoginPageURL)
	}
	if page.Scheme != "http" && page.Scheme != "https" {
		return fmt.Errorf("unsupported login page scheme: %s", page.Scheme)
	}

	if c.Target.LoginPostURL != "" {
		if _, err := url.Parse(c.Target.LoginPostURL); err != nil {
			return fmt.Errorf("invalid login post URL: %w", err)
		}
	}

	if c.Form.UsernameParam == "" || c.Form.PasswordParam == "" {
		return fmt.Errorf("username and password parameter names cannot be empty")
	}
	if c.Form.CSRFParam == "" || c.Form.RedirectParam == "" {
		return fmt.Errorf("csrf and redirect parameter names cannot be empty")
	}

	if c.Session.MaxAttemptsPerSession <= 0 {
		return fmt.Errorf("max attempts per session must be greater than 0")
	}

	if c.Timing.DelaySeconds < 0 || c.Timing.RequestTimeout < 0 || c.Timing.ReachabilityTimeout < 0 {
		return fmt.Errorf("delay and timeouts cannot be negative")
	}

	if c.Files.Usernames == "" || c.Files.Passwords == "" {
		return fmt.Errorf("username and password list paths cannot be empty")
	}
	if c.Files.Success == "" || c.Files.Progress == "" {
		return fmt.Errorf("success and progress file paths cannot be empty")
	}

	return nil
}

func (c *Config) Delay() time.Duration {
	return time.Duration(c.Timing.DelaySeconds * float64(time.Second))
}

func (c *Config) RequestTimeout() time.Duration {
	return secondsOr(c.Timing.RequestTimeout, 15)
}

func (c *Config) ReachabilityTimeout() time.Duration {
	return secondsOr(c.Timing.ReachabilityTimeout, 10)
}

func secondsOr(seconds, fallback int) time.Duration {
	if seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}
