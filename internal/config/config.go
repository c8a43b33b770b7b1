package config

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/hashicorp/go-multierror"
)

const (
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"

	minSessionSecretLen = 32
	minOpenAIKeyLen     = 20
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	AI        AIConfig
	Prompt    PromptConfig
	RateLimit RateLimitConfig
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port           string   `env:"PORT" envDefault:"3001"`
	Env            string   `env:"APP_ENV" envDefault:"development"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	StaticDir      string   `env:"STATIC_DIR"`
	Debug          bool     `env:"SYSTEM_DEBUG"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	// TrustProxy 为 true 时才采信 X-Forwarded-For / X-Real-IP。
	TrustProxy     bool     `env:"TRUST_PROXY"`

	// Addr is derived from Port.
	Addr string
}

// Production reports whether cookies must be marked Secure.
func (c ServerConfig) Production() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// DebugEnabled reports whether per-exchange diagnostics are logged.
func (c ServerConfig) DebugEnabled() bool {
	return c.Debug && !c.Production()
}

// AuthConfig 描述共享口令登录与会话配置。
type AuthConfig struct {
	Password      string        `env:"APP_ACCESS_PASSWORD"`
	SessionSecret string        `env:"APP_SESSION_SECRET"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"8h"`
	SweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"10m"`
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider      string            `env:"UPSTREAM_PROVIDER" envDefault:"openai"`
	OpenAIKey     string            `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string            `env:"OPENAI_BASE_URL"`
	APIKey        string            `env:"ARK_API_KEY"`
	AccessKey     string            `env:"ARK_ACCESS_KEY"`
	SecretKey     string            `env:"ARK_SECRET_KEY"`
	BaseURL       string            `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	Region        string            `env:"ARK_REGION" envDefault:"cn-beijing"`
	DefaultModel  string            `env:"MODEL" envDefault:"gpt-4o"`
	ModelAliases  map[string]string `env:"MODEL_ALIASES" envSeparator:"," envKeyValSeparator:":"`
}

// PromptConfig 描述系统提示词来源。
type PromptConfig struct {
	FallbackFile string `env:"SYSTEM_PROMPT_FILE"`
}

// RateLimitConfig 描述登录与聊天接口的限流窗口。
type RateLimitConfig struct {
	Chat   int           `env:"CHAT_RATE_LIMIT" envDefault:"20"`
	Login  int           `env:"LOGIN_RATE_LIMIT" envDefault:"10"`
	Window time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	return load(env.Options{})
}

// LoadFrom parses configuration from the supplied variables instead of the process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return load(env.Options{Environment: vars})
}

func load(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	addr, err := listenAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// listenAddr 解析服务器监听地址。
func listenAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "3001"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":3001" 或 "127.0.0.1:3001"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

func (c *Config) normalize() {
	c.AI.Provider = strings.ToLower(strings.TrimSpace(c.AI.Provider))
	c.AI.OpenAIKey = strings.TrimSpace(c.AI.OpenAIKey)
	c.AI.DefaultModel = strings.TrimSpace(c.AI.DefaultModel)
	c.Auth.Password = strings.TrimSpace(c.Auth.Password)
	c.Auth.SessionSecret = strings.TrimSpace(c.Auth.SessionSecret)
	c.Prompt.FallbackFile = strings.TrimSpace(c.Prompt.FallbackFile)

	origins := c.Server.AllowedOrigins[:0]
	for _, origin := range c.Server.AllowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	c.Server.AllowedOrigins = origins

	aliases := make(map[string]string, len(c.AI.ModelAliases))
	for alias, id := range c.AI.ModelAliases {
		alias, id = strings.TrimSpace(alias), strings.TrimSpace(id)
		if alias != "" && id != "" {
			aliases[alias] = id
		}
	}
	c.AI.ModelAliases = aliases
}

func (c *Config) validate() error {
	var result *multierror.Error

	switch c.AI.Provider {
	case ProviderOpenAI:
		if len(c.AI.OpenAIKey) < minOpenAIKeyLen {
			result = multierror.Append(result, fmt.Errorf("OPENAI_API_KEY must be at least %d characters", minOpenAIKeyLen))
		}
	case ProviderArk:
		if !c.AI.ArkCredentials() {
			result = multierror.Append(result, errors.New("ARK_API_KEY or ARK_ACCESS_KEY + ARK_SECRET_KEY is required"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unknown UPSTREAM_PROVIDER %q", c.AI.Provider))
	}

	if c.Auth.Password == "" {
		result = multierror.Append(result, errors.New("APP_ACCESS_PASSWORD is required"))
	}
	if len(c.Auth.SessionSecret) < minSessionSecretLen {
		result = multierror.Append(result, fmt.Errorf("APP_SESSION_SECRET must be at least %d characters", minSessionSecretLen))
	}
	if c.Auth.SessionTTL <= 0 {
		result = multierror.Append(result, errors.New("SESSION_TTL must be positive"))
	}
	if c.RateLimit.Chat < 1 || c.RateLimit.Login < 1 || c.RateLimit.Window <= 0 {
		result = multierror.Append(result, errors.New("rate limits and RATE_LIMIT_WINDOW must be positive"))
	}

	return result.ErrorOrNil()
}

// ArkCredentials 表示是否提供了必需的密钥。
func (c AIConfig) ArkCredentials() bool {
	return c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != "")
}

// NewArkChatModel 使用配置创建一个 Ark 模型实例；具体模型 ID 在每次调用时覆盖。
func (c AIConfig) NewArkChatModel(ctx context.Context, defaultModelID string) (model.ChatModel, error) {
	if !c.ArkCredentials() {
		return nil, fmt.Errorf("Ark 凭证缺失，至少提供 ARK_API_KEY 或 AK/SK 组合")
	}

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:   c.BaseURL,
		Region:    c.Region,
		APIKey:    c.APIKey,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Model:     defaultModelID,
	})
}

var secretKeyPattern = regexp.MustCompile(`(?i)(key|token|secret|password|pass|api)`)

// RedactedEnv returns a snapshot of vars with secret-looking keys masked, sorted by key.
func RedactedEnv(vars []string) []string {
	out := make([]string, 0, len(vars))
	for _, kv := range vars {
		key, value, _ := strings.Cut(kv, "=")
		if secretKeyPattern.MatchString(key) && value != "" {
			value = "[REDACTED]"
		}
		out = append(out, key+"="+value)
	}
	sort.Strings(out)
	return out
}
