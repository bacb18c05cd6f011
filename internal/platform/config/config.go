package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	envPrefix = "STOREFRONT_"

	defaultEnvFile            = ".env"
	defaultEnvironment        = "local"
	defaultPort               = "8080"
	defaultReadTimeout        = 15 * time.Second
	defaultWriteTimeout       = 30 * time.Second
	defaultIdleTimeout        = 120 * time.Second
	defaultCommerceAPIVersion = "2023-10"
	defaultCommerceTimeout    = 8 * time.Second
	defaultGallerySize        = 6
	defaultShopSize           = 20
	defaultCatalogCacheTTL    = 5 * time.Minute
	defaultCartBackend        = CartBackendMemory
	defaultCartDir            = ".data/carts"
	defaultCartSQLitePath     = ".data/carts.db"
	defaultCartKey            = "fillesume_cart"
	defaultCartCollection     = "carts"
	defaultCartIdleTTL        = 30 * time.Minute
	defaultSessionCookie      = "fillesume_session"
	defaultSessionTTL         = 30 * 24 * time.Hour
	defaultViewerFrames       = 6
	defaultViewerSensitivity  = 50
	defaultViewerAutoplay     = 800 * time.Millisecond
	defaultViewerCountdown    = 5
	defaultViewerCountdownDur = time.Second
	defaultMixingStep         = 1
	defaultMixingTick         = 50 * time.Millisecond
	defaultMixingSettle       = 1500 * time.Millisecond
	defaultMixingTarget       = 100
	defaultExperienceIdleTTL  = 30 * time.Minute
	defaultAssetsBaseURL      = "/static"
	defaultAssetsURLTTL       = 15 * time.Minute
	defaultPubSubTopic        = "storefront-events"
	defaultIdempotencyHeader  = "Idempotency-Key"
	defaultIdempotencyTTL     = 24 * time.Hour
	defaultIdempotencyCleanup = time.Hour
	defaultSecretsFallback    = ".secrets.local"
)

// Cart backends understood by the cart registry.
const (
	CartBackendMemory    = "memory"
	CartBackendFile      = "file"
	CartBackendSQLite    = "sqlite"
	CartBackendFirestore = "firestore"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Server      ServerConfig
	Commerce    CommerceConfig
	Cart        CartConfig
	Session     SessionConfig
	Narrative   NarrativeConfig
	Viewer      ViewerConfig
	Mixing      MixingConfig
	Experience  ExperienceConfig
	Assets      AssetsConfig
	Events      EventsConfig
	Firestore   FirestoreConfig
	Idempotency IdempotencyConfig
	Secrets     SecretsConfig
	Content     ContentConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// CommerceConfig points at the storefront GraphQL endpoint. An empty domain or token
// keeps the client on the demo catalog.
type CommerceConfig struct {
	Domain      string
	Token       string
	APIVersion  string
	Timeout     time.Duration
	GallerySize int
	ShopSize    int
	CacheTTL    time.Duration
}

// CartConfig selects and parameterises the cart persistence backend.
type CartConfig struct {
	Backend             string
	Dir                 string
	SQLitePath          string
	Key                 string
	FirestoreCollection string
	IdleTTL             time.Duration
}

// SessionConfig controls the signed visitor cookie that scopes carts.
type SessionConfig struct {
	Secret     string
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// NarrativeConfig optionally overrides the scroll schedule.
type NarrativeConfig struct {
	ScheduleFile string
}

// ViewerConfig holds the 360 viewer constants.
type ViewerConfig struct {
	Frames           int
	Sensitivity      float64
	AutoplayInterval time.Duration
	CountdownTicks   int
	CountdownTick    time.Duration
}

// MixingConfig holds the mixing game constants.
type MixingConfig struct {
	Step        int
	Tick        time.Duration
	SettleDelay time.Duration
	Target      int
}

// ExperienceConfig bounds in-memory experience sessions.
type ExperienceConfig struct {
	IdleTTL time.Duration
}

// AssetsConfig controls how static asset URLs are produced.
type AssetsConfig struct {
	BaseURL       string
	Bucket        string
	SignerKeyFile string
	URLTTL        time.Duration
}

// EventsConfig configures the Pub/Sub event topic. Publishing is disabled without a project.
type EventsConfig struct {
	ProjectID    string
	Topic        string
	EmulatorHost string
}

// FirestoreConfig stores database parameters for the firestore cart backend.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header          string
	TTL             time.Duration
	CleanupInterval time.Duration
}

// SecretsConfig configures secret:// resolution.
type SecretsConfig struct {
	ProjectID    string
	FallbackFile string
}

// ContentConfig points at an optional directory overriding the embedded pages.
type ContentConfig struct {
	Dir string
}

// SecretResolver resolves secret:// references.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map that wins over every other source.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Lookup returns the raw value of a prefixed key using the same precedence as Load.
// The secrets fetcher is built from these values before Load runs.
func Lookup(key string, opts ...Option) string {
	options := newLoaderOptions(opts)
	lookup, err := options.lookupFunc()
	if err != nil {
		return ""
	}
	value, _ := lookup(envPrefix + key)
	return strings.TrimSpace(value)
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

func (o loaderOptions) lookupFunc() (func(string) (string, bool), error) {
	dotEnvValues, err := loadDotEnv(o.envFile)
	if err != nil {
		return nil, err
	}
	return func(key string) (string, bool) {
		if value, ok := o.envMap[key]; ok {
			return value, true
		}
		if o.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnvValues[key]
		return value, ok
	}, nil
}

// Load assembles configuration from defaults, .env, the environment, an explicit map,
// and secret references, in increasing order of precedence for the first four.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	raw, err := options.lookupFunc()
	if err != nil {
		return Config{}, err
	}
	lookup := func(key string) (string, bool) {
		return raw(envPrefix + key)
	}

	environment := strings.ToLower(stringWithDefault(lookup, "ENVIRONMENT", defaultEnvironment))
	cfg := Config{
		Environment: environment,
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Commerce: CommerceConfig{
			Domain:      stringWithDefault(lookup, "COMMERCE_DOMAIN", ""),
			Token:       stringWithDefault(lookup, "COMMERCE_TOKEN", ""),
			APIVersion:  stringWithDefault(lookup, "COMMERCE_API_VERSION", defaultCommerceAPIVersion),
			Timeout:     durationWithDefault(lookup, "COMMERCE_TIMEOUT", defaultCommerceTimeout),
			GallerySize: intWithDefault(lookup, "COMMERCE_GALLERY_SIZE", defaultGallerySize),
			ShopSize:    intWithDefault(lookup, "COMMERCE_SHOP_SIZE", defaultShopSize),
			CacheTTL:    durationWithDefault(lookup, "COMMERCE_CACHE_TTL", defaultCatalogCacheTTL),
		},
		Cart: CartConfig{
			Backend:             strings.ToLower(stringWithDefault(lookup, "CART_BACKEND", defaultCartBackend)),
			Dir:                 stringWithDefault(lookup, "CART_DIR", defaultCartDir),
			SQLitePath:          stringWithDefault(lookup, "CART_SQLITE_PATH", defaultCartSQLitePath),
			Key:                 stringWithDefault(lookup, "CART_KEY", defaultCartKey),
			FirestoreCollection: stringWithDefault(lookup, "CART_FIRESTORE_COLLECTION", defaultCartCollection),
			IdleTTL:             durationWithDefault(lookup, "CART_IDLE_TTL", defaultCartIdleTTL),
		},
		Session: SessionConfig{
			Secret:     stringWithDefault(lookup, "SESSION_SECRET", ""),
			CookieName: stringWithDefault(lookup, "SESSION_COOKIE", defaultSessionCookie),
			TTL:        durationWithDefault(lookup, "SESSION_TTL", defaultSessionTTL),
			Secure:     boolWithDefault(lookup, "SESSION_SECURE", environment != defaultEnvironment),
		},
		Narrative: NarrativeConfig{
			ScheduleFile: stringWithDefault(lookup, "NARRATIVE_SCHEDULE_FILE", ""),
		},
		Viewer: ViewerConfig{
			Frames:           intWithDefault(lookup, "VIEWER_FRAMES", defaultViewerFrames),
			Sensitivity:      floatWithDefault(lookup, "VIEWER_SENSITIVITY", defaultViewerSensitivity),
			AutoplayInterval: durationWithDefault(lookup, "VIEWER_AUTOPLAY_INTERVAL", defaultViewerAutoplay),
			CountdownTicks:   intWithDefault(lookup, "VIEWER_COUNTDOWN_TICKS", defaultViewerCountdown),
			CountdownTick:    durationWithDefault(lookup, "VIEWER_COUNTDOWN_TICK", defaultViewerCountdownDur),
		},
		Mixing: MixingConfig{
			Step:        intWithDefault(lookup, "MIXING_STEP", defaultMixingStep),
			Tick:        durationWithDefault(lookup, "MIXING_TICK", defaultMixingTick),
			SettleDelay: durationWithDefault(lookup, "MIXING_SETTLE_DELAY", defaultMixingSettle),
			Target:      intWithDefault(lookup, "MIXING_TARGET", defaultMixingTarget),
		},
		Experience: ExperienceConfig{
			IdleTTL: durationWithDefault(lookup, "EXPERIENCE_IDLE_TTL", defaultExperienceIdleTTL),
		},
		Assets: AssetsConfig{
			BaseURL:       stringWithDefault(lookup, "ASSETS_BASE_URL", defaultAssetsBaseURL),
			Bucket:        stringWithDefault(lookup, "ASSETS_BUCKET", ""),
			SignerKeyFile: stringWithDefault(lookup, "ASSETS_SIGNER_KEY_FILE", ""),
			URLTTL:        durationWithDefault(lookup, "ASSETS_URL_TTL", defaultAssetsURLTTL),
		},
		Events: EventsConfig{
			ProjectID:    stringWithDefault(lookup, "PUBSUB_PROJECT_ID", ""),
			Topic:        stringWithDefault(lookup, "PUBSUB_TOPIC", defaultPubSubTopic),
			EmulatorHost: stringWithDefault(lookup, "PUBSUB_EMULATOR_HOST", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "FIRESTORE_EMULATOR_HOST", ""),
		},
		Idempotency: IdempotencyConfig{
			Header:          stringWithDefault(lookup, "IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:             durationWithDefault(lookup, "IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval: durationWithDefault(lookup, "IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyCleanup),
		},
		Secrets: SecretsConfig{
			ProjectID:    stringWithDefault(lookup, "SECRETS_PROJECT_ID", ""),
			FallbackFile: stringWithDefault(lookup, "SECRETS_FALLBACK_FILE", defaultSecretsFallback),
		},
		Content: ContentConfig{
			Dir: stringWithDefault(lookup, "CONTENT_DIR", ""),
		},
	}

	resolver := options.secret
	secretFields := []*string{&cfg.Commerce.Token, &cfg.Session.Secret}
	for _, field := range secretFields {
		resolved, err := resolveSecret(ctx, *field, resolver)
		if err != nil {
			return Config{}, err
		}
		*field = resolved
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// IsLocal reports whether the process runs in the local development environment.
func (c Config) IsLocal() bool {
	return c.Environment == defaultEnvironment
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "secret://") {
		return value, nil
	}
	if resolver == nil {
		return "", &SecretError{Ref: trimmed, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, trimmed)
	if err != nil {
		return "", &SecretError{Ref: trimmed, Err: err}
	}
	return strings.TrimSpace(secret), nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if strings.TrimSpace(cfg.Server.Port) == "" {
		invalid = append(invalid, "Server.Port")
	}
	switch cfg.Cart.Backend {
	case CartBackendMemory:
	case CartBackendFile:
		if strings.TrimSpace(cfg.Cart.Dir) == "" {
			invalid = append(invalid, "Cart.Dir")
		}
	case CartBackendSQLite:
		if strings.TrimSpace(cfg.Cart.SQLitePath) == "" {
			invalid = append(invalid, "Cart.SQLitePath")
		}
	case CartBackendFirestore:
		if strings.TrimSpace(cfg.Firestore.ProjectID) == "" {
			invalid = append(invalid, "Firestore.ProjectID")
		}
	default:
		invalid = append(invalid, "Cart.Backend")
	}
	if strings.TrimSpace(cfg.Cart.Key) == "" {
		invalid = append(invalid, "Cart.Key")
	}
	if !cfg.IsLocal() && strings.TrimSpace(cfg.Session.Secret) == "" {
		invalid = append(invalid, "Session.Secret")
	}
	if cfg.Viewer.Frames < 1 {
		invalid = append(invalid, "Viewer.Frames")
	}
	if cfg.Viewer.Sensitivity <= 0 {
		invalid = append(invalid, "Viewer.Sensitivity")
	}
	if cfg.Viewer.AutoplayInterval <= 0 {
		invalid = append(invalid, "Viewer.AutoplayInterval")
	}
	if cfg.Viewer.CountdownTicks < 0 || cfg.Viewer.CountdownTick <= 0 {
		invalid = append(invalid, "Viewer.Countdown")
	}
	if cfg.Mixing.Step <= 0 {
		invalid = append(invalid, "Mixing.Step")
	}
	if cfg.Mixing.Tick <= 0 {
		invalid = append(invalid, "Mixing.Tick")
	}
	if cfg.Mixing.Target <= 0 {
		invalid = append(invalid, "Mixing.Target")
	}
	if cfg.Mixing.SettleDelay < 0 {
		invalid = append(invalid, "Mixing.SettleDelay")
	}
	if cfg.Commerce.GallerySize <= 0 {
		invalid = append(invalid, "Commerce.GallerySize")
	}
	if cfg.Commerce.ShopSize <= 0 {
		invalid = append(invalid, "Commerce.ShopSize")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		invalid = append(invalid, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		invalid = append(invalid, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupInterval <= 0 {
		invalid = append(invalid, "Idempotency.CleanupInterval")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func floatWithDefault(lookup func(string) (string, bool), key string, fallback float64) float64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
