package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/riskibarqy/waterpolo-stats/internal/platform/logging"
)

// ErrMissingSetting is returned when a required environment variable is absent.
var ErrMissingSetting = crerr.New("missing required setting")

const (
	SinkDriverPostgres = "postgres"
	SinkDriverMemory   = "memory"
)

// Config stores runtime configuration for the pipeline.
type Config struct {
	AppEnv         string
	ServiceName    string
	ServiceVersion string
	LogLevel       logging.Level

	CompetitionIDs         []int64
	CompetitionURLTemplate string
	MatchURLTemplate       string
	EventURLTemplate       string
	Authorization          string
	UserAgent              string

	FetchMaxWorkers int
	FetchJitterMin  time.Duration
	FetchJitterMax  time.Duration
	FetchTimeout    time.Duration

	UpstreamCircuitEnabled        bool
	UpstreamCircuitFailureCount   int
	UpstreamCircuitOpenTimeout    time.Duration
	UpstreamCircuitHalfOpenMaxReq int

	StageRetries    int
	StageRetryDelay time.Duration

	SinkDriver              string
	DBURL                   string
	DBDisablePreparedBinary bool
	RawArchiveEnabled       bool

	UptraceEnabled         bool
	UptraceDSN             string
	UptraceLogsEnabled     bool
	PyroscopeEnabled       bool
	PyroscopeServerAddress string
	PyroscopeAppName       string
	PyroscopeAuthToken     string
	PyroscopeUploadRate    time.Duration
}

// requiredSettings mirrors the env vars that have no default. The env tag is
// reported back in validation errors.
type requiredSettings struct {
	CompetitionIDs         string `env:"COMPETITION_IDS" validate:"required"`
	CompetitionURLTemplate string `env:"COMPETITION_URL_TEMPLATE" validate:"required"`
	MatchURLTemplate       string `env:"MATCH_BASE_URL" validate:"required"`
	EventURLTemplate       string `env:"EVENT_BASE_URL" validate:"required"`
	Authorization          string `env:"AUTHORIZATION" validate:"required"`
	UserAgent              string `env:"USER_AGENT" validate:"required"`
}

type dbSettings struct {
	User     string `env:"DB_USER" validate:"required"`
	Password string `env:"DB_PASSWORD" validate:"required"`
	Host     string `env:"DB_HOST" validate:"required"`
	Port     string `env:"DB_PORT" validate:"required,numeric"`
	Name     string `env:"DB_NAME" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		if name := field.Tag.Get("env"); name != "" {
			return name
		}
		return field.Name
	})
	return v
}

// Load reads an optional dotenv file and then the process environment.
func Load() (Config, error) {
	if err := loadDotenv(getEnv("DOTENV_PATH", ".env")); err != nil {
		return Config{}, err
	}

	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	required := requiredSettings{
		CompetitionIDs:         strings.TrimSpace(os.Getenv("COMPETITION_IDS")),
		CompetitionURLTemplate: strings.TrimSpace(os.Getenv("COMPETITION_URL_TEMPLATE")),
		MatchURLTemplate:       strings.TrimSpace(os.Getenv("MATCH_BASE_URL")),
		EventURLTemplate:       strings.TrimSpace(os.Getenv("EVENT_BASE_URL")),
		Authorization:          strings.TrimSpace(os.Getenv("AUTHORIZATION")),
		UserAgent:              strings.TrimSpace(os.Getenv("USER_AGENT")),
	}
	if err := validateSettings(required); err != nil {
		return Config{}, err
	}

	competitionIDs, err := parseCompetitionIDs(required.CompetitionIDs)
	if err != nil {
		return Config{}, fmt.Errorf("parse COMPETITION_IDS: %w", err)
	}

	fetchMaxWorkers, err := getEnvAsInt("FETCH_MAX_WORKERS", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse FETCH_MAX_WORKERS: %w", err)
	}
	if fetchMaxWorkers < 1 {
		return Config{}, fmt.Errorf("FETCH_MAX_WORKERS must be >= 1")
	}
	fetchJitterMin, err := time.ParseDuration(getEnv("FETCH_JITTER_MIN", "1.5s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse FETCH_JITTER_MIN: %w", err)
	}
	fetchJitterMax, err := time.ParseDuration(getEnv("FETCH_JITTER_MAX", "3.5s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse FETCH_JITTER_MAX: %w", err)
	}
	if fetchJitterMin < 0 || fetchJitterMax < fetchJitterMin {
		return Config{}, fmt.Errorf("FETCH_JITTER_MIN/FETCH_JITTER_MAX must satisfy 0 <= min <= max")
	}
	fetchTimeout, err := time.ParseDuration(getEnv("FETCH_TIMEOUT", "20s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse FETCH_TIMEOUT: %w", err)
	}
	if fetchTimeout <= 0 {
		return Config{}, fmt.Errorf("FETCH_TIMEOUT must be > 0")
	}

	upstreamCircuitEnabled, err := strconv.ParseBool(getEnv("UPSTREAM_CIRCUIT_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse UPSTREAM_CIRCUIT_ENABLED: %w", err)
	}
	upstreamCircuitFailureCount, err := getEnvAsInt("UPSTREAM_CIRCUIT_FAILURE_COUNT", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse UPSTREAM_CIRCUIT_FAILURE_COUNT: %w", err)
	}
	if upstreamCircuitFailureCount < 1 {
		return Config{}, fmt.Errorf("UPSTREAM_CIRCUIT_FAILURE_COUNT must be >= 1")
	}
	upstreamCircuitOpenTimeout, err := time.ParseDuration(getEnv("UPSTREAM_CIRCUIT_OPEN_TIMEOUT", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse UPSTREAM_CIRCUIT_OPEN_TIMEOUT: %w", err)
	}
	if upstreamCircuitOpenTimeout <= 0 {
		return Config{}, fmt.Errorf("UPSTREAM_CIRCUIT_OPEN_TIMEOUT must be > 0")
	}
	upstreamCircuitHalfOpenMaxReq, err := getEnvAsInt("UPSTREAM_CIRCUIT_HALF_OPEN_MAX_REQ", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse UPSTREAM_CIRCUIT_HALF_OPEN_MAX_REQ: %w", err)
	}
	if upstreamCircuitHalfOpenMaxReq < 1 {
		return Config{}, fmt.Errorf("UPSTREAM_CIRCUIT_HALF_OPEN_MAX_REQ must be >= 1")
	}

	stageRetries, err := getEnvAsInt("STAGE_RETRIES", 1)
	if err != nil {
		return Config{}, fmt.Errorf("parse STAGE_RETRIES: %w", err)
	}
	if stageRetries < 0 {
		return Config{}, fmt.Errorf("STAGE_RETRIES must be >= 0")
	}
	stageRetryDelay, err := time.ParseDuration(getEnv("STAGE_RETRY_DELAY", "300s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse STAGE_RETRY_DELAY: %w", err)
	}
	if stageRetryDelay < 0 {
		return Config{}, fmt.Errorf("STAGE_RETRY_DELAY must be >= 0")
	}

	sinkDriver := strings.ToLower(strings.TrimSpace(getEnv("SINK_DRIVER", SinkDriverPostgres)))
	if sinkDriver != SinkDriverPostgres && sinkDriver != SinkDriverMemory {
		return Config{}, fmt.Errorf("invalid SINK_DRIVER %q: valid values are %s, %s", sinkDriver, SinkDriverPostgres, SinkDriverMemory)
	}

	database, err := loadDatabase(sinkDriver == SinkDriverPostgres)
	if err != nil {
		return Config{}, err
	}
	rawArchiveEnabled, err := strconv.ParseBool(getEnv("RAW_ARCHIVE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse RAW_ARCHIVE_ENABLED: %w", err)
	}
	if rawArchiveEnabled && sinkDriver != SinkDriverPostgres {
		return Config{}, fmt.Errorf("RAW_ARCHIVE_ENABLED=true requires SINK_DRIVER=%s", SinkDriverPostgres)
	}

	uptraceEnabled, err := strconv.ParseBool(getEnv("UPTRACE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse UPTRACE_ENABLED: %w", err)
	}
	uptraceDSN := strings.TrimSpace(getEnv("UPTRACE_DSN", ""))
	if uptraceDSN == "" {
		uptraceDSN = parseUptraceDSNFromOTLPHeaders(getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""))
	}
	if uptraceEnabled && uptraceDSN == "" {
		return Config{}, fmt.Errorf("UPTRACE_DSN is required when UPTRACE_ENABLED=true")
	}
	uptraceLogsEnabled, err := strconv.ParseBool(getEnv("UPTRACE_LOGS_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse UPTRACE_LOGS_ENABLED: %w", err)
	}

	pyroscopeEnabled, err := strconv.ParseBool(getEnv("PYROSCOPE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_ENABLED: %w", err)
	}
	pyroscopeServerAddress := strings.TrimSpace(getEnv("PYROSCOPE_SERVER_ADDRESS", ""))
	if pyroscopeEnabled && pyroscopeServerAddress == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_SERVER_ADDRESS is required when PYROSCOPE_ENABLED=true")
	}
	pyroscopeUploadRate, err := time.ParseDuration(getEnv("PYROSCOPE_UPLOAD_RATE", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_UPLOAD_RATE: %w", err)
	}
	if pyroscopeUploadRate <= 0 {
		return Config{}, fmt.Errorf("PYROSCOPE_UPLOAD_RATE must be > 0")
	}

	cfg := Config{
		AppEnv:                        appEnv,
		ServiceName:                   getEnv("APP_SERVICE_NAME", "waterpolo-stats-pipeline"),
		ServiceVersion:                getEnv("APP_SERVICE_VERSION", "dev"),
		LogLevel:                      logging.ParseLevel(getEnv("APP_LOG_LEVEL", "info")),
		CompetitionIDs:                competitionIDs,
		CompetitionURLTemplate:        required.CompetitionURLTemplate,
		MatchURLTemplate:              required.MatchURLTemplate,
		EventURLTemplate:              required.EventURLTemplate,
		Authorization:                 required.Authorization,
		UserAgent:                     required.UserAgent,
		FetchMaxWorkers:               fetchMaxWorkers,
		FetchJitterMin:                fetchJitterMin,
		FetchJitterMax:                fetchJitterMax,
		FetchTimeout:                  fetchTimeout,
		UpstreamCircuitEnabled:        upstreamCircuitEnabled,
		UpstreamCircuitFailureCount:   upstreamCircuitFailureCount,
		UpstreamCircuitOpenTimeout:    upstreamCircuitOpenTimeout,
		UpstreamCircuitHalfOpenMaxReq: upstreamCircuitHalfOpenMaxReq,
		StageRetries:                  stageRetries,
		StageRetryDelay:               stageRetryDelay,
		SinkDriver:                    sinkDriver,
		DBURL:                         database.URL,
		DBDisablePreparedBinary:       database.DisablePreparedBinary,
		RawArchiveEnabled:             rawArchiveEnabled,
		UptraceEnabled:                uptraceEnabled,
		UptraceDSN:                    uptraceDSN,
		UptraceLogsEnabled:            uptraceLogsEnabled,
		PyroscopeEnabled:              pyroscopeEnabled,
		PyroscopeServerAddress:        pyroscopeServerAddress,
		PyroscopeAuthToken:            strings.TrimSpace(getEnv("PYROSCOPE_AUTH_TOKEN", "")),
		PyroscopeUploadRate:           pyroscopeUploadRate,
	}
	cfg.PyroscopeAppName = strings.TrimSpace(getEnv("PYROSCOPE_APP_NAME", cfg.ServiceName))

	return cfg, nil
}

// Database holds the connection settings shared by the pipeline and the migration tool.
type Database struct {
	URL                   string
	DisablePreparedBinary bool
}

// LoadDatabase reads only the database settings. DB_URL wins; otherwise the
// URL is composed from DB_USER, DB_PASSWORD, DB_HOST, DB_PORT and DB_NAME.
func LoadDatabase() (Database, error) {
	if err := loadDotenv(getEnv("DOTENV_PATH", ".env")); err != nil {
		return Database{}, err
	}
	return loadDatabase(true)
}

func loadDatabase(requireURL bool) (Database, error) {
	disablePreparedBinary, err := strconv.ParseBool(getEnv("DB_DISABLE_PREPARED_BINARY_RESULT", "false"))
	if err != nil {
		return Database{}, fmt.Errorf("parse DB_DISABLE_PREPARED_BINARY_RESULT: %w", err)
	}

	dbURL := strings.TrimSpace(os.Getenv("DB_URL"))
	if dbURL == "" && requireURL {
		dbURL, err = composeDBURL()
		if err != nil {
			return Database{}, err
		}
	}

	return Database{URL: dbURL, DisablePreparedBinary: disablePreparedBinary}, nil
}

// loadDotenv populates unset variables from path; a missing file is not an error.
func loadDotenv(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load dotenv %s: %w", path, err)
	}
	return nil
}

func validateSettings(settings any) error {
	err := validate.Struct(settings)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !stderrors.As(err, &validationErrs) {
		return fmt.Errorf("validate settings: %w", err)
	}

	missing := make([]string, 0, len(validationErrs))
	invalid := make([]string, 0)
	for _, fieldErr := range validationErrs {
		if fieldErr.Tag() == "required" {
			missing = append(missing, fieldErr.Field())
			continue
		}
		invalid = append(invalid, fmt.Sprintf("%s (%s)", fieldErr.Field(), fieldErr.Tag()))
	}
	if len(missing) > 0 {
		return crerr.Wrapf(ErrMissingSetting, "%s", strings.Join(missing, ", "))
	}
	return fmt.Errorf("invalid settings: %s", strings.Join(invalid, ", "))
}

func composeDBURL() (string, error) {
	settings := dbSettings{
		User:     strings.TrimSpace(os.Getenv("DB_USER")),
		Password: os.Getenv("DB_PASSWORD"),
		Host:     strings.TrimSpace(os.Getenv("DB_HOST")),
		Port:     strings.TrimSpace(os.Getenv("DB_PORT")),
		Name:     strings.TrimSpace(os.Getenv("DB_NAME")),
	}
	if err := validateSettings(settings); err != nil {
		return "", fmt.Errorf("DB_URL is empty: %w", err)
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(settings.User, settings.Password),
		Host:   net.JoinHostPort(settings.Host, settings.Port),
		Path:   "/" + settings.Name,
	}
	if sslMode := strings.TrimSpace(getEnv("DB_SSLMODE", "")); sslMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{sslMode}}.Encode()
	}
	return u.String(), nil
}

func parseCompetitionIDs(raw string) ([]int64, error) {
	items := splitCSV(raw)
	out := make([]int64, 0, len(items))
	seen := make(map[int64]struct{}, len(items))
	for _, item := range items {
		value, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid competition id %q: %w", item, err)
		}
		if value <= 0 {
			return nil, fmt.Errorf("competition id must be > 0, got %d", value)
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	if len(out) == 0 {
		return nil, crerr.Wrap(ErrMissingSetting, "COMPETITION_IDS")
	}
	return out, nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		out = append(out, item)
	}

	return out
}

func parseUptraceDSNFromOTLPHeaders(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	items := strings.Split(raw, ",")
	for _, item := range items {
		parts := strings.SplitN(strings.TrimSpace(item), "=", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(parts[0]), "uptrace-dsn") {
			value := strings.TrimSpace(parts[1])
			return strings.Trim(value, "\"'")
		}
	}

	return ""
}

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}
