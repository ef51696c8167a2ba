package config // package config loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  It is built once in main and passed by value to
// the constructors that need it; nothing else reads the environment.
type Config struct {
	Env            string        // application environment (dev, test, production)
	Port           string        // HTTP port to listen on
	DBUser         string        // database username
	DBPass         string        // database password (optional)
	DBHost         string        // database host address
	DBPort         string        // database port number
	DBName         string        // database name
	DBTimeout      time.Duration // upper bound for a single store call
	AccessSecret   string        // HMAC secret for access tokens
	RefreshSecret  string        // HMAC secret for refresh tokens, must differ from AccessSecret
	TokenIssuer    string        // iss claim written into both token kinds
	AccessTTL      time.Duration // access token lifetime
	RefreshTTL     time.Duration // refresh token lifetime
	BcryptCost     int           // bcrypt cost for password hashing
	CookieSecure   bool          // force the Secure attribute even behind a plain-HTTP proxy
	CORSOrigin     string        // allowed origin for credentialed CORS requests, never "*"
	UploadDir      string        // local staging directory for multipart uploads
	UploadMaxBytes int64         // maximum accepted request body for uploads
}

// IsProduction reports whether the service runs with production settings.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production") || strings.EqualFold(c.Env, "prod")
}

// Load reads configuration values from the environment and returns a
// Config.  A .env file in the working directory is applied first when it
// exists; real environment variables always win over it.  Every missing
// required variable is reported in the returned error.
func Load() (Config, error) {
	_ = godotenv.Load() // optional .env; absence is not an error

	var missing []string
	must := func(key string) string {
		v := envStr(key, "")
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := Config{
		Env:            must("APP_ENV"),
		Port:           envStr("APP_PORT", "8080"),
		DBUser:         must("DB_USER"),
		DBPass:         envStr("DB_PASS", ""),
		DBHost:         must("DB_HOST"),
		DBPort:         envStr("DB_PORT", "3306"),
		DBName:         must("DB_NAME"),
		DBTimeout:      envDur("DB_TIMEOUT", 5*time.Second),
		AccessSecret:   must("JWT_ACCESS_SECRET"),
		RefreshSecret:  must("JWT_REFRESH_SECRET"),
		TokenIssuer:    envStr("JWT_ISSUER", "video-share-api"),
		AccessTTL:      envDur("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTTL:     envDur("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		BcryptCost:     envInt("BCRYPT_COST", 12),
		CookieSecure:   envBool("COOKIE_SECURE", false),
		CORSOrigin:     envStr("CORS_ORIGIN", "http://localhost:3000"),
		UploadDir:      envStr("UPLOAD_DIR", "./public/uploads"),
		UploadMaxBytes: int64(envInt("UPLOAD_MAX_BYTES", 5<<20)),
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.AccessSecret == c.RefreshSecret {
		return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	// browsers drop credentialed responses whose allowed origin is a wildcard
	if strings.Contains(c.CORSOrigin, "*") {
		return errors.New("CORS_ORIGIN must name a single origin; cookies are not sent to a wildcard")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("invalid BCRYPT_COST %d", c.BcryptCost)
	}
	return nil
}
