package config // package config loads application configuration from environment variables

import (
    "os"      // os provides access to environment variables

    "github.com/joho/godotenv"  // optional .env file for local runs
    "github.com/rs/zerolog/log" // fatal configuration errors
)

// Store backends selectable through STORE.
const (
    StoreMySQL  = "mysql"
    StoreMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The DB fields are only required when the
// MySQL store is selected.
type Config struct {
    Env            string // application environment (e.g. "dev", "prod")
    Port           string // HTTP port to listen on
    Store          string // roster store: mysql | memory
    DBUser         string // database username
    DBPass         string // database password (optional)
    DBHost         string // database host address
    DBPort         string // database port number
    DBName         string // database name
    DBMigrate      bool   // create tables on startup
    JWTSecret      string // secret used to sign JWTs
    AccessTTLMin   int    // access token time‑to‑live in minutes
    RefreshTTLDays int    // refresh token time‑to‑live in days
    BcryptCost     int    // bcrypt cost for password hashing
}

// LoadDotEnv loads variables from the given files (".env" when none) into
// the environment.  Variables already set win.  Missing files are not an
// error; the returned bool reports whether anything was loaded.
func LoadDotEnv(files ...string) bool {
    if len(files) == 0 {
        files = []string{".env"}
    }
    loaded := false
    for _, f := range files {
        if _, err := os.Stat(f); err != nil {
            continue
        }
        if err := godotenv.Load(f); err != nil {
            log.Warn().Err(err).Str("module", "config").Str("file", f).Msg("could not load env file")
            continue
        }
        loaded = true
    }
    return loaded
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
    cfg := Config{
        Env:            envStr("APP_ENV", "dev"),            // environment (dev/test/prod)
        Port:           envStr("APP_PORT", "8080"),          // port to bind the HTTP server
        Store:          envStr("STORE", StoreMySQL),         // roster store backend
        JWTSecret:      must("JWT_SECRET"),                  // secret used for signing JWTs
        AccessTTLMin:   envInt("ACCESS_TOKEN_TTL_MIN", 15),  // TTL for access tokens in minutes
        RefreshTTLDays: envInt("REFRESH_TOKEN_TTL_DAYS", 30), // TTL for refresh tokens in days
        BcryptCost:     envInt("BCRYPT_COST", 12),           // bcrypt cost factor
    }
    switch cfg.Store {
    case StoreMemory:
    case StoreMySQL:
        cfg.DBUser = must("DB_USER")
        cfg.DBPass = os.Getenv("DB_PASS") // empty allowed
        cfg.DBHost = must("DB_HOST")
        cfg.DBPort = envStr("DB_PORT", "3306")
        cfg.DBName = must("DB_NAME")
        cfg.DBMigrate = envBool("DB_MIGRATE", true)
    default:
        log.Fatal().Str("module", "config").Msgf("invalid STORE %q (want mysql or memory)", cfg.Store)
    }
    return cfg
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatal().Str("module", "config").Msgf("missing required env var: %s", key)
    }
    return v
}
