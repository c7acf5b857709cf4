// Package config loads application configuration from environment variables.
package config

import (
    "log"     // log is used to report configuration errors and halt execution
    "os"      // os provides access to environment variables
    "strings"
    "time"

    "github.com/gosimple/slug"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Secrets (YocoSecretKey, YocoWebhookSecret,
// IdPJWTSecret) are only ever read by the server process and must never be
// written to responses or logs.
type Config struct {
    Env         string // application environment (e.g. "dev", "prod")
    Port        string // HTTP port to listen on
    StoreDriver string // "mysql" or "memory"
    DBUser      string // database username
    DBPass      string // database password (optional)
    DBHost      string // database host address
    DBPort      string // database port number
    DBName      string // database name
    AutoMigrate bool   // create missing tables at startup

    IdPJWTSecret string // HS256 secret of the identity provider's access tokens
    AppURL       string // public base URL used to build checkout redirect URLs

    YocoSecretKey     string        // provider API secret (sk_...)
    YocoWebhookSecret string        // webhook signing secret (whsec_...)
    YocoAPIURL        string        // provider API base URL
    YocoTimeout       time.Duration // timeout of the outbound checkout call
    WebhookTolerance  time.Duration // accepted clock skew of webhook timestamps

    CompetitionIDs       []string      // competitions whose slots are seeded at startup
    Capacity             int           // number of easel slots per competition
    EntryFeeCents        int64         // default checkout amount in minor units
    Currency             string        // ISO currency code of the entry fee
    PendingTTL           time.Duration // age after which a pending participant returns to waiting
    PendingSweepInterval time.Duration // how often the pending sweeper runs

    RabbitURL           string        // AMQP broker used for entry events; empty disables publishing
    EntryLogPath        string        // file the entry consumer appends to
    LokiURL             string        // optional Loki push endpoint for logs
    MetricsPushURL      string        // optional VictoriaMetrics push endpoint
    MetricsPushInterval time.Duration // push interval when MetricsPushURL is set
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Database variables are
// only required when the mysql store driver is selected.
func Load() Config {
    cfg := Config{
        Env:         must("APP_ENV"),  // environment (dev/test/prod)
        Port:        must("APP_PORT"), // port to bind the HTTP server
        StoreDriver: strings.ToLower(envStr("STORE_DRIVER", "mysql")),

        IdPJWTSecret: must("IDP_JWT_SECRET"),
        AppURL:       strings.TrimRight(must("APP_URL"), "/"),

        YocoSecretKey:     must("YOCO_SECRET_KEY"),
        YocoWebhookSecret: must("YOCO_WEBHOOK_SECRET"),
        YocoAPIURL:        strings.TrimRight(envStr("YOCO_API_URL", "https://payments.yoco.com"), "/"),
        YocoTimeout:       envDur("YOCO_TIMEOUT", 10*time.Second),
        WebhookTolerance:  envDur("WEBHOOK_TOLERANCE", 3*time.Minute),

        CompetitionIDs:       splitList(envStr("COMPETITION_IDS", "default")),
        Capacity:             envInt("COMPETITION_CAPACITY", 8),
        EntryFeeCents:        int64(envInt("ENTRY_FEE_CENTS", 5000)),
        Currency:             strings.ToUpper(envStr("ENTRY_CURRENCY", "ZAR")),
        PendingTTL:           envDur("PENDING_TTL", 30*time.Minute),
        PendingSweepInterval: envDur("PENDING_SWEEP_INTERVAL", time.Minute),

        RabbitURL:           envStr("RABBITMQ_URL", os.Getenv("AMQP_URL")),
        EntryLogPath:        envStr("ENTRY_LOG_PATH", "logs/entries.log"),
        LokiURL:             os.Getenv("LOKI_URL"),
        MetricsPushURL:      os.Getenv("METRICS_PUSH_URL"),
        MetricsPushInterval: envDur("METRICS_PUSH_INTERVAL", 10*time.Second),
    }
    if cfg.StoreDriver == "mysql" {
        cfg.DBUser = must("DB_USER")
        cfg.DBPass = os.Getenv("DB_PASS") // empty allowed
        cfg.DBHost = must("DB_HOST")
        cfg.DBPort = must("DB_PORT")
        cfg.DBName = must("DB_NAME")
        cfg.AutoMigrate = envBool("DB_AUTO_MIGRATE", true)
    }
    if cfg.Capacity < 1 {
        log.Fatalf("COMPETITION_CAPACITY must be positive, got %d", cfg.Capacity)
    }
    if cfg.EntryFeeCents <= 0 {
        log.Fatalf("ENTRY_FEE_CENTS must be positive, got %d", cfg.EntryFeeCents)
    }
    if len(cfg.CompetitionIDs) == 0 {
        log.Fatal("COMPETITION_IDS must name at least one competition")
    }
    return cfg
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

// splitList turns a comma separated list of competition names into unique
// URL-safe ids ("Spring Show 2026" becomes "spring-show-2026").
func splitList(s string) []string {
    var out []string
    seen := map[string]bool{}
    for _, p := range strings.Split(s, ",") {
        p = slug.Make(strings.TrimSpace(p))
        if p != "" && !seen[p] {
            seen[p] = true
            out = append(out, p)
        }
    }
    return out
}
