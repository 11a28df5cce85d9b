package main

import (
	"expvar"
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"
	"time"

	"shopdesk/internal/auth"
	"shopdesk/internal/db"
	"shopdesk/internal/mailer"
	"shopdesk/internal/ratelimiter"
	"shopdesk/internal/store"
	"shopdesk/internal/uploads"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoadRateLimiterConfig retrieves rate limiter settings from environment variables
func LoadRateLimiterConfig() ratelimiter.Config {
	defaultRequests := 200
	defaultEnabled := false

	requestsPerTimeFrame := defaultRequests
	if val, exists := os.LookupEnv("RATELIMITER_REQUESTS_COUNT"); exists {
		if parsedVal, err := strconv.Atoi(val); err == nil {
			requestsPerTimeFrame = parsedVal
		} else {
			fmt.Println("Invalid RATELIMITER_REQUESTS_COUNT, defaulting to", defaultRequests)
		}
	}

	enabled := defaultEnabled
	if val, exists := os.LookupEnv("RATE_LIMITER_ENABLED"); exists {
		if parsedVal, err := strconv.ParseBool(val); err == nil {
			enabled = parsedVal
		} else {
			fmt.Println("Invalid RATE_LIMITER_ENABLED, defaulting to", defaultEnabled)
		}
	}

	return ratelimiter.Config{
		RequestsPerTimeFrame: requestsPerTimeFrame,
		TimeFrame:            5 * time.Second,
		Enabled:              enabled,
	}
}

// NewLogger creates a new zap logger with color.
func NewLogger() (*zap.SugaredLogger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)

	level := zapcore.InfoLevel

	core := zapcore.NewCore(consoleEncoder, zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout)), level)

	logger := zap.New(core)

	return logger.Sugar(), nil
}

var version = "1.0.0"

//	@title			Shopdesk API
//	@description	Back-office API for a small shop: products, categories and access tokens.

//	@contact.name	API Support
//	@contact.url	http://www.swagger.io/support
//	@contact.email	support@swagger.io

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@BasePath					/v1
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						Authorization
//	@description

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Fatalf("Error loading .env file: %v", err)
	}

	maxConnsStr := os.Getenv("DB_MAX_CONNS")
	maxConns, err := strconv.Atoi(maxConnsStr)
	if err != nil {
		log.Fatalf("Invalid value for DB_MAX_CONNS: %v", err)
	}

	smtpPort := 587
	if val := os.Getenv("SMTP_PORT"); val != "" {
		smtpPort, err = strconv.Atoi(val)
		if err != nil {
			log.Fatalf("Invalid value for SMTP_PORT: %v", err)
		}
	}

	cfg := config{
		addr:        os.Getenv("ADDR"),
		env:         os.Getenv("ENV"),
		frontendURL: os.Getenv("FRONTEND_URL"),
		apiURL:      os.Getenv("EXTERNAL_URL"),
		db: dbConfig{
			addr:        os.Getenv("DB_ADDR"),
			maxConns:    int32(maxConns),
			maxIdleTime: os.Getenv("DB_MAX_IDLE_TIME"),
		},
		mail: mailConfig{
			fromEmail: os.Getenv("SMTP_FROM_EMAIL"),
			smtp: smtpConfig{
				host:     os.Getenv("SMTP_HOST"),
				port:     smtpPort,
				username: os.Getenv("SMTP_USERNAME"),
				password: os.Getenv("SMTP_PASSWORD"),
			},
		},
		auth: authConfig{
			basic: basicConfig{
				user: os.Getenv("AUTH_BASIC_USER"),
				pass: os.Getenv("AUTH_BASIC_PASS"),
			},
			token: tokenConfig{
				secret: os.Getenv("AUTH_TOKEN_SECRET"),
				exp:    time.Hour * 24 * 3, // 3 days
				iss:    "Shopdesk",
			},
		},
		uploads: uploadsConfig{
			dir:     os.Getenv("UPLOADS_DIR"),
			baseURL: os.Getenv("UPLOADS_BASE_URL"),
		},
		rateLimiter: LoadRateLimiterConfig(),
	}

	// Logger
	logger, err := NewLogger()
	if err != nil {
		fmt.Println("Error creating logger:", err)
		return
	}
	defer logger.Sync()

	// Database
	pool, err := db.New(
		cfg.db.addr,
		cfg.db.maxConns,
		cfg.db.maxIdleTime,
	)
	if err != nil {
		logger.Fatal(err)
	}

	defer pool.Close()
	logger.Info("database connection pool established")

	//storage
	store := store.NewStorage(pool)

	// Thumbnail storage: Cloudinary when configured, local disk otherwise
	var uploadStore uploads.Store
	if cloudinaryURL := os.Getenv("CLOUDINARY_URL"); cloudinaryURL != "" {
		cld, err := cloudinary.NewFromURL(cloudinaryURL)
		if err != nil {
			logger.Fatal(err)
		}
		uploadStore = uploads.NewCloudinaryStore(cld)
	} else {
		uploadStore = uploads.NewDiskStore(cfg.uploads.dir, cfg.uploads.baseURL)
	}

	// Welcome mail is optional; without SMTP config registrations still work
	var mailClient mailer.Client
	if cfg.mail.smtp.host != "" {
		mailClient, err = mailer.NewSMTPClient(
			cfg.mail.smtp.host,
			cfg.mail.smtp.port,
			cfg.mail.smtp.username,
			cfg.mail.smtp.password,
			cfg.mail.fromEmail,
		)
		if err != nil {
			logger.Fatal(err)
		}
	}

	// Rate limiter
	rateLimiter := ratelimiter.NewFixedWindowLimiter(
		cfg.rateLimiter.RequestsPerTimeFrame,
		cfg.rateLimiter.TimeFrame,
	)

	// Authenticator
	jwtAuthenticator := auth.NewJWTAuthenticator(
		cfg.auth.token.secret,
		cfg.auth.token.iss,
		cfg.auth.token.iss,
		cfg.auth.token.exp,
	)

	app := &application{
		config:        cfg,
		logger:        logger,
		store:         store,
		uploads:       uploadStore,
		mailer:        mailClient,
		authenticator: jwtAuthenticator,
		rateLimiter:   rateLimiter,
	}

	//Metrics collected http://localhost:8080/v1/debug/vars
	expvar.NewString("version").Set(version)
	expvar.Publish("database", expvar.Func(func() any {
		stat := pool.Stat()
		return map[string]any{
			"total_conns":    stat.TotalConns(),
			"idle_conns":     stat.IdleConns(),
			"acquired_conns": stat.AcquiredConns(),
			"max_conns":      stat.MaxConns(),
		}
	}))
	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	mux := app.mount()

	logger.Fatal(app.run(mux))
}
