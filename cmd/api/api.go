package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopdesk/docs" //this is required to generate swagger docs
	"shopdesk/internal/auth"
	"shopdesk/internal/mailer"
	"shopdesk/internal/ratelimiter"
	"shopdesk/internal/store"
	"shopdesk/internal/uploads"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

type application struct {
	config        config
	store         store.Storage
	logger        *zap.SugaredLogger
	uploads       uploads.Store
	mailer        mailer.Client
	authenticator auth.Authenticator
	rateLimiter   ratelimiter.Limiter
}

type config struct {
	addr        string
	db          dbConfig
	env         string
	apiURL      string
	frontendURL string
	mail        mailConfig
	auth        authConfig
	uploads     uploadsConfig
	rateLimiter ratelimiter.Config
}

type authConfig struct {
	basic basicConfig
	token tokenConfig
}

type tokenConfig struct {
	secret string
	exp    time.Duration
	iss    string
}

type basicConfig struct {
	user string
	pass string
}

type mailConfig struct {
	fromEmail string
	smtp      smtpConfig
}

type smtpConfig struct {
	host     string
	port     int
	username string
	password string
}

type dbConfig struct {
	addr        string
	maxConns    int32
	maxIdleTime string
}

type uploadsConfig struct {
	dir     string
	baseURL string
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(app.RateLimiterMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	//Set a timeout value on the request context (ctx), that will signal through ctx.Done() that the request has timed out and further processing should be stopped
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.With(app.BasicAuthMiddleware()).Get("/health", app.healthCheckHandler)
		docsURL := fmt.Sprintf("%s/swagger/doc.json", app.config.addr)
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL(docsURL)))

		r.With(app.BasicAuthMiddleware()).Get("/debug/vars", expvar.Handler().ServeHTTP)

		// Guest-only routes: an authenticated caller gets a 403
		r.Group(func(r chi.Router) {
			r.Use(app.GuestOnlyMiddleware)
			r.Post("/register", app.registerUserHandler)
			r.Post("/login", app.loginUserHandler)
		})

		r.Group(func(r chi.Router) {
			r.Use(app.AuthTokenMiddleware)

			r.Post("/logout", app.logoutHandler)

			r.Route("/categories", func(r chi.Router) {
				r.Get("/", app.listCategoriesHandler)
				r.Post("/", app.createCategoryHandler)
				r.Get("/all", app.getAllCategoriesHandler)

				r.Route("/{categoryID}", func(r chi.Router) {
					r.Get("/", app.getCategoryHandler)
					r.Put("/", app.updateCategoryHandler)
					r.Delete("/", app.deleteCategoryHandler)
				})
			})

			r.Route("/products", func(r chi.Router) {
				r.Get("/", app.listProductsHandler)
				r.Post("/", app.createProductHandler)

				r.Route("/{productID}", func(r chi.Router) {
					r.Get("/", app.getProductHandler)
					r.Put("/", app.updateProductHandler)
					r.Delete("/", app.deleteProductHandler)
				})
			})
		})
	})
	return r
}

func (app *application) run(mux http.Handler) error {
	// Docs
	docs.SwaggerInfo.Version = version
	docs.SwaggerInfo.Host = app.config.apiURL
	docs.SwaggerInfo.BasePath = "/v1"

	srv := &http.Server{
		Addr:         app.config.addr,
		Handler:      mux,
		WriteTimeout: time.Second * 30,
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute,
	}

	// Implementing graceful shutdown
	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Infow("signal caught", "signal", s.String())

		shutdown <- srv.Shutdown(ctx)
	}()

	app.logger.Infow("server has started", "addr", app.config.addr, "env", app.config.env)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Infow("server has stopped", "addr", app.config.addr, "env", app.config.env)

	return nil
}
