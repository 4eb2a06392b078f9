// Package server wires the HTTP handlers into one chi router.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Muhammad-Alii2/vibeverse/internal/auth"
	"github.com/Muhammad-Alii2/vibeverse/internal/database"
	"github.com/Muhammad-Alii2/vibeverse/internal/events"
	"github.com/Muhammad-Alii2/vibeverse/internal/ratelimit"
	"github.com/Muhammad-Alii2/vibeverse/internal/relation"
	"github.com/Muhammad-Alii2/vibeverse/internal/tweet"
	"github.com/Muhammad-Alii2/vibeverse/internal/video"
	"github.com/Muhammad-Alii2/vibeverse/internal/views"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	DB               database.DBTX
	Pinger           Pinger
	Blobs            video.BlobStore
	Signer           *auth.Signer
	Emitter          *events.Emitter
	Geo              video.CountryResolver
	BaseURL          string
	StoragePublicURL string
	MaxUploadBytes   int64
	RequestTimeout   time.Duration

	// Rate limit buckets; nil selects an in-memory store.
	AuthLimits ratelimit.Store
	APILimits  ratelimit.Store
}

type Server struct {
	router   chi.Router
	pinger   Pinger
	auth     *auth.Handler
	relation *relation.Handler
	views    *views.Handler
	video    *video.Handler
	tweet    *tweet.Handler

	authLimiter *ratelimit.Limiter
	apiLimiter  *ratelimit.Limiter
}

func New(cfg Config) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(slogMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders(SecurityConfig{
		BaseURL:         cfg.BaseURL,
		StorageEndpoint: cfg.StoragePublicURL,
	}))
	if cfg.RequestTimeout > 0 {
		r.Use(requestTimeout(cfg.RequestTimeout))
	}

	if cfg.AuthLimits == nil {
		cfg.AuthLimits = ratelimit.NewMemoryStore(0.5, 5)
	}
	if cfg.APILimits == nil {
		cfg.APILimits = ratelimit.NewMemoryStore(10, 40)
	}

	engine := relation.NewEngine(cfg.DB)
	composer := views.NewComposer(cfg.DB, engine)

	authHandler := auth.NewHandler(auth.NewStore(cfg.DB, cfg.Signer), cfg.Blobs,
		strings.HasPrefix(cfg.BaseURL, "https://"), cfg.MaxUploadBytes)
	authHandler.SetEdgePurger(engine)

	videoHandler := video.NewHandler(cfg.DB, composer, engine, cfg.Blobs, cfg.MaxUploadBytes)
	videoHandler.SetEmitter(cfg.Emitter)
	if cfg.Geo != nil {
		videoHandler.SetCountryResolver(cfg.Geo)
	}

	s := &Server{
		router:      r,
		pinger:      cfg.Pinger,
		auth:        authHandler,
		relation:    relation.NewHandler(engine, cfg.Emitter),
		views:       views.NewHandler(composer),
		video:       videoHandler,
		tweet:       tweet.NewHandler(cfg.DB, engine),
		authLimiter: ratelimit.NewLimiter(cfg.AuthLimits, "auth"),
		apiLimiter:  ratelimit.NewLimiter(cfg.APILimits, "api"),
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.apiLimiter.Middleware)

		r.Route("/users", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(s.authLimiter.Middleware)
				r.Post("/register", s.auth.Register)
				r.Post("/login", s.auth.Login)
				r.Post("/refresh-token", s.auth.RefreshToken)
			})
			r.With(s.auth.OptionalMiddleware).Get("/c/{username}", s.views.ChannelProfile)
			r.Group(func(r chi.Router) {
				r.Use(s.auth.Middleware)
				r.Post("/logout", s.auth.Logout)
				r.Post("/change-password", s.auth.ChangePassword)
				r.Get("/current-user", s.auth.CurrentUser)
				r.Patch("/update-account", s.auth.UpdateAccount)
				r.Patch("/avatar", s.auth.UpdateAvatar)
				r.Patch("/cover-image", s.auth.UpdateCoverImage)
				r.Get("/history", s.views.WatchHistory)
				r.Delete("/me", s.auth.DeleteAccount)
			})
		})

		r.Route("/videos", func(r chi.Router) {
			r.With(s.auth.OptionalMiddleware).Get("/", s.views.SearchVideos)
			r.With(s.auth.OptionalMiddleware).Get("/{videoId}", s.video.Get)
			r.Group(func(r chi.Router) {
				r.Use(s.auth.Middleware)
				r.Post("/", s.video.Publish)
				r.Patch("/{videoId}", s.video.Update)
				r.Delete("/{videoId}", s.video.Delete)
				r.Patch("/toggle/publish/{videoId}", s.video.TogglePublish)
			})
		})

		r.Route("/comments", func(r chi.Router) {
			r.With(s.auth.OptionalMiddleware).Get("/{videoId}", s.views.VideoComments)
			r.Group(func(r chi.Router) {
				r.Use(s.auth.Middleware)
				r.Post("/{videoId}", s.video.AddComment)
				r.Patch("/c/{commentId}", s.video.UpdateComment)
				r.Delete("/c/{commentId}", s.video.DeleteComment)
			})
		})

		r.Route("/tweets", func(r chi.Router) {
			r.With(s.auth.OptionalMiddleware).Get("/user/{userId}", s.views.UserTweets)
			r.Group(func(r chi.Router) {
				r.Use(s.auth.Middleware)
				r.Post("/", s.tweet.Create)
				r.Patch("/{tweetId}", s.tweet.Update)
				r.Delete("/{tweetId}", s.tweet.Delete)
			})
		})

		r.Route("/likes", func(r chi.Router) {
			r.Use(s.auth.Middleware)
			r.Post("/toggle/v/{videoId}", s.relation.ToggleVideoLike)
			r.Post("/toggle/c/{commentId}", s.relation.ToggleCommentLike)
			r.Post("/toggle/t/{tweetId}", s.relation.ToggleTweetLike)
			r.Get("/videos", s.views.LikedVideos)
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.With(s.auth.OptionalMiddleware).Get("/c/{channelId}", s.views.ChannelSubscribers)
			r.With(s.auth.OptionalMiddleware).Get("/u/{subscriberId}", s.views.SubscribedChannels)
			r.With(s.auth.Middleware).Post("/c/{channelId}", s.relation.ToggleSubscription)
		})

		r.Route("/playlist", func(r chi.Router) {
			r.With(s.auth.OptionalMiddleware).Get("/{playlistId}", s.views.Playlist)
			r.With(s.auth.OptionalMiddleware).Get("/user/{userId}", s.views.UserPlaylists)
			r.Group(func(r chi.Router) {
				r.Use(s.auth.Middleware)
				r.Post("/", s.video.CreatePlaylist)
				r.Patch("/{playlistId}", s.video.UpdatePlaylist)
				r.Delete("/{playlistId}", s.video.DeletePlaylist)
				r.Patch("/add/{videoId}/{playlistId}", s.video.AddPlaylistVideo)
				r.Patch("/remove/{videoId}/{playlistId}", s.video.RemovePlaylistVideo)
			})
		})

		r.Route("/dashboard", func(r chi.Router) {
			r.Use(s.auth.Middleware)
			r.Get("/stats", s.views.DashboardStats)
			r.Get("/videos", s.views.DashboardVideos)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unhealthy","error":"database unreachable"}`))
			return
		}
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
