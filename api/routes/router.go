package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/communityhq/communities-backend/api/controllers"
	"github.com/communityhq/communities-backend/api/middleware"
	"github.com/communityhq/communities-backend/internal/auth"
	"github.com/communityhq/communities-backend/internal/channels"
	"github.com/communityhq/communities-backend/internal/friends"
	"github.com/communityhq/communities-backend/internal/members"
	"github.com/communityhq/communities-backend/internal/messages"
	"github.com/communityhq/communities-backend/internal/servers"
	"github.com/communityhq/communities-backend/internal/users"
	"github.com/communityhq/communities-backend/pkg/auth/session"
	"github.com/communityhq/communities-backend/pkg/config"
	"github.com/communityhq/communities-backend/pkg/db"
	"github.com/communityhq/communities-backend/pkg/logger"
	"github.com/communityhq/communities-backend/pkg/redis"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Redis    *redis.Client
	Sessions session.AccessSessionChecker

	AuthService     auth.Service
	UsersRepo       *users.Repository
	ServersService  servers.Service
	ChannelsService channels.Service
	MessagesService messages.Service
	MembersService  members.Service
	FriendsService  friends.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(registerPolicy, deps.Redis, logg)).Post("/register", controllers.AuthRegister(deps.AuthService, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, deps.Redis, logg)).Post("/login", controllers.AuthLogin(deps.AuthService, logg))
		r.Post("/refresh", controllers.AuthRefresh(deps.AuthService, logg))
		r.Post("/logout", controllers.AuthLogout(deps.AuthService, cfg.JWT, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))

		r.Route("/users", func(r chi.Router) {
			r.Get("/me", controllers.UserMe(deps.UsersRepo, logg))
			r.Get("/", controllers.UserSearch(deps.UsersRepo, logg))
		})

		r.Route("/servers", func(r chi.Router) {
			r.Post("/", controllers.ServerCreate(deps.ServersService, logg))
			r.Get("/", controllers.ServerList(deps.ServersService, logg))
			r.Get("/discover", controllers.ServerDiscover(deps.ServersService, logg))

			r.Route("/{serverId}", func(r chi.Router) {
				r.Get("/", controllers.ServerGet(deps.ServersService, logg))
				r.Patch("/", controllers.ServerUpdate(deps.ServersService, logg))
				r.Delete("/", controllers.ServerDelete(deps.ServersService, logg))

				r.Route("/channels", func(r chi.Router) {
					r.Post("/", controllers.ChannelCreate(deps.ChannelsService, logg))
					r.Get("/", controllers.ChannelList(deps.ChannelsService, logg))
				})

				r.Route("/members", func(r chi.Router) {
					r.Post("/", controllers.MemberJoin(deps.MembersService, logg))
					r.Get("/", controllers.MemberList(deps.MembersService, logg))
					r.Patch("/{userId}", controllers.MemberUpdate(deps.MembersService, logg))
					r.Delete("/{userId}", controllers.MemberRemove(deps.MembersService, logg))
				})
			})
		})

		r.Route("/channels/{channelId}", func(r chi.Router) {
			r.Get("/", controllers.ChannelGet(deps.ChannelsService, logg))
			r.Patch("/", controllers.ChannelUpdate(deps.ChannelsService, logg))
			r.Delete("/", controllers.ChannelDelete(deps.ChannelsService, logg))

			r.Route("/messages", func(r chi.Router) {
				r.Post("/", controllers.MessageCreate(deps.MessagesService, logg))
				r.Get("/", controllers.MessageList(deps.MessagesService, logg))
			})
		})

		r.Route("/messages/{messageId}", func(r chi.Router) {
			r.Get("/", controllers.MessageGet(deps.MessagesService, logg))
			r.Put("/", controllers.MessageUpdate(deps.MessagesService, logg))
			r.Delete("/", controllers.MessageDelete(deps.MessagesService, logg))
		})

		r.Route("/friends", func(r chi.Router) {
			r.Get("/", controllers.FriendList(deps.FriendsService, logg))
			r.Delete("/{userId}", controllers.FriendRemove(deps.FriendsService, logg))
		})

		r.Route("/friend-requests", func(r chi.Router) {
			r.Get("/", controllers.FriendRequestList(deps.FriendsService, logg))
			r.Post("/", controllers.FriendRequestSend(deps.FriendsService, logg))
			r.Post("/{userId}/accept", controllers.FriendRequestAccept(deps.FriendsService, logg))
			r.Post("/{userId}/decline", controllers.FriendRequestDecline(deps.FriendsService, logg))
			r.Delete("/{userId}", controllers.FriendRequestCancel(deps.FriendsService, logg))
		})
	})

	return r
}
