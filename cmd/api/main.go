package main

import (
	"context"
	"net/http"
	"os"

	"github.com/communityhq/communities-backend/api/routes"
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
	"github.com/communityhq/communities-backend/pkg/migrate"
	"github.com/communityhq/communities-backend/pkg/outbox"
	"github.com/communityhq/communities-backend/pkg/redis"
	"github.com/joho/godotenv"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	usersRepo := users.NewRepository(dbClient.DB())
	serversRepo := servers.NewRepository(dbClient.DB())
	channelsRepo := channels.NewRepository(dbClient.DB())
	messagesRepo := messages.NewRepository(dbClient.DB())
	membersRepo := members.NewRepository(dbClient.DB())
	friendsRepo := friends.NewRepository(dbClient.DB())
	outboxWriter := outbox.NewWriter(outbox.NewGormStore(dbClient.DB()), logg)

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       usersRepo,
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	serversService, err := servers.NewService(serversRepo, membersRepo, dbClient, outboxWriter)
	if err != nil {
		logg.Error(context.Background(), "failed to create servers service", err)
		os.Exit(1)
	}

	channelsService, err := channels.NewService(channelsRepo, serversRepo, membersRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create channels service", err)
		os.Exit(1)
	}

	messagesService, err := messages.NewService(messages.ServiceParams{
		Repo:     messagesRepo,
		Channels: channelsRepo,
		Servers:  serversRepo,
		Members:  membersRepo,
		Tx:       dbClient,
		Outbox:   outboxWriter,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create messages service", err)
		os.Exit(1)
	}

	membersService, err := members.NewService(members.ServiceParams{
		Repo:    membersRepo,
		Servers: serversRepo,
		Users:   usersRepo,
		Tx:      dbClient,
		Outbox:  outboxWriter,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create members service", err)
		os.Exit(1)
	}

	friendsService, err := friends.NewService(friendsRepo, usersRepo, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create friends service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:          cfg,
			Logger:          logg,
			DB:              dbClient,
			Redis:           redisClient,
			Sessions:        sessionManager,
			AuthService:     authService,
			UsersRepo:       usersRepo,
			ServersService:  serversService,
			ChannelsService: channelsService,
			MessagesService: messagesService,
			MembersService:  membersService,
			FriendsService:  friendsService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
