package setup

import (
	"github.com/mindwell-dev/mindwell/internal/broker"
	"github.com/mindwell-dev/mindwell/internal/config"
	"github.com/mindwell-dev/mindwell/internal/domain"
	"github.com/mindwell-dev/mindwell/internal/handler"
	"github.com/mindwell-dev/mindwell/internal/jwt"
	"github.com/mindwell-dev/mindwell/internal/middleware"
	"github.com/mindwell-dev/mindwell/internal/service"
	"github.com/mindwell-dev/mindwell/internal/storage/pg"
	"github.com/mindwell-dev/mindwell/internal/utils"
)

// Dependencies struct to hold all initialized dependencies.
type Dependencies struct {
	Storage        *pg.Storage
	Handler        *handler.Handler
	Broker         *broker.Broker
	Jwt            jwt.JwtService
	AuthMiddleware *middleware.Auth
	Config         *config.Config
}

// SetupDependencies initializes all dependencies required for the application.
func SetupDependencies(cfg *config.Config) (*Dependencies, error) {
	storage, err := pg.New(cfg)
	if err != nil {
		return nil, err
	}

	jwtService := jwt.New(cfg.JwtKey(), cfg.Public.AnonSessionTTL)

	directory := &service.StaticDirectory{Students: make(map[domain.ParticipantRef]domain.StudentIdentity)}
	for ref, entry := range cfg.Private.Directory {
		directory.Students[ref] = domain.StudentIdentity{
			Ref:           ref,
			DisplayName:   entry.DisplayName,
			StudentNumber: entry.StudentNumber,
		}
	}
	resolver := service.NewIdentityResolver(directory)

	// The broker publishes for the services and asks the thread service
	// for view rights, so the authorizer is bound after construction.
	b := broker.New(nil, cfg.Public.EventBufferSize)

	thread := service.NewThread(storage, resolver, b, cfg.Public.ConflictRetries)
	message := service.NewMessage(storage, utils.NewMessageTextValidator(cfg.Public.MaxMessageLength), b, cfg.Public.ConflictRetries)
	b.SetAuthorizer(thread)

	h := handler.New(thread, message, b, jwtService, storage, cfg)

	return &Dependencies{
		Storage:        storage,
		Handler:        h,
		Broker:         b,
		Jwt:            jwtService,
		AuthMiddleware: middleware.NewAuth(jwtService),
		Config:         cfg,
	}, nil
}
