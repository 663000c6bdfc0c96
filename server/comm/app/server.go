package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"matri_server/server/comm/api"
	"matri_server/server/comm/repository"
	"matri_server/server/comm/service"
	commonauth "matri_server/server/common/auth"
	"matri_server/server/common/infra/cache"
	"matri_server/server/common/infra/db"
	"matri_server/server/common/infra/mq"
	"matri_server/server/common/infra/object"
)

type Server struct {
	HTTPServer *http.Server
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	MQConn     *amqp.Connection
	Hub        *service.Hub
	Publisher  *service.AMQPPublisher
}

func NewServer(cfg Config) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	minioClient, err := object.NewClient(cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOUseSSL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialize minio: %w", err)
	}
	if err := object.EnsureBucket(ctx, minioClient, cfg.MinIOBucket); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure media bucket: %w", err)
	}
	blobs := service.NewMinIOStore(minioClient, cfg.MinIOBucket)

	hub := service.NewHub()

	var redisClient *redis.Client
	if cfg.UseRedis {
		redisClient = cache.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := cache.Ping(ctx, redisClient); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		hub.UseRedis(redisClient)
		if err := hub.StartRedisSubscriber(context.Background()); err != nil {
			pool.Close()
			return nil, fmt.Errorf("start hub subscriber: %w", err)
		}
	}

	var (
		mqConn    *amqp.Connection
		publisher *service.AMQPPublisher
	)
	if cfg.UseMQ {
		mqConn, err = mq.NewConnection(cfg.AMQPURL)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect amqp: %w", err)
		}
		publisher, err = service.NewAMQPPublisher(mqConn)
		if err != nil {
			_ = mqConn.Close()
			pool.Close()
			return nil, fmt.Errorf("initialize event publisher: %w", err)
		}
	}

	messages := repository.NewMessageRepository(pool)
	users := repository.NewUserRepository(pool)

	var events service.EventPublisher
	if publisher != nil {
		events = publisher
	}
	gateway := service.NewGateway(messages, users, blobs, hub, events, cfg.StoreTimeout)

	typing := service.NewTypingNotifier(hub)
	relay := service.NewRelay(hub.Presence())
	realtime := service.NewRealtimeService(hub, typing, relay)

	auth := commonauth.NewService(cfg.JWTSecret, cfg.JWTTTLMinutes)
	handler := api.NewHandler(gateway, realtime, blobs, auth)

	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	handler.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		HTTPServer: httpServer,
		Pool:       pool,
		Redis:      redisClient,
		MQConn:     mqConn,
		Hub:        hub,
		Publisher:  publisher,
	}, nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.Hub.StopRedisSubscriber()
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.MQConn != nil {
		_ = s.MQConn.Close()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	err := s.HTTPServer.Shutdown(ctx)
	s.Pool.Close()
	return err
}
