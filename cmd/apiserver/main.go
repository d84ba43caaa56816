package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/sirupsen/logrus"

	"tuneshare/internal/auth"
	"tuneshare/internal/config"
	"tuneshare/internal/handlers/apiserver"
	appKafka "tuneshare/internal/kafka"
	"tuneshare/internal/logging"
	"tuneshare/internal/middleware"
	appRedis "tuneshare/internal/redis"
	"tuneshare/internal/services"
	"tuneshare/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (default: ./config/config.yaml or ./config.yaml)")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("无法加载配置: %v", err)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	logrus.WithFields(logrus.Fields{"app": cfg.AppName, "version": cfg.AppVersion}).Info("API 服务器配置加载成功。")

	// 2. 初始化数据库连接
	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		logrus.Fatalf("无法初始化数据库: %v", err)
	}
	if err := storage.AutoMigrateTables(db); err != nil {
		logrus.Fatalf("数据库表迁移失败: %v", err)
	}

	// 3. Redis：令牌黑名单与在线状态限流。不可用时退化为进程内黑名单。
	var (
		tokenBlacklist auth.TokenBlacklist
		throttle       middleware.Throttle
	)
	redisClient, err := appRedis.NewClient(context.Background(), cfg.Redis)
	if err != nil {
		logrus.WithError(err).Warn("无法连接到 Redis，令牌黑名单仅在本进程内生效")
		tokenBlacklist = auth.NewMemoryBlacklist()
	} else {
		defer redisClient.Close()
		tokenBlacklist = appRedis.NewRedisTokenBlacklist(redisClient)
		throttle = appRedis.NewPresenceThrottle(redisClient, cfg.Redis.PresenceInterval)
		logrus.WithField("addr", cfg.Redis.Addr).Info("成功连接到 Redis")
	}

	// 4. 事件发布：Kafka 关闭时不发布
	var publisher services.EventPublisher = services.NoopPublisher{}
	if cfg.Kafka.Enabled {
		producer, err := appKafka.NewConfluentKafkaProducer(cfg.Kafka)
		if err != nil {
			logrus.Fatalf("无法创建 Kafka 生产者: %v", err)
		}
		defer producer.Close()
		publisher = appKafka.NewEventPublisher(producer, cfg.Kafka.RelationshipEventsTopic)
		logrus.WithField("topic", cfg.Kafka.RelationshipEventsTopic).Info("Kafka 生产者初始化成功。")
	} else {
		logrus.Info("Kafka 已禁用，关系事件不会推送。")
	}

	// 5. 本地文件存储（头像）
	files, err := storage.NewLocalStorageService(cfg.Storage)
	if err != nil {
		logrus.Fatalf("无法初始化本地存储服务: %v", err)
	}

	// 6. Repositories 与 Services
	userRepo := storage.NewGormUserRepository(db)
	friendReqRepo := storage.NewGormFriendRequestRepository(db)
	friendshipRepo := storage.NewGormFriendshipRepository(db)
	blockRepo := storage.NewGormBlockRepository(db)

	authService := services.NewAuthService(userRepo, tokenBlacklist, cfg.Auth)
	userService := services.NewUserService(userRepo, friendshipRepo, files, publisher)
	relService := services.NewRelationshipService(db, userRepo, friendReqRepo, friendshipRepo, blockRepo, publisher)

	// 7. 路由
	authMW := middleware.AuthMiddleware(authService, cfg.Auth.CookieName, &middleware.PresenceTracker{
		Users:    userService,
		Throttle: throttle,
	})
	r := apiserver.NewRouter(apiserver.Handlers{
		Auth:          apiserver.NewAuthHandler(authService, cfg.Auth),
		Users:         apiserver.NewUserHandler(userService, cfg.Storage),
		Relationships: apiserver.NewRelationshipHandler(relService),
	}, authMW)

	// 上传的头像
	staticPath := strings.TrimSuffix(cfg.Storage.BaseURL, "/") + "/"
	r.PathPrefix(staticPath).Handler(http.StripPrefix(staticPath, http.FileServer(http.Dir(cfg.Storage.LocalPath))))
	logrus.Infof("提供静态文件服务于 %s -> %s", staticPath, cfg.Storage.LocalPath)

	// 8. CORS、panic 恢复与访问日志
	corsOptions := []handlers.CORSOption{
		handlers.AllowedOrigins(cfg.APIServer.CORS.AllowedOrigins),
		handlers.AllowedMethods(cfg.APIServer.CORS.AllowedMethods),
		handlers.AllowedHeaders(cfg.APIServer.CORS.AllowedHeaders),
		handlers.ExposedHeaders(cfg.APIServer.CORS.ExposedHeaders),
		handlers.MaxAge(cfg.APIServer.CORS.MaxAge),
	}
	if cfg.APIServer.CORS.AllowCredentials {
		corsOptions = append(corsOptions, handlers.AllowCredentials())
	}
	accessLog := logrus.StandardLogger().WriterLevel(logrus.InfoLevel)
	defer accessLog.Close()

	var handler http.Handler = r
	handler = handlers.RecoveryHandler(handlers.RecoveryLogger(logrus.StandardLogger()), handlers.PrintRecoveryStack(true))(handler)
	handler = handlers.CORS(corsOptions...)(handler)
	handler = handlers.CombinedLoggingHandler(accessLog, handler)

	// 9. 启动 HTTP 服务器并实现优雅关闭
	serverAddr := fmt.Sprintf("%s:%s", cfg.APIServer.Host, cfg.APIServer.Port)
	srv := &http.Server{
		Addr:           serverAddr,
		Handler:        handler,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
		IdleTimeout:    time.Second * 60,
	}

	go func() {
		logrus.Infof("API 服务器启动于 %s", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("API 服务器启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("收到关闭信号，正在关闭 API 服务器...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		logrus.Errorf("API 服务器强制关闭: %v", err)
	}
	logrus.Info("API 服务器已成功关闭")
}
