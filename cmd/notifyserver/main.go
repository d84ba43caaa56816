package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"tuneshare/internal/auth"
	"tuneshare/internal/config"
	"tuneshare/internal/handlers/notifyserver"
	appKafka "tuneshare/internal/kafka"
	kafkahandlers "tuneshare/internal/kafka/handlers"
	"tuneshare/internal/logging"
	appRedis "tuneshare/internal/redis"
	"tuneshare/internal/websocket"
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
	logrus.Info("Notify 服务器配置加载成功。")

	if !cfg.Kafka.Enabled {
		logrus.Fatal("Notify 服务器依赖 Kafka，请设置 KAFKA.ENABLED=true")
	}

	// 2. Redis 黑名单，使登出的令牌无法再建立连接
	var tokenBlacklist auth.TokenBlacklist
	redisClient, err := appRedis.NewClient(context.Background(), cfg.Redis)
	if err != nil {
		logrus.WithError(err).Warn("无法连接到 Redis，已吊销的令牌仍可建立连接")
	} else {
		defer redisClient.Close()
		tokenBlacklist = appRedis.NewRedisTokenBlacklist(redisClient)
	}
	validator := notifyserver.JWTValidator{Key: cfg.Auth.JWTSecretKey, Blacklist: tokenBlacklist}

	// 3. 初始化 WebSocket Hub
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := websocket.NewHub()
	go hub.Run(ctx)

	// 4. Kafka 消费者：每个实例使用独立的 group，以便收到全部事件
	consumer, err := appKafka.NewConfluentKafkaConsumer(cfg.Kafka)
	if err != nil {
		logrus.Fatalf("无法创建 Kafka 消费者: %v", err)
	}
	defer consumer.Close()

	groupID := instanceGroupID(cfg.Kafka.ConsumerGroup)
	eventHandler := kafkahandlers.NewRelationshipEventHandler(hub)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		topics := []string{cfg.Kafka.RelationshipEventsTopic}
		if err := consumer.Consume(ctx, topics, groupID, eventHandler.Handle); err != nil && !errors.Is(err, context.Canceled) {
			logrus.WithError(err).Error("Kafka 消费者错误")
		}
		logrus.Info("Kafka 消费者 goroutine 已停止。")
	}()

	// 5. HTTP 服务器
	wsHandler := notifyserver.NewWebSocketHandler(hub, validator, cfg)
	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Server.WebSocketPath, wsHandler.ServeWS)

	serverAddr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:           serverAddr,
		Handler:        mux,
		ReadTimeout:    cfg.Server.ReadTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		logrus.Infof("Notify HTTP 服务器启动于 %s, WebSocket 路径: %s", serverAddr, cfg.Server.WebSocketPath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("Notify 服务器启动失败: %v", err)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Notify 服务器准备关闭...")

	cancel()
	wg.Wait()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		logrus.Errorf("Notify 服务器关闭失败: %v", err)
	}
	logrus.Info("Notify 服务器已优雅关闭。")
}

// instanceGroupID 为每个进程生成独立的消费组：用户可能连接到任意实例。
func instanceGroupID(base string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = fmt.Sprintf("pid%d", os.Getpid())
	}
	return base + "-" + host
}
