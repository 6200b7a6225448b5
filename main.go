package main

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"consult-chat/internal/access"
	"consult-chat/internal/db"
	"consult-chat/internal/extension"
	"consult-chat/internal/handlers"
	"consult-chat/internal/identity"
	"consult-chat/internal/middleware"
	"consult-chat/internal/observability"
	"consult-chat/internal/presence"
	"consult-chat/internal/rabbitmq"
	"consult-chat/internal/repositories"
	"consult-chat/internal/telemetry"
	"consult-chat/internal/ws"
)

const serviceName = "consult-chat"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if getEnv("LOG_PRETTY", "") != "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	shutdownTracing := telemetry.SetupTracing(context.Background(), serviceName, getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	database, err := db.Connect()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to db")
	}

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}
	verifier := identity.NewVerifier(jwtSecret)

	publisher := rabbitmq.NewPublisher(getEnv("AMQP_URL", ""), getEnv("AUDIT_EXCHANGE", "platform.events"))
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Info().Str("mode", rabbitmq.PublisherMode(publisher)).Msg("event publisher ready")

	emitter := telemetry.NewAuditEmitter(publisher, getEnv("AUDIT_ROUTING_KEY", "audit.chat"), serviceName, getEnv("ENVIRONMENT", "development"))

	roomRepo := repositories.NewRoomRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	apptRepo := repositories.NewAppointmentRepo(database)
	walletRepo := repositories.NewWalletRepo(database)
	profileRepo := repositories.NewProfileRepo(database)

	hub := ws.NewHub()

	presenceHub := presence.NewHub(hub)
	go presenceHub.Run()
	defer presenceHub.Stop()

	gate := access.NewGate(time.Duration(getEnvInt("GRACE_MINUTES", 10)) * time.Minute)
	negotiator := extension.NewNegotiator(
		database,
		apptRepo,
		hub,
		emitter,
		int64(getEnvInt("EXTENSION_COST_CENTS", 3000)),
		time.Duration(getEnvInt("EXTENSION_MINUTES", 30))*time.Minute,
	)

	chatHandler := handlers.NewChatHandler(roomRepo, messageRepo, apptRepo, profileRepo)
	walletHandler := handlers.NewWalletHandler(walletRepo)
	chatWS := ws.NewChatSocketHandler(hub, roomRepo, messageRepo, apptRepo, gate, presenceHub, negotiator, verifier)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/chats", authMiddleware, chatHandler.ListRooms)
	router.GET("/appointments/:appointment_id/messages", authMiddleware, chatHandler.GetAppointmentMessages)
	router.GET("/rooms/:room_id/messages", authMiddleware, chatHandler.GetRoomMessages)
	router.GET("/wallet", authMiddleware, walletHandler.GetBalance)

	router.GET("/ws", chatWS.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterDebugRoutes(router, emitter, getEnv("ENABLE_DEBUG_ROUTES", "") != "")

	port := getEnv("PORT", "8083")
	log.Info().Str("port", port).Msg("consultation chat service listening")
	if err := router.Run(":" + port); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
		log.Warn().Str("key", key).Str("value", val).Msg("invalid integer env var, using fallback")
	}
	return fallback
}
