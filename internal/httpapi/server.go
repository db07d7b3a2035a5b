package httpapi

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/guiderelay/internal/model"
	"github.com/tyemirov/guiderelay/internal/service"
)

const defaultTimeout = 5 * time.Second

//go:embed templates/*.html
var templateFiles embed.FS

var errInvalidForm = &service.ValidationError{Message: "invalid form data"}

// Config captures all inputs required to construct the HTTP server.
type Config struct {
	ListenAddr           string
	AllowedOrigins       []string
	Encoder              service.AttachmentEncoder
	Forwarder            service.PredictionForwarder
	NotificationSender   service.NotificationSender
	Logger               *slog.Logger
	ReadHeaderTimeout    time.Duration
	ShutdownGraceTimeout time.Duration
}

// Server hosts the relay endpoints and the landing page.
type Server struct {
	config     Config
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer wires Gin, middleware, and handlers for the HTTP API.
func NewServer(cfg Config) (*Server, error) {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return nil, errors.New("httpapi: listen address is required")
	}
	if cfg.Encoder == nil {
		return nil, errors.New("httpapi: upload encoder is required")
	}
	if cfg.Forwarder == nil {
		return nil, errors.New("httpapi: prediction forwarder is required")
	}
	if cfg.NotificationSender == nil {
		return nil, errors.New("httpapi: notification sender is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("httpapi: logger is required")
	}

	pageTemplates, err := template.ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(cfg.Logger))
	engine.Use(buildCORS(cfg.AllowedOrigins))
	engine.SetHTMLTemplate(pageTemplates)

	handler := newRelayHandler(cfg.Encoder, cfg.Forwarder, cfg.NotificationSender, cfg.Logger)
	engine.GET("/", handler.index)
	engine.GET("/health", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.POST("/ask", handler.ask)
	engine.POST("/send_itinerary", handler.sendItinerary)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           engine,
		ReadHeaderTimeout: pickDuration(cfg.ReadHeaderTimeout, defaultTimeout),
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		logger:     cfg.Logger,
	}, nil
}

// Start begins serving HTTP traffic.
func (server *Server) Start() error {
	server.logger.Info("HTTP server listening", "addr", server.config.ListenAddr)
	err := server.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully terminates the HTTP server.
func (server *Server) Shutdown(ctx context.Context) error {
	timeout := pickDuration(server.config.ShutdownGraceTimeout, defaultTimeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return server.httpServer.Shutdown(ctx)
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		started := time.Now()
		contextGin.Next()
		logger.Info(
			"http_request_completed",
			"method", contextGin.Request.Method,
			"path", contextGin.Request.URL.Path,
			"status", contextGin.Writer.Status(),
			"duration_ms", time.Since(started).Milliseconds(),
		)
	}
}

func buildCORS(allowedOrigins []string) gin.HandlerFunc {
	allowedMethods := []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	allowedHeaders := []string{"Content-Type", "Authorization", "X-Requested-With"}
	if len(allowedOrigins) == 0 {
		return cors.New(cors.Config{
			AllowAllOrigins: true,
			AllowHeaders:    allowedHeaders,
			AllowMethods:    allowedMethods,
		})
	}
	return cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowHeaders:     allowedHeaders,
		AllowMethods:     allowedMethods,
		AllowCredentials: true,
	})
}

type relayHandler struct {
	encoder   service.AttachmentEncoder
	forwarder service.PredictionForwarder
	notifier  service.NotificationSender
	logger    *slog.Logger
}

func newRelayHandler(encoder service.AttachmentEncoder, forwarder service.PredictionForwarder, notifier service.NotificationSender, logger *slog.Logger) *relayHandler {
	return &relayHandler{encoder: encoder, forwarder: forwarder, notifier: notifier, logger: logger}
}

func (handler *relayHandler) index(contextGin *gin.Context) {
	contextGin.HTML(http.StatusOK, "index.html", nil)
}

func (handler *relayHandler) ask(contextGin *gin.Context) {
	question := contextGin.PostForm("question")
	if err := service.ValidateQuestion(question); err != nil {
		handler.writeError(contextGin, err)
		return
	}

	request := model.PredictionRequest{Question: question}
	fileHeader, err := contextGin.FormFile("image")
	switch {
	case err == nil && fileHeader.Filename != "":
		attachment, encodeErr := handler.encoder.EncodeFileHeader(fileHeader)
		if encodeErr != nil {
			handler.writeError(contextGin, encodeErr)
			return
		}
		request.Uploads = []model.UploadAttachment{attachment}
	case err == nil, errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		handler.logger.Warn("Failed to parse ask form", "error", err)
		handler.writeError(contextGin, errInvalidForm)
		return
	}

	response, err := handler.forwarder.Forward(contextGin.Request.Context(), request)
	if err != nil {
		handler.writeError(contextGin, err)
		return
	}

	status := response.StatusCode
	if status < http.StatusOK || status >= http.StatusBadRequest {
		status = http.StatusOK
	}
	contextGin.JSON(status, response)
}

func (handler *relayHandler) sendItinerary(contextGin *gin.Context) {
	var payload model.ItineraryPayload
	if err := contextGin.ShouldBindJSON(&payload); err != nil {
		handler.logger.Debug("Ignoring unreadable itinerary payload", "error", err)
		payload = model.ItineraryPayload{}
	}

	if err := handler.notifier.SendNotification(contextGin.Request.Context(), payload.EmailRequest()); err != nil {
		handler.writeError(contextGin, err)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{"success": true, "status": "Email sent"})
}

func (handler *relayHandler) writeError(contextGin *gin.Context, err error) {
	var (
		validationErr    *service.ValidationError
		upstreamErr      *service.UpstreamError
		protocolErr      *service.ProtocolError
		configurationErr *service.ConfigurationError
		deliveryErr      *service.DeliveryError
	)
	switch {
	case errors.As(err, &validationErr):
		contextGin.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Message})
	case errors.As(err, &upstreamErr):
		contextGin.JSON(http.StatusBadGateway, gin.H{"error": service.ErrUpstreamUnreachable.Error(), "detail": upstreamErr.Detail()})
	case errors.As(err, &protocolErr):
		contextGin.JSON(http.StatusInternalServerError, gin.H{"error": service.ErrUpstreamProtocol.Error(), "raw": protocolErr.Raw})
	case errors.As(err, &configurationErr):
		contextGin.JSON(http.StatusInternalServerError, gin.H{"error": configurationErr.Message})
	case errors.As(err, &deliveryErr):
		contextGin.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send email", "detail": deliveryErr.Detail()})
	default:
		handler.logger.Error("http_handler_error", "path", contextGin.Request.URL.Path, "error", err)
		contextGin.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func pickDuration(candidate time.Duration, fallback time.Duration) time.Duration {
	if candidate <= 0 {
		return fallback
	}
	return candidate
}
