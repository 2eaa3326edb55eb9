package main

import (
	"context"
	"encoding/base64"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/api/option"

	"synapseAPI/handlers"
	"synapseAPI/internal/push"
	"synapseAPI/internal/store"
	"synapseAPI/internal/subscription"
	"synapseAPI/middleware"
	"synapseAPI/services"

	_ "net/http/pprof"
)

var (
	recordStore         *store.Firestore
	authClient          *auth.Client
	notificationService *services.NotificationService
	relationshipService *services.RelationshipService
	engagementService   *services.EngagementService
	postService         *services.PostService
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	app, err := firebase.NewApp(ctx, nil, firebaseCredentials()...)
	if err != nil {
		log.Fatal("Failed to initialize Firebase app:", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		log.Fatal("Failed to initialize Firestore client:", err)
	}
	recordStore = store.NewFirestore(client)
	log.Println("Firestore initialized successfully")

	authClient, err = app.Auth(ctx)
	if err != nil {
		log.Fatal("Failed to initialize Auth client:", err)
	}

	registry := subscription.NewRegistry()
	notificationService = services.NewNotificationService(recordStore)
	relationshipService = services.NewRelationshipService(recordStore, notificationService, registry)
	engagementService = services.NewEngagementService(recordStore, notificationService, registry)
	postService = services.NewPostService(recordStore, registry)

	fcmService, err := push.NewFCMService(ctx, app)
	if err != nil {
		log.Printf("Warning: Could not initialize FCM: %v", err)
	} else {
		notificationService.SetPushProvider(fcmService)
		log.Println("FCM Push Provider initialized successfully")
	}

	middleware.InitPrometheus()
}

// firebaseCredentials resolves the service account from the
// FIREBASE_SERVICE_ACCOUNT_JSON env var (base64) or a local key file.
// With neither set, application default credentials apply.
func firebaseCredentials() []option.ClientOption {
	if encoded := os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON"); encoded != "" {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			log.Fatal("FIREBASE_SERVICE_ACCOUNT_JSON is not valid base64:", err)
		}
		return []option.ClientOption{option.WithCredentialsJSON(decoded)}
	}
	if _, err := os.Stat("./serviceAccountKey.json"); err == nil {
		return []option.ClientOption{option.WithCredentialsFile("./serviceAccountKey.json")}
	}
	return nil
}

func main() {
	defer func() {
		log.Println("Closing Firestore client...")
		if err := recordStore.Close(); err != nil {
			log.Printf("Firestore close error: %v", err)
		}
	}()

	relationshipHandler := handlers.NewRelationshipHandler(relationshipService)
	engagementHandler := handlers.NewEngagementHandler(engagementService, relationshipService)
	postHandler := handlers.NewPostHandler(postService, relationshipService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)

	r := mux.NewRouter()

	go middleware.CleanupVisitors()

	r.Use(middleware.RateLimitMiddleware)
	r.Use(middleware.MonitorMiddleware)

	r.Handle("/metrics", middleware.BasicAuthMiddleware(promhttp.Handler()))
	r.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(http.DefaultServeMux))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "synapse-api"}`))
	}).Methods("GET")

	// -------------------------------------------------------------------------
	// API V1 SUBROUTER
	// -------------------------------------------------------------------------
	api := r.PathPrefix("/api/v1").Subrouter()

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(authClient))

	protected.HandleFunc("/users/{uid}", relationshipHandler.GetUser).Methods("GET")
	protected.HandleFunc("/users/{uid}/block", relationshipHandler.Block).Methods("POST")
	protected.HandleFunc("/users/{uid}/block", relationshipHandler.Unblock).Methods("DELETE")

	protected.HandleFunc("/friends/requests", relationshipHandler.SendRequest).Methods("POST")
	protected.HandleFunc("/friends/requests/{requestId}/accept", relationshipHandler.AcceptRequest).Methods("POST")
	protected.HandleFunc("/friends/requests/{requestId}/decline", relationshipHandler.DeclineRequest).Methods("POST")
	protected.HandleFunc("/friends/requests/{requestId}", relationshipHandler.CancelRequest).Methods("DELETE")
	protected.HandleFunc("/friends/status/{uid}", relationshipHandler.Status).Methods("GET")
	protected.HandleFunc("/friends/{uid}", relationshipHandler.Unfriend).Methods("DELETE")

	protected.HandleFunc("/posts", postHandler.CreatePost).Methods("POST")
	protected.HandleFunc("/posts", postHandler.GetFeed).Methods("GET")
	protected.HandleFunc("/posts/{postId}", engagementHandler.GetPost).Methods("GET")
	protected.HandleFunc("/posts/{postId}/like", engagementHandler.ToggleLike).Methods("POST")
	protected.HandleFunc("/posts/{postId}/comments", engagementHandler.AddComment).Methods("POST")
	protected.HandleFunc("/posts/{postId}/comments", engagementHandler.GetComments).Methods("GET")

	protected.HandleFunc("/communities", postHandler.CreateCommunity).Methods("POST")
	protected.HandleFunc("/communities", postHandler.ListCommunities).Methods("GET")
	protected.HandleFunc("/communities/{communityId}/join", postHandler.JoinCommunity).Methods("POST")
	protected.HandleFunc("/communities/{communityId}/leave", postHandler.LeaveCommunity).Methods("POST")

	protected.HandleFunc("/notifications", notificationHandler.GetNotifications).Methods("GET")
	protected.HandleFunc("/notifications/unread-count", notificationHandler.GetUnreadCount).Methods("GET")
	protected.HandleFunc("/notifications/read-all", notificationHandler.MarkAllAsRead).Methods("PUT")
	protected.HandleFunc("/notifications/devices", notificationHandler.RegisterDevice).Methods("POST")
	protected.HandleFunc("/notifications/{notificationId}/read", notificationHandler.MarkAsRead).Methods("PUT")
	protected.HandleFunc("/notifications/{notificationId}", notificationHandler.DeleteNotification).Methods("DELETE")

	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Pprof-Secret"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3333"
	}
	port = ":" + port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server:", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	notificationService.Stop()
	log.Println("Server shutdown complete")
}
