package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"passport-server/cache"
	"passport-server/handlers"
	"passport-server/middleware"
	"passport-server/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using default configuration")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is not set")
	}

	// Redis
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		log.Fatal("REDIS_ADDR environment variable is not set")
	}
	redisDB := 0
	if redisDBStr := os.Getenv("REDIS_DB"); redisDBStr != "" {
		var err error
		redisDB, err = strconv.Atoi(redisDBStr)
		if err != nil {
			log.Fatalf("Invalid REDIS_DB value: %v", err)
		}
	}
	redisClient := redis.NewClient(&redis.Options{
		Addr: redisAddr,
		DB:   redisDB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	// Initialize services and handlers
	userService := services.NewUserService(redisClient, jwtSecret)
	notificationService := services.NewNotificationService(userService)
	passportCache := cache.NewRedisPassportCache(redisClient)
	passportService := services.NewPassportService(userService, notificationService, passportCache)
	followService := services.NewFollowService(userService, notificationService)

	authHandler := handlers.NewAuthHandler(userService, jwtSecret)
	userHandler := handlers.NewUserHandler(userService)
	passportHandler := handlers.NewPassportHandler(passportService)
	followHandler := handlers.NewFollowHandler(followService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)

	r := mux.NewRouter()

	// CORS middleware
	allowedOrigins := []string{"http://localhost:3000", "http://localhost:5173"}
	r.Use(middleware.CORSMiddleware(allowedOrigins))
	r.Use(middleware.ErrorMiddleware())

	// Auth routes
	authRouter := r.PathPrefix("/auth").Subrouter()
	authRouter.HandleFunc("/register", authHandler.RegisterUser).Methods("POST", "OPTIONS")
	authRouter.HandleFunc("/login", authHandler.LoginUser).Methods("POST", "OPTIONS")

	// Public passcode lookup
	r.HandleFunc("/passport/view/{passcode}", passportHandler.ViewPassport).Methods("GET", "OPTIONS")

	// User routes
	userRouter := r.PathPrefix("/user").Subrouter()
	userRouter.Use(middleware.JWTMiddleware(jwtSecret))
	userRouter.HandleFunc("/me", userHandler.GetMe).Methods("GET", "OPTIONS")
	userRouter.HandleFunc("/privacy", userHandler.UpdatePrivacySettings).Methods("PUT", "OPTIONS")

	// Passport routes
	passportRouter := r.PathPrefix("/passport").Subrouter()
	passportRouter.Use(middleware.JWTMiddleware(jwtSecret))
	passportRouter.HandleFunc("", passportHandler.GetPassport).Methods("GET", "OPTIONS")
	passportRouter.HandleFunc("", passportHandler.UpdatePassport).Methods("PUT", "OPTIONS")

	// Follow routes
	followRouter := r.PathPrefix("/follow").Subrouter()
	followRouter.Use(middleware.JWTMiddleware(jwtSecret))
	followRouter.HandleFunc("/search", followHandler.Search).Methods("GET", "OPTIONS")
	followRouter.HandleFunc("/request/cancel/{userId}", followHandler.CancelRequest).Methods("DELETE", "OPTIONS")
	followRouter.HandleFunc("/request/{userId}", followHandler.SendRequest).Methods("POST", "OPTIONS")
	followRouter.HandleFunc("/accept/{userId}", followHandler.AcceptRequest).Methods("POST", "OPTIONS")
	followRouter.HandleFunc("/reject/{userId}", followHandler.RejectRequest).Methods("POST", "OPTIONS")
	followRouter.HandleFunc("/unfollow/{userId}", followHandler.Unfollow).Methods("DELETE", "OPTIONS")
	followRouter.HandleFunc("/block/{userId}", followHandler.Block).Methods("POST", "OPTIONS")
	followRouter.HandleFunc("/unblock/{userId}", followHandler.Unblock).Methods("POST", "OPTIONS")
	followRouter.HandleFunc("/remove-follower/{userId}", followHandler.RemoveFollower).Methods("POST", "OPTIONS")
	followRouter.HandleFunc("/followers", followHandler.Followers).Methods("GET", "OPTIONS")
	followRouter.HandleFunc("/following", followHandler.Following).Methods("GET", "OPTIONS")
	followRouter.HandleFunc("/requests/pending", followHandler.PendingRequests).Methods("GET", "OPTIONS")
	followRouter.HandleFunc("/requests/sent", followHandler.SentRequests).Methods("GET", "OPTIONS")
	followRouter.HandleFunc("/blocked", followHandler.BlockedUsers).Methods("GET", "OPTIONS")

	// Notification routes
	notificationRouter := r.PathPrefix("/notifications").Subrouter()
	notificationRouter.Use(middleware.JWTMiddleware(jwtSecret))
	notificationRouter.HandleFunc("", notificationHandler.List).Methods("GET", "OPTIONS")
	notificationRouter.HandleFunc("/counts", notificationHandler.Counts).Methods("GET", "OPTIONS")
	notificationRouter.HandleFunc("/mark-all-read", notificationHandler.MarkAllRead).Methods("PATCH", "OPTIONS")
	notificationRouter.HandleFunc("/hide/{userId}", notificationHandler.HideSender).Methods("POST", "OPTIONS")
	notificationRouter.HandleFunc("/unhide/{userId}", notificationHandler.UnhideSender).Methods("POST", "OPTIONS")
	notificationRouter.HandleFunc("/{id}/read", notificationHandler.MarkRead).Methods("PATCH", "OPTIONS")
	notificationRouter.HandleFunc("/{id}", notificationHandler.Delete).Methods("DELETE", "OPTIONS")

	log.Println("Server starting on :8080")
	log.Fatal(http.ListenAndServe(":8080", r))
}
