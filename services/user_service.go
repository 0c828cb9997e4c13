package services

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"passport-server/models"
	"passport-server/utils/errors"
)

type UserService struct {
	collection  *mongo.Collection
	redisClient *redis.Client
	jwtSecret   string
}

func NewUserService(redisClient *redis.Client, jwtSecret string) *UserService {
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		mongoURI = "mongodb://localhost:27017"
	}
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(mongoURI))
	if err != nil {
		log.Fatalf("MongoDB connection failed: %v", err)
	}
	if err := client.Ping(context.Background(), nil); err != nil {
		log.Fatalf("Failed to ping MongoDB: %v", err)
	}
	collection := client.Database("passport_db").Collection("users")

	// Unique lookup keys. The passcode index is sparse so users without a
	// passport don't collide on the missing value.
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "passport.passcode_norm", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
	}
	if _, err := collection.Indexes().CreateMany(context.Background(), indexes); err != nil {
		log.Printf("Failed to create indexes on users: %v", err)
	}

	return &UserService{
		collection:  collection,
		redisClient: redisClient,
		jwtSecret:   jwtSecret,
	}
}

// Database exposes the connected database so sibling services share one client.
func (s *UserService) Database() *mongo.Database {
	return s.collection.Database()
}

// GetUser retrieves a user by public ID, Redis first, then MongoDB.
func (s *UserService) GetUser(ctx context.Context, userID string) (models.User, error) {
	var user models.User

	userJSON, err := s.redisClient.Get(ctx, "user:"+userID).Result()
	if err == nil {
		if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
			log.Printf("Failed to unmarshal cached user %s: %v", userID, err)
		} else {
			return user, nil
		}
	}

	err = s.collection.FindOne(ctx, bson.M{"public_id": userID}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return models.User{}, errors.ErrNotFound
		}
		return models.User{}, err
	}

	s.cacheUser(ctx, user)
	return user, nil
}

// GetFreshUser always reads MongoDB, for precondition checks that must not
// see a stale cached copy.
func (s *UserService) GetFreshUser(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	err := s.collection.FindOne(ctx, bson.M{"public_id": userID}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return models.User{}, errors.ErrNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func (s *UserService) cacheUser(ctx context.Context, user models.User) {
	userJSON, err := json.Marshal(user)
	if err != nil {
		log.Printf("Failed to marshal user %s for cache: %v", user.PublicID, err)
		return
	}
	s.redisClient.Set(ctx, "user:"+user.PublicID, userJSON, 24*time.Hour)
}

// InvalidateUserCache drops cached copies after any mutation that touches
// relationship lists, privacy, or the passport.
func (s *UserService) InvalidateUserCache(ctx context.Context, userIDs ...string) {
	for _, id := range userIDs {
		if err := s.redisClient.Del(ctx, "user:"+id).Err(); err != nil && err != redis.Nil {
			log.Printf("Failed to invalidate cache for user %s: %v", id, err)
		}
	}
}

// UpdatePrivacySettings overwrites both privacy flags for the calling user.
func (s *UserService) UpdatePrivacySettings(ctx context.Context, settings models.PrivacySettings) error {
	userID, ok := ctx.Value("userID").(string)
	if !ok || userID == "" {
		return errors.ErrUnauthorized
	}

	update := bson.M{"$set": bson.M{"privacy": settings}}
	result, err := s.collection.UpdateOne(ctx, bson.M{"public_id": userID}, update)
	if err != nil {
		log.Printf("Failed to update privacy settings for %s: %v", userID, err)
		return errors.Wrap(err, "DB_ERROR", "Failed to update privacy settings", http.StatusInternalServerError)
	}
	if result.MatchedCount == 0 {
		return errors.ErrNotFound
	}

	s.InvalidateUserCache(ctx, userID)
	return nil
}
