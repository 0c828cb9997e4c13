package services

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"passport-server/models"
	"passport-server/utils/errors"
)

// Register creates a new user with default privacy settings and empty
// relationship lists.
func (s *UserService) Register(ctx context.Context, username, email, password string) (string, error) {
	if username == "" || email == "" || password == "" {
		return "", errors.ErrInvalidInput
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "HASH_ERROR", "failed to hash password", http.StatusInternalServerError)
	}

	user := models.User{
		PublicID:        uuid.New().String(),
		Username:        username,
		Email:           email,
		PasswordHash:    string(passwordHash),
		Privacy:         models.DefaultPrivacySettings(),
		Following:       []models.RelationshipEntry{},
		Followers:       []models.RelationshipEntry{},
		SentRequests:    []models.RelationshipEntry{},
		PendingRequests: []models.RelationshipEntry{},
		Blocked:         []models.RelationshipEntry{},
		MutedSenders:    []string{},
		CreatedAt:       time.Now(),
	}

	_, err = s.collection.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", errors.NewAPIError("DUPLICATE_USER", "Username or email already taken", http.StatusConflict)
		}
		return "", errors.Wrap(err, "DB_ERROR", "failed to create user in database", http.StatusInternalServerError)
	}

	s.cacheUser(ctx, user)
	return user.PublicID, nil
}

// Login authenticates a user and returns a JWT
func (s *UserService) Login(ctx context.Context, username, password string) (string, error) {
	var user models.User
	err := s.collection.FindOne(ctx, bson.M{"username": username}).Decode(&user)
	if err != nil {
		return "", errors.ErrNotFound
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", errors.NewAPIError("INVALID_CREDENTIALS", "Invalid username or password", http.StatusUnauthorized)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userID":   user.PublicID,
		"username": user.Username,
		"exp":      time.Now().Add(24 * time.Hour).Unix(),
	})
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", errors.Wrap(err, "JWT_ERROR", "Failed to generate token", http.StatusInternalServerError)
	}

	s.cacheUser(ctx, user)
	return tokenString, nil
}
