package services

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"passport-server/models"
	"passport-server/utils/errors"
)

type NotificationService struct {
	collection *mongo.Collection
	users      *UserService
}

func NewNotificationService(users *UserService) *NotificationService {
	collection := users.Database().Collection("notifications")

	// TTL index handles retention; no scheduler needed.
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
		{
			Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	}
	if _, err := collection.Indexes().CreateMany(context.Background(), indexes); err != nil {
		log.Printf("Failed to create indexes on notifications: %v", err)
	}

	return &NotificationService{collection: collection, users: users}
}

func (s *NotificationService) create(ctx context.Context, n models.Notification) error {
	now := time.Now()
	n.CreatedAt = now
	n.ExpiresAt = now.Add(models.NotificationTTL)
	_, err := s.collection.InsertOne(ctx, n)
	return err
}

// NotifyFollowRequest tells the recipient someone wants to follow them.
func (s *NotificationService) NotifyFollowRequest(ctx context.Context, sender models.User, recipientID string) error {
	return s.create(ctx, models.Notification{
		RecipientID:    recipientID,
		SenderID:       sender.PublicID,
		SenderUsername: sender.Username,
		Type:           models.NotificationFollowRequest,
		Title:          "New follow request",
		Message:        fmt.Sprintf("%s wants to follow your passport updates", sender.Username),
	})
}

// NotifyFollowAccepted tells the original requester their request was accepted.
func (s *NotificationService) NotifyFollowAccepted(ctx context.Context, accepter models.User, requesterID string) error {
	return s.create(ctx, models.Notification{
		RecipientID:    requesterID,
		SenderID:       accepter.PublicID,
		SenderUsername: accepter.Username,
		Type:           models.NotificationFollowAccepted,
		Title:          "Follow request accepted",
		Message:        fmt.Sprintf("%s accepted your follow request", accepter.Username),
	})
}

// MarkRequestActionTaken flags the follow_request notification that triggered
// an accept/reject so clients can stop showing its action buttons.
func (s *NotificationService) MarkRequestActionTaken(ctx context.Context, recipientID, senderID string) {
	now := time.Now()
	_, err := s.collection.UpdateMany(ctx, bson.M{
		"recipient_id": recipientID,
		"sender_id":    senderID,
		"type":         models.NotificationFollowRequest,
		"action_taken": false,
	}, bson.M{
		"$set": bson.M{"action_taken": true, "action_taken_at": now},
	})
	if err != nil {
		log.Printf("Failed to mark follow request notification actioned (%s -> %s): %v", senderID, recipientID, err)
	}
}

// NotifyFollowersOfUpdate fans one passport_update notification out to every
// follower of the updated user. Followers are re-read from the store so the
// set is current; zero followers is a no-op.
func (s *NotificationService) NotifyFollowersOfUpdate(ctx context.Context, updater models.User, passport models.Passport, changes []FieldChange) error {
	fresh, err := s.users.GetFreshUser(ctx, updater.PublicID)
	if err != nil {
		return err
	}
	if len(fresh.Followers) == 0 {
		return nil
	}

	changeData := make([]map[string]any, 0, len(changes))
	for _, c := range changes {
		changeData = append(changeData, map[string]any{
			"field":    c.Field,
			"oldValue": c.OldValue,
			"newValue": c.NewValue,
		})
	}

	now := time.Now()
	docs := make([]any, 0, len(fresh.Followers))
	for _, follower := range fresh.Followers {
		docs = append(docs, models.Notification{
			RecipientID:    follower.UserID,
			SenderID:       updater.PublicID,
			SenderUsername: updater.Username,
			Type:           models.NotificationPassportUpdate,
			Title:          "Passport updated",
			Message:        fmt.Sprintf("%s updated their communication passport", updater.Username),
			Data: map[string]any{
				"passcode":     passport.Passcode,
				"changes":      changeData,
				"updaterName":  updater.Username,
				"updaterEmail": updater.Email,
			},
			CreatedAt: now,
			ExpiresAt: now.Add(models.NotificationTTL),
		})
	}

	if _, err := s.collection.InsertMany(ctx, docs); err != nil {
		return err
	}
	log.Printf("Fanned out passport update from %s to %d followers", updater.PublicID, len(docs))
	return nil
}

type NotificationPage struct {
	Notifications []models.Notification `json:"notifications"`
	Total         int64                 `json:"total"`
	Unread        int64                 `json:"unread"`
	Page          int64                 `json:"page"`
	Limit         int64                 `json:"limit"`
}

// List returns a newest-first page of the caller's notifications, excluding
// muted senders. typeFilter narrows to one notification type; unreadOnly
// drops already-read entries.
func (s *NotificationService) List(ctx context.Context, page, limit int64, typeFilter string, unreadOnly bool) (*NotificationPage, error) {
	userID, ok := ctx.Value("userID").(string)
	if !ok || userID == "" {
		return nil, errors.ErrUnauthorized
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	filter, err := s.recipientFilter(ctx, userID)
	if err != nil {
		return nil, err
	}
	if typeFilter != "" {
		filter["type"] = typeFilter
	}
	if unreadOnly {
		filter["read"] = false
	}

	total, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to count notifications", http.StatusInternalServerError)
	}

	unreadFilter, err := s.recipientFilter(ctx, userID)
	if err != nil {
		return nil, err
	}
	unreadFilter["read"] = false
	unread, err := s.collection.CountDocuments(ctx, unreadFilter)
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to count unread notifications", http.StatusInternalServerError)
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)
	cursor, err := s.collection.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to list notifications", http.StatusInternalServerError)
	}
	defer cursor.Close(ctx)

	notifications := []models.Notification{}
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to decode notifications", http.StatusInternalServerError)
	}

	return &NotificationPage{
		Notifications: notifications,
		Total:         total,
		Unread:        unread,
		Page:          page,
		Limit:         limit,
	}, nil
}

// recipientFilter scopes queries to the caller and hides muted senders.
func (s *NotificationService) recipientFilter(ctx context.Context, userID string) (bson.M, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	filter := bson.M{"recipient_id": userID}
	if len(user.MutedSenders) > 0 {
		filter["sender_id"] = bson.M{"$nin": user.MutedSenders}
	}
	return filter, nil
}

type NotificationCounts struct {
	Total  int64 `json:"total"`
	Unread int64 `json:"unread"`
}

func (s *NotificationService) Counts(ctx context.Context) (*NotificationCounts, error) {
	userID, ok := ctx.Value("userID").(string)
	if !ok || userID == "" {
		return nil, errors.ErrUnauthorized
	}

	filter, err := s.recipientFilter(ctx, userID)
	if err != nil {
		return nil, err
	}
	total, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to count notifications", http.StatusInternalServerError)
	}
	filter["read"] = false
	unread, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to count unread notifications", http.StatusInternalServerError)
	}
	return &NotificationCounts{Total: total, Unread: unread}, nil
}

// MarkRead marks one notification read; 404 when it doesn't belong to the
// caller.
func (s *NotificationService) MarkRead(ctx context.Context, notificationID string) error {
	userID, ok := ctx.Value("userID").(string)
	if !ok || userID == "" {
		return errors.ErrUnauthorized
	}
	objID, err := primitive.ObjectIDFromHex(notificationID)
	if err != nil {
		return errors.ErrInvalidInput
	}

	now := time.Now()
	result, err := s.collection.UpdateOne(ctx, bson.M{
		"_id":          objID,
		"recipient_id": userID,
	}, bson.M{
		"$set": bson.M{"read": true, "read_at": now},
	})
	if err != nil {
		return errors.Wrap(err, "DB_ERROR", "Failed to mark notification read", http.StatusInternalServerError)
	}
	if result.MatchedCount == 0 {
		return errors.ErrNotFound
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value("userID").(string)
	if !ok || userID == "" {
		return 0, errors.ErrUnauthorized
	}

	now := time.Now()
	result, err := s.collection.UpdateMany(ctx, bson.M{
		"recipient_id": userID,
		"read":         false,
	}, bson.M{
		"$set": bson.M{"read": true, "read_at": now},
	})
	if err != nil {
		return 0, errors.Wrap(err, "DB_ERROR", "Failed to mark notifications read", http.StatusInternalServerError)
	}
	return result.ModifiedCount, nil
}

func (s *NotificationService) Delete(ctx context.Context, notificationID string) error {
	userID, ok := ctx.Value("userID").(string)
	if !ok || userID == "" {
		return errors.ErrUnauthorized
	}
	objID, err := primitive.ObjectIDFromHex(notificationID)
	if err != nil {
		return errors.ErrInvalidInput
	}

	result, err := s.collection.DeleteOne(ctx, bson.M{
		"_id":          objID,
		"recipient_id": userID,
	})
	if err != nil {
		return errors.Wrap(err, "DB_ERROR", "Failed to delete notification", http.StatusInternalServerError)
	}
	if result.DeletedCount == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// HideSender mutes a sender without deleting their past notifications.
func (s *NotificationService) HideSender(ctx context.Context, senderID string) error {
	return s.setSenderMuted(ctx, senderID, true)
}

func (s *NotificationService) UnhideSender(ctx context.Context, senderID string) error {
	return s.setSenderMuted(ctx, senderID, false)
}

func (s *NotificationService) setSenderMuted(ctx context.Context, senderID string, muted bool) error {
	userID, ok := ctx.Value("userID").(string)
	if !ok || userID == "" {
		return errors.ErrUnauthorized
	}
	if senderID == "" {
		return errors.ErrInvalidInput
	}

	var update bson.M
	if muted {
		update = bson.M{"$addToSet": bson.M{"muted_senders": senderID}}
	} else {
		update = bson.M{"$pull": bson.M{"muted_senders": senderID}}
	}
	result, err := s.users.collection.UpdateOne(ctx, bson.M{"public_id": userID}, update)
	if err != nil {
		return errors.Wrap(err, "DB_ERROR", "Failed to update muted senders", http.StatusInternalServerError)
	}
	if result.MatchedCount == 0 {
		return errors.ErrNotFound
	}
	s.users.InvalidateUserCache(ctx, userID)
	return nil
}
