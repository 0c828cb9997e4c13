package services

import (
	"context"
	"log"
	"net/http"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"passport-server/models"
	"passport-server/utils/errors"
)

// FollowService owns the directed relationship state machine between users:
// none -> requested -> following, with block overriding everything.
type FollowService struct {
	users         *UserService
	notifications *NotificationService
}

func NewFollowService(users *UserService, notifications *NotificationService) *FollowService {
	return &FollowService{users: users, notifications: notifications}
}

func callerID(ctx context.Context) (string, error) {
	userID, ok := ctx.Value("userID").(string)
	if !ok || userID == "" {
		return "", errors.ErrUnauthorized
	}
	return userID, nil
}

// hasEntry reports whether a relationship list contains the given user.
func hasEntry(entries []models.RelationshipEntry, userID string) bool {
	for _, e := range entries {
		if e.UserID == userID {
			return true
		}
	}
	return false
}

// relationshipFlags computes the requester's view of another user from the
// requester's own lists.
func relationshipFlags(requester models.User, targetID string) (isFollowing, requestSent bool) {
	return hasEntry(requester.Following, targetID), hasEntry(requester.SentRequests, targetID)
}

// SendFollowRequest inserts the symmetric sent/pending pair. The pending-side
// write re-asserts every precondition in its filter so a concurrent duplicate
// or a privacy flip between check and write cannot double-insert.
func (s *FollowService) SendFollowRequest(ctx context.Context, targetID string) error {
	userID, err := callerID(ctx)
	if err != nil {
		return err
	}
	if userID == targetID {
		return errors.NewAPIError("SELF_FOLLOW", "Cannot follow yourself", http.StatusBadRequest)
	}

	caller, err := s.users.GetFreshUser(ctx, userID)
	if err != nil {
		return errors.NewAPIError("NOT_FOUND", "Sender not found", http.StatusNotFound)
	}
	target, err := s.users.GetFreshUser(ctx, targetID)
	if err != nil {
		return errors.NewAPIError("NOT_FOUND", "User not found", http.StatusNotFound)
	}

	// A blocked requester is told nothing beyond "not found".
	if hasEntry(target.Blocked, userID) {
		return errors.NewAPIError("NOT_FOUND", "User not found", http.StatusNotFound)
	}
	if hasEntry(caller.Blocked, targetID) {
		return errors.NewAPIError("BLOCKED", "You have blocked this user", http.StatusBadRequest)
	}
	if hasEntry(caller.Following, targetID) {
		return errors.NewAPIError("ALREADY_FOLLOWING", "Already following this user", http.StatusBadRequest)
	}
	if hasEntry(caller.SentRequests, targetID) {
		return errors.NewAPIError("REQUEST_PENDING", "Follow request already sent", http.StatusBadRequest)
	}
	if !target.Privacy.AllowFollowRequests {
		return errors.NewAPIError("REQUESTS_DISABLED", "This user is not accepting follow requests", http.StatusBadRequest)
	}

	now := time.Now()
	entryFor := func(id string) models.RelationshipEntry {
		return models.RelationshipEntry{UserID: id, At: now}
	}

	result, err := s.users.collection.UpdateOne(ctx, bson.M{
		"public_id":                     targetID,
		"pending_requests.user_id":      bson.M{"$ne": userID},
		"followers.user_id":             bson.M{"$ne": userID},
		"blocked.user_id":               bson.M{"$ne": userID},
		"privacy.allow_follow_requests": true,
	}, bson.M{
		"$push": bson.M{"pending_requests": entryFor(userID)},
	})
	if err != nil {
		log.Printf("Failed to insert pending request %s -> %s: %v", userID, targetID, err)
		return errors.Wrap(err, "DB_ERROR", "Failed to send follow request", http.StatusInternalServerError)
	}
	if result.ModifiedCount == 0 {
		// The guarded write lost to a concurrent change. Re-read to report
		// the actual reason instead of guessing.
		refreshed, rerr := s.users.GetFreshUser(ctx, targetID)
		if rerr == nil {
			if hasEntry(refreshed.Blocked, userID) {
				return errors.NewAPIError("NOT_FOUND", "User not found", http.StatusNotFound)
			}
			if !refreshed.Privacy.AllowFollowRequests {
				return errors.NewAPIError("REQUESTS_DISABLED", "This user is not accepting follow requests", http.StatusBadRequest)
			}
			if hasEntry(refreshed.Followers, userID) {
				return errors.NewAPIError("ALREADY_FOLLOWING", "Already following this user", http.StatusBadRequest)
			}
		}
		return errors.NewAPIError("REQUEST_PENDING", "Follow request already sent", http.StatusBadRequest)
	}

	_, err = s.users.collection.UpdateOne(ctx, bson.M{
		"public_id":             userID,
		"sent_requests.user_id": bson.M{"$ne": targetID},
	}, bson.M{
		"$push": bson.M{"sent_requests": entryFor(targetID)},
	})
	if err != nil {
		log.Printf("Failed to insert sent request %s -> %s: %v", userID, targetID, err)
		return errors.Wrap(err, "DB_ERROR", "Failed to send follow request", http.StatusInternalServerError)
	}

	s.users.InvalidateUserCache(ctx, userID, targetID)

	if err := s.notifications.NotifyFollowRequest(ctx, caller, targetID); err != nil {
		log.Printf("Failed to notify %s of follow request from %s: %v", targetID, userID, err)
	}
	return nil
}

// AcceptFollowRequest moves the pair from requested to following. The filter
// requires the pending entry to still exist, so a concurrent second accept
// sees ModifiedCount 0 and fails cleanly instead of double-inserting.
func (s *FollowService) AcceptFollowRequest(ctx context.Context, requesterID string) error {
	userID, err := callerID(ctx)
	if err != nil {
		return err
	}
	if userID == requesterID {
		return errors.NewAPIError("SELF_FOLLOW", "Cannot accept a request from yourself", http.StatusBadRequest)
	}

	caller, err := s.users.GetFreshUser(ctx, userID)
	if err != nil {
		return errors.NewAPIError("NOT_FOUND", "User not found", http.StatusNotFound)
	}

	now := time.Now()
	result, err := s.users.collection.UpdateOne(ctx, bson.M{
		"public_id":                userID,
		"pending_requests.user_id": requesterID,
		"followers.user_id":        bson.M{"$ne": requesterID},
	}, bson.M{
		"$pull": bson.M{"pending_requests": bson.M{"user_id": requesterID}},
		"$push": bson.M{"followers": models.RelationshipEntry{UserID: requesterID, At: now}},
	})
	if err != nil {
		log.Printf("Failed to accept follow request %s -> %s: %v", requesterID, userID, err)
		return errors.Wrap(err, "DB_ERROR", "Failed to accept follow request", http.StatusInternalServerError)
	}
	if result.ModifiedCount == 0 {
		return errors.NewAPIError("NO_PENDING_REQUEST", "No pending follow request from this user", http.StatusNotFound)
	}

	_, err = s.users.collection.UpdateOne(ctx, bson.M{
		"public_id":         requesterID,
		"following.user_id": bson.M{"$ne": userID},
	}, bson.M{
		"$pull": bson.M{"sent_requests": bson.M{"user_id": userID}},
		"$push": bson.M{"following": models.RelationshipEntry{UserID: userID, At: now}},
	})
	if err != nil {
		log.Printf("Failed to update requester %s after accept: %v", requesterID, err)
		return errors.Wrap(err, "DB_ERROR", "Failed to accept follow request", http.StatusInternalServerError)
	}

	s.users.InvalidateUserCache(ctx, userID, requesterID)

	if err := s.notifications.NotifyFollowAccepted(ctx, caller, requesterID); err != nil {
		log.Printf("Failed to notify %s of accepted request: %v", requesterID, err)
	}
	s.notifications.MarkRequestActionTaken(ctx, userID, requesterID)
	return nil
}

// RejectFollowRequest drops the pending pair without creating a follow edge.
func (s *FollowService) RejectFollowRequest(ctx context.Context, requesterID string) error {
	userID, err := callerID(ctx)
	if err != nil {
		return err
	}

	caller, err := s.users.GetFreshUser(ctx, userID)
	if err != nil {
		return errors.NewAPIError("NOT_FOUND", "User not found", http.StatusNotFound)
	}

	result, err := s.users.collection.UpdateOne(ctx, bson.M{
		"public_id":                userID,
		"pending_requests.user_id": requesterID,
	}, bson.M{
		"$pull": bson.M{"pending_requests": bson.M{"user_id": requesterID}},
	})
	if err != nil {
		return errors.Wrap(err, "DB_ERROR", "Failed to reject follow request", http.StatusInternalServerError)
	}
	if result.ModifiedCount == 0 {
		return errors.NewAPIError("NO_PENDING_REQUEST", "No pending follow request from this user", http.StatusNotFound)
	}

	_, err = s.users.collection.UpdateOne(ctx, bson.M{"public_id": requesterID}, bson.M{
		"$pull": bson.M{"sent_requests": bson.M{"user_id": userID}},
	})
	if err != nil {
		log.Printf("Failed to update requester %s after reject: %v", requesterID, err)
		return errors.Wrap(err, "DB_ERROR", "Failed to reject follow request", http.StatusInternalServerError)
	}

	s.users.InvalidateUserCache(ctx, userID, requesterID)

	if err := s.notifications.create(ctx, models.Notification{
		RecipientID:    requesterID,
		SenderID:       caller.PublicID,
		SenderUsername: caller.Username,
		Type:           models.NotificationFollowDenied,
		Title:          "Follow request declined",
		Message:        caller.Username + " declined your follow request",
	}); err != nil {
		log.Printf("Failed to notify %s of declined request: %v", requesterID, err)
	}
	s.notifications.MarkRequestActionTaken(ctx, userID, requesterID)
	return nil
}

// CancelFollowRequest lets the sender withdraw an unresolved request.
func (s *FollowService) CancelFollowRequest(ctx context.Context, targetID string) error {
	userID, err := callerID(ctx)
	if err != nil {
		return err
	}

	result, err := s.users.collection.UpdateOne(ctx, bson.M{
		"public_id":             userID,
		"sent_requests.user_id": targetID,
	}, bson.M{
		"$pull": bson.M{"sent_requests": bson.M{"user_id": targetID}},
	})
	if err != nil {
		return errors.Wrap(err, "DB_ERROR", "Failed to cancel follow request", http.StatusInternalServerError)
	}
	if result.ModifiedCount == 0 {
		return errors.NewAPIError("NO_SENT_REQUEST", "No sent follow request to this user", http.StatusNotFound)
	}

	_, err = s.users.collection.UpdateOne(ctx, bson.M{"public_id": targetID}, bson.M{
		"$pull": bson.M{"pending_requests": bson.M{"user_id": userID}},
	})
	if err != nil {
		return errors.Wrap(err, "DB_ERROR", "Failed to cancel follow request", http.StatusInternalServerError)
	}

	s.users.InvalidateUserCache(ctx, userID, targetID)
	return nil
}

// Unfollow removes the symmetric following/followers pair. A second call
// fails with "not following" and changes nothing.
func (s *FollowService) Unfollow(ctx context.Context, targetID string) error {
	userID, err := callerID(ctx)
	if err != nil {
		return err
	}

	result, err := s.users.collection.UpdateOne(ctx, bson.M{
		"public_id":         userID,
		"following.user_id": targetID,
	}, bson.M{
		"$pull": bson.M{"following": bson.M{"user_id": targetID}},
	})
	if err != nil {
		return errors.Wrap(err, "DB_ERROR", "Failed to unfollow", http.StatusInternalServerError)
	}
	if result.ModifiedCount == 0 {
		return errors.NewAPIError("NOT_FOLLOWING", "Not following this user", http.StatusBadRequest)
	}

	_, err = s.users.collection.UpdateOne(ctx, bson.M{"public_id": targetID}, bson.M{
		"$pull": bson.M{"followers": bson.M{"user_id": userID}},
	})
	if err != nil {
		return errors.Wrap(err, "DB_ERROR", "Failed to unfollow", http.StatusInternalServerError)
	}

	s.users.InvalidateUserCache(ctx, userID, targetID)
	return nil
}

// RemoveFollower severs only the follower's edge toward the caller; whether
// the caller follows them back is untouched.
func (s *FollowService) RemoveFollower(ctx context.Context, followerID string) error {
	userID, err := callerID(ctx)
	if err != nil {
		return err
	}

	result, err := s.users.collection.UpdateOne(ctx, bson.M{
		"public_id":         userID,
		"followers.user_id": followerID,
	}, bson.M{
		"$pull": bson.M{"followers": bson.M{"user_id": followerID}},
	})
	if err != nil {
		return errors.Wrap(err, "DB_ERROR", "Failed to remove follower", http.StatusInternalServerError)
	}
	if result.ModifiedCount == 0 {
		return errors.NewAPIError("NOT_A_FOLLOWER", "This user is not following you", http.StatusNotFound)
	}

	_, err = s.users.collection.UpdateOne(ctx, bson.M{"public_id": followerID}, bson.M{
		"$pull": bson.M{"following": bson.M{"user_id": userID}},
	})
	if err != nil {
		return errors.Wrap(err, "DB_ERROR", "Failed to remove follower", http.StatusInternalServerError)
	}

	s.users.InvalidateUserCache(ctx, userID, followerID)
	return nil
}

// Block strips every relationship between the pair in both directions and
// records the block. Safe to call when already blocked.
func (s *FollowService) Block(ctx context.Context, targetID string) error {
	userID, err := callerID(ctx)
	if err != nil {
		return err
	}
	if userID == targetID {
		return errors.NewAPIError("SELF_BLOCK", "Cannot block yourself", http.StatusBadRequest)
	}
	if _, err := s.users.GetFreshUser(ctx, targetID); err != nil {
		return errors.NewAPIError("NOT_FOUND", "User not found", http.StatusNotFound)
	}

	// Guarded insert keeps the block list duplicate-free under retries.
	_, err = s.users.collection.UpdateOne(ctx, bson.M{
		"public_id":       userID,
		"blocked.user_id": bson.M{"$ne": targetID},
	}, bson.M{
		"$push": bson.M{"blocked": models.RelationshipEntry{UserID: targetID, At: time.Now()}},
	})
	if err != nil {
		return errors.Wrap(err, "DB_ERROR", "Failed to block user", http.StatusInternalServerError)
	}

	pullAll := func(selfID, otherID string) error {
		_, err := s.users.collection.UpdateOne(ctx, bson.M{"public_id": selfID}, bson.M{
			"$pull": bson.M{
				"following":        bson.M{"user_id": otherID},
				"followers":        bson.M{"user_id": otherID},
				"sent_requests":    bson.M{"user_id": otherID},
				"pending_requests": bson.M{"user_id": otherID},
			},
		})
		return err
	}
	if err := pullAll(userID, targetID); err != nil {
		return errors.Wrap(err, "DB_ERROR", "Failed to block user", http.StatusInternalServerError)
	}
	if err := pullAll(targetID, userID); err != nil {
		return errors.Wrap(err, "DB_ERROR", "Failed to block user", http.StatusInternalServerError)
	}

	s.users.InvalidateUserCache(ctx, userID, targetID)
	return nil
}

// Unblock removes the block entry only; no prior follow state is restored.
func (s *FollowService) Unblock(ctx context.Context, targetID string) error {
	userID, err := callerID(ctx)
	if err != nil {
		return err
	}

	result, err := s.users.collection.UpdateOne(ctx, bson.M{
		"public_id":       userID,
		"blocked.user_id": targetID,
	}, bson.M{
		"$pull": bson.M{"blocked": bson.M{"user_id": targetID}},
	})
	if err != nil {
		return errors.Wrap(err, "DB_ERROR", "Failed to unblock user", http.StatusInternalServerError)
	}
	if result.ModifiedCount == 0 {
		return errors.NewAPIError("NOT_BLOCKED", "This user is not blocked", http.StatusNotFound)
	}

	s.users.InvalidateUserCache(ctx, userID)
	return nil
}

// searchFilter builds the store query for Search. The passcode clause is
// dropped when the query normalizes to nothing, otherwise an empty regex
// would match every user holding a passport.
func searchFilter(requester models.User, query string) bson.M {
	excluded := []string{requester.PublicID}
	for _, b := range requester.Blocked {
		excluded = append(excluded, b.UserID)
	}

	or := []bson.M{{"username": bson.M{
		"$regex": "^" + regexp.QuoteMeta(query) + "$", "$options": "i",
	}}}
	if norm := NormalizePasscode(query); norm != "" {
		or = append(or, bson.M{"passport.passcode_norm": bson.M{
			"$regex": regexp.QuoteMeta(norm),
		}})
	}

	return bson.M{
		"privacy.show_in_search": true,
		"public_id":              bson.M{"$nin": excluded},
		"blocked.user_id":        bson.M{"$ne": requester.PublicID},
		"$or":                    or,
	}
}

// SearchResult is one user hit with the requester's relationship flags.
type SearchResult struct {
	ID                   string `json:"id"`
	Username             string `json:"username"`
	Email                string `json:"email"`
	Passcode             string `json:"passcode,omitempty"`
	IsFollowing          bool   `json:"isFollowing"`
	RequestSent          bool   `json:"requestSent"`
	AllowsFollowRequests bool   `json:"allowsFollowRequests"`
}

// Search matches exact case-insensitive username or passcode substring among
// searchable users, hiding anyone on either side of a block.
func (s *FollowService) Search(ctx context.Context, query string, limit int64) ([]SearchResult, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	if query == "" {
		return nil, errors.ErrInvalidInput
	}
	if limit < 1 || limit > 50 {
		limit = 20
	}

	requester, err := s.users.GetFreshUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	cursor, err := s.users.collection.Find(ctx, searchFilter(requester, query))
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "Search failed", http.StatusInternalServerError)
	}
	defer cursor.Close(ctx)

	var hits []models.User
	if err := cursor.All(ctx, &hits); err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "Search failed", http.StatusInternalServerError)
	}

	results := []SearchResult{}
	for _, hit := range hits {
		if int64(len(results)) >= limit {
			break
		}
		isFollowing, requestSent := relationshipFlags(requester, hit.PublicID)
		result := SearchResult{
			ID:                   hit.PublicID,
			Username:             hit.Username,
			Email:                hit.Email,
			IsFollowing:          isFollowing,
			RequestSent:          requestSent,
			AllowsFollowRequests: hit.Privacy.AllowFollowRequests,
		}
		if hit.Passport != nil {
			result.Passcode = hit.Passport.Passcode
		}
		results = append(results, result)
	}
	return results, nil
}

// RelatedUser is a hydrated relationship list entry.
type RelatedUser struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	At       time.Time `json:"at"`
}

type RelationshipList int

const (
	ListFollowers RelationshipList = iota
	ListFollowing
	ListPendingRequests
	ListSentRequests
	ListBlocked
)

// ListRelationships hydrates one of the caller's relationship lists with
// usernames and emails in a single lookup.
func (s *FollowService) ListRelationships(ctx context.Context, list RelationshipList) ([]RelatedUser, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetFreshUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var entries []models.RelationshipEntry
	switch list {
	case ListFollowers:
		entries = user.Followers
	case ListFollowing:
		entries = user.Following
	case ListPendingRequests:
		entries = user.PendingRequests
	case ListSentRequests:
		entries = user.SentRequests
	case ListBlocked:
		entries = user.Blocked
	}
	if len(entries) == 0 {
		return []RelatedUser{}, nil
	}

	ids := make([]string, 0, len(entries))
	timestamps := make(map[string]time.Time, len(entries))
	for _, e := range entries {
		ids = append(ids, e.UserID)
		timestamps[e.UserID] = e.At
	}

	cursor, err := s.users.collection.Find(ctx, bson.M{"public_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to load relationships", http.StatusInternalServerError)
	}
	defer cursor.Close(ctx)

	var counterparts []models.User
	if err := cursor.All(ctx, &counterparts); err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to load relationships", http.StatusInternalServerError)
	}

	byID := make(map[string]models.User, len(counterparts))
	for _, u := range counterparts {
		byID[u.PublicID] = u
	}

	related := make([]RelatedUser, 0, len(entries))
	for _, e := range entries {
		u, ok := byID[e.UserID]
		if !ok {
			// Counterpart account deleted; keep the edge out of the view.
			continue
		}
		related = append(related, RelatedUser{
			UserID:   u.PublicID,
			Username: u.Username,
			Email:    u.Email,
			At:       timestamps[e.UserID],
		})
	}
	return related, nil
}
