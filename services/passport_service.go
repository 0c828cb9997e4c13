package services

import (
	"context"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"passport-server/cache"
	"passport-server/models"
	"passport-server/utils/errors"
)

// How long a public passcode lookup may serve a cached passport.
const passportCacheTTL = 5 * time.Minute

var passcodePattern = regexp.MustCompile(`^[A-Z0-9]{6,20}$`)

type PassportService struct {
	users         *UserService
	notifications *NotificationService
	passportCache cache.PassportCache
}

func NewPassportService(users *UserService, notifications *NotificationService, passportCache cache.PassportCache) *PassportService {
	return &PassportService{
		users:         users,
		notifications: notifications,
		passportCache: passportCache,
	}
}

// NormalizePasscode uppercases and strips dashes, so AB12-CD34 and ab12cd34
// resolve to the same key.
func NormalizePasscode(passcode string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(passcode), "-", ""))
}

// ValidatePasscode checks the normalized form: 6-20 alphanumeric characters.
func ValidatePasscode(passcode string) error {
	norm := NormalizePasscode(passcode)
	if !passcodePattern.MatchString(norm) {
		return errors.NewAPIError("INVALID_PASSCODE", "Passcode must be 6-20 letters or digits", http.StatusBadRequest)
	}
	return nil
}

// GetPassport returns the calling user's own passport, nil if none exists yet.
func (s *PassportService) GetPassport(ctx context.Context) (*models.Passport, error) {
	userID, ok := ctx.Value("userID").(string)
	if !ok || userID == "" {
		return nil, errors.ErrUnauthorized
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.Passport, nil
}

// UpdatePassport is the write pipeline: validate, snapshot the pre-state,
// persist, then diff and fan out to followers. Fan-out failures are logged
// and never fail the update.
func (s *PassportService) UpdatePassport(ctx context.Context, passport models.Passport) (*models.Passport, []FieldChange, error) {
	userID, ok := ctx.Value("userID").(string)
	if !ok || userID == "" {
		return nil, nil, errors.ErrUnauthorized
	}

	// The passcode is optional; a passport without one is simply not
	// reachable through the public lookup.
	passport.Passcode = strings.TrimSpace(passport.Passcode)
	passport.PasscodeNorm = ""
	if passport.Passcode != "" {
		if err := ValidatePasscode(passport.Passcode); err != nil {
			return nil, nil, err
		}
		passport.PasscodeNorm = NormalizePasscode(passport.Passcode)
	}
	passport.UpdatedAt = time.Now()

	user, err := s.users.GetFreshUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	before := user.Passport

	if passport.PasscodeNorm != "" {
		// Reject up front when another user already owns the passcode; the
		// sparse unique index is the backstop for races.
		var other models.User
		err = s.users.collection.FindOne(ctx, bson.M{
			"passport.passcode_norm": passport.PasscodeNorm,
			"public_id":              bson.M{"$ne": userID},
		}).Decode(&other)
		if err == nil {
			return nil, nil, errors.NewAPIError("PASSCODE_TAKEN", "Passcode is already in use", http.StatusConflict)
		}
		if err != mongo.ErrNoDocuments {
			return nil, nil, errors.Wrap(err, "DB_ERROR", "Failed to check passcode", http.StatusInternalServerError)
		}
	}

	update := bson.M{"$set": bson.M{"passport": passport}}
	result, err := s.users.collection.UpdateOne(ctx, bson.M{"public_id": userID}, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, nil, errors.NewAPIError("PASSCODE_TAKEN", "Passcode is already in use", http.StatusConflict)
		}
		return nil, nil, errors.Wrap(err, "DB_ERROR", "Failed to update passport", http.StatusInternalServerError)
	}
	if result.MatchedCount == 0 {
		return nil, nil, errors.ErrNotFound
	}

	s.users.InvalidateUserCache(ctx, userID)
	if passport.PasscodeNorm != "" {
		s.passportCache.Invalidate(ctx, passport.PasscodeNorm)
	}
	if before != nil && before.PasscodeNorm != "" && before.PasscodeNorm != passport.PasscodeNorm {
		s.passportCache.Invalidate(ctx, before.PasscodeNorm)
	}

	changes := DetectPassportChanges(before, &passport)
	if len(changes) > 0 {
		if err := s.notifications.NotifyFollowersOfUpdate(ctx, user, passport, changes); err != nil {
			log.Printf("Passport update fan-out failed for user %s: %v", userID, err)
		}
	}

	return &passport, changes, nil
}

// LookupByPasscode resolves a shared passcode to its passport, reading
// through the passport cache.
func (s *PassportService) LookupByPasscode(ctx context.Context, passcode string) (*models.Passport, error) {
	norm := NormalizePasscode(passcode)
	if norm == "" {
		return nil, errors.ErrInvalidInput
	}

	if p, ok := s.passportCache.Get(ctx, norm); ok {
		return &p, nil
	}

	var user models.User
	err := s.users.collection.FindOne(ctx, bson.M{"passport.passcode_norm": norm}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errors.ErrNotFound
		}
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to look up passport", http.StatusInternalServerError)
	}
	if user.Passport == nil {
		return nil, errors.ErrNotFound
	}

	s.passportCache.Set(ctx, norm, *user.Passport, passportCacheTTL)
	return user.Passport, nil
}
