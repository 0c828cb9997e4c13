package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"passport-server/models"
)

func entryList(ids ...string) []models.RelationshipEntry {
	entries := make([]models.RelationshipEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, models.RelationshipEntry{UserID: id, At: time.Now()})
	}
	return entries
}

func TestHasEntry(t *testing.T) {
	entries := entryList("user-a", "user-b")

	assert.True(t, hasEntry(entries, "user-a"))
	assert.True(t, hasEntry(entries, "user-b"))
	assert.False(t, hasEntry(entries, "user-c"))
	assert.False(t, hasEntry(nil, "user-a"))
}

func TestRelationshipFlags(t *testing.T) {
	requester := models.User{
		Following:    entryList("followed-user"),
		SentRequests: entryList("requested-user"),
	}

	isFollowing, requestSent := relationshipFlags(requester, "followed-user")
	assert.True(t, isFollowing)
	assert.False(t, requestSent)

	isFollowing, requestSent = relationshipFlags(requester, "requested-user")
	assert.False(t, isFollowing)
	assert.True(t, requestSent)

	isFollowing, requestSent = relationshipFlags(requester, "stranger")
	assert.False(t, isFollowing)
	assert.False(t, requestSent)
}

func TestRelationshipFlags_RequestedAndFollowingAreExclusive(t *testing.T) {
	// A resolved request never leaves both flags set for the same target.
	requester := models.User{
		Following: entryList("user-x"),
	}
	isFollowing, requestSent := relationshipFlags(requester, "user-x")
	assert.True(t, isFollowing)
	assert.False(t, requestSent)
}

func TestSearchFilter(t *testing.T) {
	t.Run("drops the passcode clause for a degenerate query", func(t *testing.T) {
		// "-" normalizes to the empty string; an empty regex would match
		// every user with a passport.
		for _, query := range []string{"-", "--", " - "} {
			filter := searchFilter(models.User{PublicID: "user-a"}, query)
			or, ok := filter["$or"].([]bson.M)
			require.True(t, ok)
			require.Len(t, or, 1, "query %q", query)
			_, hasUsername := or[0]["username"]
			assert.True(t, hasUsername)
		}
	})

	t.Run("keeps both clauses for a real query", func(t *testing.T) {
		filter := searchFilter(models.User{PublicID: "user-a"}, "ab12-cd34")
		or, ok := filter["$or"].([]bson.M)
		require.True(t, ok)
		require.Len(t, or, 2)
		assert.Equal(t, bson.M{"$regex": "AB12CD34"}, or[1]["passport.passcode_norm"])
	})

	t.Run("excludes the requester and their blocked users", func(t *testing.T) {
		requester := models.User{PublicID: "user-a", Blocked: entryList("user-b")}
		filter := searchFilter(requester, "bob")
		nin := filter["public_id"].(bson.M)["$nin"].([]string)
		assert.Contains(t, nin, "user-a")
		assert.Contains(t, nin, "user-b")
		assert.Equal(t, bson.M{"$ne": "user-a"}, filter["blocked.user_id"])
	})
}

func authedCtx(userID string) context.Context {
	return context.WithValue(context.Background(), "userID", userID)
}

func TestSendFollowRequest(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("inserts exactly one symmetric sent/pending pair", func(mt *mtest.T) {
		_, _, svc := mockServices(mt)
		caller := models.User{PublicID: "user-a", Username: "alice", Privacy: models.DefaultPrivacySettings()}
		target := models.User{PublicID: "user-b", Username: "bob", Privacy: models.DefaultPrivacySettings()}
		mt.AddMockResponses(
			userCursor(mt, caller),
			userCursor(mt, target),
			updateResponse(1, 1),
			updateResponse(1, 1),
			mtest.CreateSuccessResponse(),
		)

		require.NoError(mt, svc.SendFollowRequest(authedCtx("user-a"), "user-b"))

		// Pending side lands on the target, guarded against duplicates,
		// blocks, and a privacy flip.
		pending := firstUpdate(mt, nextCommand(mt, "update"))
		assert.Equal(mt, "user-b", lookupString(mt, pending, "q", "public_id"))
		assert.Equal(mt, "user-a", lookupString(mt, pending, "u", "$push", "pending_requests", "user_id"))
		allow, ok := pending.Lookup("q", "privacy.allow_follow_requests").BooleanOK()
		require.True(mt, ok)
		assert.True(mt, allow)
		_, reversed := pending.Lookup("u", "$push", "followers").DocumentOK()
		assert.False(mt, reversed)

		// Sent side lands on the caller, never the other way around.
		sent := firstUpdate(mt, nextCommand(mt, "update"))
		assert.Equal(mt, "user-a", lookupString(mt, sent, "q", "public_id"))
		assert.Equal(mt, "user-b", lookupString(mt, sent, "u", "$push", "sent_requests", "user_id"))
		_, reversed = sent.Lookup("u", "$push", "following").DocumentOK()
		assert.False(mt, reversed)

		// The target gets exactly one follow_request notification.
		insert := nextCommand(mt, "insert")
		require.NotNil(mt, insert)
		docs, err := insert.Lookup("documents").Array().Values()
		require.NoError(mt, err)
		require.Len(mt, docs, 1)
		assert.Equal(mt, models.NotificationFollowRequest, lookupString(mt, docs[0].Document(), "type"))
		assert.Equal(mt, "user-b", lookupString(mt, docs[0].Document(), "recipient_id"))
	})

	mt.Run("rejects a self follow", func(mt *mtest.T) {
		_, _, svc := mockServices(mt)
		apiErr := asAPIError(mt, svc.SendFollowRequest(authedCtx("user-a"), "user-a"))
		assert.Equal(mt, "SELF_FOLLOW", apiErr.Code)
		assert.Equal(mt, http.StatusBadRequest, apiErr.Status)
	})

	mt.Run("conceals a block behind not found", func(mt *mtest.T) {
		_, _, svc := mockServices(mt)
		caller := models.User{PublicID: "user-a", Privacy: models.DefaultPrivacySettings()}
		target := models.User{
			PublicID: "user-b",
			Privacy:  models.DefaultPrivacySettings(),
			Blocked:  entryList("user-a"),
		}
		mt.AddMockResponses(userCursor(mt, caller), userCursor(mt, target))

		apiErr := asAPIError(mt, svc.SendFollowRequest(authedCtx("user-a"), "user-b"))
		assert.Equal(mt, "NOT_FOUND", apiErr.Code)
		assert.Equal(mt, http.StatusNotFound, apiErr.Status)
	})

	mt.Run("rejects when requests are disabled", func(mt *mtest.T) {
		_, _, svc := mockServices(mt)
		caller := models.User{PublicID: "user-a", Privacy: models.DefaultPrivacySettings()}
		target := models.User{PublicID: "user-b", Privacy: models.PrivacySettings{AllowFollowRequests: false, ShowInSearch: true}}
		mt.AddMockResponses(userCursor(mt, caller), userCursor(mt, target))

		apiErr := asAPIError(mt, svc.SendFollowRequest(authedCtx("user-a"), "user-b"))
		assert.Equal(mt, "REQUESTS_DISABLED", apiErr.Code)
	})

	mt.Run("reports the real cause when the guarded write loses a race", func(mt *mtest.T) {
		// The pre-checks pass, the conditional write matches nothing, and
		// the re-read shows requests were disabled in between.
		_, _, svc := mockServices(mt)
		caller := models.User{PublicID: "user-a", Privacy: models.DefaultPrivacySettings()}
		target := models.User{PublicID: "user-b", Privacy: models.DefaultPrivacySettings()}
		flipped := target
		flipped.Privacy.AllowFollowRequests = false
		mt.AddMockResponses(
			userCursor(mt, caller),
			userCursor(mt, target),
			updateResponse(0, 0),
			userCursor(mt, flipped),
		)

		apiErr := asAPIError(mt, svc.SendFollowRequest(authedCtx("user-a"), "user-b"))
		assert.Equal(mt, "REQUESTS_DISABLED", apiErr.Code)
		assert.Equal(mt, http.StatusBadRequest, apiErr.Status)
	})

	mt.Run("conceals a block that raced the guarded write", func(mt *mtest.T) {
		_, _, svc := mockServices(mt)
		caller := models.User{PublicID: "user-a", Privacy: models.DefaultPrivacySettings()}
		target := models.User{PublicID: "user-b", Privacy: models.DefaultPrivacySettings()}
		flipped := target
		flipped.Blocked = entryList("user-a")
		mt.AddMockResponses(
			userCursor(mt, caller),
			userCursor(mt, target),
			updateResponse(0, 0),
			userCursor(mt, flipped),
		)

		apiErr := asAPIError(mt, svc.SendFollowRequest(authedCtx("user-a"), "user-b"))
		assert.Equal(mt, "NOT_FOUND", apiErr.Code)
		assert.Equal(mt, http.StatusNotFound, apiErr.Status)
	})
}

func TestAcceptFollowRequest(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("moves the pair from requested to following", func(mt *mtest.T) {
		_, _, svc := mockServices(mt)
		accepter := models.User{
			PublicID:        "user-b",
			Username:        "bob",
			Privacy:         models.DefaultPrivacySettings(),
			PendingRequests: entryList("user-a"),
		}
		mt.AddMockResponses(
			userCursor(mt, accepter),
			updateResponse(1, 1),
			updateResponse(1, 1),
			mtest.CreateSuccessResponse(),
			updateResponse(1, 1),
		)

		require.NoError(mt, svc.AcceptFollowRequest(authedCtx("user-b"), "user-a"))

		// Accepter: pending entry pulled, follower pushed, atomically.
		accepterSide := firstUpdate(mt, nextCommand(mt, "update"))
		assert.Equal(mt, "user-b", lookupString(mt, accepterSide, "q", "public_id"))
		assert.Equal(mt, "user-a", lookupString(mt, accepterSide, "q", "pending_requests.user_id"))
		assert.Equal(mt, "user-a", lookupString(mt, accepterSide, "u", "$pull", "pending_requests", "user_id"))
		assert.Equal(mt, "user-a", lookupString(mt, accepterSide, "u", "$push", "followers", "user_id"))

		// Requester: sent entry pulled, following pushed.
		requesterSide := firstUpdate(mt, nextCommand(mt, "update"))
		assert.Equal(mt, "user-a", lookupString(mt, requesterSide, "q", "public_id"))
		assert.Equal(mt, "user-b", lookupString(mt, requesterSide, "u", "$pull", "sent_requests", "user_id"))
		assert.Equal(mt, "user-b", lookupString(mt, requesterSide, "u", "$push", "following", "user_id"))

		// The requester hears about the accept.
		insert := nextCommand(mt, "insert")
		require.NotNil(mt, insert)
		docs, err := insert.Lookup("documents").Array().Values()
		require.NoError(mt, err)
		require.Len(mt, docs, 1)
		assert.Equal(mt, models.NotificationFollowAccepted, lookupString(mt, docs[0].Document(), "type"))
		assert.Equal(mt, "user-a", lookupString(mt, docs[0].Document(), "recipient_id"))
	})

	mt.Run("404s when no pending request exists", func(mt *mtest.T) {
		_, _, svc := mockServices(mt)
		accepter := models.User{PublicID: "user-b", Privacy: models.DefaultPrivacySettings()}
		mt.AddMockResponses(
			userCursor(mt, accepter),
			updateResponse(0, 0),
		)

		apiErr := asAPIError(mt, svc.AcceptFollowRequest(authedCtx("user-b"), "user-a"))
		assert.Equal(mt, "NO_PENDING_REQUEST", apiErr.Code)
		assert.Equal(mt, http.StatusNotFound, apiErr.Status)
	})
}

func TestUnfollow_SecondCallFailsCleanly(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("unfollow twice", func(mt *mtest.T) {
		_, _, svc := mockServices(mt)
		mt.AddMockResponses(
			updateResponse(1, 1),
			updateResponse(1, 1),
		)
		require.NoError(mt, svc.Unfollow(authedCtx("user-a"), "user-b"))

		// The edge is gone, so the guarded pull matches nothing.
		mt.AddMockResponses(updateResponse(0, 0))
		apiErr := asAPIError(mt, svc.Unfollow(authedCtx("user-a"), "user-b"))
		assert.Equal(mt, "NOT_FOLLOWING", apiErr.Code)
		assert.Equal(mt, http.StatusBadRequest, apiErr.Status)
	})
}

func TestBlock_StripsEveryEdgeBothDirections(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("block", func(mt *mtest.T) {
		_, _, svc := mockServices(mt)
		target := models.User{PublicID: "user-b", Privacy: models.DefaultPrivacySettings()}
		mt.AddMockResponses(
			userCursor(mt, target),
			updateResponse(1, 1),
			updateResponse(1, 1),
			updateResponse(1, 1),
		)

		require.NoError(mt, svc.Block(authedCtx("user-a"), "user-b"))

		blockInsert := firstUpdate(mt, nextCommand(mt, "update"))
		assert.Equal(mt, "user-a", lookupString(mt, blockInsert, "q", "public_id"))
		assert.Equal(mt, "user-b", lookupString(mt, blockInsert, "u", "$push", "blocked", "user_id"))

		lists := []string{"following", "followers", "sent_requests", "pending_requests"}

		callerPull := firstUpdate(mt, nextCommand(mt, "update"))
		assert.Equal(mt, "user-a", lookupString(mt, callerPull, "q", "public_id"))
		for _, list := range lists {
			assert.Equal(mt, "user-b", lookupString(mt, callerPull, "u", "$pull", list, "user_id"), list)
		}

		targetPull := firstUpdate(mt, nextCommand(mt, "update"))
		assert.Equal(mt, "user-b", lookupString(mt, targetPull, "q", "public_id"))
		for _, list := range lists {
			assert.Equal(mt, "user-a", lookupString(mt, targetPull, "u", "$pull", list, "user_id"), list)
		}
	})
}
