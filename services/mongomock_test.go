package services

import (
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"passport-server/models"
	"passport-server/utils/errors"
)

// mockServices wires the service graph onto mtest's mocked deployment. The
// redis client points at a closed port, so cache calls fail fast and fall
// through to the store.
func mockServices(mt *mtest.T) (*UserService, *NotificationService, *FollowService) {
	users := &UserService{
		collection:  mt.Coll,
		redisClient: redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}),
	}
	notifications := &NotificationService{
		collection: mt.Coll.Database().Collection("notifications"),
		users:      users,
	}
	return users, notifications, NewFollowService(users, notifications)
}

func userDoc(mt *mtest.T, user models.User) bson.D {
	raw, err := bson.Marshal(user)
	require.NoError(mt, err)
	var doc bson.D
	require.NoError(mt, bson.Unmarshal(raw, &doc))
	return doc
}

func userCursor(mt *mtest.T, user models.User) bson.D {
	ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
	return mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, userDoc(mt, user))
}

func updateResponse(matched, modified int) bson.D {
	return mtest.CreateSuccessResponse(
		bson.E{Key: "n", Value: matched},
		bson.E{Key: "nModified", Value: modified},
	)
}

// nextCommand pops started events until one matches the command name, nil
// when the queue runs out.
func nextCommand(mt *mtest.T, name string) bson.Raw {
	for {
		ev := mt.GetStartedEvent()
		if ev == nil {
			return nil
		}
		if ev.CommandName == name {
			return ev.Command
		}
	}
}

// firstUpdate extracts the first update statement from an update command.
func firstUpdate(mt *mtest.T, cmd bson.Raw) bson.Raw {
	require.NotNil(mt, cmd)
	vals, err := cmd.Lookup("updates").Array().Values()
	require.NoError(mt, err)
	require.NotEmpty(mt, vals)
	return vals[0].Document()
}

func lookupString(mt *mtest.T, raw bson.Raw, path ...string) string {
	val, ok := raw.Lookup(path...).StringValueOK()
	require.True(mt, ok, "expected string at %v", path)
	return val
}

func asAPIError(mt *mtest.T, err error) *errors.APIError {
	require.Error(mt, err)
	apiErr, ok := err.(*errors.APIError)
	require.True(mt, ok, "expected *errors.APIError, got %T", err)
	return apiErr
}
