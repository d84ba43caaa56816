package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tuneshare/internal/imtypes"
	"tuneshare/internal/models"
)

func TestSendFriendRequestVisibleFromBothSides(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")

	req, err := env.svc.SendFriendRequest(ctx, alice.ID, bob.UserID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, req.SenderID)
	assert.Equal(t, bob.ID, req.RecipientID)

	exists, err := env.svc.CheckFriendRequestExists(ctx, alice.ID, bob.UserID)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = env.svc.CheckFriendRequestExists(ctx, bob.ID, alice.UserID)
	require.NoError(t, err)
	assert.True(t, exists)

	events := env.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, imtypes.FriendRequestSentEvent, events[0].Type)
	assert.Equal(t, bob.ID, events[0].RecipientID)
	assert.Equal(t, "alice", events[0].ActorUsername)
	assert.Equal(t, req.ID, events[0].RequestID)
}

func TestSendFriendRequestTwiceConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")

	_, err := env.svc.SendFriendRequest(ctx, alice.ID, bob.UserID)
	require.NoError(t, err)

	_, err = env.svc.SendFriendRequest(ctx, alice.ID, bob.UserID)
	assert.ErrorIs(t, err, ErrRequestPending)
	assert.Equal(t, KindConflict, KindOf(err))

	// The reverse direction is the same unordered pair.
	_, err = env.svc.SendFriendRequest(ctx, bob.ID, alice.UserID)
	assert.ErrorIs(t, err, ErrRequestPending)
}

func TestSendFriendRequestValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice")

	_, err := env.svc.SendFriendRequest(ctx, alice.ID, alice.UserID)
	assert.ErrorIs(t, err, ErrSelfRequest)
	assert.Equal(t, KindInvalidOperation, KindOf(err))

	_, err = env.svc.SendFriendRequest(ctx, alice.ID, "   ")
	assert.ErrorIs(t, err, ErrMissingTarget)

	_, err = env.svc.SendFriendRequest(ctx, alice.ID, "ghost00zzz")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Equal(t, KindNotFound, KindOf(err))

	assert.Empty(t, env.publisher.Events())
}

func TestSendFriendRequestBlockedBothDirections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")

	_, err := env.svc.BlockUser(ctx, alice.ID, bob.UserID, nil)
	require.NoError(t, err)

	_, err = env.svc.SendFriendRequest(ctx, bob.ID, alice.UserID)
	assert.ErrorIs(t, err, ErrBlockedByTarget)
	assert.Equal(t, KindForbidden, KindOf(err))

	_, err = env.svc.SendFriendRequest(ctx, alice.ID, bob.UserID)
	assert.ErrorIs(t, err, ErrTargetBlocked)
	assert.Equal(t, KindForbidden, KindOf(err))

	// Once cleared, either side may send again.
	outcome, err := env.svc.UnblockUser(ctx, alice.ID, bob.UserID)
	require.NoError(t, err)
	assert.Equal(t, Unblocked, outcome)
	_, err = env.svc.SendFriendRequest(ctx, bob.ID, alice.UserID)
	assert.NoError(t, err)
}

func TestSendFriendRequestAlreadyFriends(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	makeFriends(t, env, alice, bob)

	_, err := env.svc.SendFriendRequest(ctx, bob.ID, alice.UserID)
	assert.ErrorIs(t, err, ErrAlreadyFriends)
}

func TestAcceptFriendRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")

	req, err := env.svc.SendFriendRequest(ctx, alice.ID, bob.UserID)
	require.NoError(t, err)

	pending, err := env.svc.ListPendingRequests(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.PendingRequestView{
		RequestID:      req.ID,
		SenderUsername: "alice",
		SenderUserID:   alice.UserID,
	}, pending[0])

	// Only the recipient can answer.
	err = env.svc.RespondToFriendRequest(ctx, alice.ID, req.ID, ActionAccept)
	assert.ErrorIs(t, err, ErrRequestNotFound)

	require.NoError(t, env.svc.RespondToFriendRequest(ctx, bob.ID, req.ID, "Accept"))

	aliceFriends, err := env.svc.ListFriends(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, aliceFriends, 1)
	assert.Equal(t, bob.ID, aliceFriends[0].FriendID)
	assert.Equal(t, bob.UserID, aliceFriends[0].UserID)

	bobFriends, err := env.svc.ListFriends(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, bobFriends, 1)
	assert.Equal(t, alice.ID, bobFriends[0].FriendID)

	pending, err = env.svc.ListPendingRequests(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Second response to the same id.
	err = env.svc.RespondToFriendRequest(ctx, bob.ID, req.ID, ActionAccept)
	assert.ErrorIs(t, err, ErrRequestNotFound)
	assert.Equal(t, KindNotFound, KindOf(err))

	events := env.publisher.Events()
	require.Len(t, events, 2)
	assert.Equal(t, imtypes.FriendRequestAcceptedEvent, events[1].Type)
	assert.Equal(t, alice.ID, events[1].RecipientID)
	assert.Equal(t, bob.ID, events[1].ActorID)
}

func TestAcceptKeepsSingleFriendshipRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")

	// A friendship row left behind next to a pending request.
	require.NoError(t, env.friends.CreateIfAbsent(ctx, &models.Friendship{UserID1: bob.ID, UserID2: alice.ID}))
	req := &models.FriendRequest{SenderID: bob.ID, RecipientID: alice.ID}
	require.NoError(t, env.requests.Create(ctx, req))

	require.NoError(t, env.svc.RespondToFriendRequest(ctx, alice.ID, req.ID, ActionAccept))

	var count int64
	require.NoError(t, env.db.Model(&models.Friendship{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestRejectFriendRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")

	req, err := env.svc.SendFriendRequest(ctx, alice.ID, bob.UserID)
	require.NoError(t, err)

	err = env.svc.RespondToFriendRequest(ctx, bob.ID, req.ID, "ignore")
	assert.ErrorIs(t, err, ErrInvalidAction)

	require.NoError(t, env.svc.RespondToFriendRequest(ctx, bob.ID, req.ID, ActionReject))

	friends, err := env.svc.ListFriends(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, friends)

	exists, err := env.svc.CheckFriendRequestExists(ctx, alice.ID, bob.UserID)
	require.NoError(t, err)
	assert.False(t, exists)

	// Rejection frees the pair for a new request.
	_, err = env.svc.SendFriendRequest(ctx, alice.ID, bob.UserID)
	assert.NoError(t, err)
}

func TestUnfriendIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")

	assert.NoError(t, env.svc.Unfriend(ctx, alice.ID, bob.UserID))

	makeFriends(t, env, alice, bob)
	require.NoError(t, env.svc.Unfriend(ctx, bob.ID, alice.UserID))
	friends, err := env.svc.ListFriends(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, friends)
	assert.NoError(t, env.svc.Unfriend(ctx, bob.ID, alice.UserID))

	assert.ErrorIs(t, env.svc.Unfriend(ctx, alice.ID, ""), ErrMissingTarget)
	assert.ErrorIs(t, env.svc.Unfriend(ctx, alice.ID, "ghost00zzz"), ErrUserNotFound)
}

func TestBlockClearsFriendshipAndRequests(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, carol := env.user(t, "alice"), env.user(t, "bob"), env.user(t, "carol")
	makeFriends(t, env, alice, bob)
	_, err := env.svc.SendFriendRequest(ctx, carol.ID, alice.UserID)
	require.NoError(t, err)

	reason := "  too many messages  "
	block, err := env.svc.BlockUser(ctx, alice.ID, bob.UserID, &reason)
	require.NoError(t, err)
	require.NotNil(t, block.Reason)
	assert.Equal(t, "too many messages", *block.Reason)

	friends, err := env.svc.ListFriends(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, friends)

	_, err = env.svc.BlockUser(ctx, alice.ID, carol.UserID, nil)
	require.NoError(t, err)
	exists, err := env.svc.CheckFriendRequestExists(ctx, alice.ID, carol.UserID)
	require.NoError(t, err)
	assert.False(t, exists, "block removes requests in both directions")

	blocked, err := env.svc.ListBlocked(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, blocked, 2)
	usernames := []string{blocked[0].Username, blocked[1].Username}
	assert.ElementsMatch(t, []string{"bob", "carol"}, usernames)

	// Blocks are one-directional.
	bobBlocked, err := env.svc.ListBlocked(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, bobBlocked)
}

func TestBlockUserValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")

	_, err := env.svc.BlockUser(ctx, alice.ID, alice.UserID, nil)
	assert.ErrorIs(t, err, ErrSelfBlock)

	_, err = env.svc.BlockUser(ctx, alice.ID, "ghost00zzz", nil)
	assert.ErrorIs(t, err, ErrUserNotFound)

	long := strings.Repeat("x", models.MaxBlockReasonLength+1)
	_, err = env.svc.BlockUser(ctx, alice.ID, bob.UserID, &long)
	assert.ErrorIs(t, err, ErrReasonTooLong)

	_, err = env.svc.BlockUser(ctx, alice.ID, bob.UserID, nil)
	require.NoError(t, err)
	_, err = env.svc.BlockUser(ctx, alice.ID, bob.UserID, nil)
	assert.ErrorIs(t, err, ErrAlreadyBlocked)
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestBlockRollsBackOnFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	makeFriends(t, env, alice, bob)

	// Make the final insert fail after the friendship delete ran.
	require.NoError(t, env.db.Callback().Create().Before("gorm:create").Register("test:fail_block", func(db *gorm.DB) {
		if db.Statement.Schema != nil && db.Statement.Schema.Table == "blocked_users" {
			db.AddError(errors.New("disk full"))
		}
	}))

	_, err := env.svc.BlockUser(ctx, alice.ID, bob.UserID, nil)
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))

	friends, err := env.svc.ListFriends(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, friends, 1, "friendship delete must be rolled back")
}

func TestUnblockTwice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")

	_, err := env.svc.BlockUser(ctx, alice.ID, bob.UserID, nil)
	require.NoError(t, err)

	outcome, err := env.svc.UnblockUser(ctx, alice.ID, bob.UserID)
	require.NoError(t, err)
	assert.Equal(t, Unblocked, outcome)
	assert.Equal(t, "User unblocked successfully", outcome.Message())

	outcome, err = env.svc.UnblockUser(ctx, alice.ID, bob.UserID)
	require.NoError(t, err)
	assert.Equal(t, NotBlocked, outcome)
	assert.Equal(t, "User was not blocked", outcome.Message())

	outcome, err = env.svc.UnblockUser(ctx, alice.ID, "ghost00zzz")
	require.NoError(t, err)
	assert.Equal(t, TargetMissing, outcome)

	_, err = env.svc.UnblockUser(ctx, alice.ID, "")
	assert.ErrorIs(t, err, ErrMissingTarget)
}

func TestConcurrentSendsStoreOneRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")

	const senders = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = env.svc.SendFriendRequest(ctx, alice.ID, bob.UserID)
			} else {
				_, err = env.svc.SendFriendRequest(ctx, bob.ID, alice.UserID)
			}
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if KindOf(err) == KindConflict {
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, senders-1, conflicts)

	var count int64
	require.NoError(t, env.db.Model(&models.FriendRequest{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestDuplicatePairRejectedByStorage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")

	_, err := env.svc.SendFriendRequest(ctx, alice.ID, bob.UserID)
	require.NoError(t, err)

	// Bypassing the application checks still cannot store a second pending request.
	err = env.requests.Create(ctx, &models.FriendRequest{SenderID: bob.ID, RecipientID: alice.ID})
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestCheckFriendRequestExistsUnknownTarget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice")

	exists, err := env.svc.CheckFriendRequestExists(ctx, alice.ID, "")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = env.svc.CheckFriendRequestExists(ctx, alice.ID, "ghost00zzz")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestListNotifications(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")

	req, err := env.svc.SendFriendRequest(ctx, alice.ID, bob.UserID)
	require.NoError(t, err)

	notes, err := env.svc.ListNotifications(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, RequestNotification{
		Type:      "request",
		RequestID: req.ID,
		Message:   "alice sent you a friend request.",
	}, notes[0])

	notes, err = env.svc.ListNotifications(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	env := newTestEnv(t)
	env.publisher.err = assert.AnError
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")

	_, err := env.svc.SendFriendRequest(ctx, alice.ID, bob.UserID)
	assert.NoError(t, err)
}

func TestListFriendsOrderedByUsername(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice")
	zed, bob := env.user(t, "zed"), env.user(t, "bob")
	makeFriends(t, env, alice, zed)
	makeFriends(t, env, bob, alice)

	friends, err := env.svc.ListFriends(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, friends, 2)
	assert.Equal(t, "bob", friends[0].Username)
	assert.Equal(t, "zed", friends[1].Username)
}

func makeFriends(t *testing.T, env *testEnv, a, b *models.User) {
	t.Helper()
	ctx := context.Background()
	req, err := env.svc.SendFriendRequest(ctx, a.ID, b.UserID)
	require.NoError(t, err)
	require.NoError(t, env.svc.RespondToFriendRequest(ctx, b.ID, req.ID, ActionAccept))
}
