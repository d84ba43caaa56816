package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tuneshare/internal/imtypes"
	"tuneshare/internal/models"
	"tuneshare/internal/storage"
)

// Friend request responses.
const (
	ActionAccept = "accept"
	ActionReject = "reject"
)

// UnblockOutcome describes what UnblockUser found. None of the outcomes is an error.
type UnblockOutcome string

const (
	Unblocked     UnblockOutcome = "unblocked"
	NotBlocked    UnblockOutcome = "not_blocked"
	TargetMissing UnblockOutcome = "target_missing"
)

// Message is the client-facing text for the outcome.
func (o UnblockOutcome) Message() string {
	switch o {
	case Unblocked:
		return "User unblocked successfully"
	case NotBlocked:
		return "User was not blocked"
	default:
		return "User unblocked (or was not found)"
	}
}

// RequestNotification is one entry of the notification feed.
type RequestNotification struct {
	Type      string `json:"type"`
	RequestID uint   `json:"request_id"`
	Message   string `json:"message"`
}

// RelationshipService manages friend requests, friendships and blocks.
// Every operation takes the acting user's id explicitly; targets are public userids.
type RelationshipService interface {
	SendFriendRequest(ctx context.Context, actorID uint, targetUserid string) (*models.FriendRequest, error)
	RespondToFriendRequest(ctx context.Context, actorID, requestID uint, action string) error
	ListPendingRequests(ctx context.Context, actorID uint) ([]models.PendingRequestView, error)
	ListFriends(ctx context.Context, actorID uint) ([]models.FriendView, error)
	Unfriend(ctx context.Context, actorID uint, targetUserid string) error
	BlockUser(ctx context.Context, actorID uint, targetUserid string, reason *string) (*models.Block, error)
	UnblockUser(ctx context.Context, actorID uint, targetUserid string) (UnblockOutcome, error)
	ListBlocked(ctx context.Context, actorID uint) ([]models.BlockedView, error)
	CheckFriendRequestExists(ctx context.Context, actorID uint, targetUserid string) (bool, error)
	ListNotifications(ctx context.Context, actorID uint) ([]RequestNotification, error)
}

type relationshipService struct {
	db             *gorm.DB // for transactions; repositories are rebound to tx inside them
	userRepo       storage.UserRepository
	requestRepo    storage.FriendRequestRepository
	friendshipRepo storage.FriendshipRepository
	blockRepo      storage.BlockRepository
	publisher      EventPublisher
}

// NewRelationshipService creates a new RelationshipService instance.
// publisher may be nil, in which case no events are emitted.
func NewRelationshipService(
	db *gorm.DB,
	userRepo storage.UserRepository,
	requestRepo storage.FriendRequestRepository,
	friendshipRepo storage.FriendshipRepository,
	blockRepo storage.BlockRepository,
	publisher EventPublisher,
) RelationshipService {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	return &relationshipService{
		db:             db,
		userRepo:       userRepo,
		requestRepo:    requestRepo,
		friendshipRepo: friendshipRepo,
		blockRepo:      blockRepo,
		publisher:      publisher,
	}
}

// txRepos is the set of repositories bound to one transaction.
type txRepos struct {
	users       storage.UserRepository
	requests    storage.FriendRequestRepository
	friendships storage.FriendshipRepository
	blocks      storage.BlockRepository
}

func (s *relationshipService) inTx(ctx context.Context, fn func(r txRepos) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(txRepos{
			users:       storage.NewGormUserRepository(tx),
			requests:    storage.NewGormFriendRequestRepository(tx),
			friendships: storage.NewGormFriendshipRepository(tx),
			blocks:      storage.NewGormBlockRepository(tx),
		})
	})
}

// SendFriendRequest creates a pending request from actor to the target.
// The pair's unique index settles concurrent sends: the loser gets ErrRequestPending.
func (s *relationshipService) SendFriendRequest(ctx context.Context, actorID uint, targetUserid string) (*models.FriendRequest, error) {
	targetUserid = strings.TrimSpace(targetUserid)
	if targetUserid == "" {
		return nil, ErrMissingTarget
	}

	var (
		request *models.FriendRequest
		actor   *models.User
	)
	err := s.inTx(ctx, func(r txRepos) error {
		target, err := resolveTarget(ctx, r.users, targetUserid)
		if err != nil {
			return err
		}
		if target.ID == actorID {
			return ErrSelfRequest
		}
		if actor, err = loadActor(ctx, r.users, actorID); err != nil {
			return err
		}

		blocked, err := r.blocks.Exists(ctx, target.ID, actorID)
		if err != nil {
			return fmt.Errorf("检查屏蔽关系失败: %w", err)
		}
		if blocked {
			return ErrBlockedByTarget
		}
		blocked, err = r.blocks.Exists(ctx, actorID, target.ID)
		if err != nil {
			return fmt.Errorf("检查屏蔽关系失败: %w", err)
		}
		if blocked {
			return ErrTargetBlocked
		}

		areFriends, err := r.friendships.AreUsersFriends(ctx, actorID, target.ID)
		if err != nil {
			return fmt.Errorf("检查好友关系时出错: %w", err)
		}
		if areFriends {
			return ErrAlreadyFriends
		}

		existing, err := r.requests.FindPendingRequest(ctx, actorID, target.ID)
		if err != nil {
			return fmt.Errorf("检查现有请求时出错: %w", err)
		}
		if existing != nil {
			return ErrRequestPending
		}

		request = &models.FriendRequest{SenderID: actorID, RecipientID: target.ID}
		if err := r.requests.Create(ctx, request); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrRequestPending
			}
			return fmt.Errorf("保存好友请求失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail("send friend request", actorID, err)
	}

	logrus.WithFields(logrus.Fields{
		"request_id":   request.ID,
		"sender_id":    actorID,
		"recipient_id": request.RecipientID,
	}).Info("friend request created")

	publishEvent(ctx, s.publisher, imtypes.FriendRequestSentEvent, actor, request.RecipientID, func(ev *imtypes.RelationshipEvent) {
		ev.RequestID = request.ID
	})
	return request, nil
}

// RespondToFriendRequest accepts or rejects a request addressed to actor.
// Either way the request row is deleted, so a second response yields ErrRequestNotFound.
func (s *relationshipService) RespondToFriendRequest(ctx context.Context, actorID, requestID uint, action string) error {
	action = strings.ToLower(strings.TrimSpace(action))
	if action != ActionAccept && action != ActionReject {
		return ErrInvalidAction
	}
	if requestID == 0 {
		return ErrMissingRequestID
	}

	var (
		request *models.FriendRequest
		actor   *models.User
	)
	err := s.inTx(ctx, func(r txRepos) error {
		var err error
		request, err = r.requests.GetForRecipient(ctx, requestID, actorID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRequestNotFound
			}
			return fmt.Errorf("查询好友请求失败: %w", err)
		}

		if action == ActionAccept {
			if actor, err = loadActor(ctx, r.users, actorID); err != nil {
				return err
			}
			friendship := &models.Friendship{
				UserID1: request.SenderID,
				UserID2: request.RecipientID,
				Status:  models.FriendshipStatusAccepted,
			}
			if err := r.friendships.CreateIfAbsent(ctx, friendship); err != nil {
				return fmt.Errorf("创建好友关系失败: %w", err)
			}
		}

		if err := r.requests.Delete(ctx, request.ID); err != nil {
			return fmt.Errorf("删除好友请求失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return s.fail("respond to friend request", actorID, err)
	}

	logrus.WithFields(logrus.Fields{
		"request_id": requestID,
		"actor_id":   actorID,
		"action":     action,
	}).Info("friend request answered")

	if action == ActionAccept {
		publishEvent(ctx, s.publisher, imtypes.FriendRequestAcceptedEvent, actor, request.SenderID, func(ev *imtypes.RelationshipEvent) {
			ev.RequestID = request.ID
		})
	}
	return nil
}

func (s *relationshipService) ListPendingRequests(ctx context.Context, actorID uint) ([]models.PendingRequestView, error) {
	views, err := s.requestRepo.ListPendingForRecipient(ctx, actorID)
	if err != nil {
		return nil, s.fail("list pending requests", actorID, err)
	}
	return views, nil
}

// ListFriends returns actor's friends ordered by username.
func (s *relationshipService) ListFriends(ctx context.Context, actorID uint) ([]models.FriendView, error) {
	views, err := s.friendshipRepo.ListFriends(ctx, actorID)
	if err != nil {
		return nil, s.fail("list friends", actorID, err)
	}
	return views, nil
}

// Unfriend removes the friendship with the target if there is one.
// Removing a friendship that does not exist succeeds.
func (s *relationshipService) Unfriend(ctx context.Context, actorID uint, targetUserid string) error {
	targetUserid = strings.TrimSpace(targetUserid)
	if targetUserid == "" {
		return ErrMissingTarget
	}
	target, err := resolveTarget(ctx, s.userRepo, targetUserid)
	if err != nil {
		return s.fail("unfriend", actorID, err)
	}
	removed, err := s.friendshipRepo.DeleteBetween(ctx, actorID, target.ID)
	if err != nil {
		return s.fail("unfriend", actorID, err)
	}
	logrus.WithFields(logrus.Fields{
		"actor_id":  actorID,
		"target_id": target.ID,
		"removed":   removed,
	}).Info("unfriend")
	return nil
}

// BlockUser blocks the target. In one transaction it removes any friendship and
// any pending request between the two users, then records the block.
func (s *relationshipService) BlockUser(ctx context.Context, actorID uint, targetUserid string, reason *string) (*models.Block, error) {
	targetUserid = strings.TrimSpace(targetUserid)
	if targetUserid == "" {
		return nil, ErrMissingTarget
	}
	if reason != nil {
		trimmed := strings.TrimSpace(*reason)
		if trimmed == "" {
			reason = nil
		} else if utf8.RuneCountInString(trimmed) > models.MaxBlockReasonLength {
			return nil, ErrReasonTooLong
		} else {
			reason = &trimmed
		}
	}

	var block *models.Block
	err := s.inTx(ctx, func(r txRepos) error {
		target, err := resolveTarget(ctx, r.users, targetUserid)
		if err != nil {
			return err
		}
		if target.ID == actorID {
			return ErrSelfBlock
		}

		already, err := r.blocks.Exists(ctx, actorID, target.ID)
		if err != nil {
			return fmt.Errorf("检查屏蔽关系失败: %w", err)
		}
		if already {
			return ErrAlreadyBlocked
		}

		if _, err := r.friendships.DeleteBetween(ctx, actorID, target.ID); err != nil {
			return fmt.Errorf("删除好友关系失败: %w", err)
		}
		if err := r.requests.DeleteBetween(ctx, actorID, target.ID); err != nil {
			return fmt.Errorf("删除好友请求失败: %w", err)
		}

		block = &models.Block{BlockerID: actorID, BlockedID: target.ID, Reason: reason}
		if err := r.blocks.Create(ctx, block); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyBlocked
			}
			return fmt.Errorf("保存屏蔽记录失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail("block user", actorID, err)
	}

	logrus.WithFields(logrus.Fields{
		"blocker_id": actorID,
		"blocked_id": block.BlockedID,
	}).Info("user blocked")
	return block, nil
}

// UnblockUser removes actor's block on the target. Absence of the target or of
// the block is reported through the outcome, never as an error.
func (s *relationshipService) UnblockUser(ctx context.Context, actorID uint, targetUserid string) (UnblockOutcome, error) {
	targetUserid = strings.TrimSpace(targetUserid)
	if targetUserid == "" {
		return "", ErrMissingTarget
	}
	target, err := s.userRepo.GetByUserID(ctx, targetUserid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TargetMissing, nil
		}
		return "", s.fail("unblock user", actorID, err)
	}
	removed, err := s.blockRepo.Delete(ctx, actorID, target.ID)
	if err != nil {
		return "", s.fail("unblock user", actorID, err)
	}
	if removed == 0 {
		return NotBlocked, nil
	}
	logrus.WithFields(logrus.Fields{
		"blocker_id": actorID,
		"blocked_id": target.ID,
	}).Info("user unblocked")
	return Unblocked, nil
}

func (s *relationshipService) ListBlocked(ctx context.Context, actorID uint) ([]models.BlockedView, error) {
	views, err := s.blockRepo.ListByBlocker(ctx, actorID)
	if err != nil {
		return nil, s.fail("list blocked users", actorID, err)
	}
	return views, nil
}

// CheckFriendRequestExists reports whether a pending request exists between
// actor and target in either direction. Unknown or empty targets report false.
func (s *relationshipService) CheckFriendRequestExists(ctx context.Context, actorID uint, targetUserid string) (bool, error) {
	targetUserid = strings.TrimSpace(targetUserid)
	if targetUserid == "" {
		return false, nil
	}
	target, err := s.userRepo.GetByUserID(ctx, targetUserid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, s.fail("check friend request", actorID, err)
	}
	existing, err := s.requestRepo.FindPendingRequest(ctx, actorID, target.ID)
	if err != nil {
		return false, s.fail("check friend request", actorID, err)
	}
	return existing != nil, nil
}

// ListNotifications renders one notification per pending request addressed to actor.
func (s *relationshipService) ListNotifications(ctx context.Context, actorID uint) ([]RequestNotification, error) {
	pending, err := s.ListPendingRequests(ctx, actorID)
	if err != nil {
		return nil, err
	}
	notifications := make([]RequestNotification, 0, len(pending))
	for _, p := range pending {
		notifications = append(notifications, RequestNotification{
			Type:      "request",
			RequestID: p.RequestID,
			Message:   fmt.Sprintf("%s sent you a friend request.", p.SenderUsername),
		})
	}
	return notifications, nil
}

// fail passes *Error values through and wraps anything else as Internal.
func (s *relationshipService) fail(op string, actorID uint, err error) error {
	return wrapServiceError(op, actorID, err)
}

func wrapServiceError(op string, actorID uint, err error) error {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	logrus.WithFields(logrus.Fields{
		"op":       op,
		"actor_id": actorID,
	}).WithError(err).Error("service operation failed")
	return internalError(op+" failed", err)
}

func resolveTarget(ctx context.Context, users storage.UserRepository, userid string) (*models.User, error) {
	target, err := users.GetByUserID(ctx, userid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return target, nil
}

func loadActor(ctx context.Context, users storage.UserRepository, actorID uint) (*models.User, error) {
	actor, err := users.GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, fmt.Errorf("查询当前用户失败: %w", err)
	}
	return actor, nil
}
