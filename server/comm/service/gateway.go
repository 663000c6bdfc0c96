package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"matri_server/server/comm/domain"
	commonlog "matri_server/server/common/log"
)

// MessageStore is the persistence contract for chat messages. A failure
// other than ErrNotFound is treated as transient store unavailability.
type MessageStore interface {
	Create(ctx context.Context, msg domain.Message) (domain.Message, error)
	GetByID(ctx context.Context, id string) (domain.Message, error)
	UpdateContent(ctx context.Context, id, content string, editedAt time.Time) (domain.Message, error)
	Delete(ctx context.Context, id string) error
	ListByChat(ctx context.Context, chatID string, limit, offset int) ([]domain.Message, int64, error)
	MarkRead(ctx context.Context, chatID, readerID string, at time.Time) error
	CountFromTo(ctx context.Context, senderID, receiverID string) (int64, error)
	LatestPerCounterpart(ctx context.Context, userID string) ([]domain.Message, error)
}

// UserDirectory resolves user identities to plan and display data.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (domain.ChatUser, error)
}

// Broadcaster is the live fan-out surface the gateway notifies after a
// successful write. Delivery is advisory.
type Broadcaster interface {
	ToRoom(roomKey, event string, payload any)
	ToUser(userID, event string, payload any)
}

// EventPublisher feeds the chat.events pipeline. Best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, key string, payload any) error
}

// Gateway validates, persists, and fans out chat messages. Persistence
// success is the operation's success criterion; fan-out failure never rolls
// a write back.
type Gateway struct {
	store        MessageStore
	users        UserDirectory
	blobs        BlobStore
	fanout       Broadcaster
	events       EventPublisher
	storeTimeout time.Duration
}

func NewGateway(store MessageStore, users UserDirectory, blobs BlobStore, fanout Broadcaster, events EventPublisher, storeTimeout time.Duration) *Gateway {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Gateway{store: store, users: users, blobs: blobs, fanout: fanout, events: events, storeTimeout: storeTimeout}
}

func (g *Gateway) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.storeTimeout)
}

// asStoreErr folds transport and timeout failures from the store into the
// retryable ErrStoreUnavailable. ErrNotFound passes through untouched.
func asStoreErr(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}

func (g *Gateway) policyContext(ctx context.Context, senderID, receiverID string) (domain.PolicyContext, error) {
	sender, err := g.users.GetByID(ctx, senderID)
	if err != nil {
		return domain.PolicyContext{}, asStoreErr(err)
	}
	pc := domain.PolicyContext{Plan: sender.Plan}
	if !pc.Plan.Restricted() {
		return pc, nil
	}
	count, err := g.store.CountFromTo(ctx, senderID, receiverID)
	if err != nil {
		return domain.PolicyContext{}, asStoreErr(err)
	}
	pc.SentCount = count
	return pc, nil
}

func (g *Gateway) SendText(ctx context.Context, senderID, receiverID, content string) (domain.Message, error) {
	content = strings.TrimSpace(content)
	if senderID == "" || receiverID == "" || content == "" {
		return domain.Message{}, domain.ErrInvalidInput
	}

	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	pc, err := g.policyContext(sctx, senderID, receiverID)
	if err != nil {
		return domain.Message{}, err
	}
	if err := EvaluatePolicy(pc, content); err != nil {
		return domain.Message{}, err
	}

	msg := domain.Message{
		ChatID:     RoomKey(senderID, receiverID),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Kind:       domain.MessageKindText,
		Content:    content,
	}
	created, err := g.store.Create(sctx, msg)
	if err != nil {
		return domain.Message{}, asStoreErr(err)
	}

	g.notify(ctx, "message-created", "message.created", created)
	return created, nil
}

func (g *Gateway) SendMedia(ctx context.Context, senderID, receiverID, content string, uploads []MediaUpload) (domain.Message, error) {
	content = strings.TrimSpace(content)
	if senderID == "" || receiverID == "" {
		return domain.Message{}, domain.ErrInvalidInput
	}
	if len(uploads) == 0 && content == "" {
		return domain.Message{}, domain.ErrInvalidInput
	}
	if err := validateUploads(uploads); err != nil {
		return domain.Message{}, err
	}

	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	sender, err := g.users.GetByID(sctx, senderID)
	if err != nil {
		return domain.Message{}, asStoreErr(err)
	}
	if sender.Plan.Restricted() {
		return domain.Message{}, domain.ErrPlanForbidden
	}

	stored := make([]domain.MediaFile, 0, len(uploads))
	for _, u := range uploads {
		key := newMediaObjectKey(u.Name)
		if err := g.blobs.Put(ctx, key, u.ContentType, u.Reader, u.Size); err != nil {
			removeAttachmentBlobs(ctx, g.blobs, stored)
			return domain.Message{}, fmt.Errorf("store attachment: %w", err)
		}
		if strings.HasPrefix(u.ContentType, "image/") {
			if _, err := makeThumbnail(ctx, g.blobs, key); err != nil {
				commonlog.Debugf("event=media_thumbnail status=skipped key=%s error=%v", key, err)
			}
		}
		stored = append(stored, domain.MediaFile{
			URL:          mediaURLForKey(key),
			OriginalName: u.Name,
			FileType:     u.ContentType,
			Size:         u.Size,
		})
	}

	msg := domain.Message{
		ChatID:     RoomKey(senderID, receiverID),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Kind:       domain.MessageKindMedia,
		Content:    content,
		Media:      stored,
	}
	created, err := g.store.Create(sctx, msg)
	if err != nil {
		// Compensating cleanup so a failed write leaves no orphaned blobs.
		removeAttachmentBlobs(ctx, g.blobs, stored)
		return domain.Message{}, asStoreErr(err)
	}

	g.notify(ctx, "message-created", "message.created", created)
	return created, nil
}

func (g *Gateway) EditMessage(ctx context.Context, requesterID, messageID, newContent string) (domain.Message, error) {
	newContent = strings.TrimSpace(newContent)
	if newContent == "" {
		return domain.Message{}, domain.ErrInvalidInput
	}

	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	msg, err := g.store.GetByID(sctx, messageID)
	if err != nil {
		return domain.Message{}, asStoreErr(err)
	}
	if msg.SenderID != requesterID {
		return domain.Message{}, domain.ErrForbidden
	}
	if msg.Kind != domain.MessageKindText {
		return domain.Message{}, domain.ErrInvalidOperation
	}

	updated, err := g.store.UpdateContent(sctx, messageID, newContent, time.Now().UTC())
	if err != nil {
		return domain.Message{}, asStoreErr(err)
	}

	g.notify(ctx, "message-edited", "message.edited", updated)
	return updated, nil
}

func (g *Gateway) DeleteMessage(ctx context.Context, requesterID, messageID string) error {
	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	msg, err := g.store.GetByID(sctx, messageID)
	if err != nil {
		return asStoreErr(err)
	}
	if msg.SenderID != requesterID {
		return domain.ErrForbidden
	}

	if msg.Kind == domain.MessageKindMedia {
		removeAttachmentBlobs(ctx, g.blobs, msg.Media)
	}
	if err := g.store.Delete(sctx, messageID); err != nil {
		return asStoreErr(err)
	}

	payload := map[string]string{"message_id": messageID}
	g.fanout.ToRoom(msg.ChatID, "message-deleted", payload)
	g.fanout.ToUser(msg.SenderID, "message-deleted", payload)
	g.fanout.ToUser(msg.ReceiverID, "message-deleted", payload)
	g.publishEvent(ctx, "message.deleted", payload)
	return nil
}

// ListChat returns one page of the bidirectional conversation, oldest
// first, and marks everything addressed to userID as read.
func (g *Gateway) ListChat(ctx context.Context, userID, friendID string, page, pageSize int) ([]domain.Message, int64, error) {
	if userID == "" || friendID == "" {
		return nil, 0, domain.ErrInvalidInput
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}

	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	chatID := RoomKey(userID, friendID)
	items, total, err := g.store.ListByChat(sctx, chatID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, asStoreErr(err)
	}

	// Read receipts ride along with the fetch; a failure here does not
	// fail the read.
	if err := g.store.MarkRead(sctx, chatID, userID, time.Now().UTC()); err != nil {
		commonlog.Warnf("event=chat_mark_read status=failed chat_id=%s user_id=%s error=%v", chatID, userID, err)
	}

	// Store order is newest-first; display order is oldest-first.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, total, nil
}

// ListConversations returns one entry per counterpart, most recent first.
func (g *Gateway) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	if userID == "" {
		return nil, domain.ErrInvalidInput
	}

	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	latest, err := g.store.LatestPerCounterpart(sctx, userID)
	if err != nil {
		return nil, asStoreErr(err)
	}

	conversations := make([]domain.Conversation, 0, len(latest))
	for _, msg := range latest {
		counterpartID := msg.SenderID
		if counterpartID == userID {
			counterpartID = msg.ReceiverID
		}
		conv := domain.Conversation{UserID: counterpartID, LastMessage: msg}
		if counterpart, err := g.users.GetByID(sctx, counterpartID); err == nil {
			conv.Name = counterpart.Name
		}
		conversations = append(conversations, conv)
	}
	return conversations, nil
}

// GetChatUser returns the counterpart card shown on the chat page.
func (g *Gateway) GetChatUser(ctx context.Context, userID string) (domain.ChatUser, error) {
	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	user, err := g.users.GetByID(sctx, userID)
	if err != nil {
		return domain.ChatUser{}, asStoreErr(err)
	}
	return user, nil
}

// notify fans a persisted message out to its room and both participants'
// personal channels, then feeds the event pipeline. All best-effort.
func (g *Gateway) notify(ctx context.Context, wsEvent, mqKey string, msg domain.Message) {
	g.fanout.ToRoom(msg.ChatID, wsEvent, msg)
	g.fanout.ToUser(msg.SenderID, wsEvent, msg)
	g.fanout.ToUser(msg.ReceiverID, wsEvent, msg)
	g.publishEvent(ctx, mqKey, msg)
}

func (g *Gateway) publishEvent(ctx context.Context, key string, payload any) {
	if g.events == nil {
		return
	}
	if err := g.events.Publish(ctx, key, payload); err != nil {
		commonlog.Warnf("event=chat_events action=publish status=failed key=%s error=%v", key, err)
	}
}
