package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/manish-vm/EGS-chitfund-management-backend/chit"
)

const notificationsCollection = "notifications"

// MongoInbox keeps member notifications in a MongoDB collection.
// It satisfies chit.NotificationStore so it can back both the StoreSink and
// inbox reads.
type MongoInbox struct {
	client *mongo.Client
	col    *mongo.Collection
}

var _ chit.NotificationStore = (*MongoInbox)(nil)

type notificationDoc struct {
	ID          string    `bson:"_id"`
	RecipientID string    `bson:"recipient_id"`
	Title       string    `bson:"title"`
	Message     string    `bson:"message"`
	Link        string    `bson:"link"`
	Read        bool      `bson:"read"`
	CreatedAt   time.Time `bson:"created_at"`
}

// NewMongoInbox connects to uri and pings the server.
func NewMongoInbox(ctx context.Context, uri, database string) (*MongoInbox, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoInbox{
		client: client,
		col:    client.Database(database).Collection(notificationsCollection),
	}, nil
}

// SaveNotifications inserts notes in one round trip.
func (m *MongoInbox) SaveNotifications(ctx context.Context, notes []chit.Notification) error {
	if len(notes) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(notes))
	for _, n := range notes {
		docs = append(docs, bson.M{
			"_id":          n.ID,
			"recipient_id": n.RecipientID,
			"title":        n.Title,
			"message":      n.Message,
			"link":         n.Link,
			"read":         n.Read,
			"created_at":   n.CreatedAt,
		})
	}
	// Redelivered batches hit the _id index; the other documents still insert.
	_, err := m.col.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil && !onlyDuplicateKeys(err) {
		return fmt.Errorf("insert notifications: %w", err)
	}
	return nil
}

const duplicateKeyCode = 11000

// onlyDuplicateKeys reports whether every failure in a bulk insert is a
// duplicate _id. Write concern errors and any other write error count as
// real failures.
func onlyDuplicateKeys(err error) bool {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) {
		return false
	}
	if bwe.WriteConcernError != nil || len(bwe.WriteErrors) == 0 {
		return false
	}
	for _, we := range bwe.WriteErrors {
		if we.Code != duplicateKeyCode {
			return false
		}
	}
	return true
}

// ListNotifications returns a member's notifications, newest first.
func (m *MongoInbox) ListNotifications(ctx context.Context, recipientID string) ([]chit.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := m.col.Find(ctx, bson.M{"recipient_id": recipientID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find notifications: %w", err)
	}
	defer cur.Close(ctx)

	var docs []notificationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode notifications: %w", err)
	}
	out := make([]chit.Notification, 0, len(docs))
	for _, d := range docs {
		out = append(out, chit.Notification{
			ID:          d.ID,
			RecipientID: d.RecipientID,
			Title:       d.Title,
			Message:     d.Message,
			Link:        d.Link,
			Read:        d.Read,
			CreatedAt:   d.CreatedAt.UTC(),
		})
	}
	return out, nil
}

// MarkNotificationRead flags one of the recipient's notes as read.
func (m *MongoInbox) MarkNotificationRead(ctx context.Context, recipientID, id string) (bool, error) {
	res, err := m.col.UpdateOne(ctx,
		bson.M{"_id": id, "recipient_id": recipientID},
		bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	return res.MatchedCount == 1, nil
}

// MarkAllNotificationsRead flags every unread note of the recipient.
func (m *MongoInbox) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int, error) {
	res, err := m.col.UpdateMany(ctx,
		bson.M{"recipient_id": recipientID, "read": false},
		bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return int(res.ModifiedCount), nil
}

// DeleteNotification removes one of the recipient's notes.
func (m *MongoInbox) DeleteNotification(ctx context.Context, recipientID, id string) (bool, error) {
	res, err := m.col.DeleteOne(ctx, bson.M{"_id": id, "recipient_id": recipientID})
	if err != nil {
		return false, fmt.Errorf("delete notification: %w", err)
	}
	return res.DeletedCount == 1, nil
}

// Close disconnects the client.
func (m *MongoInbox) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
