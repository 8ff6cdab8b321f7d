package marketsync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/stocksync_backend/config"
	"bitbucket.org/mmdatafocus/stocksync_backend/engine"
	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
)

const pushHandlerName = "marketsync.sync-run"

func PublishSyncRun(ctx context.Context, runId uint, businessId string, connectionId uint) error {
	topicName := strings.TrimSpace(os.Getenv("STOCKSYNC_SYNC_TOPIC"))
	if topicName == "" {
		topicName = "stocksync-run"
	}

	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topic := client.Topic(topicName)
	if envBoolDefault("STOCKSYNC_SYNC_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, topicName)
		if err != nil {
			return err
		}
	}

	payload := SyncPubSubPayload{
		RunId:        runId,
		BusinessId:   businessId,
		ConnectionId: connectionId,
	}
	data, _ := json.Marshal(payload)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// PubSubPushHandler receives at-least-once push deliveries. A durable
// idempotency row per message id keeps redeliveries from re-running the
// worker; the order-level batch markers inside the engine are the second
// line of defense.
func PubSubPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBoolDefault("ENABLE_STOCKSYNC_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(http.StatusNoContent)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusNoContent)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(http.StatusNoContent)
			return
		}

		var payload SyncPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(http.StatusNoContent)
			return
		}
		if payload.RunId == 0 || payload.BusinessId == "" {
			c.Status(http.StatusNoContent)
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		messageId := envelope.Message.ID
		if messageId == "" {
			messageId = "run-" + string(envelope.Message.Data)
		}

		skip, err := engine.BeginIdempotency(db, payload.BusinessId, pushHandlerName, messageId)
		if err != nil {
			if errors.Is(err, engine.ErrIdempotencyInProgress) {
				// Non-2xx asks Pub/Sub to redeliver later.
				c.Status(http.StatusServiceUnavailable)
				return
			}
			c.Status(http.StatusNoContent)
			return
		}
		if skip {
			c.Status(http.StatusNoContent)
			return
		}

		if err := processSyncRun(c.Request.Context(), payload); err != nil {
			if errors.Is(err, errWriterBusy) {
				_ = engine.MarkIdempotencyFailed(db, payload.BusinessId, pushHandlerName, messageId, err)
				c.Status(http.StatusServiceUnavailable)
				return
			}
			// Failure is recorded on the run itself; ack so Pub/Sub does
			// not hammer a permanently broken payload.
			_ = engine.MarkIdempotencyFailed(db, payload.BusinessId, pushHandlerName, messageId, err)
			c.Status(http.StatusNoContent)
			return
		}

		_ = engine.MarkIdempotencySucceeded(db, payload.BusinessId, pushHandlerName, messageId)
		c.Status(http.StatusNoContent)
	}
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
