package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aescanero/dago-node-tags/internal/config"
	"github.com/aescanero/dago-node-tags/internal/eval/tagscript"
	"github.com/aescanero/dago-node-tags/internal/tags"
)

// handleTimeout bounds the handling of one request
const handleTimeout = 10 * time.Second

// Worker consumes tag invocation requests from a Redis stream and publishes
// the processed output
type Worker struct {
	id            string
	config        *config.Config
	redisClient   *redis.Client
	service       *tags.Service
	logger        *zap.Logger
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	running       atomic.Bool
	streamKey     string
	consumerGroup string
	resultStream  string
	now           func() time.Time
}

// NewWorker creates a new worker
func NewWorker(
	cfg *config.Config,
	redisClient *redis.Client,
	service *tags.Service,
	logger *zap.Logger,
) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		id:            cfg.WorkerID,
		config:        cfg,
		redisClient:   redisClient,
		service:       service,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
		streamKey:     cfg.InvokeStream,
		consumerGroup: cfg.ConsumerGroup,
		resultStream:  cfg.ResultStream,
		now:           time.Now,
	}
}

// Start starts the worker
func (w *Worker) Start() error {
	w.logger.Info("starting tags worker",
		zap.String("worker_id", w.id),
		zap.String("stream_key", w.streamKey),
		zap.String("consumer_group", w.consumerGroup),
	)

	if err := w.ensureConsumerGroup(); err != nil {
		return fmt.Errorf("failed to ensure consumer group: %w", err)
	}

	w.wg.Add(1)
	go w.processWork()
	w.running.Store(true)

	w.logger.Info("tags worker started", zap.String("worker_id", w.id))
	return nil
}

// Stop stops the worker and waits for the in-flight request to finish
func (w *Worker) Stop() error {
	w.logger.Info("stopping tags worker", zap.String("worker_id", w.id))

	w.running.Store(false)
	w.cancel()
	w.wg.Wait()

	w.logger.Info("tags worker stopped", zap.String("worker_id", w.id))
	return nil
}

// Running reports whether the processing loop is active
func (w *Worker) Running() bool {
	return w.running.Load()
}

// ensureConsumerGroup creates the consumer group if it doesn't exist
func (w *Worker) ensureConsumerGroup() error {
	err := w.redisClient.XGroupCreateMkStream(w.ctx, w.streamKey, w.consumerGroup, "0").Err()
	if err != nil {
		// BUSYGROUP means the group already exists
		if strings.HasPrefix(err.Error(), "BUSYGROUP") {
			w.logger.Debug("consumer group already exists",
				zap.String("group", w.consumerGroup),
			)
			return nil
		}
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	w.logger.Info("created consumer group",
		zap.String("group", w.consumerGroup),
		zap.String("stream", w.streamKey),
	)
	return nil
}

// processWork reads invocation requests until the worker is stopped
func (w *Worker) processWork() {
	defer w.wg.Done()
	w.logger.Info("starting work processing loop")

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Info("work processing loop stopped")
			return
		default:
			streams, err := w.redisClient.XReadGroup(w.ctx, &redis.XReadGroupArgs{
				Group:    w.consumerGroup,
				Consumer: w.id,
				Streams:  []string{w.streamKey, ">"},
				Count:    1,
				Block:    w.config.BlockTime,
			}).Result()

			if err != nil {
				if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
					continue
				}
				w.logger.Error("failed to read from stream",
					zap.Error(err),
				)
				select {
				case <-w.ctx.Done():
				case <-time.After(time.Second):
				}
				continue
			}

			for _, stream := range streams {
				for _, message := range stream.Messages {
					w.handleMessage(message)
				}
			}
		}
	}
}

// handleMessage handles a single invocation request message. It runs on its
// own context so a request already read is published and acknowledged even
// when Stop is called meanwhile.
func (w *Worker) handleMessage(message redis.XMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	messageID := message.ID
	w.logger.Debug("processing invocation request",
		zap.String("message_id", messageID),
	)

	request, err := w.parseRequest(message.Values)
	if err != nil {
		w.logger.Error("failed to parse invocation request",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		w.acknowledgeMessage(ctx, messageID)
		return
	}

	if err := w.processRequest(ctx, request); err != nil {
		w.logger.Warn("failed to process invocation request",
			zap.String("message_id", messageID),
			zap.String("request_id", request.RequestID),
			zap.String("tag", request.Tag),
			zap.Error(err),
		)
		w.publishError(ctx, request, err)
	}

	w.acknowledgeMessage(ctx, messageID)
}

// Role is a role held by the invoking member
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Author describes the member invoking a tag
type Author struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	Roles       []Role `json:"roles,omitempty"`
}

// InvokeRequest is the payload of the invocation stream
type InvokeRequest struct {
	RequestID   string `json:"request_id"`
	GuildID     string `json:"guild_id"`
	GuildName   string `json:"guild_name,omitempty"`
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name,omitempty"`
	Author      Author `json:"author"`
	Tag         string `json:"tag"`
	Args        string `json:"args"`
}

// InvokeResult is published to the result stream
type InvokeResult struct {
	RequestID string       `json:"request_id"`
	GuildID   string       `json:"guild_id"`
	ChannelID string       `json:"channel_id"`
	AuthorID  string       `json:"author_id"`
	Allowed   bool         `json:"allowed"`
	Output    *tags.Output `json:"output"`
	Timestamp time.Time    `json:"timestamp"`
}

// parseRequest parses an invocation request from a Redis message
func (w *Worker) parseRequest(values map[string]interface{}) (*InvokeRequest, error) {
	dataStr, ok := values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'data' field")
	}

	var request InvokeRequest
	if err := json.Unmarshal([]byte(dataStr), &request); err != nil {
		return nil, fmt.Errorf("failed to unmarshal invocation request: %w", err)
	}
	if request.Tag == "" {
		return nil, fmt.Errorf("missing tag name")
	}
	if request.RequestID == "" {
		request.RequestID = uuid.NewString()
	}

	return &request, nil
}

// processRequest invokes the tag, applies its gates and publishes the result
func (w *Worker) processRequest(ctx context.Context, request *InvokeRequest) error {
	out, err := w.service.Invoke(ctx, tags.InvokeRequest{
		GuildID: request.GuildID,
		Name:    request.Tag,
		Args:    request.Args,
		Seed:    requestSeed(request),
	})
	if err != nil {
		return err
	}

	allowed, response := tags.Check(out, request.invoker())
	if !allowed {
		out = &tags.Output{Tag: out.Tag, Content: response}
	}

	return w.publishResult(ctx, &InvokeResult{
		RequestID: request.RequestID,
		GuildID:   request.GuildID,
		ChannelID: request.ChannelID,
		AuthorID:  request.Author.ID,
		Allowed:   allowed,
		Output:    out,
		Timestamp: w.now().UTC(),
	})
}

func (r *InvokeRequest) invoker() tags.Invoker {
	invoker := tags.Invoker{
		UserID:      r.Author.ID,
		ChannelID:   r.ChannelID,
		ChannelName: r.ChannelName,
	}
	for _, role := range r.Author.Roles {
		invoker.RoleIDs = append(invoker.RoleIDs, role.ID)
		invoker.RoleNames = append(invoker.RoleNames, role.Name)
	}
	return invoker
}

// requestSeed exposes the request context as author, user, member, target,
// channel and server adapters
func requestSeed(r *InvokeRequest) map[string]tagscript.Adapter {
	display := r.Author.DisplayName
	if display == "" {
		display = r.Author.Name
	}
	author := tagscript.NewAttributeAdapter(map[string]string{
		"id":      r.Author.ID,
		"name":    r.Author.Name,
		"nick":    display,
		"mention": "<@" + r.Author.ID + ">",
		"avatar":  r.Author.Avatar,
	}, "name")

	channel := tagscript.NewAttributeAdapter(map[string]string{
		"id":      r.ChannelID,
		"name":    r.ChannelName,
		"mention": "<#" + r.ChannelID + ">",
	}, "name")

	server := tagscript.NewAttributeAdapter(map[string]string{
		"id":   r.GuildID,
		"name": r.GuildName,
	}, "name")

	return map[string]tagscript.Adapter{
		"author":  author,
		"user":    author,
		"member":  author,
		"target":  author,
		"channel": channel,
		"server":  server,
		"guild":   server,
	}
}

// publishResult publishes the processed output
func (w *Worker) publishResult(ctx context.Context, result *InvokeResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	_, err = w.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: w.resultStream,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to stream: %w", err)
	}

	w.logger.Info("published tag output",
		zap.String("request_id", result.RequestID),
		zap.String("tag", result.Output.Tag),
		zap.Bool("allowed", result.Allowed),
	)
	return nil
}

// publishError publishes an error event with a user-facing message
func (w *Worker) publishError(ctx context.Context, request *InvokeRequest, err error) {
	errorEvent := map[string]interface{}{
		"request_id": request.RequestID,
		"guild_id":   request.GuildID,
		"channel_id": request.ChannelID,
		"tag":        request.Tag,
		"error":      err.Error(),
		"message":    w.service.UserMessage(err),
		"timestamp":  w.now().UTC(),
	}

	data, marshalErr := json.Marshal(errorEvent)
	if marshalErr != nil {
		w.logger.Error("failed to marshal error event", zap.Error(marshalErr))
		return
	}

	_, publishErr := w.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: w.resultStream + ".errors",
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()
	if publishErr != nil {
		w.logger.Error("failed to publish error event", zap.Error(publishErr))
	}
}

// acknowledgeMessage acknowledges a message from the stream
func (w *Worker) acknowledgeMessage(ctx context.Context, messageID string) {
	err := w.redisClient.XAck(ctx, w.streamKey, w.consumerGroup, messageID).Err()
	if err != nil {
		w.logger.Error("failed to acknowledge message",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}
