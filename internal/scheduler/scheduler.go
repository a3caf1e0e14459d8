package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

const (
	TypeRoomFinalize = "room:finalize"

	finalizeMaxRetry = 5
)

type finalizePayload struct {
	RoomId string `json:"room_id"`
}

// NewFinalizeTask builds the task that finalizes roomId once its cutoff passes.
func NewFinalizeTask(roomId string) (*asynq.Task, error) {
	if roomId == "" {
		return nil, errors.New("room id is required")
	}
	payload, err := json.Marshal(finalizePayload{RoomId: roomId})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRoomFinalize, payload), nil
}

func parseFinalizePayload(t *asynq.Task) (string, error) {
	var p finalizePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return "", fmt.Errorf("decode %s payload: %w", t.Type(), err)
	}
	if p.RoomId == "" {
		return "", fmt.Errorf("%s payload is missing room_id", t.Type())
	}
	return p.RoomId, nil
}

func finalizeTaskId(roomId string) string {
	return "finalize:" + roomId
}

// Client schedules room finalization on the asynq queue.
type Client struct {
	client *asynq.Client
	log    zerolog.Logger
}

func NewClient(redisURL string, logger zerolog.Logger) (*Client, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	return &Client{
		client: asynq.NewClient(opt),
		log:    logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

// ScheduleFinalize enqueues a finalize task for roomId to run at at. Each
// room has at most one pending task; scheduling it again is a no-op.
func (c *Client) ScheduleFinalize(ctx context.Context, roomId string, at time.Time) error {
	task, err := NewFinalizeTask(roomId)
	if err != nil {
		return err
	}

	info, err := c.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(at),
		asynq.TaskID(finalizeTaskId(roomId)),
		asynq.MaxRetry(finalizeMaxRetry),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		c.log.Debug().Str("room_id", roomId).Msg("finalize task already scheduled")
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeRoomFinalize, err)
	}

	c.log.Debug().
		Str("room_id", roomId).
		Str("task_id", info.ID).
		Time("process_at", info.NextProcessAt).
		Msg("scheduled room finalization")
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
