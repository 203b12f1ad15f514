// Package broker implements the Task Broker: three Redis-list priority
// lanes carrying JSON task envelopes, plus a pub/sub channel carrying
// progress events. Wire format matches §6 literally: lane keys
// `scraping_tasks:priority:{high,medium,low}`, FIFO via LPUSH (push-left) /
// RPOP (pop-right), and a single `job_updates` pub/sub channel.
package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fieldnote/scrapesched/internal/domain"
	"github.com/fieldnote/scrapesched/internal/logger"
)

// EventChannel is the single named pub/sub channel carrying progress events.
const EventChannel = "job_updates"

// laneKey returns the Redis list key for a lane.
func laneKey(l Lane) string {
	return fmt.Sprintf("scraping_tasks:priority:%s", l)
}

// Broker is the Redis-backed task broker.
type Broker struct {
	client *redis.Client
	logger logger.Logger

	cancelScript *redis.Script
}

// New constructs a Broker over an existing Redis client.
func New(client *redis.Client, log logger.Logger) *Broker {
	return &Broker{
		client:       client,
		logger:       log,
		cancelScript: redis.NewScript(cancelScanScript),
	}
}

// Push enqueues a task into the lane matching its priority.
func (b *Broker) Push(ctx context.Context, task domain.TaskEnvelope) error {
	return b.pushTo(ctx, LaneForPriority(task.Priority), task)
}

// PushRetry enqueues a retried task directly into the high lane,
// regardless of its original priority (§4.5).
func (b *Broker) PushRetry(ctx context.Context, task domain.TaskEnvelope) error {
	return b.pushTo(ctx, RetryLane, task)
}

func (b *Broker) pushTo(ctx context.Context, lane Lane, task domain.TaskEnvelope) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task envelope: %w", err)
	}
	if err := b.client.LPush(ctx, laneKey(lane), payload).Err(); err != nil {
		return fmt.Errorf("push task to lane %s: %w", lane, err)
	}
	return nil
}

// PopHighestPriority inspects lanes in strict order high, medium, low and
// pops the first available task. It returns (nil, nil) if all lanes are
// empty — the caller is expected to sleep and retry (§4.4).
func (b *Broker) PopHighestPriority(ctx context.Context) (*domain.TaskEnvelope, error) {
	for _, lane := range Lanes() {
		payload, err := b.client.RPop(ctx, laneKey(lane)).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, fmt.Errorf("pop lane %s: %w", lane, err)
		}

		var task domain.TaskEnvelope
		if err := json.Unmarshal(payload, &task); err != nil {
			b.logger.Warn("dropping malformed task envelope",
				logger.String("lane", lane.String()),
				logger.Error(err),
			)
			continue
		}
		if !task.Valid() {
			b.logger.Warn("dropping invalid task envelope", logger.String("lane", lane.String()))
			continue
		}
		return &task, nil
	}
	return nil, nil
}

// cancelScanScript removes every envelope whose job_id matches ARGV[1] from
// the list at KEYS[1], returning the number removed. It rebuilds the list
// rather than attempting an in-place LREM-by-predicate, since the match key
// is nested inside the JSON payload and Redis has no JSON-path LREM.
const cancelScanScript = `
local key = KEYS[1]
local job_id = ARGV[1]
local items = redis.call('LRANGE', key, 0, -1)
local removed = 0
local kept = {}
for i = 1, #items do
	local decoded = cjson.decode(items[i])
	if decoded.job_id == job_id then
		removed = removed + 1
	else
		table.insert(kept, items[i])
	end
end
redis.call('DEL', key)
if #kept > 0 then
	-- kept is in head-to-tail order (same as LRANGE); RPUSH each in turn
	-- to rebuild the list in that same order.
	for i = 1, #kept do
		redis.call('RPUSH', key, kept[i])
	end
end
return removed
`

// CancelJob scans all three lanes and removes every task envelope whose
// job_id matches, returning the total number of tasks removed (§4.6 step 2).
func (b *Broker) CancelJob(ctx context.Context, jobID string) (int, error) {
	removed := 0
	for _, lane := range Lanes() {
		n, err := b.cancelScript.Run(ctx, b.client, []string{laneKey(lane)}, jobID).Int()
		if err != nil {
			return removed, fmt.Errorf("cancel scan lane %s: %w", lane, err)
		}
		removed += n
	}
	return removed, nil
}

// Publish emits a progress event on the job_updates channel.
func (b *Broker) Publish(ctx context.Context, event domain.ProgressEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}
	if err := b.client.Publish(ctx, EventChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish progress event: %w", err)
	}
	return nil
}

// Subscribe returns a PubSub subscription to the job_updates channel. The
// caller owns the returned subscription's lifecycle (Close it when done).
func (b *Broker) Subscribe(ctx context.Context) *redis.PubSub {
	return b.client.Subscribe(ctx, EventChannel)
}

// LaneDepth returns the current length of a lane, for diagnostics and tests.
func (b *Broker) LaneDepth(ctx context.Context, lane Lane) (int64, error) {
	n, err := b.client.LLen(ctx, laneKey(lane)).Result()
	if err != nil {
		return 0, fmt.Errorf("lane depth %s: %w", lane, err)
	}
	return n, nil
}
