package results

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// cacheTTL bounds staleness when an invalidation is lost.
const cacheTTL = 10 * time.Minute

// Cache holds rendered GroupResults views in redis, one hash per contest
// with the admin id as field. Dropping the hash invalidates every admin's
// view of that contest at once.
type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func contestKey(contestID int) string {
	return "results:contest:" + strconv.Itoa(contestID)
}

// GetGroupResults returns the cached view or nil on a miss.
func (c *Cache) GetGroupResults(ctx context.Context, adminID, contestID int) (*GroupResults, error) {
	data, err := c.client.HGet(ctx, contestKey(contestID), strconv.Itoa(adminID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read result cache: %w", err)
	}
	var view GroupResults
	if err := json.Unmarshal([]byte(data), &view); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached results: %w", err)
	}
	return &view, nil
}

func (c *Cache) PutGroupResults(ctx context.Context, adminID, contestID int, view *GroupResults) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	key := contestKey(contestID)
	if err := c.client.HSet(ctx, key, strconv.Itoa(adminID), data).Err(); err != nil {
		return fmt.Errorf("failed to write result cache: %w", err)
	}
	if err := c.client.Expire(ctx, key, cacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to set result cache expiry: %w", err)
	}
	return nil
}

// InvalidateContest drops every cached view of the contest.
func (c *Cache) InvalidateContest(ctx context.Context, contestID int) error {
	if err := c.client.Del(ctx, contestKey(contestID)).Err(); err != nil {
		return fmt.Errorf("failed to drop result cache: %w", err)
	}
	return nil
}
