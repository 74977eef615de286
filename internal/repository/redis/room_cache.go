package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/drawdash/api/internal/model"
)

// Key patterns for the room cache.
func snapshotKey(roomID int64) string         { return "room:" + strconv.FormatInt(roomID, 10) + ":snapshot" }
func codeKey(code string) string              { return "roomcode:" + code }
func readyKey(roomID int64) string            { return "room:" + strconv.FormatInt(roomID, 10) + ":ready" }
func joinLockKey(roomID int64, u string) string {
	return "room:" + strconv.FormatInt(roomID, 10) + ":join:" + u
}

// joinLockTTL is how long a duplicate join_room from the same user is
// treated as a retry of the in-flight one.
const joinLockTTL = 2 * time.Second

// SetSnapshot stores the hot room snapshot under a short TTL and refreshes
// the code-to-id index. Every successful room mutation writes through here.
func (c *Client) SetSnapshot(ctx context.Context, snap *model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, snapshotKey(snap.RoomID), data, c.ttl)
	pipe.Set(ctx, codeKey(snap.Code), snap.RoomID, 0)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("set snapshot: %w", err)
	}
	return nil
}

// GetByID retrieves the cached snapshot, nil on miss or expiry.
func (c *Client) GetByID(ctx context.Context, roomID int64) (*model.Snapshot, error) {
	data, err := c.rdb.Get(ctx, snapshotKey(roomID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// GetByCode resolves the room code through the index, then the snapshot.
func (c *Client) GetByCode(ctx context.Context, code string) (*model.Snapshot, error) {
	id, err := c.rdb.Get(ctx, codeKey(code)).Int64()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get code index: %w", err)
	}
	return c.GetByID(ctx, id)
}

// Invalidate drops the snapshot, index, and ready set. Called on room delete.
func (c *Client) Invalidate(ctx context.Context, roomID int64, code string) error {
	err := c.rdb.Del(ctx, snapshotKey(roomID), codeKey(code), readyKey(roomID)).Err()
	if err != nil {
		return fmt.Errorf("invalidate room cache: %w", err)
	}
	return nil
}

// AcquireJoinLock takes a short-lived lock deduplicating rapid repeat
// join_room events. The holding socket ID is the lock value: the same
// socket retrying is rejected, a new socket (reconnect) takes over.
func (c *Client) AcquireJoinLock(ctx context.Context, roomID int64, userID, socketID string) (bool, error) {
	key := joinLockKey(roomID, userID)
	ok, err := c.rdb.SetNX(ctx, key, socketID, joinLockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquire join lock: %w", err)
	}
	if ok {
		return true, nil
	}
	holder, err := c.rdb.Get(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return false, fmt.Errorf("read join lock: %w", err)
	}
	if holder == socketID {
		return false, nil
	}
	if err := c.rdb.Set(ctx, key, socketID, joinLockTTL).Err(); err != nil {
		return false, fmt.Errorf("take over join lock: %w", err)
	}
	return true, nil
}

// MarkReady adds the user to the room's ready set.
func (c *Client) MarkReady(ctx context.Context, roomID int64, userID string) error {
	return c.rdb.SAdd(ctx, readyKey(roomID), userID).Err()
}

// UnmarkReady removes the user from the ready set.
func (c *Client) UnmarkReady(ctx context.Context, roomID int64, userID string) error {
	return c.rdb.SRem(ctx, readyKey(roomID), userID).Err()
}

// ReadyUsers returns the members of the ready set.
func (c *Client) ReadyUsers(ctx context.Context, roomID int64) ([]string, error) {
	users, err := c.rdb.SMembers(ctx, readyKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("ready users: %w", err)
	}
	return users, nil
}

// ClearReady empties the ready set, at game start and back-to-lobby.
func (c *Client) ClearReady(ctx context.Context, roomID int64) error {
	return c.rdb.Del(ctx, readyKey(roomID)).Err()
}
