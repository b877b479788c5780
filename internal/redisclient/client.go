package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"order-fulfillment/internal/models"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/reserve_stock.lua
var reserveStockScript string

//go:embed scripts/release_stock.lua
var releaseStockScript string

const (
	scriptOK       = 1
	scriptRejected = 0
	scriptNotFound = -1
)

// Client is an inventory ledger over Redis hashes. Each mutation runs as a
// single Lua script, so the counters of one product are never seen torn.
type Client struct {
	rdb           *redis.Client
	reserveScript *redis.Script
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		reserveScript: redis.NewScript(reserveStockScript),
		releaseScript: redis.NewScript(releaseStockScript),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func inventoryKey(productID string) string {
	return "inventory:" + productID
}

// Reserve atomically moves qty from available to reserved.
func (c *Client) Reserve(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return &models.ValidationError{Field: "quantity", Reason: "must be greater than zero"}
	}

	result, err := c.reserveScript.Run(ctx, c.rdb, []string{inventoryKey(productID)}, qty).Result()
	if err != nil {
		return fmt.Errorf("reserve stock script failed: %w", err)
	}

	code, value, err := parseScriptResult(result)
	if err != nil {
		return err
	}
	switch code {
	case scriptOK:
		return nil
	case scriptRejected:
		return &models.InsufficientStockError{ProductID: productID, Requested: qty, Available: value}
	default:
		return &models.NotFoundError{Kind: "inventory", ID: productID}
	}
}

// Release atomically moves qty from reserved back to available (compensation)
func (c *Client) Release(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return &models.ValidationError{Field: "quantity", Reason: "must be greater than zero"}
	}

	result, err := c.releaseScript.Run(ctx, c.rdb, []string{inventoryKey(productID)}, qty).Result()
	if err != nil {
		return fmt.Errorf("release stock script failed: %w", err)
	}

	code, value, err := parseScriptResult(result)
	if err != nil {
		return err
	}
	switch code {
	case scriptOK:
		return nil
	case scriptRejected:
		return &models.OverReleaseError{ProductID: productID, Requested: qty, Reserved: value}
	default:
		return &models.NotFoundError{Kind: "inventory", ID: productID}
	}
}

// InitInventory initializes inventory counts in Redis
func (c *Client) InitInventory(ctx context.Context, record models.InventoryRecord) error {
	return c.rdb.HSet(ctx, inventoryKey(record.ProductID),
		"available", record.AvailableStock,
		"reserved", record.ReservedStock).Err()
}

// GetInventory retrieves current inventory counts
func (c *Client) GetInventory(ctx context.Context, productID string) (*models.InventoryRecord, error) {
	result, err := c.rdb.HGetAll(ctx, inventoryKey(productID)).Result()
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, &models.NotFoundError{Kind: "inventory", ID: productID}
	}

	available, err := strconv.Atoi(result["available"])
	if err != nil {
		return nil, fmt.Errorf("bad available count for %s: %w", productID, err)
	}
	reserved, err := strconv.Atoi(result["reserved"])
	if err != nil {
		return nil, fmt.Errorf("bad reserved count for %s: %w", productID, err)
	}

	return &models.InventoryRecord{
		ProductID:      productID,
		AvailableStock: available,
		ReservedStock:  reserved,
	}, nil
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}

func parseScriptResult(result interface{}) (int64, int, error) {
	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected script result: %v", result)
	}
	code, ok := values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected script status: %v", values[0])
	}
	value, ok := values[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected script value: %v", values[1])
	}
	if code != scriptOK && code != scriptRejected && code != scriptNotFound {
		return 0, 0, fmt.Errorf("unknown script status %d", code)
	}
	return code, int(value), nil
}
