package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/freeeve/cave-skirmish/internal/model"
	"github.com/freeeve/cave-skirmish/internal/repository"
)

// Key patterns for cached outcomes.
func battleKey(k repository.BattleKey) string           { return "skirmish:battle:" + k.String() }
func calibrationKey(k repository.CalibrationKey) string { return "skirmish:calibration:" + k.String() }

// GetBattle returns the cached outcome of a battle, or nil on a miss.
func (c *Client) GetBattle(ctx context.Context, key repository.BattleKey) (*model.Outcome, error) {
	var o model.Outcome
	ok, err := c.getJSON(ctx, battleKey(key), &o)
	if err != nil || !ok {
		return nil, err
	}
	return &o, nil
}

// SetBattle caches the outcome of a battle.
func (c *Client) SetBattle(ctx context.Context, key repository.BattleKey, o *model.Outcome) error {
	return c.setJSON(ctx, battleKey(key), o)
}

// GetCalibration returns the cached result of a strength search, or nil on a miss.
func (c *Client) GetCalibration(ctx context.Context, key repository.CalibrationKey) (*model.Calibration, error) {
	var cal model.Calibration
	ok, err := c.getJSON(ctx, calibrationKey(key), &cal)
	if err != nil || !ok {
		return nil, err
	}
	return &cal, nil
}

// SetCalibration caches the result of a strength search.
func (c *Client) SetCalibration(ctx context.Context, key repository.CalibrationKey, cal *model.Calibration) error {
	return c.setJSON(ctx, calibrationKey(key), cal)
}

func (c *Client) getJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (c *Client) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
