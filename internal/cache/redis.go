// Package cache зеркалирует живые брони в Redis, чтобы их видели другие процессы.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mmeshcher/library-system/internal/model"
)

const (
	keyPrefix = "hold:"

	dialTimeout  = 3 * time.Second
	readTimeout  = 2 * time.Second
	writeTimeout = 2 * time.Second
	pingTimeout  = 2 * time.Second
)

// HoldMirror хранит брони под ключами hold:<book_id> с TTL, равным остатку окна.
type HoldMirror struct {
	client *redis.Client
}

type holdEntry struct {
	BookID    int64     `json:"book_id"`
	MemberID  int64     `json:"member_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewClient разбирает URL Redis и проверяет соединение.
func NewClient(ctx context.Context, redisURL string, logger *zap.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.DialTimeout = dialTimeout
	opts.ReadTimeout = readTimeout
	opts.WriteTimeout = writeTimeout

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	logger.Info("redis connected", zap.String("addr", opts.Addr))
	return client, nil
}

// NewHoldMirror создаёт зеркало поверх клиента Redis.
func NewHoldMirror(client *redis.Client) *HoldMirror {
	return &HoldMirror{client: client}
}

func holdKey(bookID int64) string {
	return keyPrefix + strconv.FormatInt(bookID, 10)
}

func encodeHold(hold model.Hold) ([]byte, error) {
	return json.Marshal(holdEntry{
		BookID:    hold.BookID,
		MemberID:  hold.MemberID,
		CreatedAt: hold.CreatedAt,
		ExpiresAt: hold.ExpiresAt,
	})
}

func decodeHold(data []byte) (model.Hold, error) {
	var e holdEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return model.Hold{}, err
	}
	return model.Hold{
		BookID:    e.BookID,
		MemberID:  e.MemberID,
		CreatedAt: e.CreatedAt,
		ExpiresAt: e.ExpiresAt,
	}, nil
}

// SaveHold записывает бронь с TTL.
func (m *HoldMirror) SaveHold(ctx context.Context, hold model.Hold, ttl time.Duration) error {
	data, err := encodeHold(hold)
	if err != nil {
		return fmt.Errorf("encode hold: %w", err)
	}

	if err := m.client.Set(ctx, holdKey(hold.BookID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set hold: %w", err)
	}
	return nil
}

// DeleteHold удаляет бронь экземпляра.
func (m *HoldMirror) DeleteHold(ctx context.Context, bookID int64) error {
	if err := m.client.Del(ctx, holdKey(bookID)).Err(); err != nil {
		return fmt.Errorf("redis del hold: %w", err)
	}
	return nil
}

// GetHold читает бронь экземпляра. ok == false, если ключа нет или TTL истёк.
func (m *HoldMirror) GetHold(ctx context.Context, bookID int64) (model.Hold, bool, error) {
	data, err := m.client.Get(ctx, holdKey(bookID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Hold{}, false, nil
		}
		return model.Hold{}, false, fmt.Errorf("redis get hold: %w", err)
	}

	hold, err := decodeHold(data)
	if err != nil {
		return model.Hold{}, false, fmt.Errorf("decode hold: %w", err)
	}
	return hold, true, nil
}
