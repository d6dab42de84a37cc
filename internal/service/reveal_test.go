package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/atinyakov/PartyBooth/internal/clock"
)

func TestRevealCache_SingleUse(t *testing.T) {
	c := NewRevealCache(time.Minute, clock.NewFake(epoch))
	c.Put("DEV1", "secret")

	pw, ok := c.Take("DEV1")
	assert.True(t, ok)
	assert.Equal(t, "secret", pw)

	_, ok = c.Take("DEV1")
	assert.False(t, ok, "second read must miss")
}

func TestRevealCache_Expiry(t *testing.T) {
	fc := clock.NewFake(epoch)
	c := NewRevealCache(time.Minute, fc)
	c.Put("DEV1", "secret")

	fc.Advance(time.Minute)
	_, ok := c.Take("DEV1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestRevealCache_PutSweepsExpired(t *testing.T) {
	fc := clock.NewFake(epoch)
	c := NewRevealCache(time.Minute, fc)
	c.Put("DEV1", "a")
	c.Put("DEV2", "b")

	fc.Advance(2 * time.Minute)
	c.Put("DEV3", "c")
	assert.Equal(t, 1, c.Len())
}

func TestRevealCache_Context(t *testing.T) {
	assert.Nil(t, RevealCacheFrom(context.Background()))

	c := NewRevealCache(time.Minute, nil)
	ctx := WithRevealCache(context.Background(), c)
	assert.Same(t, c, RevealCacheFrom(ctx))
}
