package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBucketStartsFullAndConsumesImmediately(t *testing.T) {
	b := NewBucket(2, time.Second, 2)
	start := time.Now()
	b.Acquire()
	b.Acquire()
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestBucketRefillsProportionally(t *testing.T) {
	current := time.Now()
	b := NewBucket(1, time.Second, 1)
	b.now = func() time.Time { return current }

	b.Acquire() // drains the single token
	wait := b.tryAcquire()
	assert.Greater(t, wait, time.Duration(0))

	current = current.Add(500 * time.Millisecond)
	wait = b.tryAcquire()
	assert.Greater(t, wait, time.Duration(0))
	assert.Less(t, wait, 600*time.Millisecond)

	current = current.Add(600 * time.Millisecond)
	wait = b.tryAcquire()
	assert.Equal(t, time.Duration(0), wait)
}

func TestJitterClampedToMinimum(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := Jitter(100*time.Millisecond, 0.25, 100*time.Millisecond)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
	}
}
