package clock

import "time"

// Clock は現在時刻の取得を抽象化する
// ホールドの期限判定をテストで決定的に扱うために注入する
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystem はシステム時刻を返す Clock を作成する
func NewSystem() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

// FixedClock は常に同じ時刻を返す Clock（テスト用）
type FixedClock struct {
	now time.Time
}

// NewFixed は固定時刻の Clock を作成する
func NewFixed(t time.Time) *FixedClock {
	return &FixedClock{now: t}
}

func (c *FixedClock) Now() time.Time {
	return c.now
}

// Advance は固定時刻を進める
func (c *FixedClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
