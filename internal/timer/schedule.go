package timer

import (
	"time"

	"github.com/hitoshi/eventkeeper/internal/model"
)

// Slot はカウントダウン表示用の1枠分の時間割。
type Slot struct {
	TimerID         string
	Sequence        int
	DurationMinutes int
	StartsAt        time.Time
	EndsAt          time.Time
	// Offset は開始時刻からの経過時間。
	Offset time.Duration
}

// BuildSchedule はsequence順のタイマーを連続した時間割に変換する。
func BuildSchedule(timers []model.Timer, start time.Time) []Slot {
	slots := make([]Slot, 0, len(timers))
	var offset time.Duration
	for _, t := range timers {
		d := time.Duration(t.DurationMinutes) * time.Minute
		slots = append(slots, Slot{
			TimerID:         t.ID,
			Sequence:        t.Sequence,
			DurationMinutes: t.DurationMinutes,
			StartsAt:        start.Add(offset),
			EndsAt:          start.Add(offset + d),
			Offset:          offset,
		})
		offset += d
	}
	return slots
}

// Total は時間割全体の所要時間を返す。
func Total(slots []Slot) time.Duration {
	var total time.Duration
	for _, s := range slots {
		total += time.Duration(s.DurationMinutes) * time.Minute
	}
	return total
}
