package venue

import (
	"fmt"
	"time"
)

const secondsPerDay = 24 * 60 * 60

// TimeOfDay は日付を持たない時刻（秒精度）を表す
type TimeOfDay struct {
	sec int
}

// NewTimeOfDay は時・分・秒から TimeOfDay を作成する
func NewTimeOfDay(hour, minute, second int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: %02d:%02d:%02d", ErrInvalidTimeOfDay, hour, minute, second)
	}
	return TimeOfDay{sec: hour*3600 + minute*60 + second}, nil
}

// MustTimeOfDay は NewTimeOfDay の失敗時に panic する版
func MustTimeOfDay(hour, minute, second int) TimeOfDay {
	t, err := NewTimeOfDay(hour, minute, second)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseTimeOfDay は "15:04" または "15:04:05" 形式の文字列を解析する
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay{sec: t.Hour()*3600 + t.Minute()*60 + t.Second()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
}

// Before は t が u より厳密に前かを返す
func (t TimeOfDay) Before(u TimeOfDay) bool {
	return t.sec < u.sec
}

// Seconds は 0 時からの経過秒数を返す
func (t TimeOfDay) Seconds() int {
	return t.sec % secondsPerDay
}

func (t TimeOfDay) String() string {
	s := t.Seconds()
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}
