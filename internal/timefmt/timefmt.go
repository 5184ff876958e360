package timefmt

import (
	"time"

	"chat-sync/internal/models"
)

// Scene selects how much detail a rendered timestamp carries.
type Scene int

const (
	// SceneList renders conversation list entries.
	SceneList Scene = iota
	// SceneRecords renders chat history entries; relative days also carry the time.
	SceneRecords
)

// Labels holds the localized strings used for display.
type Labels struct {
	Yesterday          string
	DayBeforeYesterday string
	Image              string
	Video              string
}

var (
	English = Labels{Yesterday: "Yesterday", DayBeforeYesterday: "Day before yesterday", Image: "[Image]", Video: "[Video]"}
	Chinese = Labels{Yesterday: "昨天", DayBeforeYesterday: "前天", Image: "[图片]", Video: "[视频]"}
)

// LabelsFor returns the labels of locale, defaulting to English.
func LabelsFor(locale string) Labels {
	switch locale {
	case "zh", "zh-CN", "zh_CN":
		return Chinese
	default:
		return English
	}
}

// Preview returns what a conversation list shows for a message body.
// Media references are never shown raw.
func (l Labels) Preview(content string, contentType models.ContentType) string {
	switch contentType {
	case models.ContentText:
		return content
	case models.ContentImage:
		return l.Image
	default:
		return l.Video
	}
}

// Formatter renders unix-second timestamps relative to the current day.
type Formatter struct {
	loc    *time.Location
	labels Labels
	now    func() time.Time
}

func New(loc *time.Location, labels Labels) *Formatter {
	if loc == nil {
		loc = time.Local
	}
	return &Formatter{loc: loc, labels: labels, now: time.Now}
}

// WithClock returns a copy of f that reads the current time from now.
func (f *Formatter) WithClock(now func() time.Time) *Formatter {
	cp := *f
	cp.now = now
	return &cp
}

// Labels returns the formatter's localized labels.
func (f *Formatter) Labels() Labels {
	return f.labels
}

// Format renders ts for display. It is never used for ordering.
func (f *Formatter) Format(ts int64, scene Scene) string {
	t := time.Unix(ts, 0).In(f.loc)
	now := f.now().In(f.loc)
	clock := t.Format("15:04")

	var out string
	switch days := dayNumber(now) - dayNumber(t); {
	case days == 0:
		return clock
	case days == 1:
		out = f.labels.Yesterday
	case days == 2:
		out = f.labels.DayBeforeYesterday
	case t.Year() == now.Year():
		out = t.Format("01-02")
	default:
		out = t.Format("2006-01-02")
	}
	if scene == SceneRecords {
		out += " " + clock
	}
	return out
}

// dayNumber counts calendar days since the epoch for t's wall-clock date.
func dayNumber(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}
