package discordia

import (
	"fmt"
	"time"
)

const (
	// DefaultDailyLogTopic is applied to channels generated by
	// DailyLogPattern when no topic is configured.
	DefaultDailyLogTopic = "Daily conversation log"

	// DefaultWeekDayTopic is applied to channels generated by
	// WeekDayPattern when no topic is configured.
	DefaultWeekDayTopic = "Weekly log channel"

	// DefaultPatternSeparator joins prefix and suffix in PrefixedPattern.
	DefaultPatternSeparator = "-"

	dateChannelNameLayout = "2006-01-02"
)

// Pattern generates additional desired channel templates from a rule and
// a point in time. Patterns are evaluated once per reconciliation pass -
// their output is never cached or persisted, only the channels that result
// from it are.
type Pattern interface {
	Generate(asOf time.Time) []ChannelTemplate
}

// DailyLogPattern generates one text channel per calendar day in
// [asOf - DaysBehind, asOf + DaysAhead], named YYYY-MM-DD, in
// chronological order.
type DailyLogPattern struct {
	DaysBehind int
	DaysAhead  int
	Topic      string
}

func (p DailyLogPattern) Generate(asOf time.Time) []ChannelTemplate {
	topic := p.Topic
	if topic == "" {
		topic = DefaultDailyLogTopic
	}

	day := asOf.UTC().Truncate(24 * time.Hour)
	start := day.AddDate(0, 0, -p.DaysBehind)
	end := day.AddDate(0, 0, p.DaysAhead)

	var channels []ChannelTemplate
	for current := start; !current.After(end); current = current.AddDate(0, 0, 1) {
		channels = append(
			channels,
			NewTextChannelTemplate(current.Format(dateChannelNameLayout), topic),
		)
	}
	return channels
}

// WeekDayPattern generates one text channel per day, named WW-DD (ISO
// week number, then ISO weekday with Monday as 01). The window covers
// whole ISO weeks: from the Monday WeeksBehind weeks back through the
// Sunday WeeksAhead weeks forward of asOf.
type WeekDayPattern struct {
	WeeksBehind int
	WeeksAhead  int
	Topic       string
}

func (p WeekDayPattern) Generate(asOf time.Time) []ChannelTemplate {
	topic := p.Topic
	if topic == "" {
		topic = DefaultWeekDayTopic
	}

	day := asOf.UTC().Truncate(24 * time.Hour)
	isoWeekday := isoWeekdayNumber(day.Weekday())
	start := day.AddDate(0, 0, -(p.WeeksBehind*7 + (isoWeekday - 1)))
	end := day.AddDate(0, 0, p.WeeksAhead*7+(7-isoWeekday))

	var channels []ChannelTemplate
	for current := start; !current.After(end); current = current.AddDate(0, 0, 1) {
		_, week := current.ISOWeek()
		name := fmt.Sprintf(
			"%02d-%02d",
			week,
			isoWeekdayNumber(current.Weekday()),
		)
		channels = append(channels, NewTextChannelTemplate(name, topic))
	}
	return channels
}

// isoWeekdayNumber maps time.Weekday (Sunday=0) to ISO numbering
// (Monday=1, Sunday=7).
func isoWeekdayNumber(weekday time.Weekday) int {
	if weekday == time.Sunday {
		return 7
	}
	return int(weekday)
}

// PrefixedPattern generates one text channel per suffix, named
// prefix<separator>suffix, with sequential positions. The suffix list is
// static - an empty list is valid and contributes nothing.
type PrefixedPattern struct {
	Prefix    string
	Suffixes  []string
	Separator string

	// TopicFunc optionally derives a topic from the suffix. Nil leaves
	// generated channels without a topic.
	TopicFunc func(suffix string) string
}

func (p PrefixedPattern) Generate(_ time.Time) []ChannelTemplate {
	separator := p.Separator
	if separator == "" {
		separator = DefaultPatternSeparator
	}

	var channels []ChannelTemplate
	for i, suffix := range p.Suffixes {
		var topic string
		if p.TopicFunc != nil {
			topic = p.TopicFunc(suffix)
		}
		channel := NewTextChannelTemplate(
			fmt.Sprintf("%s%s%s", p.Prefix, separator, suffix),
			topic,
		)
		channel.Position = i
		channels = append(channels, channel)
	}
	return channels
}
