package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

const defaultProgressEvery = 50

// HistoryFetcher collects the full history of a channel in memory while
// reporting progress to the console.
type HistoryFetcher struct {
	source        HistorySource
	notifier      Notifier
	progressEvery int
	log           zerolog.Logger
}

// NewHistoryFetcher creates a fetcher. progressEvery <= 0 uses the default.
func NewHistoryFetcher(source HistorySource, notifier Notifier, progressEvery int, log zerolog.Logger) *HistoryFetcher {
	if progressEvery <= 0 {
		progressEvery = defaultProgressEvery
	}
	return &HistoryFetcher{
		source:        source,
		notifier:      notifier,
		progressEvery: progressEvery,
		log:           log,
	}
}

// FetchAll returns every message of channel, oldest first.
//
// Access denied is not an error: it is reported and the channel yields no
// messages. Any other failure discards what was fetched so far.
func (f *HistoryFetcher) FetchAll(ctx context.Context, channel Channel) ([]Message, error) {
	label := "#" + channel.Name
	f.notifier.UpdateChannelProgress(0, UnknownTotal, label)

	var messages []Message
	for msg, err := range f.source.History(ctx, channel) {
		if err != nil {
			if errors.Is(err, ErrAccessDenied) {
				f.log.Debug().Err(err).Str("channel", channel.ID).Msg("History not readable")
				f.notifier.Log(fmt.Sprintf("Access denied to channel #%s. Skipping.", channel.Name), SeverityWarning)
				f.notifier.UpdateChannelProgress(0, 0, label)
				return nil, nil
			}
			f.log.Debug().Err(err).Str("channel", channel.ID).Int("discarded", len(messages)).Msg("History fetch failed")
			return nil, fmt.Errorf("fetching history of #%s: %w", channel.Name, err)
		}

		messages = append(messages, msg)
		if len(messages)%f.progressEvery == 0 {
			f.notifier.UpdateChannelProgress(len(messages), UnknownTotal, label)
		}
	}

	f.notifier.UpdateChannelProgress(len(messages), len(messages), label)
	return messages, nil
}
