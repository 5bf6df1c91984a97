package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	defaultAPIBaseURL = "https://discord.com/api/v10"
	userAgent         = "DiscordBot (https://github.com/codtenalt/discord-archiver, 1.0)"
	maxPageSize       = 100
	guildsPageSize    = 200
)

var errHistoryConsumed = errors.New("history sequence can only be iterated once")

// RESTOptions configures a RESTClient
type RESTOptions struct {
	BaseURL         string
	Bot             bool
	PageSize        int
	RequestInterval time.Duration
	MaxRetries      int
	Logger          zerolog.Logger
}

// RESTClient is the subset of the Discord HTTP API the archiver needs
type RESTClient struct {
	baseURL       string
	authorization string
	pageSize      int
	http          *retryablehttp.Client
	limiter       *rate.Limiter
	log           zerolog.Logger
}

// NewRESTClient creates a client authenticating with token
func NewRESTClient(token string, opts RESTOptions) *RESTClient {
	baseURL := strings.TrimSuffix(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}
	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	authorization := token
	if opts.Bot {
		authorization = "Bot " + token
	}

	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = opts.MaxRetries
	httpClient.RetryWaitMin = 500 * time.Millisecond
	httpClient.RetryWaitMax = 30 * time.Second
	httpClient.Logger = retryLogger{log: opts.Logger}
	// Return the last response instead of a generic "giving up" error so
	// status codes like 403 still reach the caller.
	httpClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	limit := rate.Inf
	if opts.RequestInterval > 0 {
		limit = rate.Every(opts.RequestInterval)
	}

	return &RESTClient{
		baseURL:       baseURL,
		authorization: authorization,
		pageSize:      pageSize,
		http:          httpClient,
		limiter:       rate.NewLimiter(limit, 1),
		log:           opts.Logger,
	}
}

func (c *RESTClient) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", c.authorization)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, URL: path}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if len(body) > 0 {
			_ = json.Unmarshal(body, apiErr)
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// CurrentUserGuilds lists every guild the token can see
func (c *RESTClient) CurrentUserGuilds(ctx context.Context) ([]Server, error) {
	var servers []Server
	after := ""
	for {
		query := url.Values{"limit": {strconv.Itoa(guildsPageSize)}}
		if after != "" {
			query.Set("after", after)
		}

		var page []*discordgo.UserGuild
		if err := c.get(ctx, "/users/@me/guilds", query, &page); err != nil {
			return nil, fmt.Errorf("listing guilds: %w", err)
		}
		for _, g := range page {
			servers = append(servers, Server{ID: g.ID, Name: g.Name})
		}
		if len(page) < guildsPageSize {
			return servers, nil
		}
		after = page[len(page)-1].ID
	}
}

// GuildChannels returns the text-capable channels of a guild ordered by position
func (c *RESTClient) GuildChannels(ctx context.Context, guildID string) ([]Channel, error) {
	var raw []*discordgo.Channel
	if err := c.get(ctx, "/guilds/"+url.PathEscape(guildID)+"/channels", nil, &raw); err != nil {
		return nil, fmt.Errorf("listing channels of %s: %w", guildID, err)
	}

	channels := make([]Channel, 0, len(raw))
	for _, ch := range raw {
		if ch.Type != discordgo.ChannelTypeGuildText && ch.Type != discordgo.ChannelTypeGuildNews {
			continue
		}
		channels = append(channels, Channel{ID: ch.ID, Name: ch.Name, Position: ch.Position})
	}
	slices.SortStableFunc(channels, func(a, b Channel) int {
		return cmp.Compare(a.Position, b.Position)
	})
	return channels, nil
}

// History yields the channel's messages oldest first. The sequence pages
// through the whole history lazily and can be ranged over only once.
func (c *RESTClient) History(ctx context.Context, channel Channel) iter.Seq2[Message, error] {
	consumed := false
	return func(yield func(Message, error) bool) {
		if consumed {
			yield(Message{}, errHistoryConsumed)
			return
		}
		consumed = true

		path := "/channels/" + url.PathEscape(channel.ID) + "/messages"
		cursor := "0"
		for {
			if err := c.limiter.Wait(ctx); err != nil {
				yield(Message{}, err)
				return
			}

			query := url.Values{
				"limit": {strconv.Itoa(c.pageSize)},
				"after": {cursor},
			}
			var page []*discordgo.Message
			if err := c.get(ctx, path, query, &page); err != nil {
				yield(Message{}, err)
				return
			}
			if len(page) == 0 {
				return
			}

			slices.SortFunc(page, func(a, b *discordgo.Message) int {
				return compareSnowflakes(a.ID, b.ID)
			})
			c.log.Debug().Str("channel", channel.ID).Str("after", cursor).Int("count", len(page)).Msg("Fetched history page")

			for _, raw := range page {
				msg, err := newMessage(raw)
				if !yield(msg, err) || err != nil {
					return
				}
			}

			if len(page) < c.pageSize {
				return
			}
			cursor = page[len(page)-1].ID
		}
	}
}

// compareSnowflakes orders decimal IDs without parsing them
func compareSnowflakes(a, b string) int {
	if len(a) != len(b) {
		return cmp.Compare(len(a), len(b))
	}
	return strings.Compare(a, b)
}

// newMessage normalizes an API message into the archive's read-only form
func newMessage(m *discordgo.Message) (Message, error) {
	msg := Message{
		ID:         m.ID,
		AuthorName: displayName(m),
		Timestamp:  m.Timestamp,
		Content:    m.ContentWithMentionsReplaced(),
	}
	if m.Author != nil && m.Author.Avatar != "" {
		msg.AuthorAvatar = m.Author.AvatarURL("")
	}

	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		msg.Attachments = append(msg.Attachments, Attachment{Filename: a.Filename, URL: a.URL})
	}

	if len(m.Embeds) > 0 {
		data, err := json.Marshal(m.Embeds)
		if err != nil {
			return Message{}, fmt.Errorf("encoding embeds of %s: %w", m.ID, err)
		}
		if err := json.Unmarshal(data, &msg.Embeds); err != nil {
			return Message{}, fmt.Errorf("decoding embeds of %s: %w", m.ID, err)
		}
	}
	return msg, nil
}

func displayName(m *discordgo.Message) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author == nil {
		return "Unknown"
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

// retryLogger routes retryablehttp's leveled logging into zerolog
type retryLogger struct {
	log zerolog.Logger
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Fields(keysAndValues).Msg(msg)
}

func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Fields(keysAndValues).Msg(msg)
}

func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Trace().Fields(keysAndValues).Msg(msg)
}
