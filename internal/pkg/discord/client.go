package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/kcrp/rp-dashboard/internal/pkg/metrics"
)

const (
	defaultBaseURL   = "https://discord.com/api/v10"
	defaultAuthURL   = "https://discord.com/oauth2/authorize"
	defaultTokenURL  = "https://discord.com/api/oauth2/token"
	defaultTimeout   = 10 * time.Second
	defaultRate      = 20
	membersPageLimit = 1000
	rolesCacheTTL    = 5 * time.Minute
)

// Config holds Discord application and bot credentials.
type Config struct {
	ClientID      string
	ClientSecret  string
	RedirectURL   string
	BotToken      string
	GuildID       string
	BaseURL       string
	AuthURL       string
	TokenURL      string
	Timeout       time.Duration
	RatePerSecond float64
	UserAgent     string
}

// Client talks to the Discord REST API with the bot token and performs the
// OAuth2 code exchange for dashboard logins.
type Client struct {
	baseURL  string
	botToken string
	guildID  string
	ua       string
	oauth    *oauth2.Config
	http     *http.Client
	limiter  *rate.Limiter
	roles    *expirable.LRU[string, []Role]
}

// NewClient creates a Discord client. Every request is bounded by cfg.Timeout.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = defaultRate
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "DiscordBot (rp-dashboard, 1.0)"
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		botToken: cfg.BotToken,
		guildID:  cfg.GuildID,
		ua:       cfg.UserAgent,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"identify", "guilds.members.read"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burstFor(cfg.RatePerSecond)),
		roles:   expirable.NewLRU[string, []Role](4, nil, rolesCacheTTL),
	}
}

// burstFor allows one second of requests at once and never less than one,
// so rates below one per second still let requests through.
func burstFor(perSecond float64) int {
	return max(1, int(math.Ceil(perSecond)))
}

// GuildID returns the configured guild.
func (c *Client) GuildID() string {
	return c.guildID
}

// AuthCodeURL returns the consent page URL carrying state.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// ExchangeCode trades an authorization code for a user access token.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrInvalidCode
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) && rErr.Response != nil && rErr.Response.StatusCode < 500 {
			metrics.DiscordRequests.WithLabelValues("token", "rejected").Inc()
			return nil, fmt.Errorf("%w: %v", ErrInvalidCode, err)
		}
		metrics.DiscordRequests.WithLabelValues("token", "error").Inc()
		return nil, classifyRequestError(ctx, "token exchange", err)
	}
	metrics.DiscordRequests.WithLabelValues("token", "ok").Inc()
	return token, nil
}

// FetchProfile returns the user owning the access token.
func (c *Client) FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	if token == nil || token.AccessToken == "" {
		return nil, ErrInvalidCode
	}
	var p Profile
	status, err := c.getJSON(ctx, "users/@me", "/users/@me", "Bearer "+token.AccessToken, &p)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		return nil, ErrInvalidCode
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: fetch profile status=%d", ErrUnavailable, status)
	}
	return &p, nil
}

// FetchGuildMember looks up one member of the configured guild.
func (c *Client) FetchGuildMember(ctx context.Context, userID string) MemberLookup {
	if strings.TrimSpace(userID) == "" {
		return LookupError{UserID: userID, Err: errors.New("empty user id")}
	}
	var m GuildMember
	path := fmt.Sprintf("/guilds/%s/members/%s", url.PathEscape(c.guildID), url.PathEscape(userID))
	status, err := c.getJSON(ctx, "guild_member", path, "Bot "+c.botToken, &m)
	if err != nil {
		return LookupError{UserID: userID, Err: err}
	}
	switch status {
	case http.StatusOK:
		return Member{GuildMember: m}
	case http.StatusNotFound:
		return NotAMember{UserID: userID}
	default:
		return LookupError{UserID: userID, Err: fmt.Errorf("%w: guild member status=%d", ErrUnavailable, status)}
	}
}

// ListGuildMembers pages through every member of the guild.
func (c *Client) ListGuildMembers(ctx context.Context) ([]GuildMember, error) {
	var (
		all   []GuildMember
		after = "0"
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var page []GuildMember
		path := fmt.Sprintf("/guilds/%s/members?limit=%d&after=%s", url.PathEscape(c.guildID), membersPageLimit, url.QueryEscape(after))
		status, err := c.getJSON(ctx, "guild_members", path, "Bot "+c.botToken, &page)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("%w: list guild members status=%d", ErrUnavailable, status)
		}
		all = append(all, page...)
		if len(page) < membersPageLimit {
			return all, nil
		}
		after = page[len(page)-1].User.ID
	}
}

// GuildRoles returns the guild's roles, cached for a few minutes.
func (c *Client) GuildRoles(ctx context.Context) ([]Role, error) {
	if roles, ok := c.roles.Get(c.guildID); ok {
		return roles, nil
	}
	var roles []Role
	path := fmt.Sprintf("/guilds/%s/roles", url.PathEscape(c.guildID))
	status, err := c.getJSON(ctx, "guild_roles", path, "Bot "+c.botToken, &roles)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: guild roles status=%d", ErrUnavailable, status)
	}
	c.roles.Add(c.guildID, roles)
	return roles, nil
}

// Ping checks that the bot can read the guild.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.GuildRoles(ctx)
	return err
}

// getJSON performs a rate-limited GET. A decoded body is only written to out
// on 200; other statuses are returned for the caller to interpret, except
// 429 and 5xx which are reported as ErrUnavailable.
func (c *Client) getJSON(ctx context.Context, endpoint, path, auth string, out any) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		metrics.DiscordRequests.WithLabelValues(endpoint, "cancelled").Inc()
		return 0, classifyRequestError(ctx, endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("discord %s request error: %w", endpoint, err)
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.ua)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.DiscordRequests.WithLabelValues(endpoint, "error").Inc()
		return 0, classifyRequestError(ctx, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.DiscordRequests.WithLabelValues(endpoint, "unavailable").Inc()
		if resp.StatusCode == http.StatusTooManyRequests {
			return resp.StatusCode, fmt.Errorf("%w: %s rate limited retry_after=%s", ErrRateLimited, endpoint, resp.Header.Get("Retry-After"))
		}
		return resp.StatusCode, fmt.Errorf("%w: %s status=%d body=%s", ErrUnavailable, endpoint, resp.StatusCode, string(body))
	}
	if resp.StatusCode != http.StatusOK {
		metrics.DiscordRequests.WithLabelValues(endpoint, strconvStatus(resp.StatusCode)).Inc()
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.DiscordRequests.WithLabelValues(endpoint, "decode_error").Inc()
		return resp.StatusCode, fmt.Errorf("%w: decode %s: %v", ErrUnavailable, endpoint, err)
	}
	metrics.DiscordRequests.WithLabelValues(endpoint, "ok").Inc()
	return resp.StatusCode, nil
}

func strconvStatus(code int) string {
	switch {
	case code == http.StatusNotFound:
		return "not_found"
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return "denied"
	default:
		return "client_error"
	}
}
