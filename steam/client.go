// Package steam fetches catalog and review data from the Steam store and
// web APIs. Every operation is memoized, so repeated runs only fetch what
// is not stored yet.
package steam

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/agentuity/steam-mirror/cache"
	"github.com/agentuity/steam-mirror/logger"
	"github.com/agentuity/steam-mirror/memo"
	"github.com/agentuity/steam-mirror/resilience"
	"github.com/agentuity/steam-mirror/serializer"
	"github.com/cockroachdb/errors"
)

const (
	DefaultStoreURL = "https://store.steampowered.com"
	DefaultAPIURL   = "https://api.steampowered.com"

	reviewsPerPage = 100
)

var (
	// ErrNotFound is returned when the store has no data for an app. It is
	// not cached.
	ErrNotFound = errors.New("steam: not found")
	// ErrReviewCollision is returned when review pagination yields the same
	// review twice.
	ErrReviewCollision = errors.New("steam: review returned twice")
	// ErrUnexpectedResponse is returned for responses that do not have the
	// documented shape.
	ErrUnexpectedResponse = errors.New("steam: unexpected response")
)

// BackendFunc returns the cache backend for the memoized operation prefix.
// s is the preferred file format of that operation.
type BackendFunc func(prefix string, s serializer.Serializer) cache.Backend

// FilesBackends stores each operation under root, one directory or file per
// prefix.
func FilesBackends(root string, opts ...cache.Option) BackendFunc {
	return func(prefix string, s serializer.Serializer) cache.Backend {
		return cache.NewFiles(filepath.Join(root, prefix), s, opts...)
	}
}

type Config struct {
	APIKey string
	// MyID is the account whose library GameNameMap is built from.
	MyID     int64
	StoreURL string
	APIURL   string
	// HTTPClient defaults to NewHTTPClient(5s, 10s).
	HTTPClient *http.Client
	// Retry applies to every request. Defaults to
	// resilience.DefaultRetryConfig.
	Retry    *resilience.RetryConfig
	Logger   logger.Logger
	Backends BackendFunc
	// HashKeys names keyed entries by the xxhash of the key.
	HashKeys bool
	// NameCorrections is a YAML file of name to app id entries that
	// override the app list in AppIDByName.
	NameCorrections string
}

type Client struct {
	apiKey   string
	myID     int64
	storeURL string
	apiURL   string
	http     *http.Client
	retry    resilience.RetryConfig
	logger   logger.Logger

	appInfo       *memo.Scalar[App]
	ownedGames    *memo.Scalar[OwnedGamesResponse]
	reviewSummary *memo.Scalar[ReviewsSummary]
	reviews       *memo.Sequence[Review]
	allApps       *memo.Scalar[[]any]
	nameMap       *memo.Scalar[map[string]any]

	nameCorrections string
	indexMu         sync.Mutex
	index           map[string]int64
}

func New(cfg Config) (*Client, error) {
	if cfg.Backends == nil {
		return nil, errors.New("steam: no cache backends configured")
	}
	c := &Client{
		apiKey:   cfg.APIKey,
		myID:     cfg.MyID,
		storeURL: cfg.StoreURL,
		apiURL:   cfg.APIURL,
		http:     cfg.HTTPClient,
		logger:   cfg.Logger,

		nameCorrections: cfg.NameCorrections,
	}
	if c.storeURL == "" {
		c.storeURL = DefaultStoreURL
	}
	if c.apiURL == "" {
		c.apiURL = DefaultAPIURL
	}
	if c.http == nil {
		c.http = NewHTTPClient(DefaultConnectTimeout, DefaultReadTimeout)
	}
	if c.logger == nil {
		c.logger = logger.Discard()
	}
	if cfg.Retry != nil {
		c.retry = *cfg.Retry
	} else {
		c.retry = resilience.DefaultRetryConfig()
	}
	if c.retry.Logger == nil {
		c.retry.Logger = c.logger
	}

	var key memo.KeyFunc = memo.AllStr
	if cfg.HashKeys {
		key = memo.Hashed(memo.AllStr)
	}
	var err error
	yml := serializer.YAML{}
	if c.appInfo, err = memo.NewScalar(memo.Config[App]{
		Prefix:  "get_app_info",
		Backend: cfg.Backends("get_app_info", yml),
		Model:   memo.JSONModel[App]{},
		Key:     key,
		Logger:  c.logger,
	}, c.fetchAppInfo); err != nil {
		return nil, err
	}
	if c.ownedGames, err = memo.NewScalar(memo.Config[OwnedGamesResponse]{
		Prefix:  "player_owned_games",
		Backend: cfg.Backends("player_owned_games", yml),
		Model:   memo.JSONModel[OwnedGamesResponse]{},
		Key:     key,
		Logger:  c.logger,
	}, c.fetchOwnedGames); err != nil {
		return nil, err
	}
	if c.reviewSummary, err = memo.NewScalar(memo.Config[ReviewsSummary]{
		Prefix:  "review_summary",
		Backend: cfg.Backends("review_summary", yml),
		Model:   memo.JSONModel[ReviewsSummary]{},
		Key:     key,
		Logger:  c.logger,
	}, c.fetchReviewSummary); err != nil {
		return nil, err
	}
	if c.reviews, err = memo.NewSequence(memo.Config[Review]{
		Prefix:  "reviews",
		Backend: cfg.Backends("reviews", yml),
		Model:   memo.JSONModel[Review]{},
		Key:     key,
		Logger:  c.logger,
	}, c.fetchReviews); err != nil {
		return nil, err
	}
	if c.allApps, err = memo.NewScalar(memo.Config[[]any]{
		Prefix:  "all_apps",
		Backend: cfg.Backends("all_apps", serializer.JSON{}),
		Logger:  c.logger,
	}, c.fetchAllApps); err != nil {
		return nil, err
	}
	if c.nameMap, err = memo.NewScalar(memo.Config[map[string]any]{
		Prefix:  "game_name_id_map",
		Backend: cfg.Backends("game_name_id_map", yml),
		Logger:  c.logger,
	}, c.buildNameMap); err != nil {
		return nil, err
	}
	return c, nil
}

// fetch runs one request under the retry policy.
func (c *Client) fetch(ctx context.Context, base, path string, query url.Values, out any) error {
	_, err := resilience.Retry(ctx, c.retry, func() (struct{}, error) {
		return struct{}{}, c.get(ctx, base, path, query, out)
	})
	return err
}

func int64Arg(args []any) (int64, error) {
	if len(args) != 1 {
		return 0, errors.AssertionFailedf("want one id, got %d args", len(args))
	}
	id, ok := args[0].(int64)
	if !ok {
		return 0, errors.AssertionFailedf("id is %T, not int64", args[0])
	}
	return id, nil
}

// AppInfo returns the store data of appID. found is false for an empty
// entry stored by an earlier run.
func (c *Client) AppInfo(ctx context.Context, appID int64) (App, bool, error) {
	return c.appInfo.Call(ctx, appID)
}

func (c *Client) fetchAppInfo(ctx context.Context, args ...any) (App, bool, error) {
	appID, err := int64Arg(args)
	if err != nil {
		return App{}, false, err
	}
	var raw map[string]appInfoOuter
	query := url.Values{"appids": {strconv.FormatInt(appID, 10)}}
	if err := c.fetch(ctx, c.storeURL, "/api/appdetails", query, &raw); err != nil {
		return App{}, false, err
	}
	outer, ok := raw[strconv.FormatInt(appID, 10)]
	if !ok || len(raw) != 1 {
		return App{}, false, errors.Wrapf(ErrUnexpectedResponse, "app %d: response keyed by other apps", appID)
	}
	if !outer.Success {
		return App{}, false, errors.Wrapf(ErrNotFound, "app %d retrieve failed", appID)
	}
	var app App
	if len(outer.Data) > 0 && outer.Data[0] == '{' {
		if err := json.Unmarshal(outer.Data, &app); err != nil {
			return App{}, false, errors.Wrapf(err, "app %d", appID)
		}
	}
	if app.Name == "" && app.Type == "" {
		return App{}, false, errors.Wrapf(ErrNotFound, "app %d empty data", appID)
	}
	return app, true, nil
}

// AppInfoCached reports whether the store data of appID is stored.
func (c *Client) AppInfoCached(ctx context.Context, appID int64) (bool, error) {
	return c.appInfo.Cached(ctx, appID)
}

// ForgetAppInfo removes the stored store data of appID.
func (c *Client) ForgetAppInfo(ctx context.Context, appID int64) (bool, error) {
	return c.appInfo.Forget(ctx, appID)
}

// OwnedGames returns the library of steamID.
func (c *Client) OwnedGames(ctx context.Context, steamID int64) (OwnedGamesResponse, bool, error) {
	return c.ownedGames.Call(ctx, steamID)
}

func (c *Client) fetchOwnedGames(ctx context.Context, args ...any) (OwnedGamesResponse, bool, error) {
	steamID, err := int64Arg(args)
	if err != nil {
		return OwnedGamesResponse{}, false, err
	}
	var raw struct {
		Response OwnedGamesResponse `json:"response"`
	}
	query := url.Values{
		"key":     {c.apiKey},
		"steamid": {strconv.FormatInt(steamID, 10)},
		"format":  {"json"},
	}
	if err := c.fetch(ctx, c.apiURL, "/IPlayerService/GetOwnedGames/v0001/", query, &raw); err != nil {
		return OwnedGamesResponse{}, false, err
	}
	if raw.Response.Games == nil {
		raw.Response.Games = []OwnedGame{}
	}
	return raw.Response, true, nil
}

// ReviewSummary returns the review totals of appID.
func (c *Client) ReviewSummary(ctx context.Context, appID int64) (ReviewsSummary, bool, error) {
	return c.reviewSummary.Call(ctx, appID)
}

// TotalReviews returns the number of reviews of appID.
func (c *Client) TotalReviews(ctx context.Context, appID int64) (int64, error) {
	summary, _, err := c.ReviewSummary(ctx, appID)
	return summary.TotalReviews, err
}

func (c *Client) fetchReviewSummary(ctx context.Context, args ...any) (ReviewsSummary, bool, error) {
	appID, err := int64Arg(args)
	if err != nil {
		return ReviewsSummary{}, false, err
	}
	page, err := c.reviewPage(ctx, appID, "*")
	if err != nil {
		return ReviewsSummary{}, false, err
	}
	return page.QuerySummary, true, nil
}

// Reviews returns every review of appID, newest first. A stored sequence is
// replayed without contacting Steam.
func (c *Client) Reviews(ctx context.Context, appID int64) iter.Seq2[Review, error] {
	return c.reviews.Call(ctx, appID)
}

// ReviewsCached reports whether the reviews of appID are stored.
func (c *Client) ReviewsCached(ctx context.Context, appID int64) (bool, error) {
	return c.reviews.Cached(ctx, appID)
}

func (c *Client) fetchReviews(ctx context.Context, args ...any) iter.Seq2[Review, error] {
	return func(yield func(Review, error) bool) {
		appID, err := int64Arg(args)
		if err != nil {
			yield(Review{}, err)
			return
		}
		seen := make(map[int64]struct{})
		cursor := "*"
		for cursor != "" {
			page, err := c.reviewPage(ctx, appID, cursor)
			if err != nil {
				yield(Review{}, err)
				return
			}
			if len(page.Reviews) == 0 {
				return
			}
			for _, review := range page.Reviews {
				if _, dup := seen[review.ID]; dup {
					yield(Review{}, errors.Wrapf(ErrReviewCollision, "app %d review %d after %d reviews", appID, review.ID, len(seen)))
					return
				}
				seen[review.ID] = struct{}{}
				if !yield(review, nil) {
					return
				}
			}
			cursor = page.Cursor
		}
		c.logger.Warn("app %d: review page without cursor after %d reviews", appID, len(seen))
	}
}

func (c *Client) reviewPage(ctx context.Context, appID int64, cursor string) (*reviewsResponse, error) {
	// "recent" orders by date; the cursor does not page through the default
	// "all" filter.
	query := url.Values{
		"json":                     {"1"},
		"language":                 {"all"},
		"filter":                   {"recent"},
		"review_type":              {"all"},
		"purchase_type":            {"all"},
		"cursor":                   {cursor},
		"num_per_page":             {strconv.Itoa(reviewsPerPage)},
		"filter_offtopic_activity": {"0"},
	}
	var page reviewsResponse
	if err := c.fetch(ctx, c.storeURL, "/appreviews/"+strconv.FormatInt(appID, 10), query, &page); err != nil {
		return nil, err
	}
	if page.Success != 1 {
		return nil, errors.Wrapf(ErrUnexpectedResponse, "app %d: reviews success=%d", appID, page.Success)
	}
	return &page, nil
}

// AllApps returns every application known to Steam.
func (c *Client) AllApps(ctx context.Context) ([]ListedApp, error) {
	raw, _, err := c.allApps.Call(ctx)
	if err != nil {
		return nil, err
	}
	apps, _, err := memo.Passthrough[[]ListedApp]{}.Validate(raw)
	return apps, err
}

func (c *Client) fetchAllApps(ctx context.Context, _ ...any) ([]any, bool, error) {
	var raw appListResponse
	if err := c.fetch(ctx, c.apiURL, "/ISteamApps/GetAppList/v2/", nil, &raw); err != nil {
		return nil, false, err
	}
	apps, err := serializer.ToPrimitive(raw.AppList.Apps)
	if err != nil {
		return nil, false, err
	}
	list, _ := apps.([]any)
	if list == nil {
		list = []any{}
	}
	return list, true, nil
}

// GameNameMap maps the name of every game owned by the configured account
// to its app id. Games the store has no data for are left out.
func (c *Client) GameNameMap(ctx context.Context) (map[string]int64, error) {
	raw, _, err := c.nameMap.Call(ctx)
	if err != nil {
		return nil, err
	}
	names, _, err := memo.Passthrough[map[string]int64]{}.Validate(raw)
	if names == nil {
		names = map[string]int64{}
	}
	return names, err
}

// GameNameMapCached reports whether the name map is stored.
func (c *Client) GameNameMapCached(ctx context.Context) (bool, error) {
	return c.nameMap.Cached(ctx)
}

func (c *Client) buildNameMap(ctx context.Context, _ ...any) (map[string]any, bool, error) {
	owned, _, err := c.OwnedGames(ctx, c.myID)
	if err != nil {
		return nil, false, err
	}
	names := make(map[string]any, len(owned.Games))
	for _, game := range owned.Games {
		app, found, err := c.AppInfo(ctx, game.ID)
		if errors.Is(err, ErrNotFound) || (err == nil && !found) {
			c.logger.Debug("app %d has no store data, left out of the name map", game.ID)
			continue
		}
		if err != nil {
			return nil, false, err
		}
		names[app.Name] = game.ID
	}
	return names, true, nil
}

// ForgetReviews removes the stored reviews of appID.
func (c *Client) ForgetReviews(ctx context.Context, appID int64) (bool, error) {
	return c.reviews.Forget(ctx, appID)
}
