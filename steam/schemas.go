package steam

import "encoding/json"

type OwnedGame struct {
	ID                     int64  `json:"appid"`
	Name                   string `json:"name,omitempty"`
	PlaytimeForever        int64  `json:"playtime_forever"`
	PlaytimeWindowsForever int64  `json:"playtime_windows_forever,omitempty"`
	PlaytimeMacForever     int64  `json:"playtime_mac_forever,omitempty"`
	PlaytimeLinuxForever   int64  `json:"playtime_linux_forever,omitempty"`
	RTimeLastPlayed        int64  `json:"rtime_last_played,omitempty"`
	PlaytimeDisconnected   int64  `json:"playtime_disconnected,omitempty"`
}

type OwnedGamesResponse struct {
	GameCount int64       `json:"game_count"`
	Games     []OwnedGame `json:"games"`
}

type PriceOverview struct {
	Currency         string `json:"currency"`
	Initial          int64  `json:"initial"`
	Final            int64  `json:"final"`
	DiscountPercent  int64  `json:"discount_percent,omitempty"`
	InitialFormatted string `json:"initial_formatted,omitempty"`
	FinalFormatted   string `json:"final_formatted,omitempty"`
}

type Platforms struct {
	Windows bool `json:"windows"`
	Mac     bool `json:"mac"`
	Linux   bool `json:"linux"`
}

type Metacritic struct {
	Score int64  `json:"score"`
	URL   string `json:"url,omitempty"`
}

type Category struct {
	ID          json.Number `json:"id"`
	Description string      `json:"description"`
}

type ItemTotal struct {
	Total int64 `json:"total"`
}

type ReleaseDate struct {
	ComingSoon bool   `json:"coming_soon"`
	Date       string `json:"date"`
}

// App is the store page data of an application.
type App struct {
	Type                string         `json:"type"`
	Name                string         `json:"name"`
	ID                  int64          `json:"steam_appid,omitempty"`
	RequiredAge         json.Number    `json:"required_age,omitempty"`
	IsFree              bool           `json:"is_free,omitempty"`
	DLC                 []int64        `json:"dlc,omitempty"`
	DetailedDescription string         `json:"detailed_description,omitempty"`
	AboutTheGame        string         `json:"about_the_game,omitempty"`
	ShortDescription    string         `json:"short_description,omitempty"`
	SupportedLanguages  string         `json:"supported_languages,omitempty"`
	HeaderImage         string         `json:"header_image,omitempty"`
	Website             string         `json:"website,omitempty"`
	Developers          []string       `json:"developers,omitempty"`
	Publishers          []string       `json:"publishers,omitempty"`
	PriceOverview       *PriceOverview `json:"price_overview,omitempty"`
	Platforms           *Platforms     `json:"platforms,omitempty"`
	Metacritic          *Metacritic    `json:"metacritic,omitempty"`
	Packages            []int64        `json:"packages,omitempty"`
	Categories          []Category     `json:"categories,omitempty"`
	Genres              []Category     `json:"genres,omitempty"`
	Recommendations     *ItemTotal     `json:"recommendations,omitempty"`
	ReleaseDate         *ReleaseDate   `json:"release_date,omitempty"`
	Background          string         `json:"background,omitempty"`
}

type appInfoOuter struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type ReviewsSummary struct {
	NumReviews      int64  `json:"num_reviews"`
	ReviewScore     int64  `json:"review_score,omitempty"`
	ReviewScoreDesc string `json:"review_score_desc,omitempty"`
	TotalPositive   int64  `json:"total_positive,omitempty"`
	TotalNegative   int64  `json:"total_negative,omitempty"`
	TotalReviews    int64  `json:"total_reviews,omitempty"`
}

type ReviewAuthor struct {
	SteamID              int64 `json:"steamid,string"`
	NumGamesOwned        int64 `json:"num_games_owned"`
	NumReviews           int64 `json:"num_reviews"`
	PlaytimeForever      int64 `json:"playtime_forever"`
	PlaytimeLastTwoWeeks int64 `json:"playtime_last_two_weeks"`
	PlaytimeAtReview     int64 `json:"playtime_at_review,omitempty"`
	LastPlayed           int64 `json:"last_played"`
}

type Review struct {
	ID                       int64        `json:"recommendationid,string"`
	Author                   ReviewAuthor `json:"author"`
	Language                 string       `json:"language"`
	Review                   string       `json:"review,omitempty"`
	TimestampCreated         int64        `json:"timestamp_created"`
	TimestampUpdated         int64        `json:"timestamp_updated"`
	VotedUp                  bool         `json:"voted_up"`
	VotesUp                  int64        `json:"votes_up"`
	VotesFunny               int64        `json:"votes_funny"`
	WeightedVoteScore        json.Number  `json:"weighted_vote_score"`
	CommentCount             int64        `json:"comment_count"`
	SteamPurchase            bool         `json:"steam_purchase"`
	ReceivedForFree          bool         `json:"received_for_free,omitempty"`
	WrittenDuringEarlyAccess bool         `json:"written_during_early_access"`
	HiddenInSteamChina       bool         `json:"hidden_in_steam_china,omitempty"`
	SteamChinaLocation       string       `json:"steam_china_location,omitempty"`
	DeveloperResponse        string       `json:"developer_response,omitempty"`
	TimestampDevResponded    int64        `json:"timestamp_dev_responded,omitempty"`
}

type reviewsResponse struct {
	Success      int64          `json:"success"`
	QuerySummary ReviewsSummary `json:"query_summary"`
	Reviews      []Review       `json:"reviews"`
	Cursor       string         `json:"cursor"`
}

// ListedApp is one entry of the full application list.
type ListedApp struct {
	AppID int64  `json:"appid"`
	Name  string `json:"name"`
}

type appListResponse struct {
	AppList struct {
		Apps []ListedApp `json:"apps"`
	} `json:"applist"`
}
