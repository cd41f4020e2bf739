package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultTMDbBaseURL はTMDb APIのベースURL。
	DefaultTMDbBaseURL = "https://api.themoviedb.org/3"
	// DefaultTMDbImageBaseURL はTMDbのポスター画像のベースURL。
	DefaultTMDbImageBaseURL = "https://image.tmdb.org/t/p/w500"
	// SourceTMDb はTMDbのカタログ名。
	SourceTMDb = "tmdb"
)

// TMDbClient はThe Movie Database APIのクライアント。
type TMDbClient struct {
	opts ClientOptions
}

// NewTMDbClient はTMDbClientを生成する。
func NewTMDbClient(opts ClientOptions) *TMDbClient {
	opts = opts.withDefaults(DefaultTMDbBaseURL)
	if opts.ImageBaseURL == "" {
		opts.ImageBaseURL = DefaultTMDbImageBaseURL
	}
	return &TMDbClient{opts: opts}
}

// Name はカタログ名を返す。
func (c *TMDbClient) Name() string { return SourceTMDb }

type tmdbMovie struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Overview    string `json:"overview"`
	PosterPath  string `json:"poster_path"`
	ReleaseDate string `json:"release_date"`
	Runtime     int    `json:"runtime"`
	Credits     struct {
		Crew []struct {
			Job  string `json:"job"`
			Name string `json:"name"`
		} `json:"crew"`
	} `json:"credits"`
}

type tmdbSearchResult struct {
	Page    int         `json:"page"`
	Results []tmdbMovie `json:"results"`
}

// Fetch はTMDbの映画IDで映画詳細を取得する。監督はクレジットから取得する。
// IDが数値でない場合はHTTPリクエストを送らずにErrNotFoundを返す。
func (c *TMDbClient) Fetch(ctx context.Context, externalID string) (*MediaDetails, error) {
	if _, err := strconv.ParseUint(externalID, 10, 64); err != nil {
		return nil, fmt.Errorf("%w: invalid movie id %q", ErrNotFound, externalID)
	}

	q := url.Values{
		"api_key":            {c.opts.APIKey},
		"append_to_response": {"credits"},
	}

	var m tmdbMovie
	if err := getJSON(ctx, c.opts, SourceTMDb, c.opts.BaseURL+"/movie/"+externalID+"?"+q.Encode(), &m); err != nil {
		return nil, err
	}
	return c.toDetails(m), nil
}

// Search はキーワードで映画を検索する。検索結果には監督と上映時間は含まれない。
func (c *TMDbClient) Search(ctx context.Context, query string, page int) ([]MediaDetails, error) {
	if page < 1 {
		page = 1
	}
	q := url.Values{
		"api_key":       {c.opts.APIKey},
		"query":         {query},
		"page":          {strconv.Itoa(page)},
		"include_adult": {"false"},
	}

	var res tmdbSearchResult
	if err := getJSON(ctx, c.opts, SourceTMDb, c.opts.BaseURL+"/search/movie?"+q.Encode(), &res); err != nil {
		return nil, err
	}

	results := make([]MediaDetails, 0, len(res.Results))
	for _, m := range res.Results {
		results = append(results, *c.toDetails(m))
	}
	return results, nil
}

func (c *TMDbClient) toDetails(m tmdbMovie) *MediaDetails {
	var directors []string
	for _, crew := range m.Credits.Crew {
		if crew.Job == "Director" {
			directors = append(directors, crew.Name)
		}
	}

	var poster string
	if m.PosterPath != "" {
		poster = c.opts.Images.SafeImageURL(strings.TrimRight(c.opts.ImageBaseURL, "/") + m.PosterPath)
	}

	return &MediaDetails{
		ExternalID:  strconv.FormatInt(m.ID, 10),
		Title:       m.Title,
		Creator:     strings.Join(directors, ", "),
		Synopsis:    c.opts.Sanitizer.PlainText(m.Overview),
		ImageURL:    poster,
		ReleaseDate: m.ReleaseDate,
		Length:      m.Runtime,
	}
}

// compile-time interface check
var _ Source = (*TMDbClient)(nil)
