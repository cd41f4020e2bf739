package catalog

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

const (
	// DefaultGoogleBooksBaseURL はGoogle Books APIのベースURL。
	DefaultGoogleBooksBaseURL = "https://www.googleapis.com/books/v1"
	// SourceGoogleBooks はGoogle Booksのカタログ名。
	SourceGoogleBooks = "google_books"

	googleBooksPageSize = 20
)

// Google BooksのボリュームIDは英数字・ハイフン・アンダースコアのみで構成される。
var googleBooksIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// GoogleBooksClient はGoogle Books APIのクライアント。
type GoogleBooksClient struct {
	opts ClientOptions
}

// NewGoogleBooksClient はGoogleBooksClientを生成する。
// APIKeyが空の場合は匿名クォータで呼び出す。
func NewGoogleBooksClient(opts ClientOptions) *GoogleBooksClient {
	return &GoogleBooksClient{opts: opts.withDefaults(DefaultGoogleBooksBaseURL)}
}

// Name はカタログ名を返す。
func (c *GoogleBooksClient) Name() string { return SourceGoogleBooks }

type googleVolume struct {
	ID         string `json:"id"`
	VolumeInfo struct {
		Title         string   `json:"title"`
		Subtitle      string   `json:"subtitle"`
		Authors       []string `json:"authors"`
		Description   string   `json:"description"`
		PublishedDate string   `json:"publishedDate"`
		PageCount     int      `json:"pageCount"`
		ImageLinks    struct {
			SmallThumbnail string `json:"smallThumbnail"`
			Thumbnail      string `json:"thumbnail"`
		} `json:"imageLinks"`
	} `json:"volumeInfo"`
}

type googleVolumeList struct {
	TotalItems int            `json:"totalItems"`
	Items      []googleVolume `json:"items"`
}

// Fetch はボリュームIDで書籍詳細を取得する。
// IDの形式が不正な場合はHTTPリクエストを送らずにErrNotFoundを返す。
func (c *GoogleBooksClient) Fetch(ctx context.Context, externalID string) (*MediaDetails, error) {
	if !googleBooksIDPattern.MatchString(externalID) {
		return nil, fmt.Errorf("%w: invalid volume id %q", ErrNotFound, externalID)
	}

	reqURL := c.opts.BaseURL + "/volumes/" + url.PathEscape(externalID)
	if c.opts.APIKey != "" {
		reqURL += "?" + url.Values{"key": {c.opts.APIKey}}.Encode()
	}

	var v googleVolume
	if err := getJSON(ctx, c.opts, SourceGoogleBooks, reqURL, &v); err != nil {
		return nil, err
	}
	if v.ID == "" {
		v.ID = externalID
	}
	return c.toDetails(v), nil
}

// Search はキーワードで書籍を検索する。
func (c *GoogleBooksClient) Search(ctx context.Context, query string, page int) ([]MediaDetails, error) {
	if page < 1 {
		page = 1
	}
	q := url.Values{
		"q":          {query},
		"startIndex": {strconv.Itoa((page - 1) * googleBooksPageSize)},
		"maxResults": {strconv.Itoa(googleBooksPageSize)},
		"printType":  {"books"},
	}
	if c.opts.APIKey != "" {
		q.Set("key", c.opts.APIKey)
	}

	var list googleVolumeList
	if err := getJSON(ctx, c.opts, SourceGoogleBooks, c.opts.BaseURL+"/volumes?"+q.Encode(), &list); err != nil {
		return nil, err
	}

	results := make([]MediaDetails, 0, len(list.Items))
	for _, v := range list.Items {
		results = append(results, *c.toDetails(v))
	}
	return results, nil
}

func (c *GoogleBooksClient) toDetails(v googleVolume) *MediaDetails {
	info := v.VolumeInfo

	title := info.Title
	if info.Subtitle != "" {
		title = title + ": " + info.Subtitle
	}

	image := info.ImageLinks.Thumbnail
	if image == "" {
		image = info.ImageLinks.SmallThumbnail
	}

	return &MediaDetails{
		ExternalID:  v.ID,
		Title:       strings.TrimSpace(title),
		Creator:     strings.Join(info.Authors, ", "),
		Synopsis:    c.opts.Sanitizer.PlainText(info.Description),
		ImageURL:    c.opts.Images.SafeImageURL(image),
		ReleaseDate: info.PublishedDate,
		Length:      info.PageCount,
	}
}

// compile-time interface check
var _ Source = (*GoogleBooksClient)(nil)
