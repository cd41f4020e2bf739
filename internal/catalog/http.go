package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const userAgent = "MediaTech/1.0"

// TextSanitizer はあらすじのHTMLをプレーンテキストにする。
type TextSanitizer interface {
	PlainText(raw string) string
}

// ImageURLFilter はカタログが返した画像URLを検証・正規化する。
type ImageURLFilter interface {
	SafeImageURL(rawURL string) string
}

// ClientOptions は外部カタログクライアントの共通設定。
type ClientOptions struct {
	HTTPClient   *http.Client
	BaseURL      string
	APIKey       string
	ImageBaseURL string // TMDbのみ使用
	Sanitizer    TextSanitizer
	Images       ImageURLFilter
	Metrics      Metrics
	Logger       *slog.Logger
}

// passthroughImages はImageURLFilter未指定時に使用する。
type passthroughImages struct{}

func (passthroughImages) SafeImageURL(rawURL string) string { return rawURL }

// passthroughText はTextSanitizer未指定時に使用する。
type passthroughText struct{}

func (passthroughText) PlainText(raw string) string { return raw }

func (o ClientOptions) withDefaults(defaultBaseURL string) ClientOptions {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if o.BaseURL == "" {
		o.BaseURL = defaultBaseURL
	}
	if o.Sanitizer == nil {
		o.Sanitizer = passthroughText{}
	}
	if o.Images == nil {
		o.Images = passthroughImages{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// getJSON はGETリクエストを送信し、200応答のJSONをoutにデコードする。
// 404はErrNotFound、それ以外の失敗はErrUnavailableにラップして返す。
func getJSON(ctx context.Context, opts ClientOptions, source, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := opts.HTTPClient.Do(req)
	if opts.Metrics != nil {
		opts.Metrics.ObserveCatalogRequest(source, time.Since(start))
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		recordFailure(opts, source, "transport")
		opts.Logger.Warn("外部カタログの呼び出しに失敗しました",
			slog.String("source", source),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, source, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, source)
	case resp.StatusCode != http.StatusOK:
		recordFailure(opts, source, fmt.Sprintf("http_%d", resp.StatusCode))
		opts.Logger.Warn("外部カタログがエラーステータスを返しました",
			slog.String("source", source),
			slog.Int("http_status", resp.StatusCode),
		)
		return fmt.Errorf("%w: %s returned status %d", ErrUnavailable, source, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		recordFailure(opts, source, "read")
		return fmt.Errorf("%w: %s: レスポンスボディの読み取りに失敗しました: %v", ErrUnavailable, source, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		recordFailure(opts, source, "decode")
		opts.Logger.Warn("外部カタログのレスポンスのパースに失敗しました",
			slog.String("source", source),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %s: レスポンスJSONのパースに失敗しました: %v", ErrUnavailable, source, err)
	}
	return nil
}

func recordFailure(opts ClientOptions, source, reason string) {
	if opts.Metrics != nil {
		opts.Metrics.RecordCatalogFailure(source, reason)
	}
}
