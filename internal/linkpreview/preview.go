// Package linkpreview はイベントURLのページタイトルとfaviconを取得する。
package linkpreview

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/hitoshi/eventkeeper/internal/metrics"
)

const (
	// maxPageSize はタイトル解析のために読み込むHTMLの上限。
	maxPageSize = 1 << 20
	// maxFaviconSize はfaviconの最大サイズ。
	maxFaviconSize = 256 << 10
	// maxTitleLength は保存するリンクタイトルの最大文字数。
	maxTitleLength = 500

	userAgent = "eventkeeper/1.0 link-preview"
)

// Preview はリンクプレビュー情報。
type Preview struct {
	Title       string
	FaviconData []byte
	FaviconMime string
}

// Service はリンクプレビュー取得のインターフェース。
type Service interface {
	Fetch(ctx context.Context, pageURL string) (*Preview, error)
}

// URLValidator はリクエスト前のURL検証インターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Fetcher はServiceの実装。
type Fetcher struct {
	client    *http.Client
	validator URLValidator
	metrics   metrics.MetricsCollector
}

// NewFetcher はFetcherを生成する。
// clientには本番ではsecurity.URLGuard.NewSafeClientの結果を渡す。
// validatorがnilの場合、favicon URLの事前検証を省略する。
func NewFetcher(client *http.Client, validator URLValidator, m metrics.MetricsCollector) *Fetcher {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Fetcher{client: client, validator: validator, metrics: m}
}

// Fetch はページを取得してタイトルとfaviconを抽出する。
// favicon取得の失敗はエラーにせず、タイトルのみを返す。
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Preview, error) {
	body, _, err := f.get(ctx, pageURL, maxPageSize)
	if err != nil {
		f.metrics.RecordLinkPreview(false)
		return nil, err
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		f.metrics.RecordLinkPreview(false)
		return nil, fmt.Errorf("invalid page URL: %w", err)
	}

	meta := parseHead(body, base)
	preview := &Preview{Title: truncate(meta.title, maxTitleLength)}

	iconURL := meta.iconURL
	if iconURL == "" {
		iconURL = defaultFaviconURL(base)
	}
	data, mimeType, err := f.fetchFavicon(ctx, iconURL)
	if err != nil {
		slog.Warn("favicon fetch failed", slog.String("url", iconURL), slog.String("error", err.Error()))
	} else {
		preview.FaviconData = data
		preview.FaviconMime = mimeType
	}

	f.metrics.RecordLinkPreview(true)
	return preview, nil
}

func (f *Fetcher) fetchFavicon(ctx context.Context, iconURL string) ([]byte, string, error) {
	if f.validator != nil {
		if err := f.validator.ValidateURL(iconURL); err != nil {
			return nil, "", fmt.Errorf("favicon URL rejected: %w", err)
		}
	}

	data, contentType, err := f.get(ctx, iconURL, maxFaviconSize)
	if err != nil {
		return nil, "", err
	}

	mimeType := mediaType(contentType)
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = mediaType(http.DetectContentType(data))
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, "", fmt.Errorf("not an image: %q", contentType)
	}
	return data, mimeType, nil
}

// get はURLを取得し、limitを超える場合はエラーを返す。
func (f *Fetcher) get(ctx context.Context, rawURL string, limit int64) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, "", fmt.Errorf("response too large: > %d bytes", limit)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

type headMeta struct {
	title   string
	iconURL string
}

// parseHead はHTMLのhead要素からタイトルとアイコンURLを抽出する。
// og:titleがあれば<title>より優先する。
func parseHead(body []byte, base *url.URL) headMeta {
	var meta headMeta
	var ogTitle string

	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	inTitle := false

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return finish(meta, ogTitle)

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			switch string(tn) {
			case "body":
				return finish(meta, ogTitle)
			case "title":
				inTitle = meta.title == ""
			case "meta":
				attrs := readAttrs(tokenizer, hasAttr)
				if attrs["property"] == "og:title" && ogTitle == "" {
					ogTitle = strings.TrimSpace(attrs["content"])
				}
			case "link":
				attrs := readAttrs(tokenizer, hasAttr)
				if meta.iconURL == "" && isIconRel(attrs["rel"]) && attrs["href"] != "" {
					meta.iconURL = resolve(base, attrs["href"])
				}
			}

		case html.TextToken:
			if inTitle {
				meta.title += string(tokenizer.Text())
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "title":
				inTitle = false
			case "head":
				return finish(meta, ogTitle)
			}
		}
	}
}

func finish(meta headMeta, ogTitle string) headMeta {
	if ogTitle != "" {
		meta.title = ogTitle
	}
	meta.title = strings.Join(strings.Fields(meta.title), " ")
	return meta
}

func readAttrs(z *html.Tokenizer, hasAttr bool) map[string]string {
	attrs := make(map[string]string)
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		attrs[strings.ToLower(string(key))] = string(val)
	}
	return attrs
}

func isIconRel(rel string) bool {
	for _, r := range strings.Fields(strings.ToLower(rel)) {
		if r == "icon" {
			return true
		}
	}
	return false
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}

func defaultFaviconURL(base *url.URL) string {
	u := *base
	u.Path = "/favicon.ico"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(mt)
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// compile-time interface check
var _ Service = (*Fetcher)(nil)
