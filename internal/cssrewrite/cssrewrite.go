// Package cssrewrite prepares a stylesheet for inclusion in a merged artifact:
// relative url() references are resolved against the stylesheet's own URL,
// @import rules are inlined, and referenced resources are optionally copied
// next to the artifacts.
package cssrewrite

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"

	"github.com/assetpack/assetpack/internal/fetch"
	"github.com/assetpack/assetpack/internal/logging"
	"github.com/assetpack/assetpack/internal/metrics"
)

const (
	maxImportDepth = 8
	memoSize       = 4096
)

var extRe = regexp.MustCompile(`^\.[a-zA-Z0-9]{1,8}$`)

// ResourceStore persists downloaded sub-resources.
type ResourceStore interface {
	Exists(name string) bool
	Write(name string, data []byte, force bool) error
}

type Rewriter struct {
	fetcher     fetch.Fetcher
	store       ResourceStore
	resourceURL string
	log         *logging.Logger
	memo        *lru.Cache
}

func New(f fetch.Fetcher) *Rewriter {
	memo, err := lru.New(memoSize)
	if err != nil {
		panic(err)
	}
	return &Rewriter{fetcher: f, log: logging.NewNop(), memo: memo}
}

// WithResources enables downloading of referenced resources into store;
// rewritten references point at baseURL/<name>.
func (r *Rewriter) WithResources(store ResourceStore, baseURL string) *Rewriter {
	r.store = store
	r.resourceURL = strings.TrimSuffix(baseURL, "/")
	return r
}

func (r *Rewriter) WithLogger(log *logging.Logger) *Rewriter {
	r.log = log
	return r
}

// Rewrite fetches the stylesheet at absURL and returns its rewritten text.
func (r *Rewriter) Rewrite(ctx context.Context, absURL string) (string, error) {
	return r.sheet(ctx, absURL, map[string]struct{}{})
}

func (r *Rewriter) sheet(ctx context.Context, absURL string, visiting map[string]struct{}) (string, error) {
	bs, err := r.fetcher.Fetch(ctx, absURL)
	if err != nil {
		return "", err
	}

	visiting[absURL] = struct{}{}
	defer delete(visiting, absURL)

	var b strings.Builder
	l := css.NewLexer(parse.NewInputBytes(bs))
	for {
		tt, data := l.Next()
		switch tt {
		case css.ErrorToken:
			if err := l.Err(); err != nil && !errors.Is(err, io.EOF) {
				return "", fmt.Errorf("parse %s: %w", absURL, err)
			}
			return b.String(), nil
		case css.URLToken:
			b.WriteString(r.rewriteURL(ctx, absURL, data))
		case css.AtKeywordToken:
			if !bytes.EqualFold(data, []byte("@import")) {
				b.Write(data)
				continue
			}
			if err := r.inline(ctx, &b, l, absURL, visiting); err != nil {
				return "", err
			}
		default:
			b.Write(data)
		}
	}
}

// inline replaces the @import rule the lexer is positioned in with the
// imported stylesheet, wrapped in @media when the rule names media. A rule
// without a target is copied unchanged.
func (r *Rewriter) inline(ctx context.Context, b *strings.Builder, l *css.Lexer, absURL string, visiting map[string]struct{}) error {
	var (
		raw    = []byte("@import")
		target string
		media  strings.Builder
	)

rule:
	for {
		tt, data := l.Next()
		if tt != css.ErrorToken {
			raw = append(raw, data...)
		}
		switch tt {
		case css.ErrorToken, css.SemicolonToken:
			break rule
		case css.WhitespaceToken, css.CommentToken:
			if target != "" {
				media.Write(data)
			}
		case css.URLToken:
			if target == "" {
				target, _ = urlValue(data)
				continue
			}
			media.Write(data)
		case css.StringToken:
			if target == "" {
				target = unquote(data)
				continue
			}
			media.Write(data)
		default:
			media.Write(data)
		}
	}

	if target == "" {
		b.Write(raw)
		return nil
	}

	imported := resolve(absURL, target)
	if _, ok := visiting[imported]; ok || len(visiting) >= maxImportDepth {
		r.log.Warnf("skipping recursive import of %q from %q", imported, absURL)
		return nil
	}

	sheet, err := r.sheet(ctx, imported, visiting)
	if err != nil {
		return fmt.Errorf("import from %s: %w", absURL, err)
	}

	if m := strings.TrimSpace(media.String()); m != "" {
		b.WriteString("@media " + m + " {\r\n" + sheet + "\r\n}")
	} else {
		b.WriteString(sheet)
	}
	return nil
}

// rewriteURL rewrites a url() token. Quoting is kept; an unquoted reference that
// resolves to characters CSS would not accept bare gets double quotes.
func (r *Rewriter) rewriteURL(ctx context.Context, base string, token []byte) string {
	ref, quote := urlValue(token)
	if skip(ref) {
		return string(token)
	}

	abs := resolve(base, ref)
	if r.store != nil {
		abs = r.localize(ctx, abs)
	}
	if quote == "" && strings.ContainsAny(abs, "()'\" \t") {
		quote = `"`
	}
	return "url(" + quote + abs + quote + ")"
}

// localize copies the resource into the store and returns its local URL. On
// failure the absolute URL is kept so the reference still works. The store
// is consulted on every call since its directory may be cleared at any time.
func (r *Rewriter) localize(ctx context.Context, abs string) string {
	target, frag, _ := strings.Cut(abs, "#")
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		return abs
	}

	var name string
	if v, ok := r.memo.Get(target); ok {
		name = v.(string)
	} else {
		name = ResourceName(target)
		r.memo.Add(target, name)
	}

	if !r.store.Exists(name) {
		bs, err := r.fetcher.Fetch(ctx, target)
		if err != nil {
			r.log.Warnf("failed to download resource %q: %v", target, err)
			metrics.FetchFailed("resource")
			return abs
		}
		if err := r.store.Write(name, bs, false); err != nil {
			r.log.Warnf("failed to store resource %q: %v", target, err)
			return abs
		}
	}

	local := r.resourceURL + "/" + name
	if frag != "" {
		local += "#" + frag
	}
	return local
}

// ResourceName is the file name a downloaded resource is stored under.
func ResourceName(absURL string) string {
	name := "nls" + strconv.FormatUint(uint64(crc32.ChecksumIEEE([]byte(absURL))), 10)
	if u, err := url.Parse(absURL); err == nil {
		if ext := path.Ext(u.Path); extRe.MatchString(ext) {
			name += strings.ToLower(ext)
		}
	}
	return name
}

func resolve(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(u).String()
}

func skip(ref string) bool {
	l := strings.ToLower(ref)
	return ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(l, "data:") || strings.HasPrefix(l, "about:") || strings.HasPrefix(l, "javascript:")
}

// urlValue returns the reference inside a url() token and the quote it was
// written with.
func urlValue(token []byte) (string, string) {
	v := strings.TrimSpace(string(token))
	if len(v) >= 4 && strings.EqualFold(v[:4], "url(") {
		v = v[4:]
	}
	v = strings.TrimSpace(strings.TrimSuffix(v, ")"))
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1], v[:1]
	}
	return v, ""
}

func unquote(token []byte) string {
	v := string(token)
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}
