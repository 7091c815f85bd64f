package config_test

import (
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/google/go-cmp/cmp"

	"github.com/assetpack/assetpack/internal/config"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := config.Parse([]byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.JS.Merge || cfg.CSS.Merge || cfg.JS.Force || cfg.CSS.Compress || cfg.CSS.DownloadResources || cfg.MergeIfXHR {
		t.Fatalf("expected all switches off by default, got %+v", cfg)
	}
	if cfg.MergeAbove != 0 {
		t.Fatalf("expected merge_above 0, got %d", cfg.MergeAbove)
	}
	if time.Duration(cfg.Fetch.Timeout) != 15*time.Second || time.Duration(cfg.Fetch.ConnectTimeout) != 15*time.Second {
		t.Fatalf("unexpected fetch timeouts: %v, %v", cfg.Fetch.Timeout, cfg.Fetch.ConnectTimeout)
	}
	if cfg.AppVersion != "" {
		t.Fatalf("expected empty app version, got %q", cfg.AppVersion)
	}
}

func TestParse(t *testing.T) {
	cfg, err := config.Parse([]byte(`
assets:
  base_path: /var/www/assets
  base_url: /assets
merge_above: 2
merge_if_xhr: true
app_version: "1.4"
js:
  merge: true
  compress: true
  exclude: ["jquery", "glob:**/vendor/**"]
css:
  merge: true
  download_resources: true
  include: ['\.css(\?|$)']
fetch:
  base_url: http://localhost:8080
  timeout: 3s
  headers:
    X-Forwarded-Proto: https
cache:
  lock_builds: true
`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Assets.BasePath != "/var/www/assets" || cfg.Assets.BaseURL != "/assets" {
		t.Fatalf("unexpected assets: %+v", cfg.Assets)
	}
	if cfg.MergeAbove != 2 || !cfg.MergeIfXHR || cfg.AppVersion != "1.4" {
		t.Fatalf("unexpected merge settings: %d %v %q", cfg.MergeAbove, cfg.MergeIfXHR, cfg.AppVersion)
	}
	if !cfg.JS.Merge || !cfg.JS.Compress || !cfg.CSS.DownloadResources || !cfg.Cache.LockBuilds {
		t.Fatal("expected switches to be on")
	}
	if time.Duration(cfg.Fetch.Timeout) != 3*time.Second {
		t.Fatalf("expected 3s timeout, got %v", cfg.Fetch.Timeout)
	}
	if time.Duration(cfg.Fetch.ConnectTimeout) != config.DefaultConnectTimeout {
		t.Fatalf("expected default connect timeout, got %v", cfg.Fetch.ConnectTimeout)
	}
	if diff := cmp.Diff(map[string]string{"X-Forwarded-Proto": "https"}, cfg.Fetch.Headers); diff != "" {
		t.Fatalf("unexpected headers (-want, +got):\n%s", diff)
	}

	matches := []struct {
		patterns config.Patterns
		url      string
		exp      bool
	}{
		{cfg.JS.Exclude, "http://localhost/js/jquery.min.js", true},
		{cfg.JS.Exclude, "http://localhost/lib/vendor/x/y.js", true},
		{cfg.JS.Exclude, "http://localhost/js/app.js", false},
		{cfg.CSS.Include, "http://localhost/css/site.css?nlsver=1.4", true},
		{cfg.CSS.Include, "http://localhost/css/site.less", false},
	}
	for _, m := range matches {
		if act := m.patterns.Match(m.url); act != m.exp {
			t.Errorf("match %q: expected %v, got %v", m.url, m.exp, act)
		}
	}
}

func TestParsePatternError(t *testing.T) {
	cases := []struct {
		note    string
		config  string
		pattern string
		field   string
	}{
		{
			note:    "regexp",
			config:  `{js: {exclude: ["(unclosed"]}}`,
			pattern: "(unclosed",
			field:   "js.exclude",
		},
		{
			note:    "glob",
			config:  `{css: {include: ["glob:[unclosed"]}}`,
			pattern: "glob:[unclosed",
			field:   "css.include",
		},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			_, err := config.Parse([]byte(tc.config))

			var perr *config.PatternError
			if !errors.As(err, &perr) {
				t.Fatalf("expected pattern error, got %v", err)
			}
			if perr.Pattern != tc.pattern {
				t.Fatalf("expected pattern %q, got %q", tc.pattern, perr.Pattern)
			}

			var cerr *config.Error
			if !errors.As(err, &cerr) || cerr.Field != tc.field {
				t.Fatalf("expected configuration error for %s, got %v", tc.field, err)
			}
		})
	}
}

func TestParseSchemaErrors(t *testing.T) {
	cases := []struct {
		note   string
		config string
		exp    string
	}{
		{
			note:   "unknown field",
			config: `{js: {merge: true, minify: true}}`,
			exp:    "additional properties 'minify' not allowed",
		},
		{
			note:   "negative threshold",
			config: `{merge_above: -1}`,
			exp:    "must be >= 0",
		},
		{
			note:   "logging level",
			config: `{logging: {level: verbose}}`,
			exp:    "value must be one of 'debug', 'info', 'warn', 'error'",
		},
		{
			note:   "package position",
			config: `{packages: {jquery: {js: [jquery.js], position: footer}}}`,
			exp:    "value must be one of 'head', 'begin', 'end'",
		},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			_, err := config.Parse([]byte(tc.config))
			if err == nil {
				t.Fatal("expected error")
			}

			var cerr *config.Error
			if !errors.As(err, &cerr) {
				t.Fatalf("expected configuration error, got %T", err)
			}

			if !strings.Contains(err.Error(), tc.exp) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseSecretResolve(t *testing.T) {

	result, err := config.Parse([]byte(`{
		fetch: {
			base_url: "http://localhost:8080",
			credentials: secret1
		},
		secrets: {
			secret1: {
				type: basic_auth,
				username: bob,
				password: '${ASSETPACK_PASSWORD}',
				headers: ["X-Origin: assetpack"]
			}
		}
	}`))
	if err != nil {
		t.Fatal(err)
	}

	t.Setenv("ASSETPACK_PASSWORD", "passw0rd")

	value, err := result.Fetch.Credentials.Resolve(t.Context())
	if err != nil {
		t.Fatal(err)
	}

	exp := config.SecretBasicAuth{
		Username: "bob",
		Password: "passw0rd",
		Headers:  []string{"X-Origin: assetpack"},
	}

	if !reflect.DeepEqual(value, exp) {
		t.Fatalf("expected: %v\n\ngot: %v", exp, value)
	}

	setter, ok := value.(config.HeaderSetter)
	if !ok {
		t.Fatalf("expected header setter, got %T", value)
	}

	req := httptest.NewRequest("GET", "http://localhost:8080/js/a.js", nil)
	if err := setter.SetHeader(req); err != nil {
		t.Fatal(err)
	}

	if user, pass, ok := req.BasicAuth(); !ok || user != "bob" || pass != "passw0rd" {
		t.Fatalf("unexpected basic auth: %q %q %v", user, pass, ok)
	}

	if req.Header.Get("X-Origin") != "assetpack" {
		t.Fatalf("expected extra header, got %v", req.Header)
	}
}

func TestSecretResolveErrors(t *testing.T) {
	cases := []struct {
		note   string
		config string
		exp    string
	}{
		{
			note:   "missing secret",
			config: `{fetch: {credentials: nope}}`,
			exp:    `secret "nope" not found`,
		},
		{
			note:   "unknown type",
			config: `{fetch: {credentials: s}, secrets: {s: {type: magic}}}`,
			exp:    `unknown secret type "magic"`,
		},
		{
			note:   "empty token",
			config: `{fetch: {credentials: s}, secrets: {s: {type: token_auth}}}`,
			exp:    "missing token",
		},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			cfg, err := config.Parse([]byte(tc.config))
			if err != nil {
				t.Fatal(err)
			}

			_, err = cfg.Fetch.Credentials.Resolve(t.Context())
			if err == nil || !strings.Contains(err.Error(), tc.exp) {
				t.Fatalf("expected %q, got %v", tc.exp, err)
			}
		})
	}
}

func TestTopoSortPackages(t *testing.T) {

	cfg, err := config.Parse([]byte(`{
		packages: {
			app: {
				js: [app.js],
				depends: [widgets]
			},
			widgets: {
				js: [widgets.js],
				depends: [jquery, ui]
			},
			jquery: {
				js: [jquery.js],
				depends: [nonexistent]
			},
			ui: {
				css: [ui.css],
				depends: [jquery]
			}
		}
	}`))
	if err != nil {
		t.Fatal(err)
	}

	sorted, err := cfg.TopologicalSortedPackages()
	if err != nil {
		t.Fatal(err)
	}

	var act []string
	for _, p := range sorted {
		act = append(act, p.Name)
	}

	if diff := cmp.Diff([]string{"jquery", "ui", "widgets", "app"}, act); diff != "" {
		t.Fatalf("unexpected order (-want, +got):\n%s", diff)
	}
}

func TestTopoSortPackagesCycle(t *testing.T) {

	_, err := config.Parse([]byte(`{
		packages: {
			A: {depends: [B]},
			B: {depends: [C]},
			C: {depends: [A]}
		}
	}`))

	if err == nil || !strings.Contains(err.Error(), "cycle found on package \"A\"") {
		t.Fatal("expected cycle error on package A but got:", err)
	}
}

func TestNullPackage(t *testing.T) {
	cfg, err := config.Parse([]byte(`
packages:
  placeholder:
`))
	if err != nil {
		t.Fatal(err)
	}

	if p := cfg.Packages["placeholder"]; p == nil || p.Name != "placeholder" {
		t.Fatalf("expected empty named package, got %+v", p)
	}
}

func TestObjectStorageValidation(t *testing.T) {
	_, err := config.Parse([]byte(`{object_storage: {aws: {bucket: artifacts}}}`))
	if err == nil || !strings.Contains(err.Error(), "amazon s3 region is required") {
		t.Fatalf("expected region error, got %v", err)
	}

	cfg, err := config.Parse([]byte(`{object_storage: {filesystem: {path: /srv/nls}}}`))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.ObjectStorage.Equal(&config.ObjectStorage{FileSystemStorage: &config.FileSystemStorage{Path: "/srv/nls"}}) {
		t.Fatalf("unexpected object storage: %+v", cfg.ObjectStorage)
	}
}

func TestMarshallingRoundtrip(t *testing.T) {
	cfg, err := config.Parse([]byte(`{
		app_version: "2",
		js: {merge: true, exclude: ["jquery", "glob:*.min.js"]},
		packages: {
			core: {js: [core.js], separate: true}
		}
	}`))
	if err != nil {
		t.Fatal(err)
	}

	bs, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}

	cfg2, err := config.Parse(bs)
	if err != nil {
		t.Fatalf("failed to parse %s: %v", bs, err)
	}

	if !cfg.JS.Exclude.Equal(cfg2.JS.Exclude) {
		t.Fatalf("expected patterns to be equal, got %v and %v", cfg.JS.Exclude, cfg2.JS.Exclude)
	}

	if !cfg.Packages["core"].Equal(cfg2.Packages["core"]) {
		t.Fatal("expected packages to be equal")
	}
}

func TestMerge(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"base.yaml":      "js:\n  merge: true\nmerge_above: 1\n",
		"conf.d/a.yaml":  "css:\n  merge: true\n",
		"conf.d/b.yml":   "js:\n  compress: true\n",
		"conf.d/README":  "not yaml",
		"conflict.yaml":  "merge_above: 3\n",
		"same-one.yaml":  "merge_above: 1\n",
		"conf.d/nested/": "",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if strings.HasSuffix(name, "/") {
			if err := os.MkdirAll(path, 0755); err != nil {
				t.Fatal(err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	bs, err := config.Merge([]string{filepath.Join(dir, "base.yaml"), filepath.Join(dir, "conf.d"), filepath.Join(dir, "same-one.yaml")}, true)
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Parse(bs)
	if err != nil {
		t.Fatal(err)
	}

	if !cfg.JS.Merge || !cfg.JS.Compress || !cfg.CSS.Merge || cfg.MergeAbove != 1 {
		t.Fatalf("unexpected merged config: %s", bs)
	}

	_, err = config.Merge([]string{filepath.Join(dir, "base.yaml"), filepath.Join(dir, "conflict.yaml")}, true)
	if err == nil || err.Error() != "conflict for config path /merge_above" {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestReflectSchema(t *testing.T) {
	bs, err := config.ReflectSchema()
	if err != nil {
		t.Fatal(err)
	}

	for _, exp := range []string{`"merge_above"`, `"download_resources"`, `"lock_builds"`, `"object_storage"`} {
		if !strings.Contains(string(bs), exp) {
			t.Errorf("expected schema to mention %s", exp)
		}
	}
}
