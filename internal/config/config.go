package config

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/goccy/go-yaml"
)

// Internal configuration data structures for assetpack.

const (
	DefaultFetchTimeout   = 15 * time.Second
	DefaultConnectTimeout = 15 * time.Second
	DefaultSampleInterval = time.Minute
)

// Root is the top-level configuration structure used by assetpack.
type Root struct {
	Assets        Assets              `json:"assets,omitzero"`
	MergeAbove    int                 `json:"merge_above,omitempty" minimum:"0"`
	MergeIfXHR    bool                `json:"merge_if_xhr,omitempty"`
	AppVersion    string              `json:"app_version,omitempty"`
	JS            Scripts             `json:"js,omitzero"`
	CSS           Styles              `json:"css,omitzero"`
	Fetch         Fetch               `json:"fetch,omitzero"`
	Cache         Cache               `json:"cache,omitzero"`
	ObjectStorage *ObjectStorage      `json:"object_storage,omitempty"`
	Logging       Logging             `json:"logging,omitzero"`
	Secrets       map[string]*Secret  `json:"secrets,omitempty"` // Schema validation overrides Secret to object type.
	Packages      map[string]*Package `json:"packages,omitempty"`
	Service       *Service            `json:"service,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

// Unmarshal wires names and secret references, compiles the filter patterns
// and fills in defaults. Parse calls it; callers building a Root by hand
// should call it before use.
func (r *Root) Unmarshal() error {
	return r.unmarshal(r)
}

func (*Root) unmarshal(raw *Root) error {
	for name := range raw.Secrets {
		raw.Secrets[name] = cmp.Or(raw.Secrets[name], &Secret{})
		raw.Secrets[name].Name = name
	}

	for name := range raw.Packages {
		raw.Packages[name] = cmp.Or(raw.Packages[name], &Package{})
		raw.Packages[name].Name = name
	}

	if raw.Fetch.Credentials != nil {
		raw.Fetch.Credentials.value = raw.Secrets[raw.Fetch.Credentials.Name]
	}

	if o := raw.ObjectStorage; o != nil {
		if o.AmazonS3 != nil && o.AmazonS3.Credentials != nil {
			o.AmazonS3.Credentials.value = raw.Secrets[o.AmazonS3.Credentials.Name]
		}
		if o.AzureBlobStorage != nil && o.AzureBlobStorage.Credentials != nil {
			o.AzureBlobStorage.Credentials.value = raw.Secrets[o.AzureBlobStorage.Credentials.Name]
		}
		if o.GCPCloudStorage != nil && o.GCPCloudStorage.Credentials != nil {
			o.GCPCloudStorage.Credentials.value = raw.Secrets[o.GCPCloudStorage.Credentials.Name]
		}
	}

	raw.Fetch.Timeout = cmp.Or(raw.Fetch.Timeout, Duration(DefaultFetchTimeout))
	raw.Fetch.ConnectTimeout = cmp.Or(raw.Fetch.ConnectTimeout, Duration(DefaultConnectTimeout))
	raw.Cache.SampleInterval = cmp.Or(raw.Cache.SampleInterval, Duration(DefaultSampleInterval))

	return raw.validate()
}

func (r *Root) validate() error {
	if r.MergeAbove < 0 {
		return &Error{Field: "merge_above", Err: errors.New("must not be negative")}
	}

	for _, field := range []struct {
		name     string
		patterns Patterns
	}{
		{"js.exclude", r.JS.Exclude},
		{"js.include", r.JS.Include},
		{"css.exclude", r.CSS.Exclude},
		{"css.include", r.CSS.Include},
	} {
		if err := field.patterns.compile(); err != nil {
			return &Error{Field: field.name, Err: err}
		}
	}

	for _, name := range slices.Sorted(maps.Keys(r.Packages)) {
		if err := r.Packages[name].validate(); err != nil {
			return &Error{Field: "packages." + name, Err: err}
		}
	}

	if _, err := r.TopologicalSortedPackages(); err != nil {
		return &Error{Field: "packages", Err: err}
	}

	if r.ObjectStorage != nil {
		if err := r.ObjectStorage.validate(); err != nil {
			return &Error{Field: "object_storage", Err: err}
		}
	}

	return nil
}

func (r *Root) SortedPackages() iter.Seq2[int, *Package] {
	return iterator(r.Packages, func(p *Package) string { return p.Name })
}

// Returns packages ordered by dependencies. Cycles are treated as errors.
// Missing dependencies are reported when the package is registered, not here.
func (r *Root) TopologicalSortedPackages() ([]*Package, error) {
	sorter := topologicalSortPackages{
		packages:   r.Packages,
		inprogress: make(map[string]struct{}),
		done:       make(map[string]struct{}),
	}

	for _, name := range slices.Sorted(maps.Keys(r.Packages)) {
		if err := sorter.Visit(r.Packages[name]); err != nil {
			return nil, err
		}
	}
	return sorter.sorted, nil
}

type topologicalSortPackages struct {
	packages   map[string]*Package
	inprogress map[string]struct{}
	done       map[string]struct{}
	sorted     []*Package
}

func (s *topologicalSortPackages) Visit(pkg *Package) error {
	if _, ok := s.inprogress[pkg.Name]; ok {
		return fmt.Errorf("cycle found on package %q", pkg.Name)
	}
	if _, ok := s.done[pkg.Name]; ok {
		return nil
	}
	s.inprogress[pkg.Name] = struct{}{}
	for _, dep := range pkg.Depends {
		if other, ok := s.packages[dep]; ok {
			if err := s.Visit(other); err != nil {
				return err
			}
		}
	}
	s.done[pkg.Name] = struct{}{}
	delete(s.inprogress, pkg.Name)
	s.sorted = append(s.sorted, pkg)
	return nil
}

func iterator[V any](m map[string]V, name func(V) string) func(func(int, V) bool) {
	names := make([]string, 0, len(m))
	for _, v := range m {
		names = append(names, name(v))
	}

	sort.Strings(names)

	return func(yield func(int, V) bool) {
		for i, name := range names {
			if !yield(i, m[name]) {
				return
			}
		}
	}
}

// Assets locates the published asset directory. Artifacts are written to
// <base_path>/nls and served from <base_url>/nls.
type Assets struct {
	BasePath string `json:"base_path,omitempty"`
	BaseURL  string `json:"base_url,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

// Scripts configures JavaScript merging.
type Scripts struct {
	Merge    bool     `json:"merge,omitempty"`
	Compress bool     `json:"compress,omitempty"`
	Force    bool     `json:"force,omitempty"`
	Exclude  Patterns `json:"exclude,omitempty"`
	Include  Patterns `json:"include,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

// Styles configures CSS merging.
type Styles struct {
	Merge             bool     `json:"merge,omitempty"`
	Compress          bool     `json:"compress,omitempty"`
	Force             bool     `json:"force,omitempty"`
	DownloadResources bool     `json:"download_resources,omitempty"`
	Exclude           Patterns `json:"exclude,omitempty"`
	Include           Patterns `json:"include,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

// Fetch configures how member files are retrieved.
type Fetch struct {
	// BaseURL is the scheme and host that relative registrations are resolved
	// against, e.g. "http://localhost:8080". Headers and Credentials are only
	// sent to this origin.
	BaseURL        string            `json:"base_url,omitempty"`
	Timeout        Duration          `json:"timeout,omitzero"`
	ConnectTimeout Duration          `json:"connect_timeout,omitzero"`
	Headers        map[string]string `json:"headers,omitempty"`
	Credentials    *SecretRef        `json:"credentials,omitempty"` // basic_auth or token_auth

	_ struct{} `additionalProperties:"false"`
}

type Cache struct {
	LockBuilds     bool     `json:"lock_builds,omitempty"`
	SampleInterval Duration `json:"sample_interval,omitzero"`

	_ struct{} `additionalProperties:"false"`
}

type Logging struct {
	Level  string `json:"level,omitempty" enum:"debug,info,warn,error"`
	Format string `json:"format,omitempty" enum:"console,json"`

	_ struct{} `additionalProperties:"false"`
}

// Package is a named group of scripts and stylesheets that can be registered
// as a unit. Dependencies are registered first. A separate package is
// rendered by its own child accumulator.
type Package struct {
	Name     string   `json:"-"`
	BaseURL  string   `json:"base_url,omitempty"`
	JS       []string `json:"js,omitempty"`
	CSS      []string `json:"css,omitempty"`
	Position string   `json:"position,omitempty" enum:"head,begin,end"`
	Media    string   `json:"media,omitempty"`
	Depends  []string `json:"depends,omitempty"`
	Separate bool     `json:"separate,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

func (p *Package) validate() error {
	if slices.Contains(p.Depends, p.Name) {
		return fmt.Errorf("package %q depends on itself", p.Name)
	}
	return nil
}

func (p *Package) Equal(other *Package) bool {
	return fastEqual(p, other, func(p, other *Package) bool {
		return p.Name == other.Name &&
			p.BaseURL == other.BaseURL &&
			slices.Equal(p.JS, other.JS) &&
			slices.Equal(p.CSS, other.CSS) &&
			p.Position == other.Position &&
			p.Media == other.Media &&
			slices.Equal(p.Depends, other.Depends) &&
			p.Separate == other.Separate
	})
}

type Service struct {
	Addr string `json:"addr,omitempty"`
	// ApiPrefix prefixes all endpoints (including metrics) with its value. It is important to start with `/` and not end with `/`.
	ApiPrefix string   `json:"api_prefix,omitempty" pattern:"^/([^/].*[^/])?$"`
	_         struct{} `additionalProperties:"false"`
}

// Instead of marshaling and unmarshaling as int64 it uses strings, like "5m" or "0.5s".
type Duration time.Duration

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	val, err := time.ParseDuration(str)
	*d = Duration(val)
	return err
}

func (d *Duration) UnmarshalYAML(bs []byte) error {
	var s string
	if err := yaml.Unmarshal(bs, &s); err != nil {
		return err
	}
	val, err := time.ParseDuration(s)
	*d = Duration(val)
	return err
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

type SecretRef struct {
	Name  string `json:"-"`
	value *Secret
}

// Resolve retrieves the secret value from the secret store. If the secret is not found, an error is returned.
func (s *SecretRef) Resolve(ctx context.Context) (any, error) {
	if s.value == nil {
		return nil, fmt.Errorf("secret %q not found", s.Name)
	}

	return s.value.Typed(ctx)
}

func (s *SecretRef) MarshalYAML() (any, error) {
	if s.Name == "" {
		return nil, nil
	}
	return s.Name, nil
}

func (s *SecretRef) MarshalJSON() ([]byte, error) {
	v, err := s.MarshalYAML()
	if err != nil {
		return nil, err
	}

	return json.Marshal(v)
}

func (s *SecretRef) UnmarshalYAML(bs []byte) error {
	if err := yaml.Unmarshal(bs, &s.Name); err != nil {
		return fmt.Errorf("expected scalar node: %w", err)
	}
	return nil
}

func (s *SecretRef) UnmarshalJSON(bs []byte) error {
	if err := json.Unmarshal(bs, &s.Name); err != nil {
		return fmt.Errorf("failed to unmarshal SecretRef: %w", err)
	}

	return nil
}

func (s *SecretRef) Equal(other *SecretRef) bool {
	return fastEqual(s, other, func(s, other *SecretRef) bool {
		return s.Name == other.Name && s.value.Equal(other.value)
	})
}

func Validate(data []byte) error {
	var config any
	if err := yaml.Unmarshal(data, &config); err != nil {
		return err
	}

	return rootSchema.Validate(config)
}

func Parse(bs []byte) (*Root, error) {
	if err := Validate(bs); err != nil {
		return nil, &Error{Err: err}
	}

	var root Root
	if err := yaml.Unmarshal(bs, &root); err != nil {
		return nil, &Error{Err: fmt.Errorf("failed to unmarshal config: %w", err)}
	}

	if err := root.Unmarshal(); err != nil {
		return nil, err
	}

	return &root, nil
}

type ObjectStorage struct {
	AmazonS3          *AmazonS3          `json:"aws,omitempty"`
	GCPCloudStorage   *GCPCloudStorage   `json:"gcp,omitempty"`
	AzureBlobStorage  *AzureBlobStorage  `json:"azure,omitempty"`
	FileSystemStorage *FileSystemStorage `json:"filesystem,omitempty"`
}

func (o *ObjectStorage) Equal(other *ObjectStorage) bool {
	return fastEqual(o, other, func(o, other *ObjectStorage) bool {
		return o.AmazonS3.Equal(other.AmazonS3) &&
			o.GCPCloudStorage.Equal(other.GCPCloudStorage) &&
			o.AzureBlobStorage.Equal(other.AzureBlobStorage) &&
			o.FileSystemStorage.Equal(other.FileSystemStorage)
	})
}

func (o *ObjectStorage) validate() error {
	if err := o.AmazonS3.validate(); err != nil {
		return err
	}
	if err := o.GCPCloudStorage.validate(); err != nil {
		return err
	}
	if err := o.AzureBlobStorage.validate(); err != nil {
		return err
	}
	return o.FileSystemStorage.validate()
}

// AmazonS3 defines the configuration for an Amazon S3-compatible object storage.
// Artifacts are uploaded as <prefix>/<artifact name>.
type AmazonS3 struct {
	Bucket      string     `json:"bucket"`
	Prefix      string     `json:"prefix,omitempty"`
	Region      string     `json:"region,omitempty"`
	Credentials *SecretRef `json:"credentials,omitempty"` // If nil, use default credentials chain: environment variables,
	// shared credentials file, ECS or EC2 instance role.
	URL string `json:"url,omitempty"` // for test purposes
}

// GCPCloudStorage defines the configuration for a Google Cloud Storage bucket.
type GCPCloudStorage struct {
	Project     string     `json:"project"`
	Bucket      string     `json:"bucket"`
	Prefix      string     `json:"prefix,omitempty"`
	Credentials *SecretRef `json:"credentials,omitempty"` // If nil, use default credentials chain: environment variables,
	// file created by gcloud auth application-default login, GCE/GKE metadata server.
}

// AzureBlobStorage defines the configuration for an Azure Blob Storage container.
type AzureBlobStorage struct {
	AccountURL  string     `json:"account_url"`
	Container   string     `json:"container"`
	Prefix      string     `json:"prefix,omitempty"`
	Credentials *SecretRef `json:"credentials,omitempty"` // If nil, use default credentials chain: environment variables,
	// managed identity, Azure CLI login.
}

// FileSystemStorage defines the configuration for a local filesystem storage.
type FileSystemStorage struct {
	Path string `json:"path"` // Directory artifacts are copied to.
}

func (a *AmazonS3) Equal(other *AmazonS3) bool {
	return fastEqual(a, other, func(a, other *AmazonS3) bool {
		return a.Bucket == other.Bucket &&
			a.Prefix == other.Prefix &&
			a.Region == other.Region &&
			a.Credentials.Equal(other.Credentials) &&
			a.URL == other.URL
	})
}

func (a *AmazonS3) validate() error {
	if a == nil {
		return nil
	}

	if a.Bucket == "" {
		return errors.New("amazon s3 bucket is required")
	}

	if a.Region == "" {
		return errors.New("amazon s3 region is required")
	}

	return nil
}

func (g *GCPCloudStorage) Equal(other *GCPCloudStorage) bool {
	return fastEqual(g, other, func(g, other *GCPCloudStorage) bool {
		return g.Project == other.Project &&
			g.Bucket == other.Bucket &&
			g.Prefix == other.Prefix
	})
}

func (g *GCPCloudStorage) validate() error {
	if g == nil {
		return nil
	}

	if g.Project == "" {
		return errors.New("gcp cloud storage project is required")
	}

	if g.Bucket == "" {
		return errors.New("gcp cloud storage bucket is required")
	}

	return nil
}

func (a *AzureBlobStorage) Equal(other *AzureBlobStorage) bool {
	return fastEqual(a, other, func(a, other *AzureBlobStorage) bool {
		return a.AccountURL == other.AccountURL &&
			a.Container == other.Container &&
			a.Prefix == other.Prefix
	})
}

func (a *AzureBlobStorage) validate() error {
	if a == nil {
		return nil
	}

	if a.AccountURL == "" {
		return errors.New("azure blob storage account URL is required")
	}

	if a.Container == "" {
		return errors.New("azure blob storage container is required")
	}

	return nil
}

func (f *FileSystemStorage) Equal(other *FileSystemStorage) bool {
	return fastEqual(f, other, func(f, other *FileSystemStorage) bool {
		return f.Path == other.Path
	})
}

func (f *FileSystemStorage) validate() error {
	if f == nil {
		return nil
	}

	if f.Path == "" {
		return errors.New("filesystem storage path is required")
	}

	return nil
}

func fastEqual[V any](a, b *V, slowEqual func(a, b *V) bool) bool {
	if a == b {
		return true
	}

	if a == nil || b == nil {
		return false
	}

	return slowEqual(a, b)
}
