// Package catalog reads intake YAML catalogs to discover the HEALPix zoom
// levels published for a dataset.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// DefaultURL is the catalog of the Digital Earths global hackathon.
const DefaultURL = "https://digital-earths-global-hackathon.github.io/catalog/catalog.yaml"

// ErrNotFound is returned for unknown catalog entries.
var ErrNotFound = errors.New("catalog entry not found")

// Entry is a resolved data source.
type Entry struct {
	Name    string
	Driver  string
	URLPath string
	Zooms   []int
}

// MaxZoom returns the highest allowed zoom level.
func (e *Entry) MaxZoom() (int, error) {
	if len(e.Zooms) == 0 {
		return 0, fmt.Errorf("catalog entry %q has no zoom parameter", e.Name)
	}
	return slices.Max(e.Zooms), nil
}

var templateVar = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// URLFor expands {{ name }} placeholders of URLPath from params.
func (e *Entry) URLFor(params map[string]any) string {
	return expand(e.URLPath, params)
}

func expand(s string, params map[string]any) string {
	return templateVar.ReplaceAllStringFunc(s, func(m string) string {
		name := templateVar.FindStringSubmatch(m)[1]
		if v, ok := params[name]; ok {
			return cast.ToString(v)
		}
		return m
	})
}

type file struct {
	Sources map[string]source `yaml:"sources"`
}

type source struct {
	Driver      string               `yaml:"driver"`
	Description string               `yaml:"description"`
	Args        map[string]any       `yaml:"args"`
	Parameters  map[string]parameter `yaml:"parameters"`
}

type parameter struct {
	Description string `yaml:"description"`
	Type        string `yaml:"type"`
	Default     any    `yaml:"default"`
	Allowed     []any  `yaml:"allowed"`
}

// Client fetches catalogs over HTTP or from local files.
type Client struct {
	HTTP *http.Client
}

// NewClient returns a client using http.DefaultClient.
func NewClient() *Client {
	return &Client{HTTP: http.DefaultClient}
}

// Lookup resolves source inside the nested catalog named location of the
// root catalog at loc.
func (c *Client) Lookup(ctx context.Context, loc, location, source string) (*Entry, error) {
	root, err := c.load(ctx, loc)
	if err != nil {
		return nil, err
	}
	nested, ok := root.Sources[location]
	if !ok {
		return nil, fmt.Errorf("location %q: %w", location, ErrNotFound)
	}
	p, err := cast.ToStringE(nested.Args["path"])
	if err != nil || p == "" {
		return nil, fmt.Errorf("location %q: catalog entry has no args.path", location)
	}
	p = expand(p, map[string]any{"CATALOG_DIR": dir(loc)})

	sub, err := c.load(ctx, p)
	if err != nil {
		return nil, err
	}
	src, ok := sub.Sources[source]
	if !ok {
		return nil, fmt.Errorf("source %q in %s: %w", source, p, ErrNotFound)
	}

	e := &Entry{Name: source, Driver: src.Driver}
	if u, ok := src.Args["urlpath"]; ok {
		e.URLPath = expand(cast.ToString(u), map[string]any{"CATALOG_DIR": dir(p)})
	}
	if zoom, ok := src.Parameters["zoom"]; ok {
		for _, a := range zoom.Allowed {
			z, err := cast.ToIntE(a)
			if err != nil {
				return nil, fmt.Errorf("source %q: zoom %v: %w", source, a, err)
			}
			e.Zooms = append(e.Zooms, z)
		}
	}
	return e, nil
}

func (c *Client) load(ctx context.Context, loc string) (*file, error) {
	b, err := c.fetch(ctx, loc)
	if err != nil {
		return nil, err
	}
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", loc, err)
	}
	return &f, nil
}

func (c *Client) fetch(ctx context.Context, loc string) ([]byte, error) {
	if !isURL(loc) {
		b, err := os.ReadFile(strings.TrimPrefix(loc, "file://"))
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		return b, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, nil)
	if err != nil {
		return nil, err
	}
	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch catalog %s: %s", loc, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func isURL(loc string) bool {
	u, err := url.Parse(loc)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

// dir returns the directory part of a catalog location, which is what
// {{CATALOG_DIR}} expands to.
func dir(loc string) string {
	if isURL(loc) {
		u, _ := url.Parse(loc)
		u.Path = path.Dir(u.Path)
		return u.String()
	}
	return filepath.Dir(strings.TrimPrefix(loc, "file://"))
}
