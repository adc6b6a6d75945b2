package request

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"text/template"
	"time"

	"github.com/Sternrassler/proxy-batch-fetcher/pkg/proxy"
)

// Row is one input record a Template is rendered against, e.g. a grid point
// {"lat": "...", "lon": "...", "radius": "..."} or {"number": "42"}.
type Row map[string]string

// Template describes how to build a Descriptor from a Row. Every string is
// a text/template executed with the row as dot; missing keys are errors.
//
// Available functions:
//
//	mul a b   product of two numbers (strings or numbers)
//	now       current UTC time, RFC 3339
type Template struct {
	Method  string            `mapstructure:"method"`
	URL     string            `mapstructure:"url"`
	Params  map[string]string `mapstructure:"params"`
	Headers map[string]string `mapstructure:"headers"`
	Body    string            `mapstructure:"body"`
}

// Compiled is a parsed Template.
type Compiled struct {
	method  string
	url     *template.Template
	params  []namedTemplate
	headers []namedTemplate
	body    *template.Template
}

type namedTemplate struct {
	name string
	tmpl *template.Template
}

var templateFuncs = template.FuncMap{
	"mul": mul,
	"now": func() string { return time.Now().UTC().Format(time.RFC3339) },
}

// Compile parses all template strings.
func (t Template) Compile() (*Compiled, error) {
	method, err := NormalizeMethod(t.Method)
	if err != nil {
		return nil, err
	}
	if t.URL == "" {
		return nil, fmt.Errorf("template url is required")
	}
	if method == http.MethodGet && t.Body != "" {
		return nil, fmt.Errorf("template body requires method POST")
	}

	c := &Compiled{method: method}

	if c.url, err = parse("url", t.URL); err != nil {
		return nil, err
	}
	if c.params, err = parseNamed("param", t.Params); err != nil {
		return nil, err
	}
	if c.headers, err = parseNamed("header", t.Headers); err != nil {
		return nil, err
	}
	if t.Body != "" {
		if c.body, err = parse("body", t.Body); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Method returns the normalized HTTP method.
func (c *Compiled) Method() string {
	return c.method
}

// Render builds the descriptor for one row, routed through ep.
func (c *Compiled) Render(row Row, ep proxy.Endpoint) (Descriptor, error) {
	u, err := execute(c.url, row)
	if err != nil {
		return Descriptor{}, err
	}
	if _, err := url.Parse(u); err != nil {
		return Descriptor{}, fmt.Errorf("rendered url %q: %w", u, err)
	}

	d := Descriptor{
		Method:  c.method,
		URL:     u,
		Headers: make(http.Header, len(c.headers)),
		Proxy:   ep,
	}

	if len(c.params) > 0 {
		d.Params = make(url.Values, len(c.params))
		for _, p := range c.params {
			v, err := execute(p.tmpl, row)
			if err != nil {
				return Descriptor{}, err
			}
			d.Params.Set(p.name, v)
		}
	}

	for _, h := range c.headers {
		v, err := execute(h.tmpl, row)
		if err != nil {
			return Descriptor{}, err
		}
		d.Headers.Set(h.name, v)
	}

	if c.body != nil {
		b, err := execute(c.body, row)
		if err != nil {
			return Descriptor{}, err
		}
		d.Body = []byte(b)
	}

	return d, nil
}

// Generator returns a generator rendering one descriptor per row, in row
// order, each with a freshly sampled proxy.
func (c *Compiled) Generator(rows []Row, sampler ProxySampler) Generator {
	return func(ctx context.Context) ([]Descriptor, error) {
		descs := make([]Descriptor, len(rows))
		for i, row := range rows {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			var ep proxy.Endpoint
			if sampler != nil {
				ep = sampler.Sample()
			}
			d, err := c.Render(row, ep)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			descs[i] = d
		}
		return descs, nil
	}
}

func parse(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Funcs(templateFuncs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse %s template: %w", name, err)
	}
	return tmpl, nil
}

// parseNamed parses a map of templates in key order so rendering is
// deterministic.
func parseNamed(kind string, m map[string]string) ([]namedTemplate, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]namedTemplate, 0, len(keys))
	for _, k := range keys {
		tmpl, err := parse(kind+" "+k, m[k])
		if err != nil {
			return nil, err
		}
		out = append(out, namedTemplate{name: k, tmpl: tmpl})
	}
	return out, nil
}

func execute(tmpl *template.Template, row Row) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]string(row)); err != nil {
		return "", fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

func mul(a, b any) (string, error) {
	x, err := toFloat(a)
	if err != nil {
		return "", err
	}
	y, err := toFloat(b)
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(x*y, 'f', -1, 64), nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("mul: %q is not a number", n)
		}
		return f, nil
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("mul: unsupported operand %T", v)
	}
}
