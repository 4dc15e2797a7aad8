// Package cookie parses, rewrites and re-serializes Set-Cookie header values.
// Unknown attributes survive a round trip with their order and spelling intact.
package cookie

import (
	"strings"
)

// Attr is one cookie attribute. Flag attributes such as Secure have no value.
type Attr struct {
	Key      string
	Value    string
	HasValue bool
}

// Cookie is a parsed Set-Cookie value with attribute order preserved.
type Cookie struct {
	Name  string
	Value string
	Attrs []Attr
}

// Parse splits a raw Set-Cookie value into its name/value pair and attributes.
// Whitespace around segments is trimmed and empty segments are dropped. A
// first segment without '=' is kept as a bare value with an empty name.
func Parse(raw string) Cookie {
	parts := strings.Split(raw, ";")

	var c Cookie
	first := strings.TrimSpace(parts[0])
	if name, value, ok := strings.Cut(first, "="); ok {
		c.Name = strings.TrimSpace(name)
		c.Value = strings.TrimSpace(value)
	} else {
		c.Value = first
	}

	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		key, value, ok := strings.Cut(p, "=")
		c.Attrs = append(c.Attrs, Attr{
			Key:      strings.TrimSpace(key),
			Value:    strings.TrimSpace(value),
			HasValue: ok,
		})
	}
	return c
}

// String serializes the cookie as "name=value; Attr; Key=Value".
func (c Cookie) String() string {
	var b strings.Builder
	if c.Name != "" {
		b.WriteString(c.Name)
		b.WriteByte('=')
	}
	b.WriteString(c.Value)
	for _, a := range c.Attrs {
		b.WriteString("; ")
		b.WriteString(a.Key)
		if a.HasValue {
			b.WriteByte('=')
			b.WriteString(a.Value)
		}
	}
	return b.String()
}

// Has reports whether an attribute with the given key is present (case-insensitive).
func (c Cookie) Has(key string) bool {
	return c.index(key) >= 0
}

// Get returns the value of the first attribute with the given key.
func (c Cookie) Get(key string) (string, bool) {
	i := c.index(key)
	if i < 0 {
		return "", false
	}
	return c.Attrs[i].Value, true
}

// Count returns how many attributes carry the given key.
func (c Cookie) Count(key string) int {
	n := 0
	for _, a := range c.Attrs {
		if strings.EqualFold(a.Key, key) {
			n++
		}
	}
	return n
}

// Remove drops every attribute with the given key.
func (c *Cookie) Remove(key string) {
	kept := c.Attrs[:0]
	for _, a := range c.Attrs {
		if !strings.EqualFold(a.Key, key) {
			kept = append(kept, a)
		}
	}
	c.Attrs = kept
}

func (c Cookie) index(key string) int {
	for i, a := range c.Attrs {
		if strings.EqualFold(a.Key, key) {
			return i
		}
	}
	return -1
}

// Rewrite makes the cookie valid for domain and all of its subdomains when
// delivered cross-site: every Domain attribute is replaced by one
// Domain=domain appended at the end, Secure is added if absent, and SameSite
// is forced to None. Other attributes keep their position and spelling.
func Rewrite(c Cookie, domain string) Cookie {
	out := Cookie{Name: c.Name, Value: c.Value}
	out.Attrs = append(out.Attrs, c.Attrs...)

	out.Remove("Domain")
	out.Attrs = append(out.Attrs, Attr{Key: "Domain", Value: domain, HasValue: true})

	if i := out.keepFirst("Secure"); i >= 0 {
		out.Attrs[i] = Attr{Key: out.Attrs[i].Key}
	} else {
		out.Attrs = append(out.Attrs, Attr{Key: "Secure"})
	}

	if i := out.keepFirst("SameSite"); i >= 0 {
		out.Attrs[i] = Attr{Key: out.Attrs[i].Key, Value: "None", HasValue: true}
	} else {
		out.Attrs = append(out.Attrs, Attr{Key: "SameSite", Value: "None", HasValue: true})
	}
	return out
}

// keepFirst drops every attribute with key except the first one and returns
// its index, or -1 when the key is absent.
func (c *Cookie) keepFirst(key string) int {
	first := -1
	kept := c.Attrs[:0]
	for _, a := range c.Attrs {
		if strings.EqualFold(a.Key, key) {
			if first >= 0 {
				continue
			}
			first = len(kept)
		}
		kept = append(kept, a)
	}
	c.Attrs = kept
	return first
}

// RewriteAll rewrites each raw Set-Cookie value for domain. The result has
// the same length and order as the input.
func RewriteAll(raw []string, domain string) []string {
	out := make([]string, len(raw))
	for i, r := range raw {
		out[i] = Rewrite(Parse(r), domain).String()
	}
	return out
}
