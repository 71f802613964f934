package catalog

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const (
	minTitleLen       = 2
	maxTitleLen       = 100
	maxDescriptionLen = 500
	maxRefLen         = 255
)

// normalizeInput trims every field, applies defaults and collects all
// violations at once.
func normalizeInput(in Input) (Input, error) {
	var verr ValidationError

	in.Title = strings.TrimSpace(in.Title)
	if msg := checkTitle(in.Title); msg != "" {
		verr.add("title", msg)
	}

	in.Description = strings.TrimSpace(in.Description)
	if msg := checkDescription(in.Description); msg != "" {
		verr.add("description", msg)
	}

	icon, msg := normalizeIcon(in.IconURL)
	if msg != "" {
		verr.add("iconUrl", msg)
	}
	in.IconURL = icon

	in.EmbedCode = strings.TrimSpace(in.EmbedCode)
	if msg := checkEmbed(in.EmbedCode); msg != "" {
		verr.add("embedCode", msg)
	}

	in.ExternalKbRef = refOrDefault(in.ExternalKbRef, DefaultKbRef)
	if utf8.RuneCountInString(in.ExternalKbRef) > maxRefLen {
		verr.add("externalKbRef", "is too long")
	}
	in.ExternalFlowRef = refOrDefault(in.ExternalFlowRef, DefaultFlowRef)
	if utf8.RuneCountInString(in.ExternalFlowRef) > maxRefLen {
		verr.add("externalFlowRef", "is too long")
	}

	return in, verr.orNil()
}

// normalizePatch validates only the supplied fields.
func normalizePatch(p Patch) (Patch, error) {
	var verr ValidationError

	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if msg := checkTitle(t); msg != "" {
			verr.add("title", msg)
		}
		p.Title = &t
	}
	if p.Description != nil {
		d := strings.TrimSpace(*p.Description)
		if msg := checkDescription(d); msg != "" {
			verr.add("description", msg)
		}
		p.Description = &d
	}
	if p.IconURL != nil {
		icon, msg := normalizeIcon(p.IconURL)
		if msg != "" {
			verr.add("iconUrl", msg)
		}
		if icon == nil {
			empty := ""
			icon = &empty
		}
		p.IconURL = icon
	}
	if p.EmbedCode != nil {
		e := strings.TrimSpace(*p.EmbedCode)
		if msg := checkEmbed(e); msg != "" {
			verr.add("embedCode", msg)
		}
		p.EmbedCode = &e
	}
	if p.ExternalKbRef != nil {
		v := refOrDefault(*p.ExternalKbRef, DefaultKbRef)
		p.ExternalKbRef = &v
	}
	if p.ExternalFlowRef != nil {
		v := refOrDefault(*p.ExternalFlowRef, DefaultFlowRef)
		p.ExternalFlowRef = &v
	}
	if p.ViewCount != nil && *p.ViewCount < 0 {
		verr.add("viewCount", "must not be negative")
	}
	if p.ViewCount != nil && p.IncrementViews {
		verr.add("viewCount", "cannot be combined with incrementViews")
	}

	return p, verr.orNil()
}

func checkTitle(t string) string {
	switch n := utf8.RuneCountInString(t); {
	case n == 0:
		return "is required"
	case n < minTitleLen:
		return "must be at least 2 characters"
	case n > maxTitleLen:
		return "must be at most 100 characters"
	}
	return ""
}

func checkDescription(d string) string {
	if utf8.RuneCountInString(d) > maxDescriptionLen {
		return "must be at most 500 characters"
	}
	return ""
}

// normalizeIcon maps blank to nil; anything else must be an absolute
// http(s) URL.
func normalizeIcon(u *string) (*string, string) {
	if u == nil {
		return nil, ""
	}
	s := strings.TrimSpace(*u)
	if s == "" {
		return nil, ""
	}
	parsed, err := url.Parse(s)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, "must be an absolute http(s) URL"
	}
	return &s, ""
}

func checkEmbed(code string) string {
	if code == "" {
		return "is required"
	}
	if !hasFrameWithSource(code) {
		return "must contain an <iframe> with a src attribute"
	}
	return ""
}

// hasFrameWithSource scans tokens for an iframe start tag that carries a
// non-empty src. It does not build a DOM.
func hasFrameWithSource(code string) bool {
	z := html.NewTokenizer(strings.NewReader(code))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "iframe" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "src" && strings.TrimSpace(string(val)) != "" {
					return true
				}
				if !more {
					break
				}
			}
		}
	}
}

func refOrDefault(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}
