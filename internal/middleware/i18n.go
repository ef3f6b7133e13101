package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

// CountryLookup resolves ISO country codes for an IP address.
type CountryLookup func(ip string) (string, error)

// SupportedLocales are the locales user-facing messages are translated to.
// The first entry is the fallback.
var SupportedLocales = []language.Tag{language.English, language.Indonesian}

var localeMatcher = language.NewMatcher(SupportedLocales)

// countryLocales picks a locale from the caller's country when the request
// states no usable language preference.
var countryLocales = map[string]language.Tag{
	"ID": language.Indonesian,
}

var countryHeaders = []string{"X-Country-Code", "CF-IPCountry", "X-Appengine-Country"}

type localeContextKey struct{}

type requestLocale struct {
	tag     language.Tag
	country string
}

// I18N negotiates the response locale from X-Locale, then Accept-Language,
// then the caller's country, then defaultLocale, and stores it with the
// country in the request context.
func I18N(defaultLocale string, lookup CountryLookup) func(http.Handler) http.Handler {
	fallback, _, _ := localeMatcher.Match(language.Make(defaultLocale))
	fallback = baseTag(fallback)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			country := ResolveCountry(r, lookup)
			loc := requestLocale{tag: negotiateLocale(r, fallback, country), country: country}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), localeContextKey{}, loc)))
		})
	}
}

func negotiateLocale(r *http.Request, fallback language.Tag, country string) language.Tag {
	if prefs := preferredTags(r); len(prefs) > 0 {
		if tag, _, conf := localeMatcher.Match(prefs...); conf != language.No {
			return baseTag(tag)
		}
	}
	if tag, ok := countryLocales[country]; ok {
		return tag
	}
	return fallback
}

// preferredTags lists X-Locale ahead of the Accept-Language entries.
func preferredTags(r *http.Request) []language.Tag {
	var tags []language.Tag
	if v := strings.TrimSpace(r.Header.Get("X-Locale")); v != "" {
		if tag, err := language.Parse(strings.ReplaceAll(v, "_", "-")); err == nil {
			tags = append(tags, tag)
		}
	}
	if v := strings.TrimSpace(r.Header.Get("Accept-Language")); v != "" {
		if accepted, _, err := language.ParseAcceptLanguage(v); err == nil {
			tags = append(tags, accepted...)
		}
	}
	return tags
}

// baseTag drops region and extensions the matcher may attach, so "id-ID"
// and "id-u-rg-idzzzz" both become "id".
func baseTag(tag language.Tag) language.Tag {
	base, _ := tag.Base()
	return language.Make(base.String())
}

// ResolveCountry returns a best-effort upper-case ISO country code: proxy
// headers first, then an explicit region in the language preferences, then
// lookup on the client IP.
func ResolveCountry(r *http.Request, lookup CountryLookup) string {
	for _, key := range countryHeaders {
		if v := strings.TrimSpace(r.Header.Get(key)); v != "" {
			return strings.ToUpper(v)
		}
	}
	for _, tag := range preferredTags(r) {
		if region, conf := tag.Region(); conf == language.Exact {
			return region.String()
		}
	}
	if lookup == nil {
		return ""
	}
	ip := ClientIP(r)
	if ip == "" {
		return ""
	}
	country, err := lookup(ip)
	if err != nil {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(country))
}

// ClientIP returns the host part of RemoteAddr. Forwarding headers are
// applied earlier by chi's RealIP middleware.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// LocaleFromContext returns the negotiated base language, "en" by default.
func LocaleFromContext(ctx context.Context) string {
	if loc, ok := ctx.Value(localeContextKey{}).(requestLocale); ok {
		return loc.tag.String()
	}
	return "en"
}

func CountryFromContext(ctx context.Context) string {
	if loc, ok := ctx.Value(localeContextKey{}).(requestLocale); ok {
		return loc.country
	}
	return ""
}
