package mapcache

import (
	"fmt"
	"strings"
)

// Key identifies a cache entry: {city_slug}_{country_slug}_{distance}.
type Key string

func (k Key) String() string {
	return string(k)
}

// NewKey builds the normalized key for a location and fetch distance in meters.
// "San Francisco", "USA", 2000 and " san francisco ", "usa", 2000 produce the same key.
func NewKey(city, country string, distance int) Key {
	return Key(fmt.Sprintf("%s%d", LocationPrefix(city, country), distance))
}

// LocationPrefix is the key prefix shared by every distance cached for a city and country.
func LocationPrefix(city, country string) string {
	return fmt.Sprintf("%s_%s_", citySlug(city), countrySlug(country))
}

func citySlug(city string) string {
	s := strings.ToLower(strings.TrimSpace(city))
	s = strings.ReplaceAll(s, ",", "")
	return escape(underscoreSpaces(s))
}

func countrySlug(country string) string {
	return escape(underscoreSpaces(strings.ToLower(strings.TrimSpace(country))))
}

// underscoreSpaces collapses runs of whitespace into a single underscore.
func underscoreSpaces(s string) string {
	return strings.Join(strings.Fields(s), "_")
}

// Valid reports whether the key names a single directory inside the cache root.
// Every key built by NewKey is valid.
func (k Key) Valid() bool {
	s := string(k)
	if s == "" || strings.HasPrefix(s, ".") {
		return false
	}
	return !strings.ContainsAny(s, "/\\\x00")
}

var slugEscaper = strings.NewReplacer(
	"%", "%25",
	"/", "%2F",
	"\\", "%5C",
	"\x00", "%00",
)

// escape keeps a slug usable as a path segment. "%" is escaped too, so distinct slugs
// never share a directory.
func escape(slug string) string {
	s := slugEscaper.Replace(slug)
	if strings.HasPrefix(s, ".") {
		s = "%2E" + s[1:]
	}
	return s
}
