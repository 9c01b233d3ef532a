package export

import (
	"path"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// ArchivePrefix is the folder holding generated archives.
	ArchivePrefix = "archives/"
	// DefaultMediaExt is used when a media URL has no extension.
	DefaultMediaExt = "mp4"

	fallbackArchiveName = "projet"
	shortIDLength       = 8
)

var nonAlphanumeric = regexp.MustCompile(`[^A-Za-z0-9]`)

// StripDiacritics decomposes s and drops combining marks ("Étienne" -> "Etienne").
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// SanitizeToken reduces a city or department to [A-Za-z0-9_]: diacritics are
// stripped and any other char becomes '_', after trimming surrounding whitespace.
func SanitizeToken(s string) string {
	return nonAlphanumeric.ReplaceAllString(StripDiacritics(strings.TrimSpace(s)), "_")
}

// ShortID returns the first eight characters of id.
func ShortID(id string) string {
	r := []rune(id)
	if len(r) <= shortIDLength {
		return id
	}
	return string(r[:shortIDLength])
}

// ArchiveName derives the human-readable archive name for a submission:
// <city>_<department>_<id8> when both are present after sanitizing, else projet_<id8>.
func ArchiveName(submissionID, city, department string) string {
	c := SanitizeToken(city)
	d := SanitizeToken(department)
	if c != "" && d != "" {
		return c + "_" + d + "_" + ShortID(submissionID)
	}
	return fallbackArchiveName + "_" + ShortID(submissionID)
}

// ArchivePath is the storage key for an archive name.
func ArchivePath(name string) string {
	return ArchivePrefix + name + ".zip"
}

// MediaExt returns the extension of the last path segment of rawURL without
// the dot, ignoring query strings, or DefaultMediaExt.
func MediaExt(rawURL string) string {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		rawURL = rawURL[:i]
	}
	ext := strings.TrimPrefix(path.Ext(path.Base(rawURL)), ".")
	if ext == "" || nonAlphanumeric.MatchString(ext) {
		return DefaultMediaExt
	}
	return strings.ToLower(ext)
}

// UniqueName returns name, or name with a numeric suffix before the
// extension ("a.jpg" -> "a_2.jpg") when it is already in taken. The chosen
// name is added to taken.
func UniqueName(name string, taken map[string]struct{}) string {
	candidate := name
	if _, dup := taken[candidate]; dup {
		ext := path.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		for n := 2; ; n++ {
			candidate = stem + "_" + strconv.Itoa(n) + ext
			if _, dup := taken[candidate]; !dup {
				break
			}
		}
	}
	taken[candidate] = struct{}{}
	return candidate
}
