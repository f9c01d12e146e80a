// Package davxml turns WebDav multi-status responses (RFC 4918) into typed
// entries and builds PROPFIND request bodies. It never performs I/O.
package davxml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/cloudexplorer/internal/entity"
	"github.com/tonimelisma/cloudexplorer/internal/filesystem"
)

// ParseError reports malformed protocol data. It matches filesystem.ErrParse
// and the underlying cause with errors.Is.
type ParseError struct {
	Href     string
	Property string
	Value    string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Property == "" {
		return fmt.Sprintf("davxml: malformed multistatus: %v", e.Err)
	}

	return fmt.Sprintf("davxml: %s: malformed %s %q: %v", e.Href, e.Property, e.Value, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{filesystem.ErrParse, e.Err}
}

// errEncodedSlash marks an href whose segment decodes to a name containing
// "/". Such an entry has no addressable path and is skipped.
var errEncodedSlash = errors.New("href segment decodes to a name containing a slash")

// Wire shapes. Every optional property is a pointer so a missing element
// can be told apart from an empty one.
type multistatus struct {
	XMLName   xml.Name   `xml:"DAV: multistatus"`
	Responses []response `xml:"DAV: response"`
}

type response struct {
	Href      string     `xml:"DAV: href"`
	Status    string     `xml:"DAV: status"`
	Propstats []propstat `xml:"DAV: propstat"`
}

type propstat struct {
	Prop   prop   `xml:"DAV: prop"`
	Status string `xml:"DAV: status"`
}

type prop struct {
	ResourceType     *resourceType `xml:"DAV: resourcetype"`
	CreationDate     *string       `xml:"DAV: creationdate"`
	GetLastModified  *string       `xml:"DAV: getlastmodified"`
	GetContentLength *string       `xml:"DAV: getcontentlength"`
	GetETag          *string       `xml:"DAV: getetag"`
	GetContentType   *string       `xml:"DAV: getcontenttype"`
}

type resourceType struct {
	Collection *struct{} `xml:"DAV: collection"`
}

// Parse decodes a multi-status document. root is the URL path the file
// system is mounted at (for example "/remote.php/dav/files/alice"); it is
// stripped from every href so FullPath is relative to the mount. Responses
// with a non-2xx status, or whose href encodes a slash inside a segment, are
// skipped; a malformed timestamp or length fails the whole listing.
func Parse(r io.Reader, root string, logger *slog.Logger) ([]entity.Entry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var ms multistatus
	if err := xml.NewDecoder(r).Decode(&ms); err != nil {
		return nil, &ParseError{Err: err}
	}

	rootPath := decodedRoot(root)
	entries := make([]entity.Entry, 0, len(ms.Responses))

	for i := range ms.Responses {
		resp := &ms.Responses[i]

		props, ok := okProps(resp)
		if !ok {
			logger.Debug("skipping multistatus response",
				slog.String("href", resp.Href),
				slog.String("status", responseStatus(resp)),
			)

			continue
		}

		e, err := buildEntry(resp.Href, rootPath, props)
		if errors.Is(err, errEncodedSlash) {
			logger.Debug("skipping multistatus response",
				slog.String("href", resp.Href),
				slog.String("reason", err.Error()),
			)

			continue
		}

		if err != nil {
			return nil, err
		}

		entries = append(entries, e)
	}

	logger.Debug("parsed multistatus", slog.Int("entries", len(entries)))

	return entries, nil
}

// okProps merges the properties of all 2xx propstats. It reports false when
// the response as a whole failed or no propstat succeeded.
func okProps(resp *response) (prop, bool) {
	if resp.Status != "" && !statusOK(resp.Status) {
		return prop{}, false
	}

	var merged prop

	found := false

	for i := range resp.Propstats {
		ps := &resp.Propstats[i]
		if !statusOK(ps.Status) {
			continue
		}

		found = true
		mergeProp(&merged, &ps.Prop)
	}

	// A response with a bare 2xx status and no propstat still names an entry.
	if !found && len(resp.Propstats) == 0 && statusOK(resp.Status) {
		return merged, true
	}

	return merged, found
}

func mergeProp(dst, src *prop) {
	if src.ResourceType != nil {
		dst.ResourceType = src.ResourceType
	}

	if src.CreationDate != nil {
		dst.CreationDate = src.CreationDate
	}

	if src.GetLastModified != nil {
		dst.GetLastModified = src.GetLastModified
	}

	if src.GetContentLength != nil {
		dst.GetContentLength = src.GetContentLength
	}

	if src.GetETag != nil {
		dst.GetETag = src.GetETag
	}

	if src.GetContentType != nil {
		dst.GetContentType = src.GetContentType
	}
}

func responseStatus(resp *response) string {
	if resp.Status != "" {
		return resp.Status
	}

	codes := make([]string, 0, len(resp.Propstats))
	for _, ps := range resp.Propstats {
		codes = append(codes, ps.Status)
	}

	return strings.Join(codes, ", ")
}

// statusOK parses an HTTP status line such as "HTTP/1.1 200 OK".
func statusOK(line string) bool {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return false
	}

	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return false
	}

	return code >= http.StatusOK && code < http.StatusMultipleChoices
}

func buildEntry(href, rootPath string, p prop) (entity.Entry, error) {
	fullPath, name, err := hrefPath(href, rootPath)
	if err != nil {
		return nil, err
	}

	opts := []entity.Option{entity.WithName(name)}

	if p.CreationDate != nil {
		if v := strings.TrimSpace(*p.CreationDate); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return nil, &ParseError{Href: href, Property: "creationdate", Value: v, Err: err}
			}

			opts = append(opts, entity.WithCreatedAt(t))
		}
	}

	if p.GetLastModified != nil {
		if v := strings.TrimSpace(*p.GetLastModified); v != "" {
			t, err := parseHTTPDate(v)
			if err != nil {
				return nil, &ParseError{Href: href, Property: "getlastmodified", Value: v, Err: err}
			}

			opts = append(opts, entity.WithModifiedAt(t))
		}
	}

	if p.ResourceType != nil && p.ResourceType.Collection != nil {
		return entity.NewDirectory(href, fullPath, opts...), nil
	}

	if p.GetContentLength != nil {
		if v := strings.TrimSpace(*p.GetContentLength); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err == nil && n < 0 {
				err = errors.New("negative length")
			}

			if err != nil {
				return nil, &ParseError{Href: href, Property: "getcontentlength", Value: v, Err: err}
			}

			opts = append(opts, entity.WithSize(n))
		}
	}

	if p.GetETag != nil {
		opts = append(opts, entity.WithETag(strings.TrimSpace(*p.GetETag)))
	}

	if p.GetContentType != nil {
		opts = append(opts, entity.WithContentType(strings.TrimSpace(*p.GetContentType)))
	}

	return entity.NewFile(href, fullPath, opts...), nil
}

// parseHTTPDate accepts the HTTP-date formats plus RFC 1123 with a numeric
// zone, which some servers send in getlastmodified.
func parseHTTPDate(v string) (time.Time, error) {
	if t, err := http.ParseTime(v); err == nil {
		return t, nil
	}

	if t, err := time.Parse(time.RFC1123Z, v); err == nil {
		return t, nil
	}

	return time.Parse(time.RFC1123, v)
}

// hrefPath reduces an href to a mount-relative canonical path and its
// display name.
func hrefPath(href, rootPath string) (fullPath, name string, err error) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", "", &ParseError{Href: href, Property: "href", Value: href, Err: err}
	}

	segments, err := decodeSegments(u.EscapedPath())
	if errors.Is(err, errEncodedSlash) {
		return "", "", err
	}

	if err != nil {
		return "", "", &ParseError{Href: href, Property: "href", Value: href, Err: err}
	}

	rootSegments := splitPath(rootPath)
	if hasSegmentPrefix(segments, rootSegments) {
		segments = segments[len(rootSegments):]
	}

	if len(segments) == 0 {
		return filesystem.Root, filesystem.Root, nil
	}

	return "/" + strings.Join(segments, "/"), segments[len(segments)-1], nil
}

func decodeSegments(escaped string) ([]string, error) {
	raw := splitPath(escaped)
	out := make([]string, 0, len(raw))

	for _, seg := range raw {
		dec, err := url.PathUnescape(seg)
		if err != nil {
			return nil, err
		}

		if strings.Contains(dec, "/") {
			return nil, errEncodedSlash
		}

		out = append(out, norm.NFC.String(dec))
	}

	return out, nil
}

// decodedRoot normalizes the mount path the same way hrefs are decoded.
func decodedRoot(root string) string {
	if u, err := url.Parse(root); err == nil && u.Path != "" {
		root = u.EscapedPath()
	}

	segments, err := decodeSegments(root)
	if err != nil {
		return filesystem.Clean(root)
	}

	return "/" + strings.Join(segments, "/")
}

func splitPath(p string) []string {
	var out []string

	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}

	return out
}

func hasSegmentPrefix(segments, prefix []string) bool {
	if len(prefix) > len(segments) {
		return false
	}

	for i := range prefix {
		if segments[i] != prefix[i] {
			return false
		}
	}

	return true
}
