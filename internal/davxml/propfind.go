package davxml

import "strings"

// Property names a live DAV property in the "DAV:" namespace.
type Property string

// Properties understood by Parse.
const (
	PropResourceType     Property = "resourcetype"
	PropCreationDate     Property = "creationdate"
	PropGetLastModified  Property = "getlastmodified"
	PropGetContentLength Property = "getcontentlength"
	PropGetETag          Property = "getetag"
	PropGetContentType   Property = "getcontenttype"
	PropDisplayName      Property = "displayname"
)

// DefaultProps is the property set a file system requests for listings.
var DefaultProps = []Property{
	PropResourceType,
	PropCreationDate,
	PropGetLastModified,
	PropGetContentLength,
	PropGetETag,
	PropGetContentType,
}

const xmlHeader = `<?xml version="1.0" encoding="utf-8"?>` + "\n"

// PropfindBody builds a PROPFIND request body. With no properties it asks
// for allprop.
func PropfindBody(props ...Property) []byte {
	var b strings.Builder

	b.WriteString(xmlHeader)
	b.WriteString(`<D:propfind xmlns:D="DAV:">`)

	if len(props) == 0 {
		b.WriteString(`<D:allprop/>`)
	} else {
		b.WriteString(`<D:prop>`)

		for _, p := range props {
			b.WriteString(`<D:`)
			b.WriteString(string(p))
			b.WriteString(`/>`)
		}

		b.WriteString(`</D:prop>`)
	}

	b.WriteString(`</D:propfind>`)

	return []byte(b.String())
}
