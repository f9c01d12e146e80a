package provider

import (
	"github.com/tonimelisma/cloudexplorer/internal/filesystem"
	"github.com/tonimelisma/cloudexplorer/internal/onedrive"
	"github.com/tonimelisma/cloudexplorer/internal/webdav"
)

// Provider names as shown to users and stored in config files.
const (
	NameWebDav     = "WebDav"
	NameOneDrive   = "OneDrive"
	NameSharepoint = "Sharepoint"
)

// Branding colors.
var (
	ColorWebDav     = Color{R: 0x4a, G: 0x5d, B: 0x6e}
	ColorOneDrive   = Color{R: 0x00, G: 0x78, B: 0xd4}
	ColorSharepoint = Color{R: 0x03, G: 0x83, B: 0x87}
)

// WebDav is the generic WebDav provider.
type WebDav struct {
	settings Settings
	endpoint string
}

// NewWebDav creates the WebDav provider.
func NewWebDav(s Settings) *WebDav {
	return &WebDav{settings: s}
}

// Name returns "WebDav".
func (w *WebDav) Name() string { return NameWebDav }

// Color returns the WebDav branding color.
func (w *WebDav) Color() Color { return ColorWebDav }

// WithEndpoint returns a copy rooted at url.
func (w *WebDav) WithEndpoint(url string) Provider {
	c := *w
	c.endpoint = url

	return &c
}

// CreateFileSystem returns a new WebDav file system bound to auth.
func (w *WebDav) CreateFileSystem(auth filesystem.AuthenticationManager) filesystem.FileSystem {
	return w.newFileSystem(auth, webdav.DefaultLabel)
}

func (w *WebDav) newFileSystem(auth filesystem.AuthenticationManager, label string) *webdav.FileSystem {
	return webdav.New(webdav.Config{
		URL:        w.endpoint,
		HTTPClient: w.settings.HTTPClient,
		Logger:     w.settings.Logger,
		UserAgent:  w.settings.UserAgent,
		MaxRetries: w.settings.MaxRetries,
		Label:      label,
	}, auth)
}

// Sharepoint serves Sharepoint document libraries through their WebDav
// endpoint. It reuses the WebDav provider and only changes branding and the
// log label of the file systems it builds.
type Sharepoint struct {
	dav *WebDav
}

// NewSharepoint creates the Sharepoint provider.
func NewSharepoint(s Settings) *Sharepoint {
	return &Sharepoint{dav: NewWebDav(s)}
}

// Name returns "Sharepoint".
func (s *Sharepoint) Name() string { return NameSharepoint }

// Color returns the Sharepoint branding color.
func (s *Sharepoint) Color() Color { return ColorSharepoint }

// WithEndpoint returns a copy rooted at url.
func (s *Sharepoint) WithEndpoint(url string) Provider {
	dav, _ := s.dav.WithEndpoint(url).(*WebDav)
	return &Sharepoint{dav: dav}
}

// CreateFileSystem returns a new WebDav file system labeled "sharepoint".
func (s *Sharepoint) CreateFileSystem(auth filesystem.AuthenticationManager) filesystem.FileSystem {
	return s.dav.newFileSystem(auth, "sharepoint")
}

// OneDrive is the Microsoft Graph provider.
type OneDrive struct {
	settings Settings
	endpoint string
}

// NewOneDrive creates the OneDrive provider.
func NewOneDrive(s Settings) *OneDrive {
	return &OneDrive{settings: s}
}

// Name returns "OneDrive".
func (o *OneDrive) Name() string { return NameOneDrive }

// Color returns the OneDrive branding color.
func (o *OneDrive) Color() Color { return ColorOneDrive }

// WithEndpoint returns a copy talking to a different Graph base URL.
func (o *OneDrive) WithEndpoint(url string) Provider {
	c := *o
	c.endpoint = url

	return &c
}

// CreateFileSystem returns a new OneDrive file system bound to auth.
func (o *OneDrive) CreateFileSystem(auth filesystem.AuthenticationManager) filesystem.FileSystem {
	return onedrive.New(onedrive.Config{
		BaseURL:    o.endpoint,
		HTTPClient: o.settings.HTTPClient,
		Logger:     o.settings.Logger,
		UserAgent:  o.settings.UserAgent,
		MaxRetries: o.settings.MaxRetries,
		ChunkSize:  o.settings.UploadChunkSize,
	}, auth)
}
