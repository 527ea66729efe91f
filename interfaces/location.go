package interfaces

import (
	"fmt"
	"net/url"
	"strings"
)

// ObjectStoreLocation represents a parsed URI for an object store.
type ObjectStoreLocation struct {
	Raw      string     // Original URI
	Scheme   string     // Protocol
	Host     string     // Bucket for s3, empty for file
	Path     string     // Root path for s3, base directory for file
	Query    url.Values // Query parameters
	Username string     // Access key id
	Password string     // Secret access key
}

// NewObjectStoreLocation creates a location from a URI string with validation.
//
// Supported forms:
//
//	s3://[ACCESS_KEY:SECRET_KEY@]bucket[/root/path][?host=...&secure=true&region=...]
//	file:///base/dir[?bucket=registry&root=/]
func NewObjectStoreLocation(uri string) (ObjectStoreLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return ObjectStoreLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	switch scheme {
	case "s3":
		if parsed.Host == "" {
			return ObjectStoreLocation{}, fmt.Errorf("%w: missing bucket in %q", ErrInvalidLocationURI, uri)
		}
	case "file":
		if parsed.Path == "" && parsed.Host == "" {
			return ObjectStoreLocation{}, fmt.Errorf("%w: empty path in %q", ErrInvalidLocationURI, uri)
		}
	default:
		return ObjectStoreLocation{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	loc := ObjectStoreLocation{
		Raw:    uri,
		Scheme: scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
	}
	if parsed.User != nil {
		loc.Username = parsed.User.Username()
		loc.Password, _ = parsed.User.Password()
	}
	return loc, nil
}

// String returns the URI with the secret access key masked.
func (loc ObjectStoreLocation) String() string {
	if loc.Password == "" {
		return loc.Raw
	}
	u, err := url.Parse(loc.Raw)
	if err != nil {
		return loc.Raw
	}
	u.User = url.UserPassword(loc.Username, "***")
	return u.String()
}

// IsS3 checks if this is an S3-compatible location.
func (loc ObjectStoreLocation) IsS3() bool {
	return loc.Scheme == "s3"
}

// IsFile checks if this is a local file system location.
func (loc ObjectStoreLocation) IsFile() bool {
	return loc.Scheme == "file"
}

// GetParam returns a query parameter value.
func (loc ObjectStoreLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

// GetParamBool returns a boolean query parameter value.
func (loc ObjectStoreLocation) GetParamBool(name string) bool {
	value := loc.Query.Get(name)
	return value == "true" || value == "1" || value == "yes"
}

// Bucket returns the bucket the location addresses.
func (loc ObjectStoreLocation) Bucket() string {
	if loc.IsS3() {
		return loc.Host
	}
	if b := loc.GetParam("bucket"); b != "" {
		return b
	}
	return "registry"
}

// RootPath returns the storage root inside the bucket.
func (loc ObjectStoreLocation) RootPath() string {
	if loc.IsS3() {
		if loc.Path == "" {
			return "/"
		}
		return loc.Path
	}
	if r := loc.GetParam("root"); r != "" {
		return r
	}
	return "/"
}
