package elvis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Asset service endpoints, relative to the base URL.
const (
	searchPath         = "services/search"
	createPath         = "services/create"
	updatePath         = "services/update"
	movePath           = "services/move"
	removePath         = "services/remove"
	createRelationPath = "services/createRelation"
	createFolderPath   = "services/createFolder"
	createAuthKeyPath  = "services/createAuthKey"
)

// RelationContains is the relation type linking a collection to its members.
const RelationContains = "contains"

// shareDateLayout is the date format the service expects for validUntil.
const shareDateLayout = "2006-01-02"

// Fields is a flat set of form fields sent to the service, such as asset
// metadata keyed by Elvis field name.
type Fields map[string]string

func (f Fields) values() url.Values {
	v := make(url.Values, len(f))
	for k, val := range f {
		v.Set(k, val)
	}

	return v
}

func (f Fields) sortedKeys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}

// EncodeMetadata renders a metadata mapping as the JSON string the service
// expects in the "metadata" field of create and update calls.
func EncodeMetadata(metadata map[string]any) (string, error) {
	data, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("elvis: encoding metadata: %w", err)
	}

	return string(data), nil
}

// nfc normalizes names and paths to NFC so the same visible name always
// maps to the same asset path on the server.
func nfc(s string) string {
	return norm.NFC.String(s)
}

// Search runs a query and returns hits start..start+num.
func (c *Client) Search(ctx context.Context, q string, start, num int) (Response, error) {
	return c.fetch(ctx, searchPath, url.Values{
		"q":     {q},
		"start": {strconv.Itoa(start)},
		"num":   {strconv.Itoa(num)},
	}, true)
}

// SearchAssetID looks up a single asset by its Elvis id.
func (c *Client) SearchAssetID(ctx context.Context, id string) (Response, error) {
	return c.fetch(ctx, searchPath, url.Values{"q": {"id:" + id}}, true)
}

// SearchAssetIDAuthCred looks up an asset without a session, passing the
// configured credentials inline as authcred. Useful for one-off lookups
// where a login round trip is not wanted.
func (c *Client) SearchAssetIDAuthCred(ctx context.Context, id string) (Response, error) {
	target, err := c.endpoint(searchPath)
	if err != nil {
		return nil, err
	}

	cred := base64.StdEncoding.EncodeToString([]byte(c.username + ":" + c.password))
	target.RawQuery = url.Values{"q": {"id:" + id}, "authcred": {cred}}.Encode()

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	return c.roundTrip(ctx, outbound{method: http.MethodGet, target: target, anonymous: true})
}

// Upload creates an asset from the local file at localPath. metadata holds
// Elvis field values, typically at least assetPath.
func (c *Client) Upload(ctx context.Context, filename string, metadata Fields, localPath string) (Response, error) {
	fields := make(Fields, len(metadata))
	for k, v := range metadata {
		fields[k] = v
	}

	if p, ok := fields["assetPath"]; ok {
		fields["assetPath"] = nfc(p)
	}

	if p, ok := fields["folderPath"]; ok {
		fields["folderPath"] = nfc(p)
	}

	return c.postFile(ctx, createPath, fields, FileDescriptor{Filename: nfc(filename), Path: localPath})
}

// Update changes an existing asset. fields must include "id"; metadata
// changes go in "metadata" as produced by EncodeMetadata.
func (c *Client) Update(ctx context.Context, fields Fields) (Response, error) {
	if fields["id"] == "" {
		return nil, fmt.Errorf("elvis: update requires an asset id")
	}

	return c.fetch(ctx, updatePath, fields.values(), true)
}

// UpdateMetadata is Update for the common case of changing metadata fields
// of one asset.
func (c *Client) UpdateMetadata(ctx context.Context, id string, metadata map[string]any) (Response, error) {
	encoded, err := EncodeMetadata(metadata)
	if err != nil {
		return nil, err
	}

	return c.Update(ctx, Fields{"id": id, "metadata": encoded})
}

// Move moves or renames an asset or folder.
func (c *Client) Move(ctx context.Context, source, target string) (Response, error) {
	return c.fetch(ctx, movePath, url.Values{
		"source": {nfc(source)},
		"target": {nfc(target)},
	}, true)
}

// RemoveByID deletes the assets with the given ids.
func (c *Client) RemoveByID(ctx context.Context, ids ...string) (Response, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("elvis: remove requires at least one asset id")
	}

	return c.fetch(ctx, removePath, url.Values{"ids": {strings.Join(ids, ",")}}, true)
}

// RemoveByFolder deletes a folder and every asset inside it.
func (c *Client) RemoveByFolder(ctx context.Context, folderPath string) (Response, error) {
	return c.fetch(ctx, removePath, url.Values{"folderPath": {nfc(folderPath)}}, true)
}

// CreateCollection creates a collection asset. The service accepts this call
// as a plain GET.
func (c *Client) CreateCollection(ctx context.Context, assetPath, folderPath, assetType, name string) (Response, error) {
	return c.fetch(ctx, createPath, url.Values{
		"assetPath":  {nfc(assetPath)},
		"folderPath": {nfc(folderPath)},
		"assetType":  {assetType},
		"name":       {nfc(name)},
	}, false)
}

// CreateRelation relates two assets. relationType is one of the service's
// relation names (related, references, contains, duplicate, variation,
// instance, uses).
func (c *Client) CreateRelation(ctx context.Context, relationType, id1, id2 string) (Response, error) {
	return c.fetch(ctx, createRelationPath, url.Values{
		"relationType": {relationType},
		"target1Id":    {id1},
		"target2Id":    {id2},
	}, true)
}

// CollectionRelation adds the asset id2 to the collection id1.
func (c *Client) CollectionRelation(ctx context.Context, id1, id2 string) (Response, error) {
	return c.CreateRelation(ctx, RelationContains, id1, id2)
}

// CreateFolder creates a folder, including missing parents.
func (c *Client) CreateFolder(ctx context.Context, folderPath string) (Response, error) {
	return c.fetch(ctx, createFolderPath, url.Values{"path": {nfc(folderPath)}}, true)
}

// CreateAuthKey creates a share link. share is passed through as-is; use
// ShareLink.Fields to build it.
func (c *Client) CreateAuthKey(ctx context.Context, share Fields) (Response, error) {
	return c.fetch(ctx, createAuthKeyPath, share.values(), true)
}

// ShareLink describes a share link (auth key) for CreateAuthKey.
type ShareLink struct {
	Subject          string
	ValidUntil       time.Time
	AssetIDs         []string
	Description      string
	RequestUpload    bool
	DownloadOriginal bool
	ImportFolderPath string
	// Extra holds service fields not modeled above; it wins on conflicts.
	Extra Fields
}

// Fields renders s in the service's form encoding.
func (s ShareLink) Fields() Fields {
	f := Fields{"subject": s.Subject}

	if !s.ValidUntil.IsZero() {
		f["validUntil"] = s.ValidUntil.Format(shareDateLayout)
	}

	if len(s.AssetIDs) > 0 {
		f["assetIds"] = strings.Join(s.AssetIDs, ",")
	}

	if s.Description != "" {
		f["description"] = s.Description
	}

	if s.RequestUpload {
		f["requestUpload"] = "true"
	}

	if s.DownloadOriginal {
		f["downloadOriginal"] = "true"
	}

	if s.ImportFolderPath != "" {
		f["importFolderPath"] = nfc(s.ImportFolderPath)
	}

	for k, v := range s.Extra {
		f[k] = v
	}

	return f
}

// Hit is one asset of a search result.
type Hit struct {
	ID           string         `json:"id"`
	OriginalURL  string         `json:"originalUrl"`
	PreviewURL   string         `json:"previewUrl"`
	ThumbnailURL string         `json:"thumbnailUrl"`
	Metadata     map[string]any `json:"metadata"`
}

// Filename returns the asset's file name from its metadata, falling back to
// the last element of its asset path.
func (h Hit) Filename() string {
	if s, ok := h.Metadata["filename"].(string); ok && s != "" {
		return s
	}

	if p := h.AssetPath(); p != "" {
		return path.Base(p)
	}

	return h.ID
}

// AssetPath returns the asset's path on the server, or "".
func (h Hit) AssetPath() string {
	s, _ := h.Metadata["assetPath"].(string)
	return s
}

// SearchResult is the typed form of a search response.
type SearchResult struct {
	FirstResult   int   `json:"firstResult"`
	MaxResultHits int   `json:"maxResultHits"`
	TotalHits     int   `json:"totalHits"`
	Hits          []Hit `json:"hits"`
}

// SearchResult decodes r as a search response.
func (r Response) SearchResult() (*SearchResult, error) {
	var out SearchResult
	if err := r.Decode(&out); err != nil {
		return nil, err
	}

	return &out, nil
}
