package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mpetrovs/attachsync/internal/common"
	"github.com/mpetrovs/attachsync/internal/logging"
)

const apiVersion = "7.0"

// attachedFileRelation is the relation type the tracker uses for file
// attachments on a work item.
const attachedFileRelation = "AttachedFile"

// AzureOptions configures the Azure DevOps adapter.
type AzureOptions struct {
	// BaseURL is the project collection URL, e.g.
	// https://dev.azure.com/myorg/myproject or https://tfs.local/tfs/Coll/Proj.
	BaseURL string
	// PAT is the personal access token used as the basic-auth password.
	PAT     string
	Timeout time.Duration
}

// AzureClient implements Client against the Azure DevOps / TFS work-item
// tracking REST API.
type AzureClient struct {
	base   string
	pat    string
	http   *http.Client
	logger logging.Logger
}

func NewAzureClient(opts AzureOptions, logger logging.Logger) *AzureClient {
	return &AzureClient{
		base:   strings.TrimRight(opts.BaseURL, "/"),
		pat:    opts.PAT,
		http:   &http.Client{Timeout: opts.Timeout},
		logger: logger.With("module", "remote"),
	}
}

func (c *AzureClient) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth("", c.pat)
	return req, nil
}

// do executes the request and classifies failures. Transport errors and 5xx
// responses are transient; any other non-2xx response is permanent.
func (c *AzureClient) do(op string, req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, common.NewTransientUpstream(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, common.UpstreamFromStatus(op, resp.StatusCode)
	}
	return resp, nil
}

type attachmentReference struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (c *AzureClient) Upload(ctx context.Context, fileName string, data []byte) (Attachment, error) {
	u := fmt.Sprintf("%s/_apis/wit/attachments?fileName=%s&api-version=%s",
		c.base, url.QueryEscape(fileName), apiVersion)

	req, err := c.newRequest(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return Attachment{}, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.do("upload", req)
	if err != nil {
		return Attachment{}, err
	}
	defer resp.Body.Close()

	var ref attachmentReference
	if err := json.NewDecoder(resp.Body).Decode(&ref); err != nil {
		return Attachment{}, common.NewTransientUpstream("upload", fmt.Errorf("decode response: %w", err))
	}

	c.logger.Debug(ctx, "attachment uploaded", "file", fileName, "guid", ref.ID)
	return Attachment{GUID: ref.ID, URL: ref.URL, FileName: fileName, SizeBytes: int64(len(data))}, nil
}

// patchOperation is one entry of a JSON-Patch document.
type patchOperation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

func (c *AzureClient) Link(ctx context.Context, workItemID int64, attachmentURL, fileName, comment string) error {
	patch := []patchOperation{{
		Op:   "add",
		Path: "/relations/-",
		Value: map[string]any{
			"rel": attachedFileRelation,
			"url": attachmentURL,
			"attributes": map[string]any{
				"name":    fileName,
				"comment": comment,
			},
		},
	}}

	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshal patch: %w", err)
	}

	u := fmt.Sprintf("%s/_apis/wit/workitems/%d?api-version=%s", c.base, workItemID, apiVersion)
	req, err := c.newRequest(ctx, http.MethodPatch, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json-patch+json")

	resp, err := c.do("link", req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	c.logger.Debug(ctx, "attachment linked", "work_item_id", workItemID, "file", fileName)
	return nil
}

type workItemResponse struct {
	Relations []struct {
		Rel        string `json:"rel"`
		URL        string `json:"url"`
		Attributes struct {
			Name         string `json:"name"`
			ResourceSize int64  `json:"resourceSize"`
		} `json:"attributes"`
	} `json:"relations"`
}

func (c *AzureClient) List(ctx context.Context, workItemID int64) ([]Attachment, error) {
	u := fmt.Sprintf("%s/_apis/wit/workitems/%d?$expand=relations&api-version=%s",
		c.base, workItemID, apiVersion)

	req, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do("list", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wi workItemResponse
	if err := json.NewDecoder(resp.Body).Decode(&wi); err != nil {
		return nil, common.NewTransientUpstream("list", fmt.Errorf("decode response: %w", err))
	}

	var out []Attachment
	for _, rel := range wi.Relations {
		if rel.Rel != attachedFileRelation {
			continue
		}
		out = append(out, Attachment{
			GUID:      guidFromURL(rel.URL),
			URL:       rel.URL,
			FileName:  rel.Attributes.Name,
			SizeBytes: rel.Attributes.ResourceSize,
		})
	}
	return out, nil
}

func (c *AzureClient) Download(ctx context.Context, guid string) ([]byte, error) {
	u := fmt.Sprintf("%s/_apis/wit/attachments/%s?api-version=%s", c.base, url.PathEscape(guid), apiVersion)

	req, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do("download", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, common.NewTransientUpstream("download", fmt.Errorf("read body: %w", err))
	}
	return data, nil
}

// guidFromURL extracts the attachment GUID from a relation's content URL,
// which ends in .../_apis/wit/attachments/<guid> possibly with a query string.
func guidFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	path := strings.TrimRight(u.Path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
