package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/soundjacket/metapub/internal/httpclient"
	"github.com/soundjacket/metapub/internal/metadata"
)

// Client reads published metadata back through an IPFS gateway
type Client struct {
	GatewayURL string
	httpClient *httpclient.Client
}

// NewClient creates a new gateway client
func NewClient(gatewayURL string, httpClient *httpclient.Client) *Client {
	return &Client{
		GatewayURL: strings.TrimRight(gatewayURL, "/"),
		httpClient: httpClient,
	}
}

// ItemURL is <gateway>/<root>/metadata/<index>
func (c *Client) ItemURL(root string, index int) string {
	return c.GatewayURL + "/" + url.PathEscape(root) + "/metadata/" + strconv.Itoa(index)
}

// Fetch retrieves the published record for one item under root
func (c *Client) Fetch(ctx context.Context, root string, index int) (*metadata.Record, error) {
	var record metadata.Record
	if err := c.httpClient.GetJSON(ctx, c.ItemURL(root, index), &record); err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", c.ItemURL(root, index), err)
	}
	if record.Name == "" && record.Image == "" {
		return nil, fmt.Errorf("gateway returned an empty record for item %d", index)
	}
	return &record, nil
}
