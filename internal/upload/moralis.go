package upload

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/soundjacket/metapub/internal/httpclient"
	"github.com/soundjacket/metapub/internal/models"
)

// Moralis uploads files to IPFS through a Moralis (Parse) server using the
// master key.
type Moralis struct {
	ServerURL  string
	AppID      string
	MasterKey  string
	GatewayURL string
	client     *httpclient.Client
}

// NewMoralis creates a Moralis uploader. client carries the retry and rate limit policy.
func NewMoralis(serverURL, appID, masterKey, gatewayURL string, client *httpclient.Client) *Moralis {
	return &Moralis{
		ServerURL:  strings.TrimSuffix(serverURL, "/"),
		AppID:      appID,
		MasterKey:  masterKey,
		GatewayURL: strings.TrimSuffix(gatewayURL, "/"),
		client:     client,
	}
}

type moralisFileRequest struct {
	Base64 string `json:"base64"`
	IPFS   bool   `json:"ipfs"`
}

type moralisFileResponse struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	IPFS string `json:"ipfs"`
	Hash string `json:"hash"`
}

// Upload saves the file to IPFS and returns its gateway URI
func (m *Moralis) Upload(ctx context.Context, file models.AssetFile) (string, error) {
	endpoint := fmt.Sprintf("%s/files/%s", m.ServerURL, url.PathEscape(fileName(file)))

	body := moralisFileRequest{
		Base64: DataURI(file.MIMEType, file.Data),
		IPFS:   true,
	}
	headers := map[string]string{
		"X-Parse-Application-Id": m.AppID,
		"X-Parse-Master-Key":     m.MasterKey,
	}

	var resp moralisFileResponse
	if err := m.client.PostJSON(ctx, endpoint, body, headers, &resp); err != nil {
		return "", fmt.Errorf("failed to save file to IPFS: %w", err)
	}

	switch {
	case resp.IPFS != "":
		return resp.IPFS, nil
	case resp.Hash != "" && m.GatewayURL != "":
		return m.GatewayURL + "/" + resp.Hash, nil
	default:
		return "", fmt.Errorf("IPFS response for %s carries no content reference", file.Path)
	}
}

// DataURI wraps data as a base64 data URI
func DataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func fileName(file models.AssetFile) string {
	if file.Kind == models.KindAudio {
		return "music." + file.Ext
	}
	return "image." + file.Ext
}
