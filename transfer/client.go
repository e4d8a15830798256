package transfer

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"myshare/auth"
	appcrypto "myshare/crypto"
	"myshare/identity"
)

const maxResponseBytes = 64 << 10

// Client sends files to receivers and fetches their public keys.
type Client struct {
	identity   *identity.Identity
	deviceName string
	issuer     *auth.Issuer
	httpClient *http.Client
	state      *State
}

// ClientOption adjusts a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default TLS client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithClientState reports CONNECTING and TRANSFERRING on state during sends.
func WithClientState(state *State) ClientOption {
	return func(c *Client) {
		c.state = state
	}
}

// WithAuthOptions passes options to the token issuer.
func WithAuthOptions(opts ...auth.Option) ClientOption {
	return func(c *Client) {
		c.issuer = auth.NewIssuer(c.identity.PrivateKey, opts...)
	}
}

// NewClient returns a Client signing as id and announcing deviceName.
func NewClient(id *identity.Identity, deviceName string, opts ...ClientOption) *Client {
	c := &Client{
		identity:   id,
		deviceName: deviceName,
		issuer:     auth.NewIssuer(id.PrivateKey),
		httpClient: newInsecureHTTPClient(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newInsecureHTTPClient skips certificate verification. Receivers present
// self-signed certificates; peer authentication is the token signature.
func newInsecureHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: true,
		MinVersion:         tls.VersionTLS12,
	}
	return &http.Client{Transport: transport}
}

// FetchPublicKey retrieves a receiver's signing public key.
func (c *Client) FetchPublicKey(ctx context.Context, address string, port int) (ed25519.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint(address, port, "/pubkey"), nil)
	if err != nil {
		return nil, fmt.Errorf("build pubkey request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch public key from %s: %v", ErrNetwork, net.JoinHostPort(address, strconv.Itoa(port)), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read public key response: %v", ErrNetwork, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &RemoteError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	publicKey, err := appcrypto.ParsePublicKeyPEM(body)
	if err != nil {
		return nil, fmt.Errorf("parse peer public key: %w", err)
	}
	return publicKey, nil
}

// SendFile uploads the file at path to the receiver with device id receiverID.
// There is no retry; any non-200 response is returned as a *RemoteError.
func (c *Client) SendFile(ctx context.Context, address string, port int, path, receiverID string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	filename := filepath.Base(path)
	fileHash := appcrypto.ContentHash(content)

	token, err := c.issuer.Issue(fileHash, c.identity.DeviceID, receiverID)
	if err != nil {
		return fmt.Errorf("issue auth token: %w", err)
	}

	body, contentType, err := c.encodeUpload(filename, content, token)
	if err != nil {
		return err
	}

	c.setState(ModeConnecting)
	defer c.setState(ModeIdle)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(address, port, "/upload"), body)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	c.setState(ModeTransferring)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: upload to %s: %v", ErrNetwork, net.JoinHostPort(address, strconv.Itoa(port)), err)
	}
	defer resp.Body.Close()

	reply, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read upload response: %v", ErrNetwork, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &RemoteError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(reply))}
	}

	slog.Info("file sent", "receiver_id", receiverID, "filename", filename, "bytes", len(content))
	return nil
}

func (c *Client) encodeUpload(filename string, content []byte, token auth.Token) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile(fieldFile, filename)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}

	fields := [][2]string{
		{fieldFilename, filename},
		{fieldFileHash, token.FileHash},
		{fieldNonce, token.Nonce},
		{fieldTimestamp, strconv.FormatInt(token.Timestamp, 10)},
		{fieldSenderID, token.SenderID},
		{fieldSenderName, c.deviceName},
		{fieldReceiverID, token.ReceiverID},
		{fieldSignature, token.Signature},
		{fieldPubkeyPEM, string(c.identity.PublicKeyPEM())},
	}
	for _, field := range fields {
		if field[1] == "" {
			continue
		}
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return nil, "", fmt.Errorf("write %s field: %w", field[0], err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}

func (c *Client) setState(mode Mode) {
	if c.state != nil {
		c.state.Set(mode)
	}
}

func endpoint(address string, port int, path string) string {
	return "https://" + net.JoinHostPort(address, strconv.Itoa(port)) + path
}
