package fshook

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jkbrsn/vigil"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const webHDFSPrefix = "/webhdfs/v1"

// WebHDFS is a vigil.FileSystemHook talking to a namenode over the WebHDFS REST API.
type WebHDFS struct {
	baseURL *url.URL
	user    string
	client  *http.Client
	logger  zerolog.Logger
}

// WebHDFSOption is a functional option for the WebHDFS hook.
type WebHDFSOption func(*WebHDFS)

// WithWebHDFSUser sets the user.name query parameter sent with every request.
func WithWebHDFSUser(user string) WebHDFSOption {
	return func(h *WebHDFS) { h.user = user }
}

// WithWebHDFSClient sets the HTTP client.
func WithWebHDFSClient(c *http.Client) WebHDFSOption {
	return func(h *WebHDFS) { h.client = c }
}

// WithWebHDFSLoggers takes the logger and transport verbosity of the webhdfs component.
func WithWebHDFSLoggers(l *vigil.Loggers) WebHDFSOption {
	return func(h *WebHDFS) {
		h.logger = l.For(vigil.ComponentWebHDFS)
		if l.Verbose(vigil.ComponentWebHDFS) {
			h.client = &http.Client{
				Transport: vigil.NewLoggingTransport(h.client.Transport, h.logger),
				Timeout:   h.client.Timeout,
			}
		}
	}
}

// NewWebHDFS creates a hook for the namenode at rawURL, e.g. "http://namenode:9870".
func NewWebHDFS(rawURL string, opts ...WebHDFSOption) (*WebHDFS, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: webhdfs url: %w", vigil.ErrInvalidConfig, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: webhdfs url scheme %q is not supported", vigil.ErrInvalidConfig, u.Scheme)
	}

	h := &WebHDFS{
		baseURL: u,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  log.Logger.With().Str("component", vigil.ComponentWebHDFS).Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// fileStatus is the FileStatus JSON object of the WebHDFS API.
type fileStatus struct {
	PathSuffix       string `json:"pathSuffix"`
	Type             string `json:"type"`
	Length           int64  `json:"length"`
	ModificationTime int64  `json:"modificationTime"`
}

type fileStatusResponse struct {
	FileStatus fileStatus `json:"FileStatus"`
}

type listStatusResponse struct {
	FileStatuses struct {
		FileStatus []fileStatus `json:"FileStatus"`
	} `json:"FileStatuses"`
}

type remoteExceptionResponse struct {
	RemoteException struct {
		Exception string `json:"exception"`
		Message   string `json:"message"`
	} `json:"RemoteException"`
}

// Stat describes the file or directory at p with GETFILESTATUS.
func (h *WebHDFS) Stat(ctx context.Context, p string) (vigil.FileInfo, error) {
	var resp fileStatusResponse
	if err := h.get(ctx, "GETFILESTATUS", p, &resp); err != nil {
		return vigil.FileInfo{}, err
	}
	return toFileInfo(path.Clean("/"+p), resp.FileStatus), nil
}

// List returns the children of the directory at p with LISTSTATUS.
func (h *WebHDFS) List(ctx context.Context, p string) ([]vigil.FileInfo, error) {
	var resp listStatusResponse
	if err := h.get(ctx, "LISTSTATUS", p, &resp); err != nil {
		return nil, err
	}
	dir := path.Clean("/" + p)
	out := make([]vigil.FileInfo, 0, len(resp.FileStatuses.FileStatus))
	for _, st := range resp.FileStatuses.FileStatus {
		out = append(out, toFileInfo(path.Join(dir, st.PathSuffix), st))
	}
	return out, nil
}

func toFileInfo(p string, st fileStatus) vigil.FileInfo {
	return vigil.FileInfo{
		Path:    p,
		Name:    path.Base(p),
		Size:    st.Length,
		IsDir:   st.Type == "DIRECTORY",
		ModTime: time.UnixMilli(st.ModificationTime),
	}
}

// get runs a WebHDFS GET operation on p and decodes the JSON response into v.
func (h *WebHDFS) get(ctx context.Context, op, p string, v any) error {
	u := *h.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + webHDFSPrefix + path.Clean("/"+p)
	q := url.Values{"op": []string{op}}
	if h.user != "" {
		q.Set("user.name", h.user)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return vigil.ResourceError("webhdfs "+op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return vigil.ResourceError("webhdfs "+op, err)
	}
	h.logger.Trace().Str("op", op).Str("path", p).Int("status", resp.StatusCode).Msg("webhdfs response")

	if resp.StatusCode == http.StatusNotFound {
		return &fs.PathError{Op: op, Path: p, Err: fs.ErrNotExist}
	}
	if resp.StatusCode != http.StatusOK {
		var remote remoteExceptionResponse
		if err := sonic.Unmarshal(body, &remote); err == nil && remote.RemoteException.Exception != "" {
			if remote.RemoteException.Exception == "FileNotFoundException" {
				return &fs.PathError{Op: op, Path: p, Err: fs.ErrNotExist}
			}
			return vigil.ResourceError("webhdfs "+op, fmt.Errorf("%s: %s",
				remote.RemoteException.Exception, remote.RemoteException.Message))
		}
		return vigil.ResourceError("webhdfs "+op, fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	if err := sonic.Unmarshal(body, v); err != nil {
		return vigil.ResourceError("webhdfs "+op, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}
