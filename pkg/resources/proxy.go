package resources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/tendant/simple-resources/pkg/resources/metrics"
	"github.com/tendant/simple-resources/pkg/resources/objectkey"
)

// DefaultSignedURLExpiry is the lifetime of URLs minted after a 401/403
const DefaultSignedURLExpiry = 300 * time.Second

// documentTypes maps document extensions to their media type. Anything in
// this table is served with an inline disposition.
var documentTypes = map[string]string{
	"pdf":  "application/pdf",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"ppt":  "application/vnd.ms-powerpoint",
	"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"txt":  "text/plain",
	"csv":  "text/csv",
	"rtf":  "application/rtf",
	"odt":  "application/vnd.oasis.opendocument.text",
}

// Stream is an open upstream body ready to be copied to a client.
type Stream struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
	Inline        bool
	Regenerated   bool
}

// Proxy fetches durable URLs for clients. Access-denied responses trigger a
// single retry through a freshly signed URL.
type Proxy struct {
	client       *http.Client
	store        DurableStore
	extraHosts   []string
	signedExpiry time.Duration
	logger       *slog.Logger
	metrics      *metrics.Recorder
}

// ProxyOption configures a Proxy
type ProxyOption func(*Proxy)

func WithHTTPClient(client *http.Client) ProxyOption {
	return func(p *Proxy) {
		p.client = client
	}
}

// WithAllowedHosts adds hosts beyond those the durable store serves from
func WithAllowedHosts(hosts ...string) ProxyOption {
	return func(p *Proxy) {
		p.extraHosts = append(p.extraHosts, hosts...)
	}
}

func WithSignedURLExpiry(expiry time.Duration) ProxyOption {
	return func(p *Proxy) {
		p.signedExpiry = expiry
	}
}

func WithProxyLogger(logger *slog.Logger) ProxyOption {
	return func(p *Proxy) {
		p.logger = logger
	}
}

func WithProxyMetrics(m *metrics.Recorder) ProxyOption {
	return func(p *Proxy) {
		p.metrics = m
	}
}

// NewProxy creates a proxy. store may be nil, in which case only extra
// hosts are allowed and no regeneration is possible.
func NewProxy(store DurableStore, opts ...ProxyOption) *Proxy {
	p := &Proxy{
		client:       &http.Client{},
		store:        store,
		signedExpiry: DefaultSignedURLExpiry,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.client = p.guardRedirects(p.client)
	return p
}

// guardRedirects returns a copy of client that refuses to follow a redirect
// to a URL Validate would reject.
func (p *Proxy) guardRedirects(client *http.Client) *http.Client {
	if client == nil {
		client = &http.Client{}
	}
	guarded := *client
	next := client.CheckRedirect
	guarded.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if _, err := p.Validate(req.URL.String()); err != nil {
			return err
		}
		if next != nil {
			return next(req, via)
		}
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		return nil
	}
	return &guarded
}

// AllowedHosts returns the current allow-list
func (p *Proxy) AllowedHosts() []string {
	hosts := append([]string{}, p.extraHosts...)
	if p.store != nil {
		hosts = append(hosts, p.store.Hosts()...)
	}
	return hosts
}

// Validate checks raw is an absolute http(s) URL on an allowed host. It
// never touches the network.
func (p *Proxy) Validate(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, newValidationError("url", ErrMissingField, "url required")
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, newValidationError("url", ErrInvalidURL, "invalid url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, newValidationError("url", ErrInvalidURL, "invalid url scheme: %s", u.Scheme)
	}
	for _, host := range p.AllowedHosts() {
		if hostAllowed(u, host) {
			return u, nil
		}
	}
	return nil, newValidationError("url", ErrHostNotAllowed, "host not allowed: %s", u.Host)
}

// Open validates raw and returns the upstream body. The caller must close
// Stream.Body.
func (p *Proxy) Open(ctx context.Context, raw string) (*Stream, error) {
	u, err := p.Validate(raw)
	if err != nil {
		p.metrics.ProxyRequest(metrics.ProxyRejected)
		return nil, err
	}

	resp, err := p.fetch(ctx, u.String())
	if err != nil {
		p.metrics.ProxyRequest(metrics.ProxyFailed)
		return nil, err
	}
	if isSuccess(resp.StatusCode) {
		p.metrics.ProxyRequest(metrics.ProxyStreamed)
		return newStream(resp, u, false), nil
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
		p.metrics.ProxyRequest(metrics.ProxyFailed)
		return nil, upstreamStatus("fetch", resp.StatusCode, nil)
	}

	stream, err := p.regenerate(ctx, u, resp.StatusCode)
	if err != nil {
		p.metrics.ProxyRequest(metrics.ProxyFailed)
		return nil, err
	}
	p.metrics.ProxyRequest(metrics.ProxyRegenerated)
	return stream, nil
}

// regenerate mints a signed URL for the object behind u and fetches it once.
// If that is impossible the first status is reported; otherwise a failed
// retry reports the second status.
func (p *Proxy) regenerate(ctx context.Context, u *url.URL, firstStatus int) (*Stream, error) {
	if p.store == nil {
		return nil, upstreamStatus("fetch", firstStatus, ErrStoreNotConfigured)
	}
	ref, err := objectkey.Parse(u.String(), string(KindDocument), string(KindImage), string(KindVideo))
	if err != nil {
		p.logger.Warn("Cannot derive object from denied URL", "url", u.String(), "error", err)
		return nil, upstreamStatus("fetch", firstStatus, err)
	}

	signed, err := p.store.SignedURL(ctx, ObjectRef{
		Kind:     Kind(ref.Kind),
		Version:  ref.Version,
		PublicID: ref.PublicID,
		Format:   ref.Format,
	}, p.signedExpiry)
	if err != nil {
		p.logger.Error("Failed to sign URL", "public_id", ref.PublicID, "error", err)
		return nil, upstreamStatus("sign", firstStatus, err)
	}

	p.logger.Info("Retrying with signed URL", "kind", ref.Kind, "public_id", ref.PublicID, "status", firstStatus)
	resp, err := p.fetch(ctx, signed)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.StatusCode) {
		resp.Body.Close()
		return nil, upstreamStatus("signed fetch", resp.StatusCode, nil)
	}
	return newStream(resp, u, true), nil
}

func (p *Proxy) fetch(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &UpstreamError{Op: "fetch", StatusCode: http.StatusBadGateway, Err: err}
	}
	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var redirect *ValidationError
		if errors.As(err, &redirect) {
			p.logger.Warn("Upstream redirect refused", "url", target, "error", err)
			return nil, &UpstreamError{
				Op:         "fetch",
				StatusCode: http.StatusBadGateway,
				Message:    "upstream redirected to a disallowed location",
				Err:        redirect.Err,
			}
		}
		return nil, &UpstreamError{Op: "fetch", StatusCode: http.StatusBadGateway, Err: err}
	}
	return resp, nil
}

func newStream(resp *http.Response, u *url.URL, regenerated bool) *Stream {
	contentType, inline := contentTypeFor(resp.Header.Get("Content-Type"), u.Path)
	return &Stream{
		Body:          resp.Body,
		ContentType:   contentType,
		ContentLength: resp.ContentLength,
		Inline:        inline,
		Regenerated:   regenerated,
	}
}

// contentTypeFor prefers the upstream header, then the document type for the
// URL extension, then application/octet-stream.
func contentTypeFor(header, urlPath string) (string, bool) {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(urlPath)), ".")
	byExt, isDocExt := documentTypes[ext]

	contentType := header
	if contentType == "" {
		contentType = byExt
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return contentType, isDocExt || isDocumentType(contentType)
}

func isDocumentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	for _, docType := range documentTypes {
		if mediaType == docType {
			return true
		}
	}
	return false
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func upstreamStatus(op string, status int, err error) *UpstreamError {
	return &UpstreamError{
		Op:         op,
		StatusCode: status,
		Message:    fmt.Sprintf("upstream responded %d %s", status, http.StatusText(status)),
		Err:        err,
	}
}

// hostAllowed matches u against one allow-list entry. An entry without a
// port admits any port; an entry with one admits only that port, where an
// absent URL port means the scheme default.
func hostAllowed(u *url.URL, entry string) bool {
	if entry == "" {
		return false
	}
	allowed, err := url.Parse("//" + entry)
	if err != nil || allowed.Hostname() == "" {
		return false
	}
	if !strings.EqualFold(u.Hostname(), allowed.Hostname()) {
		return false
	}
	if allowed.Port() == "" {
		return true
	}
	return effectivePort(u) == allowed.Port()
}

func effectivePort(u *url.URL) string {
	if port := u.Port(); port != "" {
		return port
	}
	if u.Scheme == "https" {
		return "443"
	}
	return "80"
}

// IsClientGone reports whether err came from the client disconnecting
func IsClientGone(err error) bool {
	return errors.Is(err, context.Canceled)
}
