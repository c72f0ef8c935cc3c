// Package mmsh implements the MMS transport over HTTP framing. The stream's
// own port is tried first and the HTTP port second, so a server that is
// only reachable through the HTTP tunnel costs exactly one failed attempt.
package mmsh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/NamanBalaji/mmsdl/pkg/asf"
	"github.com/NamanBalaji/mmsdl/pkg/mms"
)

const (
	protocolName     = "mmsh"
	DefaultUserAgent = "NSPlayer/4.1.0.3856"
)

// Options configures a Client.
type Options struct {
	// Port is used when the URI has none.
	Port        int
	HTTPPort    int
	UserAgent   string
	DialTimeout time.Duration
	HTTPClient  *http.Client
	Logger      *zerolog.Logger
}

// Client is an mms.Transport speaking MMSH.
type Client struct {
	uri      *url.URL
	handlers mms.Handlers
	http     *http.Client
	agent    string
	guid     uuid.UUID
	log      zerolog.Logger

	endpoints []string

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	endpoint string
	body     io.Closer

	closed         atomic.Bool
	pauseSupported atomic.Bool
	packetSize     atomic.Int64
	received       atomic.Int64
	playStart      atomic.Int64
}

// Factory returns a mms.TransportFactory producing MMSH clients.
func Factory(opts Options) mms.TransportFactory {
	return func(uri string, handlers mms.Handlers) (mms.Transport, error) {
		return New(uri, handlers, opts)
	}
}

// New validates the URI and builds an unconnected client.
func New(rawURI string, handlers mms.Handlers, opts Options) (*Client, error) {
	if err := handlers.Validate(); err != nil {
		return nil, err
	}

	u, err := url.Parse(rawURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mms.ErrInvalidURL, err)
	}

	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host in %q", mms.ErrInvalidURL, rawURI)
	}

	switch strings.ToLower(u.Scheme) {
	case mms.Scheme, "mmsh", "mmst", "http":
	default:
		return nil, fmt.Errorf("%w: %s", mms.ErrUnsupportedURL, u.Scheme)
	}

	httpPort := opts.HTTPPort
	if httpPort == 0 {
		httpPort = mms.DefaultHTTPPort
	}

	port := opts.Port
	if port == 0 {
		port = mms.DefaultPort
	}

	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("%w: bad port %q", mms.ErrInvalidURL, p)
		}
	}

	agent := opts.UserAgent
	if agent == "" {
		agent = DefaultUserAgent
	}

	client := opts.HTTPClient
	if client == nil {
		timeout := opts.DialTimeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}

		dialer := &net.Dialer{Timeout: timeout}
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				ResponseHeaderTimeout: timeout,
				DisableCompression:    true,
			},
		}
	}

	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", protocolName).Logger()
	}

	c := &Client{
		uri:      u,
		handlers: handlers,
		http:     client,
		agent:    agent,
		guid:     uuid.New(),
		log:      log,
	}

	c.endpoints = append(c.endpoints, c.endpointURL(port))
	if port != httpPort {
		c.endpoints = append(c.endpoints, c.endpointURL(httpPort))
	}

	return c, nil
}

func (c *Client) endpointURL(port int) string {
	e := url.URL{
		Scheme:   "http",
		Host:     net.JoinHostPort(c.uri.Hostname(), strconv.Itoa(port)),
		Path:     c.uri.Path,
		RawQuery: c.uri.RawQuery,
	}

	return e.String()
}

// Connect starts the describe exchange in the background.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return mms.ErrNotConnected
	}

	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return errors.New("mmsh: already connected")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	runCtx := c.ctx
	c.mu.Unlock()

	go c.describe(runCtx)

	return nil
}

// StartStreaming issues the play request starting at the given packet.
func (c *Client) StartStreaming(packet int64) error {
	c.mu.Lock()
	ctx, endpoint := c.ctx, c.endpoint
	c.mu.Unlock()

	if ctx == nil || endpoint == "" || c.closed.Load() {
		return mms.ErrNotConnected
	}

	go c.play(ctx, endpoint, packet)

	return nil
}

// Disconnect aborts any request in flight. Events raised after this call
// are suppressed.
func (c *Client) Disconnect() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	if c.body != nil {
		return c.body.Close()
	}

	return nil
}

func (c *Client) PauseSupported() bool {
	return c.pauseSupported.Load()
}

// Speed returns bytes per second received since the play request started.
func (c *Client) Speed() float64 {
	start := c.playStart.Load()
	if start == 0 {
		return 0
	}

	elapsed := time.Since(time.Unix(0, start)).Seconds()
	if elapsed <= 0 {
		return 0
	}

	return float64(c.received.Load()) / elapsed
}

func (c *Client) describe(ctx context.Context) {
	for _, endpoint := range c.endpoints {
		c.log.Debug().Str("endpoint", endpoint).Msg("describing stream")

		resp, err := c.request(ctx, endpoint, c.describePragmas())
		if err != nil {
			if isDialError(err) {
				c.failed(&mms.ConnectError{Addr: endpoint, Err: err})
				continue
			}

			c.failed(mms.NewProtocolError(protocolName, mms.OpDescribe, endpoint, err))
			c.sessionClosed()

			return
		}

		c.mu.Lock()
		c.endpoint = endpoint
		c.mu.Unlock()

		if err := c.readDescribe(resp); err != nil {
			c.failed(mms.NewProtocolError(protocolName, mms.OpDescribe, endpoint, err))
			c.sessionClosed()

			return
		}

		// the session stays open until play() finishes
		c.message(mms.ControlMessage{Kind: mms.MessageStreamSwitch, Name: "stream-switch"})

		return
	}

	c.sessionClosed()
}

func (c *Client) readDescribe(resp *http.Response) error {
	defer c.releaseBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	features := parseFeatures(resp.Header.Values("Pragma"))
	c.pauseSupported.Store(features["seekable"])

	var header []byte
	for {
		ch, err := ReadChunk(resp.Body)
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return err
		}

		if ch.Type != ChunkHeader {
			if len(header) > 0 {
				break
			}

			continue
		}

		header = append(header, ch.Data...)
	}

	if len(header) == 0 {
		return errors.New("describe response carried no header")
	}

	if fp, err := asf.ParseFileProperties(header); err == nil {
		c.packetSize.Store(int64(fp.PacketSize()))
	}

	c.unit(mms.DataUnit{Kind: mms.UnitHeader, Data: header})

	return nil
}

func (c *Client) play(ctx context.Context, endpoint string, packet int64) {
	defer c.sessionClosed()

	resp, err := c.request(ctx, endpoint, c.playPragmas(packet))
	if err != nil {
		c.failed(mms.NewProtocolError(protocolName, mms.OpPlay, endpoint, err))
		return
	}

	defer c.releaseBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		c.failed(mms.NewProtocolError(protocolName, mms.OpPlay, endpoint,
			fmt.Errorf("unexpected status %s", resp.Status)))

		return
	}

	c.received.Store(0)
	c.playStart.Store(time.Now().UnixNano())

	for {
		ch, err := ReadChunk(resp.Body)
		if errors.Is(err, io.EOF) {
			return
		}

		if err != nil {
			c.failed(mms.NewProtocolError(protocolName, mms.OpRead, endpoint, err))
			return
		}

		switch ch.Type {
		case ChunkData:
			c.received.Add(int64(len(ch.Data)))
			c.unit(mms.DataUnit{Kind: mms.UnitMedia, Data: c.pad(ch.Data)})
		case ChunkEnd:
			c.message(mms.ControlMessage{Kind: mms.MessageEndOfStream, Name: "end-of-stream"})
		case ChunkStreamChange:
			c.message(mms.ControlMessage{Kind: mms.MessageOther, Name: "stream-change"})
		case ChunkHeader:
			// delivered once by describe
		default:
			c.log.Debug().Stringer("chunk", ch).Msg("skipping chunk")
		}
	}
}

// pad extends a media payload to the fixed packet size declared in the
// header. MMSH servers strip the padding that the container expects.
func (c *Client) pad(data []byte) []byte {
	size := int(c.packetSize.Load())
	if size <= len(data) {
		return data
	}

	padded := make([]byte, size)
	copy(padded, data)

	return padded
}

func (c *Client) request(ctx context.Context, endpoint string, pragmas []string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	req.Close = true
	req.Header.Set("Accept", "*/*")
	req.Header.Set("User-Agent", c.agent)

	for _, p := range pragmas {
		req.Header.Add("Pragma", p)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.body = resp.Body
	c.mu.Unlock()

	return resp, nil
}

func (c *Client) releaseBody(body io.ReadCloser) {
	c.mu.Lock()
	if c.body == body {
		c.body = nil
	}
	c.mu.Unlock()

	_ = body.Close()
}

func (c *Client) describePragmas() []string {
	return []string{
		"no-cache,rate=1.000000,stream-time=0,stream-offset=0:0,request-context=1,max-duration=0",
		"xClientGUID={" + c.guid.String() + "}",
	}
}

func (c *Client) playPragmas(packet int64) []string {
	p := []string{
		"no-cache,rate=1.000000,stream-time=0,stream-offset=4294967295:4294967295,request-context=2,max-duration=0",
		"xClientGUID={" + c.guid.String() + "}",
		"xPlayStrm=1",
	}

	if packet > 0 {
		p = append(p, "packet-num="+strconv.FormatInt(packet, 10))
	}

	return p
}

func (c *Client) unit(u mms.DataUnit) {
	if !c.closed.Load() {
		c.handlers.Data.HandleUnit(u)
	}
}

func (c *Client) message(m mms.ControlMessage) {
	if !c.closed.Load() {
		c.handlers.Control.HandleMessage(m)
	}
}

func (c *Client) failed(err error) {
	if c.closed.Load() {
		return
	}

	c.log.Debug().Err(err).Msg("transport failure")
	c.handlers.Lifecycle.TransportFailed(err)
}

func (c *Client) sessionClosed() {
	if !c.closed.Load() {
		c.handlers.Lifecycle.SessionClosed()
	}
}

func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// parseFeatures extracts the features="a,b" directive from Pragma headers.
func parseFeatures(pragmas []string) map[string]bool {
	features := make(map[string]bool)

	for _, p := range pragmas {
		idx := strings.Index(p, "features=")
		if idx < 0 {
			continue
		}

		v := p[idx+len("features="):]
		if strings.HasPrefix(v, `"`) {
			v = v[1:]
			if end := strings.Index(v, `"`); end >= 0 {
				v = v[:end]
			}
		} else if end := strings.IndexAny(v, ", "); end >= 0 {
			v = v[:end]
		}

		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				features[f] = true
			}
		}
	}

	return features
}
