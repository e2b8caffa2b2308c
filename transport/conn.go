// Package transport implements the framed HTTP/1.1 chunked-transfer
// connection to one RAWX-style blob target (spec.md §4.3, C3): a
// connection-per-target PUT with manually-controlled chunk framing, so
// the write pipelines (package content) get exact, suspendable control
// over every frame instead of handing bytes to net/http and hoping its
// internal chunked writer lines up with timeouts.
package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/mailanetworks/oiokit/internal/xlog"
	"github.com/mailanetworks/oiokit/oioerr"
)

// Conn is an open, framed PUT connection to one chunk target. It is owned
// exclusively by the writer goroutine that created it and must be closed
// on every exit path (success, failure, cancellation).
type Conn struct {
	Target Target

	conn   net.Conn
	bw     *bufio.Writer
	br     *bufio.Reader
	req    *http.Request
	closed bool
}

// ConnectPut dials target, within timeout, and writes the PUT request
// line and headers (but not yet a body) — the HTTP/1.1 framing described
// in spec.md §4.3 and §6. chunkPos is sent as the chunk position header
// as given: "pos" for a replica, "pos.fragmentIndex" for an EC fragment.
func ConnectPut(ctx context.Context, target Target, sm SysMeta, chunkPos string, timeout time.Duration) (*Conn, error) {
	u, err := url.Parse(target.URL)
	if err != nil {
		return nil, &oioerr.TargetUnreachable{Target: target.URL, Reason: err.Error()}
	}

	dialer := &net.Dialer{}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	host := u.Host
	if u.Port() == "" {
		if u.Scheme == "https" {
			host = net.JoinHostPort(u.Hostname(), "443")
		} else {
			host = net.JoinHostPort(u.Hostname(), "80")
		}
	}

	rawConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		if dialCtx.Err() != nil {
			return nil, oioerr.Timeout(oioerr.ErrConnectTimeout, timeout, target.URL)
		}
		return nil, &oioerr.TargetUnreachable{Target: target.URL, Reason: err.Error()}
	}

	c := &Conn{
		Target: target,
		conn:   rawConn,
		bw:     bufio.NewWriter(rawConn),
		br:     bufio.NewReader(rawConn),
	}

	req, _ := http.NewRequest(http.MethodPut, target.URL, nil)
	req.Header = buildHeaders(sm, chunkPos, chunkIDFromURL(u))
	c.req = req

	if err := c.writeRequestLineAndHeaders(u); err != nil {
		rawConn.Close()
		return nil, &oioerr.TargetUnreachable{Target: target.URL, Reason: err.Error()}
	}

	xlog.Infof(xlog.VTarget, "connected to %s for PUT %s", target.URL, chunkPos)
	return c, nil
}

func chunkIDFromURL(u *url.URL) string {
	parts := strings.Split(strings.TrimRight(u.Path, "/"), "/")
	return parts[len(parts)-1]
}

func buildHeaders(sm SysMeta, chunkPos, chunkID string) http.Header {
	h := make(http.Header)
	h.Set("Transfer-Encoding", "chunked")
	h.Set(HeaderContentID, sm.ContentID)
	h.Set(HeaderContentVersion, strconv.FormatInt(sm.Version, 10))
	h.Set(HeaderContentPath, url.PathEscape(sm.Path))
	h.Set(HeaderContentSize, strconv.FormatInt(sm.Size, 10))
	h.Set(HeaderChunkMethod, sm.ChunkMethod)
	h.Set(HeaderMimeType, sm.MimeType)
	h.Set(HeaderPolicy, sm.Policy)
	h.Set(HeaderChunksNb, strconv.Itoa(sm.ChunksNb))
	h.Set(HeaderContainerID, sm.ContainerID)
	h.Set(HeaderChunkPos, chunkPos)
	h.Set(HeaderChunkID, chunkID)
	return h
}

func (c *Conn) writeRequestLineAndHeaders(u *url.URL) error {
	path := u.Path
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	if _, err := fmt.Fprintf(c.bw, "PUT %s HTTP/1.1\r\n", path); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.bw, "Host: %s\r\n", u.Host); err != nil {
		return err
	}
	for k, vs := range c.req.Header {
		for _, v := range vs {
			if _, err := fmt.Fprintf(c.bw, "%s: %s\r\n", k, v); err != nil {
				return err
			}
		}
	}
	if _, err := c.bw.WriteString("\r\n"); err != nil {
		return err
	}
	return c.bw.Flush()
}

// SendFrame writes one HTTP/1.1 chunked-transfer frame: hex(len)\r\n
// <bytes>\r\n. An empty data slice writes the terminal zero-length
// chunk ("0\r\n\r\n"). Writes are attempted under the caller-supplied
// deadline; on timeout or I/O error the connection is left in an
// indeterminate state and the caller must treat the writer as failed.
func (c *Conn) SendFrame(data []byte, timeout time.Duration) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	defer c.conn.SetWriteDeadline(time.Time{})

	if len(data) == 0 {
		_, err := c.bw.WriteString("0\r\n\r\n")
		if err == nil {
			err = c.bw.Flush()
		}
		return classifyWriteErr(err, c.Target, timeout)
	}

	if _, err := fmt.Fprintf(c.bw, "%x\r\n", len(data)); err != nil {
		return classifyWriteErr(err, c.Target, timeout)
	}
	if _, err := c.bw.Write(data); err != nil {
		return classifyWriteErr(err, c.Target, timeout)
	}
	if _, err := c.bw.WriteString("\r\n"); err != nil {
		return classifyWriteErr(err, c.Target, timeout)
	}
	if err := c.bw.Flush(); err != nil {
		return classifyWriteErr(err, c.Target, timeout)
	}

	if xlog.Enabled(xlog.VTarget) {
		xlog.Infof(xlog.VTarget, "wrote frame of %d bytes to %s (xxhash=%x)", len(data), c.Target.URL, xxhash.Checksum64(data))
	}
	return nil
}

func classifyWriteErr(err error, target Target, timeout time.Duration) error {
	if err == nil {
		return nil
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return oioerr.Timeout(oioerr.ErrChunkWriteTimeout, timeout, target.URL)
	}
	return &oioerr.TargetUnreachable{Target: target.URL, Reason: err.Error()}
}

// ReadResponse reads the status line and headers within timeout, drains
// any body, and classifies the result per spec.md §4.3: 201 is success,
// 5xx and anything else is a target failure carrying the status.
func (c *Conn) ReadResponse(timeout time.Duration) (*http.Response, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	defer c.conn.SetReadDeadline(time.Time{})

	resp, err := http.ReadResponse(c.br, c.req)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, oioerr.Timeout(oioerr.ErrChunkReadTimeout, timeout, c.Target.URL)
		}
		return nil, &oioerr.TargetUnreachable{Target: c.Target.URL, Reason: err.Error()}
	}
	defer resp.Body.Close()

	var discard [4096]byte
	for {
		if _, err := resp.Body.Read(discard[:]); err != nil {
			break
		}
	}

	if resp.StatusCode != http.StatusCreated {
		return resp, &oioerr.TargetHTTPError{Target: c.Target.URL, Status: resp.StatusCode}
	}
	return resp, nil
}

// Close releases the underlying connection. Idempotent.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
