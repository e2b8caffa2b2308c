package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/mailanetworks/oiokit/oioerr"
)

// ReadConn is an open GET connection to one chunk target, positioned at
// the start of the response body. Like Conn, it is owned exclusively by
// the reader goroutine that created it.
type ReadConn struct {
	Target Target

	conn   net.Conn
	br     *bufio.Reader
	resp   *http.Response
	closed bool
}

// ConnectGet dials target within connTimeout, issues a GET (with an
// optional Range header) and reads the response status line and headers
// within readTimeout, matching spec.md §4.3's GET framing (the read-side
// mirror of ConnectPut). A successful call returns with the connection
// positioned at the start of the body; the caller drains it with
// ReadFrame. 200 and 206 are both accepted — a range request may be
// served in full by a target that ignores the Range header, and the
// caller is responsible for discarding any leading bytes it didn't ask
// for in that case.
func ConnectGet(ctx context.Context, target Target, chunkID, rangeHeader string, connTimeout, readTimeout time.Duration) (*ReadConn, error) {
	u, err := url.Parse(target.URL)
	if err != nil {
		return nil, &oioerr.TargetUnreachable{Target: target.URL, Reason: err.Error()}
	}

	host := u.Host
	if u.Port() == "" {
		if u.Scheme == "https" {
			host = net.JoinHostPort(u.Hostname(), "443")
		} else {
			host = net.JoinHostPort(u.Hostname(), "80")
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, connTimeout)
	defer cancel()
	rawConn, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", host)
	if err != nil {
		if dialCtx.Err() != nil {
			return nil, oioerr.Timeout(oioerr.ErrConnectTimeout, connTimeout, target.URL)
		}
		return nil, &oioerr.TargetUnreachable{Target: target.URL, Reason: err.Error()}
	}

	c := &ReadConn{Target: target, conn: rawConn, br: bufio.NewReader(rawConn)}

	req, _ := http.NewRequest(http.MethodGet, target.URL, nil)
	req.Header.Set(HeaderChunkID, chunkID)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	bw := bufio.NewWriter(rawConn)
	path := u.Path
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	fmt.Fprintf(bw, "GET %s HTTP/1.1\r\n", path)
	fmt.Fprintf(bw, "Host: %s\r\n", u.Host)
	for k, vs := range req.Header {
		for _, v := range vs {
			fmt.Fprintf(bw, "%s: %s\r\n", k, v)
		}
	}
	bw.WriteString("\r\n")
	if err := bw.Flush(); err != nil {
		rawConn.Close()
		return nil, &oioerr.TargetUnreachable{Target: target.URL, Reason: err.Error()}
	}

	if err := rawConn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		rawConn.Close()
		return nil, err
	}
	resp, err := http.ReadResponse(c.br, req)
	rawConn.SetReadDeadline(time.Time{})
	if err != nil {
		rawConn.Close()
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, oioerr.Timeout(oioerr.ErrChunkReadTimeout, readTimeout, target.URL)
		}
		return nil, &oioerr.TargetUnreachable{Target: target.URL, Reason: err.Error()}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		rawConn.Close()
		return nil, &oioerr.TargetHTTPError{Target: target.URL, Status: resp.StatusCode}
	}

	c.resp = resp
	return c, nil
}

// ReadFrame reads up to len(buf) bytes from the response body within
// timeout, classifying a deadline expiry as ErrChunkReadTimeout.
func (c *ReadConn) ReadFrame(buf []byte, timeout time.Duration) (int, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}
	defer c.conn.SetReadDeadline(time.Time{})

	n, err := c.resp.Body.Read(buf)
	if err != nil && err != io.EOF {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, oioerr.Timeout(oioerr.ErrChunkReadTimeout, timeout, c.Target.URL)
		}
		return n, &oioerr.TargetUnreachable{Target: c.Target.URL, Reason: err.Error()}
	}
	return n, err
}

// Close releases the underlying connection. Idempotent.
func (c *ReadConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.resp != nil {
		c.resp.Body.Close()
	}
	return c.conn.Close()
}
