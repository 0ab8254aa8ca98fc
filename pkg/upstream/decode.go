package upstream

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"

	"github.com/tidwall/gjson"
	"golang.org/x/net/html/charset"

	"github.com/RobinCoderZhao/biobroker/pkg/toolerr"
)

// FetchXML fetches and decodes an XML body into out. Elements missing from the
// document leave the corresponding fields at their zero value.
func (c *Client) FetchXML(ctx context.Context, q Query, out any) error {
	body, err := c.Fetch(ctx, q)
	if err != nil {
		return err
	}
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		return charset.NewReaderLabel(label, input)
	}
	if err := dec.Decode(out); err != nil {
		return toolerr.Wrap(toolerr.UpstreamError, err, "%s: malformed XML response", c.name)
	}
	return nil
}

// FetchTree fetches a JSON body for path-based field access. Absent paths
// resolve to empty results rather than errors.
func (c *Client) FetchTree(ctx context.Context, q Query) (gjson.Result, error) {
	body, err := c.Fetch(ctx, q)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, toolerr.New(toolerr.UpstreamError, "%s: malformed JSON response", c.name)
	}
	return gjson.ParseBytes(body), nil
}
