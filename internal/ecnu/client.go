// Package ecnu talks to the campus payment site: it queries the remaining
// electricity degree of a room and walks the site's location directory.
package ecnu

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/fault"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/room"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/session"
)

// DefaultBaseURL is the electricity endpoint root of the payment site.
const DefaultBaseURL = "https://epay.ecnu.edu.cn/epaycas/electric"

// sysID selects the electricity system (2 would be water).
const sysID = "1"

// successMsg is the retmsg of a successful bill query.
const successMsg = "成功"

// maxBody caps how much of a response is read.
const maxBody = 4 << 20

// Client queries the payment site. It is safe for concurrent use; the
// credentials and room travel with each call.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.SugaredLogger
}

// New creates a Client for baseURL (DefaultBaseURL when empty) whose
// requests time out after timeout.
func New(baseURL string, timeout time.Duration, logger *zap.SugaredLogger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type billResponse struct {
	Code   int      `json:"retcode"`
	Msg    string   `json:"retmsg"`
	Degree *float32 `json:"restElecDegree"`
}

// Degree returns the remaining degree of id.
func (c *Client) Degree(ctx context.Context, id room.Identity, creds session.Credentials) (float32, error) {
	const op = "degree"
	form := url.Values{
		"sysid":   {sysID},
		"roomNo":  {id.RoomNo},
		"elcarea": {strconv.Itoa(id.Area)},
		"elcbuis": {id.Building},
	}
	resp, err := c.post(ctx, "queryelectricbill", creds, form)
	if err != nil {
		return 0, fault.Wrap(fault.Upstream, op, err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "application/json") {
		return 0, fault.Newf(fault.NotAuthenticated, op, "permission denied")
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fault.Newf(fault.Upstream, op, "status %s", resp.Status)
	}
	var bill billResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&bill); err != nil {
		return 0, fault.Wrap(fault.Upstream, op, fmt.Errorf("decode: %w", err))
	}
	if bill.Code != 0 || bill.Msg != successMsg {
		return 0, &fault.Error{Kind: fault.NotAuthenticated, Op: op, Msg: bill.Msg}
	}
	if bill.Degree == nil {
		return 0, fault.New(fault.NoDegree, op)
	}
	return *bill.Degree, nil
}

func (c *Client) post(ctx context.Context, endpoint string, creds session.Credentials, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cookie", creds.CookieHeader())
	req.Header.Set("X-CSRF-TOKEN", creds.CSRFToken)
	c.logger.Debugw("upstream request", "endpoint", endpoint, "credentials", creds.String())
	return c.http.Do(req)
}

// lookup posts form to endpoint and decodes the JSON answer into v. A body
// that does not decode means the session is no longer logged in.
func (c *Client) lookup(ctx context.Context, endpoint string, creds session.Credentials, form url.Values, v any) error {
	resp, err := c.post(ctx, endpoint, creds, form)
	if err != nil {
		return fault.Wrap(fault.Upstream, endpoint, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(v); err != nil {
		c.logger.Warnw("undecodable directory response, session probably expired", "endpoint", endpoint, "error", err)
		return fault.Wrap(fault.NotAuthenticated, endpoint, err)
	}
	return nil
}

type (
	areaJSON struct {
		ID   string `json:"areaId"`
		Name string `json:"areaName"`
	}
	districtJSON struct {
		ID   string `json:"districtId"`
		Name string `json:"districtName"`
	}
	buildingJSON struct {
		ID   string `json:"buiId"`
		Name string `json:"buiName"`
	}
	floorJSON struct {
		ID   string `json:"floorId"`
		Name string `json:"floorName"`
	}
	roomJSON struct {
		ID   string `json:"roomId"`
		Name string `json:"roomName"`
	}
)

func places[T any](items []T, f func(T) room.Place) []room.Place {
	out := make([]room.Place, 0, len(items))
	for _, it := range items {
		out = append(out, f(it))
	}
	return out
}

// Districts implements room.Directory.
func (c *Client) Districts(ctx context.Context, creds session.Credentials) ([]room.Place, []room.Place, error) {
	var resp struct {
		Areas     []areaJSON     `json:"areas"`
		Districts []districtJSON `json:"districts"`
	}
	if err := c.lookup(ctx, "queryelectricarea", creds, url.Values{"sysid": {sysID}}, &resp); err != nil {
		return nil, nil, err
	}
	return places(resp.Areas, func(a areaJSON) room.Place { return room.Place{ID: a.ID, Name: a.Name} }),
		places(resp.Districts, func(d districtJSON) room.Place { return room.Place{ID: d.ID, Name: d.Name} }),
		nil
}

// Buildings implements room.Directory.
func (c *Client) Buildings(ctx context.Context, creds session.Credentials, area, district string) ([]room.Place, error) {
	var resp struct {
		Buildings []buildingJSON `json:"buils"`
	}
	form := url.Values{"sysid": {sysID}, "area": {area}, "district": {district}}
	if err := c.lookup(ctx, "queryelectricbuis", creds, form, &resp); err != nil {
		return nil, err
	}
	return places(resp.Buildings, func(b buildingJSON) room.Place { return room.Place{ID: b.ID, Name: b.Name} }), nil
}

// Floors implements room.Directory.
func (c *Client) Floors(ctx context.Context, creds session.Credentials, area, district, building string) ([]room.Place, error) {
	var resp struct {
		Floors []floorJSON `json:"floors"`
	}
	form := url.Values{"sysid": {sysID}, "area": {area}, "district": {district}, "build": {building}}
	if err := c.lookup(ctx, "queryelectricfloors", creds, form, &resp); err != nil {
		return nil, err
	}
	return places(resp.Floors, func(f floorJSON) room.Place { return room.Place{ID: f.ID, Name: f.Name} }), nil
}

// Rooms implements room.Directory.
func (c *Client) Rooms(ctx context.Context, creds session.Credentials, area, district, building, floor string) ([]room.Place, error) {
	var resp struct {
		Rooms []roomJSON `json:"rooms"`
	}
	form := url.Values{"sysid": {sysID}, "area": {area}, "district": {district}, "build": {building}, "floor": {floor}}
	if err := c.lookup(ctx, "queryelectricrooms", creds, form, &resp); err != nil {
		return nil, err
	}
	return places(resp.Rooms, func(r roomJSON) room.Place { return room.Place{ID: r.ID, Name: r.Name} }), nil
}

var _ room.Directory = (*Client)(nil)
