package geoquery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go-scooterscan/types"

	"github.com/paulmach/orb"
	"github.com/tidwall/gjson"
)

const (
	YandexProvider      = "yandex"
	DefaultYandexURL    = "https://tc.mobile.yandex.net"
	yandexDiscoveryPath = "/4.0/eboks/scooters/v1/objects/discovery"
)

// DefaultYandexParams are the routing query parameters the mobile app sends.
var DefaultYandexParams = url.Values{
	"mobcf": {"russia%25go_ru_by_geo_hosts_2%25default"},
	"mobpr": {"go_ru_by_geo_hosts_2_TAXI_V4_0"},
}

// Yandex queries the ride-hailing scooter discovery endpoint. At low zoom it
// answers with bare coordinates ("rowan"), at high zoom with scooters and
// clusters carrying ids.
type Yandex struct {
	client  *Client
	baseURL string
	headers map[string]string
	params  url.Values
}

// NewYandex builds a provider that sends headers (which carry the signed
// token) on every call. HTTP 405 is how this upstream reports an expired JWT.
func NewYandex(baseURL string, headers map[string]string, opts ...Option) *Yandex {
	if baseURL == "" {
		baseURL = DefaultYandexURL
	}
	opts = append([]Option{WithAuthStatuses(http.StatusMethodNotAllowed)}, opts...)
	return &Yandex{
		client:  NewClient(opts...),
		baseURL: baseURL,
		headers: headers,
		params:  DefaultYandexParams,
	}
}

type yandexRequest struct {
	Actions      []any      `json:"actions"`
	BBox         [4]float64 `json:"bbox"`
	UserLocation [2]float64 `json:"user_location"`
	Zoom         float64    `json:"zoom"`
}

func (y *Yandex) Query(ctx context.Context, r types.Region) (Result, error) {
	payload, err := json.Marshal(yandexRequest{
		Actions:      []any{},
		BBox:         r.BBox(),
		UserLocation: [2]float64{r.Ref.Lon(), r.Ref.Lat()},
		Zoom:         r.Zoom,
	})
	if err != nil {
		return Result{}, fmt.Errorf("encode discovery request: %w", err)
	}

	u := y.baseURL + yandexDiscoveryPath
	if len(y.params) > 0 {
		u += "?" + y.params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("build discovery request: %w", err)
	}
	for k, v := range y.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := y.client.do(ctx, YandexProvider, req)
	if err != nil {
		return Result{}, err
	}
	return DecodeYandex(body)
}

// DecodeYandex turns a discovery response into records. Objects without a
// usable coordinate are dropped; objects with a coordinate but no id only
// contribute a position.
func DecodeYandex(body []byte) (Result, error) {
	if !gjson.ValidBytes(body) {
		return Result{}, malformed(YandexProvider, "response is not valid JSON")
	}
	root := gjson.ParseBytes(body)
	objects, rowan := root.Get("objects"), root.Get("rowan")
	if !objects.Exists() && !rowan.Exists() {
		return Result{}, malformed(YandexProvider, "response has neither objects nor rowan")
	}

	var res Result
	objects.Get("objects_by_type").ForEach(func(_, group gjson.Result) bool {
		typ := group.Get("type").String()
		group.Get("objects").ForEach(func(_, obj gjson.Result) bool {
			if obj.IsArray() {
				if p, ok := pointFrom(obj); ok {
					res.Points = append(res.Points, p)
				}
				return true
			}
			p, ok := pointFrom(obj.Get("geo"))
			if !ok {
				return true
			}
			rec, err := yandexRecord(typ, obj, p)
			if err != nil {
				res.Points = append(res.Points, p)
				return true
			}
			res.Records = append(res.Records, rec)
			return true
		})
		return true
	})

	rowan.Get("objects_by_type").ForEach(func(_, group gjson.Result) bool {
		group.Get("objects").ForEach(func(_, coords gjson.Result) bool {
			if p, ok := pointFrom(coords); ok {
				res.Points = append(res.Points, p)
			}
			return true
		})
		return true
	})
	return res, nil
}

func yandexRecord(typ string, obj gjson.Result, p orb.Point) (types.Record, error) {
	id := obj.Get("id").String()
	props := map[string]any{"upstream_type": typ}
	if payload, ok := obj.Get("payload").Value().(map[string]any); ok {
		for k, v := range payload {
			props[k] = v
		}
	}
	if text := obj.Get("overlay_text"); text.Exists() {
		props["overlay_text"] = text.Value()
	}

	switch typ {
	case "scooter":
		return types.NewIndividual(id, p, props)
	case "cluster":
		return types.NewAggregate(id, p, int(obj.Get("payload.objects_count").Int()), props)
	case "cluster_empty":
		return types.NewEmptyAggregate(id, p, props)
	default:
		return types.Record{}, fmt.Errorf("unsupported object type %q", typ)
	}
}

// pointFrom reads a [lon, lat] JSON array.
func pointFrom(v gjson.Result) (orb.Point, bool) {
	if !v.IsArray() {
		return orb.Point{}, false
	}
	arr := v.Array()
	if len(arr) < 2 || arr[0].Type != gjson.Number || arr[1].Type != gjson.Number {
		return orb.Point{}, false
	}
	p := orb.Point{arr[0].Float(), arr[1].Float()}
	return p, types.ValidPoint(p)
}
