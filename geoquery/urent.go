package geoquery

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"go-scooterscan/types"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/tidwall/gjson"
)

const (
	UrentProvider      = "urent"
	DefaultUrentURL    = "https://backyard.urentbike.ru"
	urentTransportPath = "/gatewayclient/api/v6/transports"
)

// Urent queries the bike-rental backend for vehicles and parkings around the
// region's reference point. The upstream never clusters, so it only yields
// Individual records.
type Urent struct {
	client  *Client
	baseURL string
	token   string
}

func NewUrent(baseURL, token string, opts ...Option) *Urent {
	if baseURL == "" {
		baseURL = DefaultUrentURL
	}
	return &Urent{client: NewClient(opts...), baseURL: baseURL, token: token}
}

// RadiusMeters is the half diagonal of the region, which is the smallest
// circle around its centre covering the whole box.
func RadiusMeters(r types.Region) int {
	return int(math.Ceil(geo.Distance(r.Bound.Min, r.Bound.Max) / 2))
}

func (u *Urent) Query(ctx context.Context, r types.Region) (Result, error) {
	lat := strconv.FormatFloat(r.Ref.Lat(), 'f', -1, 64)
	lng := strconv.FormatFloat(r.Ref.Lon(), 'f', -1, 64)
	q := url.Values{
		"startLatitude":  {lat},
		"startLongitude": {lng},
		"latitude":       {lat},
		"longitude":      {lng},
		"radius":         {strconv.Itoa(RadiusMeters(r))},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.baseURL+urentTransportPath+"?"+q.Encode(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("build transports request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+u.token)
	req.Header.Set("User-Agent", "Urent/1.89.0 (ru.urentbike.app; build:8; iOS)")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("UR-Client-Id", "mobile.client.ios")
	req.Header.Set("UR-Platform", "iOS")

	body, err := u.client.do(ctx, UrentProvider, req)
	if err != nil {
		return Result{}, err
	}
	return DecodeUrent(body)
}

// DecodeUrent converts the transports response. Vehicles and parkings live
// in separate id spaces upstream, so ids are namespaced by category.
func DecodeUrent(body []byte) (Result, error) {
	if !gjson.ValidBytes(body) {
		return Result{}, malformed(UrentProvider, "response is not valid JSON")
	}
	data := gjson.GetBytes(body, "data")
	if !data.IsObject() {
		return Result{}, malformed(UrentProvider, "response has no data object")
	}

	var res Result
	collect := func(category, path string, fields map[string]string) {
		data.Get(path).ForEach(func(_, item gjson.Result) bool {
			p, ok := latLngPoint(item)
			if !ok {
				return true
			}
			props := map[string]any{"category": category}
			for src, dst := range fields {
				if v := item.Get(src); v.Exists() {
					props[dst] = v.Value()
				}
			}
			id := item.Get("id").String()
			if id == "" {
				res.Points = append(res.Points, p)
				return true
			}
			rec, err := types.NewIndividual(category+"/"+id, p, props)
			if err != nil {
				return true
			}
			res.Records = append(res.Records, rec)
			return true
		})
	}
	collect("vehicle", "transports", map[string]string{
		"number": "number", "type": "vehicleType", "battery": "battery", "model": "model", "status": "status",
	})
	collect("parking", "parkingList", map[string]string{
		"name": "name", "capacity": "capacity", "address": "address",
	})
	return res, nil
}

// latLngPoint converts the upstream {latitude, longitude} pair to [lng, lat].
func latLngPoint(item gjson.Result) (orb.Point, bool) {
	lat, lng := item.Get("latitude"), item.Get("longitude")
	if lat.Type != gjson.Number || lng.Type != gjson.Number {
		return orb.Point{}, false
	}
	p := orb.Point{lng.Float(), lat.Float()}
	return p, types.ValidPoint(p)
}
