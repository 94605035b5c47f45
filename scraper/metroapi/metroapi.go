package metroapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/metroinfo/metrobot/scraper"
	"github.com/metroinfo/metrobot/types"
	"go.uber.org/zap"
)

// DefaultURL is the public network status endpoint of Metro de Santiago
const DefaultURL = "https://www.metro.cl/api/estadoRedDetalle.php"

const maxResponseSize = 1024 * 1024

// Client fetches and normalizes the network status document
type Client struct {
	URL        string
	HTTPClient *http.Client
	// Hours, when set, closes every line and station outside service hours
	Hours *ServiceHours
	Now   func() time.Time

	log *zap.Logger
}

// New returns a Client for the given endpoint
func New(url string, timeout time.Duration, hours *ServiceHours, log *zap.Logger) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		URL: url,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		Hours: hours,
		Now:   time.Now,
		log:   log,
	}
}

// FetchNetworkStatus retrieves the current status of every known line
func (c *Client) FetchNetworkStatus(ctx context.Context) (types.Network, error) {
	body, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}

	result, err := Normalize(body, c.Now(), c.Hours)
	if err != nil {
		return nil, err
	}
	for _, code := range result.Dropped {
		c.log.Warn("dropping unknown line code from status document", zap.String("code", code))
	}
	return result.Network, nil
}

func (c *Client) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	response, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", scraper.ErrUpstreamUnavailable, err)
	}
	defer response.Body.Close()

	if response.ContentLength > maxResponseSize || response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: non-200 status code (%d) in response, or response body unexpectedly big",
			scraper.ErrUpstreamUnavailable, response.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", scraper.ErrUpstreamUnavailable, err)
	}
	if len(body) > maxResponseSize {
		return nil, fmt.Errorf("%w: response body unexpectedly big", scraper.ErrUpstreamUnavailable)
	}
	return body, nil
}

// rawCode accepts status codes sent either as strings or as numbers
type rawCode string

func (c *rawCode) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*c = rawCode(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*c = rawCode(n.String())
	return nil
}

type rawStation struct {
	Nombre         *string  `json:"nombre"`
	Codigo         *string  `json:"codigo"`
	Estado         *rawCode `json:"estado"`
	Combinacion    string   `json:"combinacion"`
	Descripcion    string   `json:"descripcion"`
	DescripcionApp string   `json:"descripcion_app"`
	Mensaje        string   `json:"mensaje"`
}

type rawLine struct {
	Estado     *rawCode      `json:"estado"`
	Mensaje    string        `json:"mensaje"`
	MensajeApp *string       `json:"mensaje_app"`
	Estaciones *[]rawStation `json:"estaciones"`
}

// NormalizeResult is the outcome of normalizing a status document
type NormalizeResult struct {
	Network types.Network
	// Dropped lists the line codes present in the document that do not belong
	// to the network
	Dropped []string
}

// Normalize parses a raw status document into the statuses of the known
// lines, in display order. It is a pure function of its inputs: when hours is
// not nil and now is outside service hours, every line and station is marked
// as closed for schedule.
func Normalize(document []byte, now time.Time, hours *ServiceHours) (*NormalizeResult, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(document, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s", scraper.ErrMalformedResponse, err)
	}

	result := &NormalizeResult{Network: types.Network{}}
	for code := range doc {
		if !types.IsKnownLine(types.LineID(code)) {
			result.Dropped = append(result.Dropped, code)
		}
	}
	sort.Strings(result.Dropped)

	inService := hours == nil || hours.InService(now)
	for _, id := range types.KnownLines {
		raw, present := doc[string(id)]
		if !present {
			continue
		}
		status, err := normalizeLine(id, raw)
		if err != nil {
			return nil, err
		}
		if !inService {
			status.CloseForSchedule()
		}
		result.Network = append(result.Network, status)
	}
	return result, nil
}

func malformed(id types.LineID, format string, a ...interface{}) error {
	return fmt.Errorf("%w: line %s: %s", scraper.ErrMalformedResponse, id, fmt.Sprintf(format, a...))
}

func normalizeLine(id types.LineID, raw json.RawMessage) (*types.LineStatus, error) {
	var line rawLine
	if err := json.Unmarshal(raw, &line); err != nil {
		return nil, malformed(id, "%s", err)
	}
	switch {
	case line.Estado == nil:
		return nil, malformed(id, "missing estado")
	case line.MensajeApp == nil:
		return nil, malformed(id, "missing mensaje_app")
	case line.Estaciones == nil:
		return nil, malformed(id, "missing estaciones")
	}

	code, err := types.ParseStatusCode(string(*line.Estado))
	if err != nil {
		return nil, malformed(id, "%s", err)
	}

	status := &types.LineStatus{
		ID:         id,
		StatusCode: code,
		Messages: types.LineMessages{
			Primary:   *line.MensajeApp,
			Secondary: optional(line.Mensaje),
		},
		Stations: make([]*types.StationStatus, 0, len(*line.Estaciones)),
	}

	for i, rs := range *line.Estaciones {
		station, err := normalizeStation(rs)
		if err != nil {
			return nil, malformed(id, "station %d: %s", i, err)
		}
		status.Stations = append(status.Stations, station)
	}
	return status, nil
}

func normalizeStation(rs rawStation) (*types.StationStatus, error) {
	switch {
	case rs.Codigo == nil:
		return nil, errors.New("missing codigo")
	case rs.Nombre == nil:
		return nil, errors.New("missing nombre")
	case rs.Estado == nil:
		return nil, errors.New("missing estado")
	}

	code, err := types.ParseStatusCode(string(*rs.Estado))
	if err != nil {
		return nil, err
	}

	station := &types.StationStatus{
		Code:       *rs.Codigo,
		Name:       *rs.Nombre,
		StatusCode: code,
		Messages: types.StationMessages{
			Primary:   rs.Descripcion,
			Secondary: rs.DescripcionApp,
			Tertiary:  optional(rs.Mensaje),
		},
	}

	if rs.Combinacion != "" {
		transfer, ok := types.ParseLineID(rs.Combinacion)
		if !ok {
			return nil, fmt.Errorf("unknown transfer line %q", rs.Combinacion)
		}
		station.Transfer = &transfer
	}
	return station, nil
}

// optional maps empty upstream strings to nil
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
