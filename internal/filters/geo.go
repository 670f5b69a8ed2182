package filters

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/caresearch/medrank/internal/corpus"
	rankerr "github.com/caresearch/medrank/internal/errors"
)

// defaultRadiusMiles bounds distance searches that do not name a radius.
const defaultRadiusMiles = 25.0

const earthRadiusMiles = 3958.8

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// LocationQuery is a location constraint: a locality name, a postcode, or
// an explicit center with a radius. Postcode and center searches measure
// distance; city searches match the locality text only.
type LocationQuery struct {
	City         string      `json:"city,omitempty"`
	Postcode     string      `json:"postcode,omitempty"`
	RadiusCenter *Coordinate `json:"radius_center,omitempty"`
	RadiusMiles  float64     `json:"radius_miles,omitempty"`
}

// IsZero reports whether no location constraint is set.
func (q LocationQuery) IsZero() bool {
	return strings.TrimSpace(q.City) == "" &&
		strings.TrimSpace(q.Postcode) == "" &&
		q.RadiusCenter == nil
}

// Locator narrows candidates by location using an outcode centroid table.
// Distance searches resolve both the request and each practitioner to an
// outcode centroid, so precision is at outcode granularity.
type Locator struct {
	outcodes map[string]Coordinate
}

// LocatorOption configures a Locator.
type LocatorOption func(*Locator)

// WithOutcodeTable merges entries into the built-in centroid table,
// overriding duplicates. Keys are outcodes like "SW1A".
func WithOutcodeTable(table map[string]Coordinate) LocatorOption {
	return func(l *Locator) {
		for k, v := range table {
			l.outcodes[strings.ToUpper(strings.TrimSpace(k))] = v
		}
	}
}

// NewLocator returns a locator over the built-in UK outcode centroids.
func NewLocator(opts ...LocatorOption) *Locator {
	l := &Locator{outcodes: make(map[string]Coordinate, len(builtinOutcodes))}
	for k, v := range builtinOutcodes {
		l.outcodes[k] = v
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Centroid resolves an outcode or full postcode to its centroid.
func (l *Locator) Centroid(postcode string) (Coordinate, bool) {
	c, ok := l.outcodes[Outcode(postcode)]
	return c, ok
}

// Filter applies the location constraint. Distance searches keep
// candidates whose outcode centroid lies within the radius and annotate
// them with the distance in miles; candidates whose location cannot be
// resolved are dropped. A postcode that resolves takes precedence over
// the city; an unresolvable postcode falls back to the city match, or to
// no survivors when no city was given.
func (l *Locator) Filter(candidates []*corpus.Practitioner, q LocationQuery) []*corpus.Practitioner {
	if q.IsZero() {
		return candidates
	}

	if center, ok := l.center(q); ok {
		radius := q.RadiusMiles
		if radius <= 0 {
			radius = defaultRadiusMiles
		}
		kept := make([]*corpus.Practitioner, 0, len(candidates))
		for _, p := range candidates {
			c, resolved := l.Centroid(p.PostalCode)
			if !resolved {
				continue
			}
			d := haversineMiles(center, c)
			if d <= radius {
				kept = append(kept, p.WithDistance(d))
			}
		}
		return kept
	}

	city := strings.ToLower(strings.TrimSpace(q.City))
	if city == "" {
		return nil
	}
	kept := make([]*corpus.Practitioner, 0, len(candidates))
	for _, p := range candidates {
		locality := strings.ToLower(strings.TrimSpace(p.AddressLocality))
		if locality == "" {
			continue
		}
		if strings.Contains(locality, city) || strings.Contains(city, locality) {
			kept = append(kept, p)
		}
	}
	return kept
}

func (l *Locator) center(q LocationQuery) (Coordinate, bool) {
	if q.RadiusCenter != nil {
		return *q.RadiusCenter, true
	}
	if pc := strings.TrimSpace(q.Postcode); pc != "" {
		if c, ok := l.Centroid(pc); ok {
			return c, true
		}
	}
	return Coordinate{}, false
}

// Outcode returns the outward half of a UK postcode, uppercased: the part
// before the space, or everything except the final three characters when
// the space is missing. The inward half is always three characters.
func Outcode(postcode string) string {
	pc := strings.ToUpper(strings.TrimSpace(postcode))
	if i := strings.IndexByte(pc, ' '); i > 0 {
		return pc[:i]
	}
	if len(pc) > 4 {
		return pc[:len(pc)-3]
	}
	return pc
}

// haversineMiles returns the great-circle distance between two points.
func haversineMiles(a, b Coordinate) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLon := radians(b.Lon - a.Lon)
	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*sinLon*sinLon
	return 2 * earthRadiusMiles * math.Asin(math.Sqrt(h))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// LoadOutcodeTable reads a centroid table from a JSON file of the form
// {"SW1A": {"lat": 51.501, "lon": -0.142}, ...}. Keys are uppercased.
func LoadOutcodeTable(path string) (map[string]Coordinate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rankerr.New(rankerr.ErrCodeCorpusNotFound,
				fmt.Sprintf("outcode table not found: %s", path), err)
		}
		return nil, rankerr.New(rankerr.ErrCodeFilePermission,
			fmt.Sprintf("reading outcode table %s", path), err)
	}
	var table map[string]Coordinate
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, rankerr.New(rankerr.ErrCodeCorpusParse,
			fmt.Sprintf("parsing outcode table %s", path), err)
	}
	normalized := make(map[string]Coordinate, len(table))
	for k, v := range table {
		normalized[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return normalized, nil
}

// builtinOutcodes covers the hospital districts of the major UK cities.
// Centroids are approximate; WithOutcodeTable or LoadOutcodeTable extends
// or overrides them.
var builtinOutcodes = map[string]Coordinate{
	// London
	"SW1A": {51.5010, -0.1419},
	"SW1W": {51.4930, -0.1480},
	"SW3":  {51.4900, -0.1660},
	"SW5":  {51.4900, -0.1920},
	"W1G":  {51.5177, -0.1466},
	"W1U":  {51.5180, -0.1530},
	"W2":   {51.5150, -0.1850},
	"WC1E": {51.5240, -0.1340},
	"NW1":  {51.5350, -0.1430},
	"NW3":  {51.5500, -0.1750},
	"NW8":  {51.5320, -0.1730},
	"EC1V": {51.5270, -0.1050},
	"SE1":  {51.4980, -0.0900},
	"E1":   {51.5150, -0.0720},
	"N1":   {51.5380, -0.0990},
	// Manchester
	"M1":  {53.4780, -2.2420},
	"M3":  {53.4830, -2.2530},
	"M13": {53.4620, -2.2240},
	"M20": {53.4240, -2.2310},
	// Birmingham
	"B1":  {52.4790, -1.9060},
	"B4":  {52.4830, -1.8930},
	"B15": {52.4680, -1.9300},
	// Leeds
	"LS1": {53.7980, -1.5470},
	"LS9": {53.8020, -1.5160},
	// Liverpool
	"L1": {53.4030, -2.9800},
	"L7": {53.4080, -2.9580},
	// Bristol
	"BS1": {51.4540, -2.5920},
	"BS8": {51.4580, -2.6110},
	// Sheffield
	"S1":  {53.3800, -1.4690},
	"S10": {53.3760, -1.5020},
	// Newcastle
	"NE1": {54.9730, -1.6130},
	"NE2": {54.9870, -1.6040},
	// Nottingham
	"NG1": {52.9540, -1.1460},
	"NG7": {52.9420, -1.1870},
	// Leicester
	"LE1": {52.6350, -1.1300},
	"LE5": {52.6330, -1.0880},
	// Oxford
	"OX1": {51.7500, -1.2570},
	"OX3": {51.7620, -1.2140},
	// Cambridge
	"CB1": {52.1960, 0.1350},
	"CB2": {52.1930, 0.1210},
	// Edinburgh
	"EH1":  {55.9500, -3.1900},
	"EH4":  {55.9620, -3.2430},
	"EH16": {55.9220, -3.1370},
	// Glasgow
	"G1":  {55.8570, -4.2500},
	"G12": {55.8770, -4.2940},
	// Cardiff
	"CF10": {51.4810, -3.1790},
	"CF14": {51.5200, -3.1910},
	// Belfast
	"BT1": {54.6000, -5.9280},
	"BT9": {54.5730, -5.9550},
	// Southampton
	"SO14": {50.9040, -1.3940},
	"SO16": {50.9330, -1.4330},
	// Reading
	"RG1": {51.4560, -0.9720},
	// Brighton
	"BN1": {50.8280, -0.1400},
	"BN2": {50.8240, -0.1180},
	// Guildford
	"GU1": {51.2400, -0.5700},
	"GU2": {51.2420, -0.5900},
}
