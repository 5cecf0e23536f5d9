// Package saturation implements the aggregation engine behind the
// heatmap: leaf-unit resolution, population-derived targets, reported
// count clamping, and the drill-down query service.
package saturation

import "github.com/rotisserie/eris"

// DefaultGlobalDivisor is the default people-per-group ratio: one
// group needed for every thousand people.
const DefaultGlobalDivisor int64 = 1000

// Policy carries the tunables of the saturation model. The two country
// sets override the default level-2 leaf granularity: large countries
// report at level 3, subdivided countries at level 1. Membership is
// tested against a unit's admin0 ancestor id.
type Policy struct {
	GlobalDivisor       int64
	CountryDivisors     map[string]int64
	LargeCountries      map[int64]bool
	SubdividedCountries map[int64]bool
}

// DefaultPolicy returns the production policy. The country sets are
// curated data, maintained here rather than in the geography table.
func DefaultPolicy() Policy {
	return Policy{
		GlobalDivisor: DefaultGlobalDivisor,
		CountryDivisors: map[string]int64{
			"US": 5000,
		},
		// China, India, France, Spain, Pakistan, Bangladesh
		LargeCountries: map[int64]bool{
			100050711: true,
			100219347: true,
			100089589: true,
			100074576: true,
			100259978: true,
			100018514: true,
		},
		// Romania, Estonia, Bhutan, Croatia, Solomon Islands, Guyana,
		// Iceland, Vanuatu, Cape Verde, Samoa, Faroe Islands, Norway,
		// Uruguay, Mongolia, United Arab Emirates, Slovenia, Bulgaria,
		// Honduras, Colombia, Namibia, Switzerland, Western Sahara
		SubdividedCountries: map[int64]bool{
			100314737: true,
			100083318: true,
			100041128: true,
			100133112: true,
			100341242: true,
			100132648: true,
			100222839: true,
			100379914: true,
			100055707: true,
			100379993: true,
			100130389: true,
			100255271: true,
			100363975: true,
			100248845: true,
			100001527: true,
			100342458: true,
			100024289: true,
			100132795: true,
			100054605: true,
			100253456: true,
			100342975: true,
			100074571: true,
		},
	}
}

// Validate rejects non-positive divisors.
func (p Policy) Validate() error {
	if p.GlobalDivisor <= 0 {
		return eris.Errorf("saturation: global divisor must be positive, got %d", p.GlobalDivisor)
	}
	for code, div := range p.CountryDivisors {
		if div <= 0 {
			return eris.Errorf("saturation: divisor for %s must be positive, got %d", code, div)
		}
	}
	return nil
}

// DivisorFor returns the effective divisor for a country code.
func (p Policy) DivisorFor(countryCode string) int64 {
	if div, ok := p.CountryDivisors[countryCode]; ok {
		return div
	}
	return p.GlobalDivisor
}
