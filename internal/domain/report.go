// Package domain holds the types shared by the classifier, dedup engine,
// router, queue and zone poller.
package domain

import (
	"time"
)

// Category is the threat class of a report. Order of the constants is the
// classification priority.
type Category string

const (
	CategoryUAV        Category = "uav"
	CategoryMissile    Category = "missile"
	CategoryAviation   Category = "aviation"
	CategoryArtillery  Category = "artillery"
	CategoryAirDefense Category = "air_defense"
	CategoryUnknown    Category = "unknown"
)

// RegionID identifies a monitored geographic region.
type RegionID string

const (
	RegionChernihiv RegionID = "chernihiv"
	RegionSumy      RegionID = "sumy"
)

// KnownRegions lists every region the classifier can detect.
var KnownRegions = []RegionID{RegionChernihiv, RegionSumy}

// Report is one classified inbound message. It lives only for the duration
// of a routing decision unless it is queued.
type Report struct {
	RawText        string     `json:"raw_text"`
	SourceID       string     `json:"source"`
	ReceivedAt     time.Time  `json:"received_at"`
	NormalizedText string     `json:"normalized_text"`
	Category       Category   `json:"category"`
	Label          string     `json:"label"`
	Emoji          string     `json:"emoji"`
	Origin         string     `json:"origin,omitempty"`
	Destination    string     `json:"destination,omitempty"`
	Regions        []RegionID `json:"regions"`
	Formatted      string     `json:"formatted"`
}

// HasDirection reports whether a structural dedup key can be built from
// extracted places.
func (r *Report) HasDirection() bool {
	return r.Origin != "" || r.Destination != ""
}

// InRegions reports whether any detected region is in allowed.
func (r *Report) InRegions(allowed []RegionID) bool {
	for _, have := range r.Regions {
		for _, want := range allowed {
			if have == want {
				return true
			}
		}
	}
	return false
}
