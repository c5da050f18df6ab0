package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Mode selects whether reports publish directly or wait for approval.
type Mode string

const (
	ModeManual Mode = "manual"
	ModeAuto   Mode = "auto"
)

// ParseMode validates an operator-supplied mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeManual:
		return ModeManual, nil
	case ModeAuto:
		return ModeAuto, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Settings are the operator-tunable runtime parameters.
type Settings struct {
	Mode               Mode       `json:"mode"`
	TargetChannel      string     `json:"target_channel"`
	AllowedRegions     []RegionID `json:"allowed_regions"`
	DedupWindowMinutes int        `json:"dedup_window_minutes"`
	AlertsEnabled      bool       `json:"alerts_enabled"`
	AlertsChannel      string     `json:"alerts_channel"`
	AlertsIncludeTime  bool       `json:"alerts_include_time"`
}

// TargetChannelConfigured reports whether reports have somewhere to go.
func (s *Settings) TargetChannelConfigured() bool {
	return s.TargetChannel != ""
}

// DedupWindow returns the dedup window as a duration.
func (s *Settings) DedupWindow() time.Duration {
	return time.Duration(s.DedupWindowMinutes) * time.Minute
}

// AlertsDestination is the alerts channel, falling back to the report target.
func (s *Settings) AlertsDestination() string {
	if s.AlertsChannel != "" {
		return s.AlertsChannel
	}
	return s.TargetChannel
}

// SettingsPatch carries the fields an operator wants to change. Nil fields are left alone.
type SettingsPatch struct {
	Mode               *Mode       `json:"mode,omitempty"`
	TargetChannel      *string     `json:"target_channel,omitempty"`
	AllowedRegions     *[]RegionID `json:"allowed_regions,omitempty"`
	DedupWindowMinutes *int        `json:"dedup_window_minutes,omitempty"`
	AlertsEnabled      *bool       `json:"alerts_enabled,omitempty"`
	AlertsChannel      *string     `json:"alerts_channel,omitempty"`
	AlertsIncludeTime  *bool       `json:"alerts_include_time,omitempty"`
}

// Validate normalizes channels and regions in place.
func (p *SettingsPatch) Validate() error {
	if p.Mode != nil {
		m, err := ParseMode(string(*p.Mode))
		if err != nil {
			return err
		}
		p.Mode = &m
	}
	for _, ch := range []*string{p.TargetChannel, p.AlertsChannel} {
		if ch == nil || *ch == "" {
			continue
		}
		norm, err := NormalizeChannel(*ch)
		if err != nil {
			return err
		}
		*ch = norm
	}
	if p.AllowedRegions != nil {
		regions := make([]RegionID, 0, len(*p.AllowedRegions))
		for _, r := range *p.AllowedRegions {
			id, err := ParseRegion(string(r))
			if err != nil {
				return err
			}
			regions = append(regions, id)
		}
		p.AllowedRegions = &regions
	}
	if p.DedupWindowMinutes != nil && *p.DedupWindowMinutes < 1 {
		return fmt.Errorf("%w: dedup window must be at least one minute", ErrInvalidSetting)
	}
	return nil
}

// Apply returns s with the patch applied.
func (p *SettingsPatch) Apply(s Settings) Settings {
	if p.Mode != nil {
		s.Mode = *p.Mode
	}
	if p.TargetChannel != nil {
		s.TargetChannel = *p.TargetChannel
	}
	if p.AllowedRegions != nil {
		s.AllowedRegions = append([]RegionID(nil), (*p.AllowedRegions)...)
	}
	if p.DedupWindowMinutes != nil {
		s.DedupWindowMinutes = *p.DedupWindowMinutes
	}
	if p.AlertsEnabled != nil {
		s.AlertsEnabled = *p.AlertsEnabled
	}
	if p.AlertsChannel != nil {
		s.AlertsChannel = *p.AlertsChannel
	}
	if p.AlertsIncludeTime != nil {
		s.AlertsIncludeTime = *p.AlertsIncludeTime
	}
	return s
}

var (
	handlePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{4,}$`)
	channelPrefix = regexp.MustCompile(`^(?:https?://)?t\.me/`)
)

// NormalizeChannel accepts @name, t.me/name, https://t.me/name, a bare
// handle or a numeric chat id, and returns @name or the id.
func NormalizeChannel(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty channel", ErrInvalidSource)
	}
	if isChatID(s) {
		return s, nil
	}

	s = channelPrefix.ReplaceAllString(s, "")
	s = strings.TrimPrefix(s, "@")
	s = strings.TrimSuffix(s, "/")

	if !handlePattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSource, s)
	}
	return "@" + s, nil
}

// NormalizeSource turns any channel form into the lower-cased allow-list key.
func NormalizeSource(s string) (string, error) {
	ch, err := NormalizeChannel(s)
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimPrefix(ch, "@")), nil
}

func isChatID(s string) bool {
	if strings.HasPrefix(s, "-") {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var regionAliases = map[string]RegionID{
	"chernihiv": RegionChernihiv,
	"чернигов":  RegionChernihiv,
	"чернігів":  RegionChernihiv,
	"cn":        RegionChernihiv,
	"sumy":      RegionSumy,
	"сумы":      RegionSumy,
	"суми":      RegionSumy,
	"sm":        RegionSumy,
}

// ParseRegion maps an operator-supplied region name or alias to a RegionID.
func ParseRegion(s string) (RegionID, error) {
	if id, ok := regionAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRegion, s)
}

// NormalizePlace trims and lower-cases an operator place keyword and collapses inner spaces.
func NormalizePlace(s string) (string, error) {
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	if len([]rune(s)) < 2 {
		return "", fmt.Errorf("%w: place keyword too short", ErrInvalidSetting)
	}
	return s, nil
}
