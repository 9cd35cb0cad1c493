package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type RuleType string

const (
	RuleTimeBased    RuleType = "time_based"
	RuleWeatherBased RuleType = "weather_based"
	RuleDemandBased  RuleType = "demand_based"
	RuleAreaBased    RuleType = "area_based"
)

type AdjustmentType string

const (
	AdjustPercentage AdjustmentType = "percentage"
	AdjustFixed      AdjustmentType = "fixed"
)

// HourRange is half-open: [StartHour, EndHour). Days empty means every day.
type HourRange struct {
	StartHour int            `json:"start_hour"`
	EndHour   int            `json:"end_hour"`
	Days      []time.Weekday `json:"days,omitempty"`
}

func (r HourRange) Contains(hour int, day time.Weekday) bool {
	if hour < r.StartHour || hour >= r.EndHour {
		return false
	}
	if len(r.Days) == 0 {
		return true
	}
	for _, d := range r.Days {
		if d == day {
			return true
		}
	}
	return false
}

type TimeConditions struct {
	Ranges []HourRange `json:"ranges"`
}

type WeatherConditions struct {
	Conditions []string `json:"conditions"`
}

type DemandConditions struct {
	Threshold int `json:"threshold"`
}

type AreaConditions struct {
	Areas []string `json:"areas"`
}

// PricingRule carries exactly one conditions payload, selected by RuleType.
// The engine dispatches on RuleType in a single place; an unset payload for
// the declared type makes the rule inapplicable rather than an error.
type PricingRule struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	RuleType        RuleType       `json:"rule_type"`
	Priority        int            `json:"priority"`
	AdjustmentType  AdjustmentType `json:"adjustment_type"`
	AdjustmentValue float64        `json:"adjustment_value"`
	IsActive        bool           `json:"is_active"`

	Time    *TimeConditions    `json:"time_conditions,omitempty"`
	Weather *WeatherConditions `json:"weather_conditions,omitempty"`
	Demand  *DemandConditions  `json:"demand_conditions,omitempty"`
	Area    *AreaConditions    `json:"area_conditions,omitempty"`
}

// DecodeRuleConditions fills the typed payload matching the rule's declared
// type from a raw JSON conditions blob, as stored by the admin UI.
func DecodeRuleConditions(r *PricingRule, raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	switch r.RuleType {
	case RuleTimeBased:
		r.Time = &TimeConditions{}
		return json.Unmarshal(raw, r.Time)
	case RuleWeatherBased:
		r.Weather = &WeatherConditions{}
		return json.Unmarshal(raw, r.Weather)
	case RuleDemandBased:
		r.Demand = &DemandConditions{}
		return json.Unmarshal(raw, r.Demand)
	case RuleAreaBased:
		r.Area = &AreaConditions{}
		return json.Unmarshal(raw, r.Area)
	}
	return fmt.Errorf("unknown rule type %q", r.RuleType)
}
