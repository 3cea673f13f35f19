package catalog

import (
	"ampctl/pkg/amp"
)

// ParamInfo describes one configuration or extension parameter.
type ParamInfo struct {
	Token   int      `json:"Token"`
	Name    string   `json:"Name"`
	Label   string   `json:"Label"`
	Tooltip string   `json:"Tooltip"`
	Default string   `json:"Default,omitempty"`
	Type    string   `json:"Type"`
	Min     float64  `json:"Min,omitempty"`
	Max     float64  `json:"Max,omitempty"`
	Step    float64  `json:"Step,omitempty"`
	Options []string `json:"Options,omitempty"`
}

type GranInfo struct {
	Level string  `json:"Level"`
	Min   float64 `json:"Min"`
	Max   float64 `json:"Max"`
	Step  float64 `json:"Step"`
}

type PortInfo struct {
	Type           string `json:"Type"`
	RateMin        int    `json:"RateMin,omitempty"`
	RateMax        int    `json:"RateMax,omitempty"`
	DataBits       int    `json:"DataBits,omitempty"`
	StopBits       int    `json:"StopBits,omitempty"`
	Parity         string `json:"Parity"`
	Handshake      string `json:"Handshake"`
	WriteDelay     string `json:"WriteDelay"`
	PostWriteDelay string `json:"PostWriteDelay"`
	Timeout        string `json:"Timeout"`
	Retry          int    `json:"Retry"`
}

// ModelInfo is the published view of a registered model.
type ModelInfo struct {
	Model        int    `json:"Model"`
	Manufacturer string `json:"Manufacturer"`
	Name         string `json:"Name"`
	Version      string `json:"Version"`
	Copyright    string `json:"Copyright"`
	Status       string `json:"Status"`

	Port PortInfo `json:"Port"`

	GetLevels   []string   `json:"GetLevels"`
	SetLevels   []string   `json:"SetLevels"`
	Granularity []GranInfo `json:"Granularity"`

	ConfParams []ParamInfo `json:"ConfParams"`
	ExtLevels  []ParamInfo `json:"ExtLevels"`
	ExtParams  []ParamInfo `json:"ExtParams"`
}

type ModuleInfo struct {
	Name   string `json:"Name"`
	Loaded bool   `json:"Loaded"`
}

// Describe builds the published view of caps.
func Describe(caps *amp.Caps) ModelInfo {
	p := caps.Port
	info := ModelInfo{
		Model:        int(caps.Model),
		Manufacturer: caps.MfgName,
		Name:         caps.ModelName,
		Version:      caps.Version,
		Copyright:    caps.Copyright,
		Status:       caps.Status.String(),
		Port: PortInfo{
			Type:           p.Type.String(),
			RateMin:        p.RateMin,
			RateMax:        p.RateMax,
			DataBits:       p.DataBits,
			StopBits:       p.StopBits,
			Parity:         p.Parity.String(),
			Handshake:      p.Handshake.String(),
			WriteDelay:     p.WriteDelay.String(),
			PostWriteDelay: p.PostWriteDelay.String(),
			Timeout:        p.Timeout.String(),
			Retry:          p.Retry,
		},
		GetLevels:   levelNames(caps.HasGetLevel),
		SetLevels:   levelNames(caps.HasSetLevel),
		Granularity: []GranInfo{},
		ConfParams:  DescribeParams(caps.ConfParams),
		ExtLevels:   DescribeParams(caps.ExtLevels),
		ExtParams:   DescribeParams(caps.ExtParams),
	}

	for _, l := range amp.AllLevels() {
		if g, ok := caps.LevelGran[l]; ok {
			info.Granularity = append(info.Granularity, GranInfo{Level: l.String(), Min: g.Min, Max: g.Max, Step: g.Step})
		}
	}
	return info
}

func DescribeParams(params []amp.ConfParam) []ParamInfo {
	out := make([]ParamInfo, 0, len(params))
	for _, p := range params {
		pi := ParamInfo{
			Token:   int(p.ID),
			Name:    p.Name,
			Label:   p.Label,
			Tooltip: p.Tooltip,
			Default: p.Default,
			Type:    p.Type.String(),
			Options: p.Options,
		}
		if p.Type == amp.ParamNumeric {
			pi.Min, pi.Max, pi.Step = p.Numeric.Min, p.Numeric.Max, p.Numeric.Step
		}
		out = append(out, pi)
	}
	return out
}

func levelNames(s amp.LevelSet) []string {
	names := []string{}
	for _, l := range s.Levels() {
		names = append(names, l.String())
	}
	return names
}
