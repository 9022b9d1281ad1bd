package compare

import (
	"fmt"

	"github.com/gwlsn/strikelab/internal/pose"
	"github.com/gwlsn/strikelab/internal/sampler"
)

// RegionAnalyzer produces per-region findings for aligned sequences.
type RegionAnalyzer interface {
	Differences(user, reference []sampler.SampledFrame) []Difference
}

// PlaceholderRegions returns a fixed set of findings regardless of input.
type PlaceholderRegions struct{}

func (PlaceholderRegions) Differences(_, _ []sampler.SampledFrame) []Difference {
	return []Difference{
		{Area: "Elbow Position", Description: "Elbows slightly high", Severity: SeverityMinor},
		{Area: "Hip Rotation", Description: "Limited hip engagement", Severity: SeverityModerate},
		{Area: "Stance Width", Description: "Good stance balance", Severity: SeverityGood},
	}
}

// Deviation thresholds in normalized image units
const (
	MinorDeviation    = 0.05
	ModerateDeviation = 0.15
)

// Region groups keypoints that are graded together.
type Region struct {
	Area      string
	Keypoints []string
}

// DefaultRegions are the upper-body regions every detector reports.
var DefaultRegions = []Region{
	{Area: "Shoulders", Keypoints: []string{pose.LeftShoulder, pose.RightShoulder}},
	{Area: "Elbows", Keypoints: []string{pose.LeftElbow, pose.RightElbow}},
	{Area: "Wrists", Keypoints: []string{pose.LeftWrist, pose.RightWrist}},
}

// DeviationRegions grades each region by the mean distance between the
// user's and the reference's keypoints. Regions with no shared keypoints are
// omitted.
type DeviationRegions struct {
	Regions []Region
}

func (d DeviationRegions) Differences(user, reference []sampler.SampledFrame) []Difference {
	regions := d.Regions
	if len(regions) == 0 {
		regions = DefaultRegions
	}

	var out []Difference
	for _, region := range regions {
		dev, ok := meanDeviation(region, user, reference)
		if !ok {
			continue
		}
		sev := ClassifyDeviation(dev)
		out = append(out, Difference{
			Area:        region.Area,
			Description: describe(region.Area, sev, dev),
			Severity:    sev,
		})
	}
	return out
}

// ClassifyDeviation maps a mean deviation to a severity.
func ClassifyDeviation(dev float64) Severity {
	switch {
	case dev < MinorDeviation:
		return SeverityGood
	case dev < ModerateDeviation:
		return SeverityMinor
	default:
		return SeverityModerate
	}
}

func meanDeviation(region Region, user, reference []sampler.SampledFrame) (float64, bool) {
	var sum float64
	var n int
	for i := range user {
		ref := pose.Index(reference[i].Keypoints)
		for _, name := range region.Keypoints {
			u, okU := pose.Find(user[i].Keypoints, name)
			r, okR := ref[name]
			if !okU || !okR {
				continue
			}
			sum += distance(u, r)
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func describe(area string, sev Severity, dev float64) string {
	switch sev {
	case SeverityGood:
		return fmt.Sprintf("%s track the reference closely", area)
	case SeverityMinor:
		return fmt.Sprintf("%s drift slightly from the reference (%.0f%% of frame)", area, dev*100)
	default:
		return fmt.Sprintf("%s deviate noticeably from the reference (%.0f%% of frame)", area, dev*100)
	}
}
