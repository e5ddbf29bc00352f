package models

import "math"

// Quality score weights. The split deliberately favors low latency and low
// packet loss over raw hardware: a fast, clean connection degrades gameplay
// less than modest specs.
const (
	latencyWeight  = 30.0 // 0 points at >= 300ms
	lossWeight     = 20.0 // 0 points at >= 10%
	capacityWeight = 25.0
	cpuWeight      = 10.0 // full marks at >= 4 cores
	memoryWeight   = 10.0 // full marks at >= 8192 MB
	networkWeight  = 5.0  // full marks at >= 100 Mbps
)

// ComputeQualityScore derives a 0-100 hosting quality score from the host's
// telemetry, load and declared hardware. Every component is clamped to be
// non-negative before summing and the result is clamped to [0,100].
//
// Unmeasured telemetry (zero latency, zero loss) scores as best-case, so a
// freshly registered host that has never heartbeated starts near the top of
// the ranking until real measurements arrive.
func ComputeQualityScore(h *Host) float64 {
	latencyScore := math.Max(0, latencyWeight-h.LatencyMs/10)
	lossScore := math.Max(0, lossWeight-h.PacketLossPercent*2)

	// A host that declares no player slots has no spare capacity to score.
	capacityScore := 0.0
	if h.MaxPlayers > 0 {
		capacityScore = math.Max(0, (1-float64(h.CurrentPlayers)/float64(h.MaxPlayers))*capacityWeight)
	}

	hardwareScore := math.Min(cpuWeight, float64(h.CPUCores)/4*cpuWeight) +
		math.Min(memoryWeight, float64(h.MemoryMB)/8192*memoryWeight) +
		math.Min(networkWeight, h.NetworkSpeedMbps/100*networkWeight)

	score := latencyScore + lossScore + capacityScore + hardwareScore
	return math.Max(0, math.Min(100, score))
}
