package runtime

import (
	"math"
	"runtime"
	"runtime/metrics"
	"sync"
	"time"
)

const cpuSecondsMetric = "/sched/cpu:seconds"

// ResourceUsage is a coarse process usage sample attached to stats lines.
type ResourceUsage struct {
	CPUPercent  float64
	MemoryBytes uint64
	Goroutines  int
}

// resourceSampler derives CPU usage from the delta between two samples.
type resourceSampler struct {
	mu       sync.Mutex
	sample   []metrics.Sample
	lastCPU  float64
	lastWall time.Time
	numCPU   float64
	now      func() time.Time
}

func newResourceSampler() *resourceSampler {
	return &resourceSampler{
		sample: []metrics.Sample{{Name: cpuSecondsMetric}},
		numCPU: float64(runtime.NumCPU()),
		now:    time.Now,
	}
}

func (r *resourceSampler) Sample() ResourceUsage {
	if r == nil {
		return ResourceUsage{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	usage := ResourceUsage{Goroutines: runtime.NumGoroutine()}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	usage.MemoryBytes = mem.Alloc

	metrics.Read(r.sample)
	if r.sample[0].Value.Kind() != metrics.KindFloat64 {
		return usage
	}
	cpu := r.sample[0].Value.Float64()
	wall := r.now()
	if !r.lastWall.IsZero() && r.numCPU > 0 {
		if elapsed := wall.Sub(r.lastWall).Seconds(); elapsed > 0 {
			usage.CPUPercent = math.Max(0, (cpu-r.lastCPU)/elapsed/r.numCPU*100)
		}
	}
	r.lastCPU, r.lastWall = cpu, wall
	return usage
}
