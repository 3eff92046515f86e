package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type toolKey struct {
	tool    string
	success string
}

type toolCollector struct {
	mu          sync.Mutex
	invocations map[toolKey]uint64
	latency     map[string]*histogram
}

var tools = &toolCollector{
	invocations: make(map[toolKey]uint64),
	latency:     make(map[string]*histogram),
}

// ObserveToolInvocation records the outcome and duration of a tool call.
func ObserveToolInvocation(tool string, success bool, duration time.Duration) {
	tools.observe(tool, success, duration)
}

func (c *toolCollector) observe(tool string, success bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := toolKey{tool: tool, success: fmt.Sprintf("%t", success)}
	c.invocations[key]++

	hist := c.latency[tool]
	if hist == nil {
		hist = newHistogram()
		c.latency[tool] = hist
	}
	hist.observe(duration.Seconds())
}

func (c *toolCollector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	type invocationMetric struct {
		toolKey
		value uint64
	}
	invocations := make([]invocationMetric, 0, len(c.invocations))
	for key, value := range c.invocations {
		invocations = append(invocations, invocationMetric{toolKey: key, value: value})
	}
	sort.Slice(invocations, func(i, j int) bool {
		if invocations[i].tool == invocations[j].tool {
			return invocations[i].success < invocations[j].success
		}
		return invocations[i].tool < invocations[j].tool
	})

	names := make([]string, 0, len(c.latency))
	for name := range c.latency {
		names = append(names, name)
	}
	sort.Strings(names)

	var builder strings.Builder
	builder.Grow(512)

	builder.WriteString("# HELP dexai_tool_invocations_total Total number of tool invocations by outcome.\n")
	builder.WriteString("# TYPE dexai_tool_invocations_total counter\n")
	for _, metric := range invocations {
		builder.WriteString(fmt.Sprintf("dexai_tool_invocations_total{tool=\"%s\",success=\"%s\"} %d\n",
			escape(metric.tool), metric.success, metric.value))
	}

	builder.WriteString("# HELP dexai_tool_duration_seconds Tool invocation duration in seconds.\n")
	builder.WriteString("# TYPE dexai_tool_duration_seconds histogram\n")
	for _, name := range names {
		hist := c.latency[name]
		for idx, bound := range hist.buckets {
			builder.WriteString(fmt.Sprintf("dexai_tool_duration_seconds_bucket{tool=\"%s\",le=\"%s\"} %d\n",
				escape(name), formatFloat(bound), hist.counts[idx]))
		}
		builder.WriteString(fmt.Sprintf("dexai_tool_duration_seconds_bucket{tool=\"%s\",le=\"+Inf\"} %d\n",
			escape(name), hist.count))
		builder.WriteString(fmt.Sprintf("dexai_tool_duration_seconds_sum{tool=\"%s\"} %s\n",
			escape(name), formatFloat(hist.sum)))
		builder.WriteString(fmt.Sprintf("dexai_tool_duration_seconds_count{tool=\"%s\"} %d\n",
			escape(name), hist.count))
	}

	return builder.String()
}
