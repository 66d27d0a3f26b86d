package queue

import (
	"context"
	"sort"
	"sync"

	"greendesk/internal/domain"
)

// Aggregator merges every source's pending tasks into one ordered,
// deduplicated queue.
type Aggregator struct {
	Sources []Source
}

// Result is one aggregation cycle. Tasks is totally ordered; FailedDomains
// names sources whose fetch failed this cycle (their tasks are absent, not
// stale); Counts holds per-domain task counts for the dashboard summary.
type Result struct {
	Tasks         []domain.Task  `json:"tasks"`
	FailedDomains []string       `json:"failed_domains"`
	Counts        map[string]int `json:"counts"`
}

// NewAggregator builds an aggregator over the given sources.
func NewAggregator(sources ...Source) *Aggregator {
	return &Aggregator{Sources: sources}
}

// Aggregate fires every source concurrently, waits for all of them, and
// merges the successes. A failed source contributes zero tasks and lands in
// FailedDomains; it never aborts the cycle. The merged queue is deduplicated
// by (domain, id) keeping the most recent fetch, and sorted by priority,
// then created_at, then (domain, id), so the order is total and reproducible
// regardless of completion timing.
func (a *Aggregator) Aggregate(ctx context.Context) Result {
	type slot struct {
		tasks []domain.Task
		err   error
	}
	slots := make([]slot, len(a.Sources))
	var wg sync.WaitGroup
	for i, src := range a.Sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			tasks, err := src.FetchTasks(ctx)
			slots[i] = slot{tasks: tasks, err: err}
		}(i, src)
	}
	wg.Wait()

	merged := make(map[domain.TaskKey]domain.Task)
	var failed []string
	for i, src := range a.Sources {
		if slots[i].err != nil {
			failed = append(failed, src.Domain())
			continue
		}
		// Later entries win so a re-fetch replaces, not appends.
		for _, t := range slots[i].tasks {
			merged[t.Key()] = t
		}
	}

	tasks := make([]domain.Task, 0, len(merged))
	for _, t := range merged {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		if a.Domain != b.Domain {
			return a.Domain < b.Domain
		}
		return a.ID < b.ID
	})
	sort.Strings(failed)

	counts := make(map[string]int)
	for _, t := range tasks {
		counts[t.Domain]++
	}
	if failed == nil {
		failed = []string{}
	}
	return Result{Tasks: tasks, FailedDomains: failed, Counts: counts}
}
