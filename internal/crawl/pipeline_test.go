package crawl

import (
	"testing"

	"codedox/internal/model"
)

func TestReserveSkipsSeededVisited(t *testing.T) {
	state := &runState{
		job:   model.CrawlJob{StartURLs: []string{"https://docs.example.com/"}},
		front: newFrontier(),
	}
	state.adm = newAdmission(state.job)

	state.markVisited(map[string]struct{}{
		"https://docs.example.com/guide": {},
	})

	if state.reserve("https://docs.example.com/guide") {
		t.Error("already ingested page must not be fetched again")
	}
	if !state.reserve("https://docs.example.com/other") {
		t.Error("unseen page must be admitted")
	}
}

func TestMarkVisitedCanonicalizes(t *testing.T) {
	state := &runState{front: newFrontier()}

	// Stored document URLs are canonical, but seeding must tolerate raw
	// forms too.
	state.markVisited(map[string]struct{}{
		"HTTPS://Docs.Example.COM/Guide/": {},
	})

	if state.reserve("https://docs.example.com/Guide") {
		t.Error("canonical form of a seeded URL must be treated as visited")
	}
}

func TestSeededVisitedDoesNotConsumePageBudget(t *testing.T) {
	state := &runState{
		job:   model.CrawlJob{MaxPages: 1},
		front: newFrontier(),
	}
	state.markVisited(map[string]struct{}{
		"https://docs.example.com/old-1": {},
		"https://docs.example.com/old-2": {},
	})

	if !state.reserve("https://docs.example.com/new") {
		t.Error("seeded pages must not count against max_pages")
	}
}

func TestEnqueueAfterSeedStillDeduplicates(t *testing.T) {
	state := &runState{front: newFrontier()}
	state.markVisited(map[string]struct{}{
		"https://docs.example.com/done": {},
	})

	state.enqueue(pageItem{url: "https://docs.example.com/retry", depth: 0})
	state.enqueue(pageItem{url: "https://docs.example.com/retry", depth: 1})

	it, ok := state.front.pop()
	if !ok || it.url != "https://docs.example.com/retry" {
		t.Fatalf("expected the retried URL, got %v ok=%t", it, ok)
	}
	state.front.taskDone()
	if _, ok := state.front.pop(); ok {
		t.Error("duplicate enqueue must not produce a second item")
	}
}
