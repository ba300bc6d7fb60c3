// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

package refresh

import "sync"

// RunLimited fans items out across a bounded worker pool: workers pull
// from a shared queue until it is empty, so each item is processed at
// most once and no more than `workers` calls are outstanding at any
// moment. Completion order is unspecified.
func RunLimited[T any](workers int, items []T, fn func(T)) {
	if len(items) == 0 {
		return
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}

	queue := make(chan T)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range queue {
				fn(item)
			}
		}()
	}
	for _, item := range items {
		queue <- item
	}
	close(queue)
	wg.Wait()
}
