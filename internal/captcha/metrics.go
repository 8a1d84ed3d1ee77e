package captcha

import (
	"sync"
	"time"
)

// Metrics tracks usage statistics for solving providers.
type Metrics struct {
	mu        sync.RWMutex
	providers map[string]*ProviderStats
}

// ProviderStats contains statistics for a single provider.
type ProviderStats struct {
	Attempts    int64     // Total solve attempts
	Solved      int64     // Attempts that returned text
	Unsolvable  int64     // Attempts the provider could not read
	Failures    int64     // Transport and API errors
	TotalCost   float64   // Total cost in USD
	TotalTimeMs int64     // Total time spent solving in milliseconds
	LastUsed    time.Time // Last time this provider was used
	LastBalance float64   // Last known balance (from Balance() call)
	LastError   string    // Last error message
	LastErrorAt time.Time // When the last error occurred
}

// NewMetrics creates a new Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		providers: make(map[string]*ProviderStats),
	}
}

// RecordSolved records an attempt that produced an answer.
func (m *Metrics) RecordSolved(provider string, cost float64, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.attempt(provider, duration)
	stats.Solved++
	stats.TotalCost += cost
}

// RecordUnsolvable records an attempt the provider could not read.
func (m *Metrics) RecordUnsolvable(provider string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempt(provider, duration).Unsolvable++
}

// RecordFailure records a failed attempt and its error.
func (m *Metrics) RecordFailure(provider string, err error, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.attempt(provider, duration)
	stats.Failures++
	if err != nil {
		stats.LastError = err.Error()
		stats.LastErrorAt = time.Now()
	}
}

// UpdateBalance updates the cached balance for a provider.
func (m *Metrics) UpdateBalance(provider string, balance float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.getOrCreate(provider).LastBalance = balance
}

// GetStats returns a copy of stats for a provider, or nil.
func (m *Metrics) GetStats(provider string) *ProviderStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats, exists := m.providers[provider]
	if !exists {
		return nil
	}
	cp := *stats
	return &cp
}

// ToJSON returns all metrics as a map for JSON serialization.
func (m *Metrics) ToJSON() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]any)

	var totalAttempts, totalSolved int64
	var totalCost float64

	for name, stats := range m.providers {
		providerData := map[string]any{
			"attempts":     stats.Attempts,
			"solved":       stats.Solved,
			"unsolvable":   stats.Unsolvable,
			"failures":     stats.Failures,
			"success_rate": rate(stats.Solved, stats.Attempts),
			"total_cost":   stats.TotalCost,
			"avg_time_ms":  avg(stats.TotalTimeMs, stats.Attempts),
			"last_balance": stats.LastBalance,
		}
		if !stats.LastUsed.IsZero() {
			providerData["last_used"] = stats.LastUsed.Format(time.RFC3339)
		}
		if stats.LastError != "" {
			providerData["last_error"] = stats.LastError
			providerData["last_error_at"] = stats.LastErrorAt.Format(time.RFC3339)
		}
		result[name] = providerData

		totalAttempts += stats.Attempts
		totalSolved += stats.Solved
		totalCost += stats.TotalCost
	}

	result["_summary"] = map[string]any{
		"total_attempts": totalAttempts,
		"total_solved":   totalSolved,
		"success_rate":   rate(totalSolved, totalAttempts),
		"total_cost":     totalCost,
	}

	return result
}

// Reset clears all metrics.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers = make(map[string]*ProviderStats)
}

// SuccessRate returns the percentage of attempts that produced an answer.
func (m *Metrics) SuccessRate(provider string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats, exists := m.providers[provider]
	if !exists {
		return 0
	}
	return rate(stats.Solved, stats.Attempts)
}

// AverageTime returns the average solve time for a provider.
func (m *Metrics) AverageTime(provider string) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats, exists := m.providers[provider]
	if !exists {
		return 0
	}
	return time.Duration(avg(stats.TotalTimeMs, stats.Attempts)) * time.Millisecond
}

// TotalCost returns the total cost across all providers.
func (m *Metrics) TotalCost() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total float64
	for _, stats := range m.providers {
		total += stats.TotalCost
	}
	return total
}

// attempt counts one attempt. Must be called with lock held.
func (m *Metrics) attempt(provider string, duration time.Duration) *ProviderStats {
	stats := m.getOrCreate(provider)
	stats.Attempts++
	stats.LastUsed = time.Now()
	stats.TotalTimeMs += duration.Milliseconds()
	return stats
}

// getOrCreate must be called with lock held.
func (m *Metrics) getOrCreate(provider string) *ProviderStats {
	stats, exists := m.providers[provider]
	if !exists {
		stats = &ProviderStats{}
		m.providers[provider] = stats
	}
	return stats
}

func rate(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func avg(sum, n int64) int64 {
	if n == 0 {
		return 0
	}
	return sum / n
}
