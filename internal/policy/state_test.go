package policy

import "testing"

func TestAfterAttempt(t *testing.T) {
	tests := []struct {
		name  string
		ok    bool
		state CollectState
		limit int
		want  Phase
	}{
		{"success", true, CollectState{}, 2, PhaseDone},
		{"success ignores counters", true, CollectState{ErrCount: 5}, 2, PhaseDone},
		{"first failure retries", false, CollectState{}, 2, PhaseRetry},
		{"last retry", false, CollectState{ErrCount: 1}, 2, PhaseRetry},
		{"retries exhausted, never worked", false, CollectState{ErrCount: 2}, 2, PhaseFault},
		{"retries exhausted, worked before", false, CollectState{ErrCount: 2, Normal: true}, 2, PhaseDegraded},
		{"no retries allowed", false, CollectState{Normal: true}, 0, PhaseDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AfterAttempt(tt.ok, tt.state, tt.limit); got != tt.want {
				t.Errorf("AfterAttempt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAfterDegraded(t *testing.T) {
	tests := []struct {
		failCount, limit int
		want             Phase
	}{
		{1, 3, PhaseDegraded},
		{3, 3, PhaseDegraded},
		{4, 3, PhaseRestart},
	}
	for _, tt := range tests {
		if got := AfterDegraded(tt.failCount, tt.limit); got != tt.want {
			t.Errorf("AfterDegraded(%d, %d) = %v, want %v", tt.failCount, tt.limit, got, tt.want)
		}
	}
}

func TestApplyDefaults(t *testing.T) {
	c := ChannelConfig{Unit: 10, RetryLimit: 9, FailLimit: 9, Collect: CollectState{Normal: true}}
	c.ApplyDefaults()

	if c.Collect.Normal {
		t.Error("Collect.Normal = true, want false")
	}
	if c.Unit != 1 {
		t.Errorf("Unit = %d, want 1", c.Unit)
	}
	if c.RetryLimit != 2 || c.FailLimit != 3 {
		t.Errorf("limits = %d/%d, want 2/3", c.RetryLimit, c.FailLimit)
	}
}

func TestInRange(t *testing.T) {
	c := ChannelConfig{Unit: 10, Check: RangeCheck{Min: -44, Max: 125}}
	tests := []struct {
		v    float64
		want bool
	}{
		{125.0, true},
		{-44.0, true},
		{20.0, true},
		{125.1, false},
		{-44.1, false},
		{130.0, false},
	}
	for _, tt := range tests {
		if got := c.InRange(tt.v); got != tt.want {
			t.Errorf("InRange(%v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}
