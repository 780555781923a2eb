package config

import "testing"

func validConfig() Config {
	c := Default()
	return c
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v, want nil", err)
	}
}

func TestValidateRejectsNonPositiveNumLoops(t *testing.T) {
	c := validConfig()
	c.NumLoops = 0
	if err := c.Validate(); err == nil {
		t.Error("Validate() error = nil, want error for num_loops=0")
	}
}

func TestValidateRejectsEmptyQueues(t *testing.T) {
	c := validConfig()
	c.DispatcherQueues = nil
	if err := c.Validate(); err == nil {
		t.Error("Validate() error = nil, want error for empty dispatcher queues")
	}
}

func TestValidateRejectsEmptyQueueName(t *testing.T) {
	c := validConfig()
	c.DispatcherQueues = []QueueConfig{{Name: "", Capacity: 1, Threads: 1}}
	if err := c.Validate(); err == nil {
		t.Error("Validate() error = nil, want error for empty queue name")
	}
}

func TestValidateRejectsDuplicateQueueNames(t *testing.T) {
	c := validConfig()
	c.DispatcherQueues = []QueueConfig{
		{Name: "standard", Capacity: 1, Threads: 1},
		{Name: "standard", Capacity: 1, Threads: 1},
	}
	if err := c.Validate(); err == nil {
		t.Error("Validate() error = nil, want error for duplicate queue name")
	}
}

func TestValidateRejectsNonPositiveCapacityOrThreads(t *testing.T) {
	tests := []struct {
		name string
		q    QueueConfig
	}{
		{"zero capacity", QueueConfig{Name: "q", Capacity: 0, Threads: 1}},
		{"negative capacity", QueueConfig{Name: "q", Capacity: -1, Threads: 1}},
		{"zero threads", QueueConfig{Name: "q", Capacity: 1, Threads: 0}},
		{"negative threads", QueueConfig{Name: "q", Capacity: 1, Threads: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			c.DispatcherQueues = []QueueConfig{tt.q}
			if err := c.Validate(); err == nil {
				t.Errorf("Validate() error = nil, want error for %s", tt.name)
			}
		})
	}
}

func TestValidateRejectsEmptyListenEndpoints(t *testing.T) {
	c := validConfig()
	c.ListenEndpoints = nil
	if err := c.Validate(); err == nil {
		t.Error("Validate() error = nil, want error for empty listen endpoints")
	}
}

func TestValidateRejectsUnknownLockStrategy(t *testing.T) {
	c := validConfig()
	c.LockStrategy = LockStrategy("rwmutex")
	if err := c.Validate(); err == nil {
		t.Error("Validate() error = nil, want error for unknown lock strategy")
	}
}

func TestValidateAcceptsSpinLockStrategy(t *testing.T) {
	c := validConfig()
	c.LockStrategy = LockStrategySpin
	if err := c.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil for spin lock strategy", err)
	}
}

func TestValidateRejectsNonPositiveAsyncJobCapacity(t *testing.T) {
	c := validConfig()
	c.AsyncJobCapacity = 0
	if err := c.Validate(); err == nil {
		t.Error("Validate() error = nil, want error for async_job_capacity=0")
	}
}

func TestLoadMissingPathReturnsValidatedDefault(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if c.NumLoops != Default().NumLoops {
		t.Errorf("Load(\"\").NumLoops = %d, want default %d", c.NumLoops, Default().NumLoops)
	}
}

func TestLoadNonexistentFileReturnsError(t *testing.T) {
	if _, err := Load("/nonexistent/path/does-not-exist.toml"); err == nil {
		t.Error("Load() error = nil, want error for nonexistent file")
	}
}
