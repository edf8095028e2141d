package health

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// Server is the part of a rabbitrpc server the checker inspects
type Server interface {
	Queue() string
	IsRunning() bool
}

// ServerChecker is healthy while the server's consumer is registered
type ServerChecker struct {
	server Server
}

// NewServerChecker creates a checker for server
func NewServerChecker(server Server) *ServerChecker {
	return &ServerChecker{server: server}
}

func (c *ServerChecker) Name() string {
	return "rpc_server"
}

func (c *ServerChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details: map[string]any{
			"queue": c.server.Queue(),
		},
	}

	if c.server.IsRunning() {
		result.Status = StatusHealthy
		result.Message = "consumer is running"
	} else {
		result.Status = StatusUnhealthy
		result.Message = "consumer is not running"
	}

	result.Duration = time.Since(start)
	return result
}

// GoroutineChecker degrades when the process holds too many goroutines
type GoroutineChecker struct {
	warning  int
	critical int
}

// NewGoroutineChecker creates a checker with the given thresholds
func NewGoroutineChecker(warning, critical int) *GoroutineChecker {
	return &GoroutineChecker{warning: warning, critical: critical}
}

func (c *GoroutineChecker) Name() string {
	return "goroutines"
}

func (c *GoroutineChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	goroutines := runtime.NumGoroutine()

	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details: map[string]any{
			"goroutines":     goroutines,
			"memory_used_mb": float64(m.Sys) / 1024 / 1024,
			"gc_runs":        m.NumGC,
		},
	}

	switch {
	case goroutines > c.critical:
		result.Status = StatusUnhealthy
		result.Message = fmt.Sprintf("too many goroutines: %d", goroutines)
	case goroutines > c.warning:
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("high goroutine count: %d", goroutines)
	default:
		result.Status = StatusHealthy
		result.Message = "goroutine count is normal"
	}

	result.Duration = time.Since(start)
	return result
}

// ComponentChecker allows checking custom components
type ComponentChecker struct {
	name    string
	checker func(ctx context.Context) (Status, string, error)
}

// NewComponentChecker creates a checker for custom components
func NewComponentChecker(name string, checker func(ctx context.Context) (Status, string, error)) *ComponentChecker {
	return &ComponentChecker{
		name:    name,
		checker: checker,
	}
}

func (c *ComponentChecker) Name() string {
	return c.name
}

func (c *ComponentChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	status, message, err := c.checker(ctx)
	result := CheckResult{
		Name:      c.Name(),
		Status:    status,
		Message:   message,
		Timestamp: start,
	}
	if err != nil {
		result.Error = err.Error()
	}
	result.Duration = time.Since(start)

	return result
}
