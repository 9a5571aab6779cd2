// Package errors provides severity-tagged diagnostics for ingest, theme
// validation and redirect checking.
package errors

import (
	"fmt"
	"sync"
	"time"
)

// Diagnostic represents a single problem found while processing a source
// file, a theme or a redirect rule.
type Diagnostic struct {
	Source    string // file path, theme id or redirect pattern
	Message   string
	Severity  Severity
	Timestamp time.Time
}

// Severity represents the severity of a diagnostic.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error implements the error interface.
func (d *Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s: %s", d.Source, d.Severity, d.Message)
}

// Collector collects diagnostics across a validation or ingest pass.
type Collector struct {
	diagnostics []Diagnostic
	mutex       sync.RWMutex
}

// NewCollector creates a new diagnostics collector.
func NewCollector() *Collector {
	return &Collector{diagnostics: make([]Diagnostic, 0)}
}

// Add records a diagnostic.
func (c *Collector) Add(d Diagnostic) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	d.Timestamp = time.Now()
	c.diagnostics = append(c.diagnostics, d)
}

// Warnf records a warning diagnostic for source.
func (c *Collector) Warnf(source, format string, args ...interface{}) {
	c.Add(Diagnostic{Source: source, Message: fmt.Sprintf(format, args...), Severity: SeverityWarning})
}

// Errorf records an error diagnostic for source.
func (c *Collector) Errorf(source, format string, args ...interface{}) {
	c.Add(Diagnostic{Source: source, Message: fmt.Sprintf(format, args...), Severity: SeverityError})
}

// All returns a copy of every collected diagnostic.
func (c *Collector) All() []Diagnostic {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	result := make([]Diagnostic, len(c.diagnostics))
	copy(result, c.diagnostics)
	return result
}

// BySeverity returns diagnostics at exactly the given severity.
func (c *Collector) BySeverity(s Severity) []Diagnostic {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	var out []Diagnostic
	for _, d := range c.diagnostics {
		if d.Severity == s {
			out = append(out, d)
		}
	}
	return out
}

// HasErrors reports whether any error or fatal diagnostic was collected.
// Warnings do not fail a load.
func (c *Collector) HasErrors() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	for _, d := range c.diagnostics {
		if d.Severity >= SeverityError {
			return true
		}
	}
	return false
}

// Clear drops all collected diagnostics.
func (c *Collector) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.diagnostics = c.diagnostics[:0]
}
